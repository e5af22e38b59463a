package main

import (
	"github.com/pressly/goose/v3"

	"github.com/trezcool/bursar/storage/database"
)

var (
	gooseRunFunc = goose.Run                  // mockable
	createDBFunc = database.CreateIfNotExist // mockable
)

func (cli *commandLine) migrate(args []string) error {
	if err := database.SetUpMigrations(); err != nil {
		return err
	}
	return gooseRunFunc(args[0], cli.db, database.MigrationsDir, args[1:]...)
}

func (cli *commandLine) createDB() error {
	return createDBFunc(cli.conf)
}
