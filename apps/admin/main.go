package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fees"
	cachesvc "github.com/trezcool/bursar/services/cache"
	logsvc "github.com/trezcool/bursar/services/logger"
	"github.com/trezcool/bursar/storage/database"
	boiledrepos "github.com/trezcool/bursar/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/bursar/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	cli := commandLine{conf: conf}

	// the database may not exist yet
	if len(os.Args) < 2 || os.Args[1] != "createdb" {
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
		}
		defer func() { _ = db.Close() }()

		validate := validator.New()
		_en := en.New()
		translator, _ := ut.New(_en, _en).GetTranslator("en")
		core.InitValidators(validate, translator)

		var students fees.StudentDirectory = boiledrepos.NewStudentRepository(db)
		if conf.Redis.Addr != "" {
			cache := cachesvc.NewStudentDirectory(students, cachesvc.NewRedisClient(conf), conf, logger)
			students = cache
			cli.cache = cache
		}

		cli.db = db
		cli.students = boiledrepos.NewStudentRepository(db)
		cli.feeSvc = fees.NewService(fees.ServiceDeps{
			Ledger:    sqlxrepos.NewLedgerRepository(db),
			Schedules: boiledrepos.NewFeeScheduleRepository(db),
			Students:  students,
			Logger:    logger,
			Validate:  validate,
			Conf:      conf,
		})
	}

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		os.Exit(1)
	}
}
