package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fees"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type (
	studentWriter interface {
		UpdateOrCreateStudent(ctx context.Context, std fees.Student, exec ...core.DBExecutor) error
	}

	studentCache interface {
		Forget(ctx context.Context, id string) error
	}

	commandLine struct {
		conf     *core.Config
		db       *sql.DB
		feeSvc   fees.ServiceInterface
		students studentWriter
		cache    studentCache // optional
	}
)

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  createdb - create the database and its user (the admin password is prompted if not configured)")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Println("  addstudent -id ID -name NAME -form FORM [-section SECTION] -level LEVEL - add or update a student")
	fmt.Println("  setfee -level LEVEL -year YEAR -term TERM -amount AMOUNT - activate a fee schedule")
	fmt.Println("  repairstatuses - fix the balance and status of inconsistent ledger entries")
	fmt.Println("  exportreport -term TERM -year YEAR -start YYYY-MM-DD -end YYYY-MM-DD [-out FILE] - export a financial report")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addStudentCmd := flag.NewFlagSet("addstudent", flag.ExitOnError)
	addStudentID := addStudentCmd.String("id", "", "The student's ID in the registry.")
	addStudentName := addStudentCmd.String("name", "", "The student's full name.")
	addStudentForm := addStudentCmd.String("form", "", "The student's form (eg: \"Form 5\").")
	addStudentSection := addStudentCmd.String("section", "", "The student's section (eg: \"B\").")
	addStudentLevel := addStudentCmd.String("level", "", "The student's level, as used by fee schedules (eg: \"Secondary\").")

	setFeeCmd := flag.NewFlagSet("setfee", flag.ExitOnError)
	setFeeLevel := setFeeCmd.String("level", "", "The level the fee applies to.")
	setFeeYear := setFeeCmd.String("year", "", "The academic year (eg: \"2025\").")
	setFeeTerm := setFeeCmd.String("term", "", "The term (eg: \"Term 2\").")
	setFeeAmount := setFeeCmd.String("amount", "", "The amount owed per student.")

	exportCmd := flag.NewFlagSet("exportreport", flag.ExitOnError)
	exportTerm := exportCmd.String("term", "", "The term reported on.")
	exportYear := exportCmd.String("year", "", "The academic year reported on.")
	exportStart := exportCmd.String("start", "", "The first day of the daily summaries (YYYY-MM-DD).")
	exportEnd := exportCmd.String("end", "", "The last day of the daily summaries (YYYY-MM-DD).")
	exportOut := exportCmd.String("out", "", "The xlsx file to write. Defaults to a name derived from the period.")

	switch args[1] {
	case "createdb":
		if cli.conf.Database.AdminPassword == "" {
			fmt.Printf("Enter password of %q:", cli.conf.Database.AdminUser)
			pwd, err := readPasswordFunc(syscall.Stdin)
			fmt.Println()
			if err != nil {
				return err
			}
			if len(pwd) == 0 {
				return errHelp
			}
			cli.conf.Database.AdminPassword = string(pwd)
		}
		return cli.createDB()
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addstudent":
		if err := addStudentCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addStudentID == "" || *addStudentName == "" || *addStudentForm == "" || *addStudentLevel == "" {
			addStudentCmd.Usage()
			return errHelp
		}
		return cli.addStudent(fees.Student{
			ID:    *addStudentID,
			Name:  *addStudentName,
			Class: fees.ClassID{Form: *addStudentForm, Section: *addStudentSection},
			Level: *addStudentLevel,
		})
	case "setfee":
		if err := setFeeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *setFeeAmount == "" {
			setFeeCmd.Usage()
			return errHelp
		}
		return cli.setFee(*setFeeLevel, *setFeeYear, *setFeeTerm, *setFeeAmount)
	case "repairstatuses":
		return cli.repairStatuses()
	case "exportreport":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *exportStart == "" || *exportEnd == "" {
			exportCmd.Usage()
			return errHelp
		}
		return cli.exportReport(*exportTerm, *exportYear, *exportStart, *exportEnd, *exportOut)
	default:
		cli.printUsage()
		return errHelp
	}
}
