package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fees"
	exportsvc "github.com/trezcool/bursar/services/export"
)

const cmdTimeout = time.Minute

func (cli *commandLine) addStudent(std fees.Student) error {
	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()

	if err := cli.students.UpdateOrCreateStudent(ctx, std); err != nil {
		return err
	}
	if cli.cache != nil {
		if err := cli.cache.Forget(ctx, std.ID); err != nil {
			return err
		}
	}
	fmt.Printf("student %s saved: %s, %s (%s)\n", std.ID, std.Name, std.Class.Label(), std.Level)
	return nil
}

func (cli *commandLine) setFee(level, academicYear, term, amount string) error {
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return core.NewValidationError(errors.Errorf("invalid amount %q", amount))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()

	sched, err := cli.feeSvc.SetFeeSchedule(ctx, fees.NewFeeSchedule{
		Level:        level,
		AcademicYear: academicYear,
		Term:         term,
		Amount:       amt,
	})
	if err != nil {
		return err
	}
	fmt.Printf("fee schedule %s active: %s %s %s = %s\n", sched.ID, sched.Level, sched.AcademicYear, sched.Term, sched.Amount)
	return nil
}

func (cli *commandLine) repairStatuses() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*cmdTimeout)
	defer cancel()

	n, err := cli.feeSvc.RepairInconsistentStatuses(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d ledger entries repaired\n", n)
	return nil
}

func (cli *commandLine) exportReport(term, academicYear, start, end, out string) error {
	startDate, err := time.Parse(fees.DateLayout, start)
	if err != nil {
		return core.NewValidationError(errors.Errorf("invalid start date %q", start))
	}
	endDate, err := time.Parse(fees.DateLayout, end)
	if err != nil {
		return core.NewValidationError(errors.Errorf("invalid end date %q", end))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()

	report, err := cli.feeSvc.GenerateFinancialReport(ctx, term, academicYear, startDate, endDate)
	if err != nil {
		return err
	}

	if out == "" {
		out = exportsvc.ReportFilename(report)
	}
	f, err := os.Create(out)
	if err != nil {
		return errors.Wrap(err, "creating report file")
	}
	if err = exportsvc.WriteReport(f, report); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return errors.Wrap(err, "closing report file")
	}
	fmt.Printf("financial report written to %s\n", out)
	return nil
}
