package exportsvc

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/bursar/core/fees"
)

const (
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	SummarySheet = "Summary"
	ClassesSheet = "Classes"
	DailySheet   = "Daily"
)

var unsafeFilenameChars = regexp.MustCompile(`[^\w\-]+`)

// ReportFilename names the workbook of a report (eg: "financial_report_2025_Term_2.xlsx").
func ReportFilename(report fees.FinancialReport) string {
	name := fmt.Sprintf("financial_report_%s_%s", report.AcademicYear, report.Term)
	return strings.Trim(unsafeFilenameChars.ReplaceAllString(name, "_"), "_") + ".xlsx"
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// WriteReport writes report as an xlsx workbook with a summary, a per-class and a per-day sheet.
func WriteReport(w io.Writer, report fees.FinancialReport) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return errors.Wrap(err, "naming summary sheet")
	}
	if err := writeSummary(f, report); err != nil {
		return errors.Wrap(err, "writing summary sheet")
	}
	if err := writeClasses(f, report.ClassSummaries); err != nil {
		return errors.Wrap(err, "writing classes sheet")
	}
	if err := writeDays(f, report.DailySummaries); err != nil {
		return errors.Wrap(err, "writing daily sheet")
	}
	f.SetActiveSheet(0)

	return errors.Wrap(f.Write(w), "writing workbook")
}

func setRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := row
		if err = f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(f *excelize.File, r fees.FinancialReport) error {
	return setRows(f, SummarySheet, [][]interface{}{
		{"Term", r.Term},
		{"Academic year", r.AcademicYear},
		{"From", r.StartDate.Format(fees.DateLayout)},
		{"To", r.EndDate.Format(fees.DateLayout)},
		{"Expected revenue", money(r.TotalExpectedRevenue)},
		{"Collected", money(r.TotalCollectedAmount)},
		{"Outstanding", money(r.TotalOutstandingAmount)},
		{"Credit", money(r.TotalCredit)},
		{"Generated at", r.GeneratedAt.Format("2006-01-02 15:04:05")},
	})
}

func writeClasses(f *excelize.File, summaries []fees.ClassSummary) error {
	if _, err := f.NewSheet(ClassesSheet); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"Class", "Students", "Full payments", "Part payments", "Non payers", "Paid", "Balance"},
	}
	for _, cs := range summaries {
		rows = append(rows, []interface{}{
			cs.ClassLabel, cs.TotalStudents, cs.FullPayments, cs.PartPayments, cs.NonPayers,
			money(cs.TotalPaid), money(cs.TotalBalance),
		})
	}
	return setRows(f, ClassesSheet, rows)
}

func writeDays(f *excelize.File, summaries []fees.DailySummary) error {
	if _, err := f.NewSheet(DailySheet); err != nil {
		return err
	}
	rows := [][]interface{}{{"Date", "Transactions", "Amount"}}
	for _, ds := range summaries {
		rows = append(rows, []interface{}{ds.Date.Format(fees.DateLayout), ds.TotalTransactions, money(ds.TotalAmount)})
	}
	return setRows(f, DailySheet, rows)
}
