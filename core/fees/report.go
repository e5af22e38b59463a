package fees

import (
	"fmt"
	"time"

	"github.com/divan/num2words"
	"github.com/shopspring/decimal"
)

// Receipt is handed back for every recorded payment.
// AmountPaid is the amount of this payment only; Balance is what remains due (never negative)
// and Credit what was paid above the amount owed.
type Receipt struct {
	EntryID       string          `json:"entry_id"`
	StudentID     string          `json:"student_id"`
	StudentName   string          `json:"student_name"`
	Class         string          `json:"class"`
	Term          string          `json:"term"`
	Month         string          `json:"month"`
	AcademicYear  string          `json:"academic_year"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	AmountInWords string          `json:"amount_in_words"`
	AmountOwed    decimal.Decimal `json:"amount_owed"`
	Balance       decimal.Decimal `json:"balance"`
	Credit        decimal.Decimal `json:"credit"`
	Status        Status          `json:"status"`
	PaymentDate   time.Time       `json:"payment_date"`
}

func NewReceipt(entry LedgerEntry, amount decimal.Decimal) Receipt {
	return Receipt{
		EntryID:       entry.ID,
		StudentID:     entry.StudentID,
		StudentName:   entry.StudentName,
		Class:         entry.Class.Label(),
		Term:          entry.Term,
		Month:         entry.Month,
		AcademicYear:  entry.AcademicYear,
		AmountPaid:    amount,
		AmountInWords: AmountInWords(amount),
		AmountOwed:    entry.AmountOwed,
		Balance:       entry.Outstanding(),
		Credit:        entry.Credit(),
		Status:        entry.Status,
		PaymentDate:   entry.PaymentDate,
	}
}

// AmountInWords spells the whole part of amount out, cents as a fraction (eg: "seventy and 50/100").
func AmountInWords(amount decimal.Decimal) string {
	amount = amount.Abs().Round(2)
	whole := amount.IntPart()
	words := num2words.Convert(int(whole))
	cents := amount.Sub(decimal.NewFromInt(whole)).Shift(2).IntPart()
	if cents == 0 {
		return words
	}
	return fmt.Sprintf("%s and %02d/100", words, cents)
}

// FinancialReport is computed on request and never stored.
// TotalExpectedRevenue == TotalCollectedAmount + TotalOutstandingAmount.
type FinancialReport struct {
	Term                   string          `json:"term"`
	AcademicYear           string          `json:"academic_year"`
	StartDate              time.Time       `json:"start_date"`
	EndDate                time.Time       `json:"end_date"`
	TotalExpectedRevenue   decimal.Decimal `json:"total_expected_revenue"`
	TotalCollectedAmount   decimal.Decimal `json:"total_collected_amount"`
	TotalOutstandingAmount decimal.Decimal `json:"total_outstanding_amount"`
	TotalCredit            decimal.Decimal `json:"total_credit"`
	ClassSummaries         []ClassSummary  `json:"class_summaries"`
	DailySummaries         []DailySummary  `json:"daily_summaries"`
	GeneratedAt            time.Time       `json:"generated_at"`
}

// AssembleReport builds the report of a term from its ledger entries and the daily summaries of [start, end].
func AssembleReport(term, academicYear string, start, end time.Time, entries []LedgerEntry, daily []DailySummary) FinancialReport {
	report := FinancialReport{
		Term:                   term,
		AcademicYear:           academicYear,
		StartDate:              start,
		EndDate:                end,
		TotalCollectedAmount:   decimal.Zero,
		TotalOutstandingAmount: decimal.Zero,
		TotalCredit:            decimal.Zero,
		ClassSummaries:         SummariseByClass(entries),
		DailySummaries:         daily,
	}
	for _, e := range entries {
		report.TotalCollectedAmount = report.TotalCollectedAmount.Add(e.AmountPaid)
		report.TotalOutstandingAmount = report.TotalOutstandingAmount.Add(e.Outstanding())
		report.TotalCredit = report.TotalCredit.Add(e.Credit())
	}
	report.TotalExpectedRevenue = report.TotalCollectedAmount.Add(report.TotalOutstandingAmount)
	if report.DailySummaries == nil {
		report.DailySummaries = []DailySummary{}
	}
	return report
}
