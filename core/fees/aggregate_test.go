package fees

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	form5B = ClassID{Form: "Form 5", Section: "B"}
	form1A = ClassID{Form: "Form 1", Section: "A"}
)

func newEntry(id string, class ClassID, owed, paid string) LedgerEntry {
	e := LedgerEntry{
		ID:           id,
		StudentID:    "std-" + id,
		StudentName:  "Student " + id,
		Class:        class,
		Term:         "Term 2",
		Month:        "July",
		AcademicYear: "2025",
		AmountOwed:   dec(owed),
		AmountPaid:   dec(paid),
	}
	e.Balance, e.Status = Classify(e.AmountOwed, e.AmountPaid)
	return e
}

func TestGroupByStatus(t *testing.T) {
	entries := []LedgerEntry{
		newEntry("1", form5B, "100", "70"),
		newEntry("2", form5B, "100", "100"),
		newEntry("3", form5B, "100", "80"),
	}
	weird := newEntry("4", form5B, "100", "0")
	weird.Status = "LOL"
	entries = append(entries, weird)

	groups, unknown := GroupByStatus(entries)

	require.Len(t, groups, 3)
	assert.Equal(t, StatusNonPayer, groups[0].Status)
	assert.Empty(t, groups[0].Students)
	assert.NotNil(t, groups[0].Students, "empty groups are listed")
	assert.Equal(t, StatusPartPayment, groups[1].Status)
	assert.Len(t, groups[1].Students, 2)
	assert.Equal(t, StatusFullPayment, groups[2].Status)
	require.Len(t, groups[2].Students, 1)
	assert.Equal(t, "Form 5 B", groups[2].Students[0].Class)
	assert.Equal(t, []LedgerEntry{weird}, unknown)
}

func TestGroupByStatus_reportsClampedBalance(t *testing.T) {
	groups, _ := GroupByStatus([]LedgerEntry{newEntry("1", form5B, "100", "130")})
	require.Len(t, groups[2].Students, 1)
	assert.True(t, groups[2].Students[0].Balance.IsZero())
}

func TestSummariseDay(t *testing.T) {
	day := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)

	empty := SummariseDay(day, nil)
	assert.True(t, empty.TotalAmount.IsZero())
	assert.Equal(t, 0, empty.TotalTransactions)
	assert.Equal(t, day, empty.Date)

	sum := SummariseDay(day, []LedgerEntry{newEntry("1", form5B, "100", "70"), newEntry("2", form1A, "50", "25.5")})
	assert.True(t, sum.TotalAmount.Equal(dec("95.5")))
	assert.Equal(t, 2, sum.TotalTransactions)
}

func TestSummariseByClass(t *testing.T) {
	entries := []LedgerEntry{
		newEntry("1", form5B, "100", "70"),
		newEntry("2", form5B, "100", "100"),
		newEntry("3", form5B, "100", "0"),
		newEntry("4", form5B, "100", "150"),
		newEntry("5", form1A, "50", "10"),
	}

	summaries := SummariseByClass(entries)

	require.Len(t, summaries, 2)
	assert.Equal(t, form1A, summaries[0].Class, "sorted by class")
	f5 := summaries[1]
	assert.Equal(t, "Form 5 B", f5.ClassLabel)
	assert.Equal(t, 4, f5.TotalStudents)
	assert.Equal(t, 2, f5.FullPayments)
	assert.Equal(t, 1, f5.PartPayments)
	assert.Equal(t, 1, f5.NonPayers)
	assert.True(t, f5.TotalPaid.Equal(dec("320")))
	assert.True(t, f5.TotalBalance.Equal(dec("130")), "credits do not reduce what is outstanding")

	for _, cs := range summaries {
		assert.Equal(t, cs.TotalStudents, cs.FullPayments+cs.PartPayments+cs.NonPayers)
	}
}

func TestAssembleReport_totalsReconcile(t *testing.T) {
	entries := []LedgerEntry{
		newEntry("1", form5B, "100", "70"),
		newEntry("2", form5B, "100", "130"),
		newEntry("3", form1A, "50", "0"),
		newEntry("4", form1A, "33.33", "12.12"),
	}
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC)

	report := AssembleReport("Term 2", "2025", start, end, entries, nil)

	assert.True(t, report.TotalCollectedAmount.Equal(dec("212.12")))
	assert.True(t, report.TotalOutstandingAmount.Equal(dec("101.21")))
	assert.True(t, report.TotalCredit.Equal(dec("30")))
	assert.True(t, report.TotalExpectedRevenue.Equal(report.TotalCollectedAmount.Add(report.TotalOutstandingAmount)))
	assert.Len(t, report.ClassSummaries, 2)
	assert.NotNil(t, report.DailySummaries)

	empty := AssembleReport("Term 2", "2025", start, end, nil, nil)
	assert.True(t, empty.TotalExpectedRevenue.Equal(decimal.Zero))
	assert.Empty(t, empty.ClassSummaries)
}

func TestDays(t *testing.T) {
	start := time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC)
	days := Days(start, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))
	require.Len(t, days, 4)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), days[2])
	assert.Len(t, Days(start, start), 1)
	assert.Empty(t, Days(start, start.AddDate(0, 0, -1)))
}

func TestEntryFilter_Matches(t *testing.T) {
	e := newEntry("1", form5B, "100", "70")
	e.PaymentDate = time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)

	assert.True(t, EntryFilter{}.Matches(e))
	assert.True(t, EntryFilter{Class: &form5B, Term: "Term 2", AcademicYear: "2025"}.Matches(e))
	assert.True(t, EntryFilter{PaymentDate: time.Date(2025, 7, 10, 15, 4, 5, 0, time.UTC)}.Matches(e))
	assert.False(t, EntryFilter{Class: &form1A}.Matches(e))
	assert.False(t, EntryFilter{Status: StatusFullPayment}.Matches(e))
	assert.False(t, EntryFilter{PaymentDate: time.Date(2025, 7, 11, 0, 0, 0, 0, time.UTC)}.Matches(e))
}
