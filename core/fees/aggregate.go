package fees

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// StudentPaymentInfo is the compact projection of a LedgerEntry used in class listings.
type StudentPaymentInfo struct {
	StudentID    string          `json:"student_id"`
	StudentName  string          `json:"student_name"`
	Class        string          `json:"class"`
	Term         string          `json:"term"`
	Month        string          `json:"month"`
	AcademicYear string          `json:"academic_year"`
	AmountPaid   decimal.Decimal `json:"amount_paid"`
	Balance      decimal.Decimal `json:"balance"`
	Status       Status          `json:"status"`
}

type StatusGroup struct {
	Status   Status               `json:"status"`
	Students []StudentPaymentInfo `json:"students"`
}

type DailySummary struct {
	Date              time.Time       `json:"date"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	TotalTransactions int             `json:"total_transactions"`
}

// ClassSummary holds the payment figures of a class for a report period.
// FullPayments + PartPayments + NonPayers == TotalStudents.
type ClassSummary struct {
	Class         ClassID         `json:"class"`
	ClassLabel    string          `json:"class_label"`
	TotalStudents int             `json:"total_students"`
	FullPayments  int             `json:"full_payments"`
	PartPayments  int             `json:"part_payments"`
	NonPayers     int             `json:"non_payers"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	TotalBalance  decimal.Decimal `json:"total_balance"`
}

func projectEntry(e LedgerEntry) StudentPaymentInfo {
	return StudentPaymentInfo{
		StudentID:    e.StudentID,
		StudentName:  e.StudentName,
		Class:        e.Class.Label(),
		Term:         e.Term,
		Month:        e.Month,
		AcademicYear: e.AcademicYear,
		AmountPaid:   e.AmountPaid,
		Balance:      e.Outstanding(),
		Status:       e.Status,
	}
}

// GroupByStatus partitions entries by status, one group per Status (in Statuses order), empty groups included.
// Entries holding an unknown status are returned apart.
func GroupByStatus(entries []LedgerEntry) (groups []StatusGroup, unknown []LedgerEntry) {
	idx := make(map[Status]int, len(Statuses))
	groups = make([]StatusGroup, 0, len(Statuses))
	for i, s := range Statuses {
		idx[s] = i
		groups = append(groups, StatusGroup{Status: s, Students: []StudentPaymentInfo{}})
	}

	for _, e := range entries {
		i, ok := idx[e.Status]
		if !ok {
			unknown = append(unknown, e)
			continue
		}
		groups[i].Students = append(groups[i].Students, projectEntry(e))
	}
	return groups, unknown
}

// SummariseDay sums the amount paid of entries paid on date.
func SummariseDay(date time.Time, entries []LedgerEntry) DailySummary {
	sum := DailySummary{Date: date, TotalAmount: decimal.Zero}
	for _, e := range entries {
		sum.TotalAmount = sum.TotalAmount.Add(e.AmountPaid)
		sum.TotalTransactions++
	}
	return sum
}

// SummariseByClass groups entries by class, sorted by class.
// Unknown statuses are counted with the status Classify derives for the entry.
func SummariseByClass(entries []LedgerEntry) []ClassSummary {
	byClass := make(map[ClassID]*ClassSummary)
	for _, e := range entries {
		cs, ok := byClass[e.Class]
		if !ok {
			cs = &ClassSummary{
				Class:        e.Class,
				ClassLabel:   e.Class.Label(),
				TotalPaid:    decimal.Zero,
				TotalBalance: decimal.Zero,
			}
			byClass[e.Class] = cs
		}

		status := e.Status
		if !status.IsValid() {
			_, status = Classify(e.AmountOwed, e.AmountPaid)
		}
		switch status {
		case StatusFullPayment:
			cs.FullPayments++
		case StatusPartPayment:
			cs.PartPayments++
		case StatusNonPayer:
			cs.NonPayers++
		}
		cs.TotalStudents++
		cs.TotalPaid = cs.TotalPaid.Add(e.AmountPaid)
		cs.TotalBalance = cs.TotalBalance.Add(e.Outstanding())
	}

	summaries := make([]ClassSummary, 0, len(byClass))
	for _, cs := range byClass {
		summaries = append(summaries, *cs)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Class.Less(summaries[j].Class) })
	return summaries
}

// Days lists every calendar date in [start, end].
func Days(start, end time.Time) []time.Time {
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
