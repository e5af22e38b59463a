package fees

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

// Roles, as carried by the tokens of the authentication service.
const (
	RoleAdmin  = "admin:"
	RoleBursar = "admin:bursar"
)

const DateLayout = "2006-01-02"

// ClassID identifies a class by its form (eg: "Form 5") and section (eg: "B").
type ClassID struct {
	Form    string `json:"form"`
	Section string `json:"section"`
}

// Label is the display name of the class (eg: "Form 5 B").
func (c ClassID) Label() string {
	return strings.TrimSpace(strings.TrimSpace(c.Form) + " " + strings.TrimSpace(c.Section))
}

func (c ClassID) IsZero() bool { return c.Form == "" && c.Section == "" }

func (c ClassID) Less(o ClassID) bool {
	if c.Form != o.Form {
		return c.Form < o.Form
	}
	return c.Section < o.Section
}

// Student is what the student directory tells us about a student.
type Student struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Class ClassID `json:"class"`
	Level string  `json:"level"`
}

// EntryKey is the natural key of a LedgerEntry: one entry per student and billing period.
type EntryKey struct {
	StudentID    string `json:"student_id"`
	Term         string `json:"term"`
	Month        string `json:"month"`
	AcademicYear string `json:"academic_year"`
}

// LedgerEntry is one billing obligation of a student for a period and its settlement state.
// Balance may be negative when the student paid more than owed (credit).
type LedgerEntry struct {
	ID           string          `json:"id"`
	StudentID    string          `json:"student_id"`
	StudentName  string          `json:"student_name"`
	Class        ClassID         `json:"class"`
	Term         string          `json:"term"`
	Month        string          `json:"month"`
	AcademicYear string          `json:"academic_year"`
	AmountOwed   decimal.Decimal `json:"amount_owed"`
	AmountPaid   decimal.Decimal `json:"amount_paid"`
	Balance      decimal.Decimal `json:"balance"`
	Status       Status          `json:"status"`
	PaymentDate  time.Time       `json:"payment_date"`
	CreatedAt    time.Time       `json:"created_at"` // UTC
	UpdatedAt    time.Time       `json:"updated_at"` // UTC
}

func (e LedgerEntry) Key() EntryKey {
	return EntryKey{StudentID: e.StudentID, Term: e.Term, Month: e.Month, AcademicYear: e.AcademicYear}
}

// Outstanding is the balance still due, never negative.
func (e LedgerEntry) Outstanding() decimal.Decimal {
	if e.Balance.IsPositive() {
		return e.Balance
	}
	return decimal.Zero
}

// Credit is the amount paid above what is owed, never negative.
func (e LedgerEntry) Credit() decimal.Decimal {
	if e.Balance.IsNegative() {
		return e.Balance.Neg()
	}
	return decimal.Zero
}

// IsConsistent reports whether the stored balance and status match what Classify derives.
func (e LedgerEntry) IsConsistent() bool {
	balance, status := Classify(e.AmountOwed, e.AmountPaid)
	return e.Balance.Equal(balance) && e.Status == status
}

// FeeSchedule is the amount owed per (level, academic year, term).
// Only one Active schedule may exist per (level, academic year, term).
type FeeSchedule struct {
	ID           string          `json:"id"`
	Level        string          `json:"level"`
	AcademicYear string          `json:"academic_year"`
	Term         string          `json:"term"`
	Amount       decimal.Decimal `json:"amount"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"` // UTC
}

// NewPayment contains information needed to record a payment.
type NewPayment struct {
	StudentID    string          `json:"student_id" validate:"required"`
	Term         string          `json:"term" validate:"required,label"`
	Month        string          `json:"month" validate:"required,label"`
	AcademicYear string          `json:"academic_year" validate:"required,label"`
	AmountPaid   decimal.Decimal `json:"amount_paid" validate:"gte=0"`
	PaymentDate  string          `json:"payment_date" validate:"required,datetime=2006-01-02"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.StudentID = core.CleanString(np.StudentID)
	np.Term = core.CleanString(np.Term)
	np.Month = core.CleanString(np.Month)
	np.AcademicYear = core.CleanString(np.AcademicYear)
	np.PaymentDate = core.CleanString(np.PaymentDate)
	return validate.Struct(np)
}

func (np NewPayment) Key() EntryKey {
	return EntryKey{StudentID: np.StudentID, Term: np.Term, Month: np.Month, AcademicYear: np.AcademicYear}
}

// Date returns the parsed PaymentDate; Validate must have been called first.
func (np NewPayment) Date() time.Time {
	d, _ := time.Parse(DateLayout, np.PaymentDate)
	return d
}

// NewFeeSchedule contains information needed to activate a fee schedule.
type NewFeeSchedule struct {
	Level        string          `json:"level" validate:"required,label"`
	AcademicYear string          `json:"academic_year" validate:"required,label"`
	Term         string          `json:"term" validate:"required,label"`
	Amount       decimal.Decimal `json:"amount" validate:"gte=0"`
}

func (nf *NewFeeSchedule) Validate(validate *validator.Validate) error {
	nf.Level = core.CleanString(nf.Level)
	nf.AcademicYear = core.CleanString(nf.AcademicYear)
	nf.Term = core.CleanString(nf.Term)
	return validate.Struct(nf)
}

// ScheduleKey selects the fee schedules of a level for an academic year and term.
type ScheduleKey struct {
	Level        string `query:"level" json:"level" validate:"required"`
	AcademicYear string `query:"academic_year" json:"academic_year" validate:"required"`
	Term         string `query:"term" json:"term" validate:"required"`
}

func (sk *ScheduleKey) Validate(validate *validator.Validate) error {
	sk.Level = core.CleanString(sk.Level)
	sk.AcademicYear = core.CleanString(sk.AcademicYear)
	sk.Term = core.CleanString(sk.Term)
	return validate.Struct(sk)
}

// EntryFilter applies AND operation on its non-zero fields.
type EntryFilter struct {
	StudentID    string
	Term         string
	Month        string
	AcademicYear string
	Class        *ClassID
	Status       Status
	PaymentDate  time.Time // matched by calendar date
	Ordering     []core.DBOrdering
}

// orderable fields of LedgerEntry, by their JSON names.
var EntryOrderingFields = map[string]bool{
	"student_name":  true,
	"amount_paid":   true,
	"balance":       true,
	"payment_date":  true,
	"month":         true,
	"created_at":    true,
	"academic_year": true,
}

// Matches reports whether e passes every set field of the filter.
func (f EntryFilter) Matches(e LedgerEntry) bool {
	if f.StudentID != "" && e.StudentID != f.StudentID {
		return false
	}
	if f.Term != "" && e.Term != f.Term {
		return false
	}
	if f.Month != "" && e.Month != f.Month {
		return false
	}
	if f.AcademicYear != "" && e.AcademicYear != f.AcademicYear {
		return false
	}
	if f.Class != nil && e.Class != *f.Class {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.PaymentDate.IsZero() && !core.DateOnly(e.PaymentDate).Equal(core.DateOnly(f.PaymentDate)) {
		return false
	}
	return true
}
