package fees

import "github.com/shopspring/decimal"

// Status is the settlement state of a LedgerEntry.
type Status string

const (
	StatusNonPayer    Status = "NON_PAYER"
	StatusPartPayment Status = "PART_PAYMENT"
	StatusFullPayment Status = "FULL_PAYMENT"
)

// Statuses lists every Status, in reporting order.
var Statuses = []Status{StatusNonPayer, StatusPartPayment, StatusFullPayment}

func (s Status) IsValid() bool {
	switch s {
	case StatusNonPayer, StatusPartPayment, StatusFullPayment:
		return true
	}
	return false
}

// IsTerminal reports whether payments can no longer move the entry to another status.
func (s Status) IsTerminal() bool {
	return s == StatusFullPayment
}

// CanTransitionTo reports whether accumulating payments may move an entry from s to next.
// Status repairs are not bound by these transitions.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusNonPayer:
		return next == StatusPartPayment || next == StatusFullPayment
	case StatusPartPayment:
		return next == StatusPartPayment || next == StatusFullPayment
	case StatusFullPayment:
		return next == StatusFullPayment
	}
	return false
}

// Classify derives the balance and status of an entry from what is owed and what was paid.
// The balance is signed: a negative balance is a credit.
func Classify(owed, paid decimal.Decimal) (decimal.Decimal, Status) {
	balance := owed.Sub(paid)
	switch {
	case !balance.IsPositive():
		return balance, StatusFullPayment
	case paid.IsPositive():
		return balance, StatusPartPayment
	default:
		return balance, StatusNonPayer
	}
}
