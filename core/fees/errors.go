package fees

import "errors"

var (
	// errors
	ErrStudentNotFound     = errors.New("student not found")
	ErrFeeScheduleNotFound = errors.New("no active fee schedule")
	ErrEntryNotFound       = errors.New("ledger entry not found")

	errStartAfterEnd = errors.New("start date is after end date")
	errRangeTooLong  = errors.New("date range is too long")
	errBlankPeriod   = errors.New("term and academic year are required")
)
