package fees

import (
	"context"
	"time"
)

type (
	// StudentDirectory looks students up in the student registry.
	// FindStudentByID returns ErrStudentNotFound for unknown ids.
	StudentDirectory interface {
		FindStudentByID(ctx context.Context, id string) (Student, error)
	}

	FeeScheduleRepository interface {
		// FindActiveFeeSchedule returns ErrFeeScheduleNotFound when no active schedule matches.
		FindActiveFeeSchedule(ctx context.Context, level, academicYear, term string) (FeeSchedule, error)
		// SetActiveFeeSchedule deactivates the current schedule of the same (level, academic year, term), if any,
		// and stores sched as the active one, atomically.
		SetActiveFeeSchedule(ctx context.Context, sched FeeSchedule) (FeeSchedule, error)
		// QueryFeeSchedules returns active and historical schedules; empty arguments match everything.
		QueryFeeSchedules(ctx context.Context, level, academicYear string) ([]FeeSchedule, error)
	}

	// EntryUpdater receives the current entry stored under a key (nil if none) and returns the entry to store.
	EntryUpdater func(existing *LedgerEntry) (LedgerEntry, error)

	LedgerRepository interface {
		// UpdateOrCreateEntry holds an exclusive lock on key while fn runs and persists fn's result.
		// Nothing is written if fn fails.
		UpdateOrCreateEntry(ctx context.Context, key EntryKey, fn EntryUpdater) (LedgerEntry, error)
		// GetEntry returns ErrEntryNotFound for unknown ids.
		GetEntry(ctx context.Context, id string) (LedgerEntry, error)
		QueryEntries(ctx context.Context, filter EntryFilter) ([]LedgerEntry, error)
		// RepairEntry only rewrites the balance and status of an entry.
		RepairEntry(ctx context.Context, entry LedgerEntry) error
		// DeleteEntry returns ErrEntryNotFound for unknown ids.
		DeleteEntry(ctx context.Context, id string) error
	}

	// EventPublisher notifies other systems (eg: parent messaging) of ledger changes.
	EventPublisher interface {
		PublishPaymentRecorded(ctx context.Context, event PaymentRecorded) error
	}
)

// PaymentRecorded is published once a payment is committed to the ledger.
type PaymentRecorded struct {
	EntryID      string    `json:"entry_id"`
	StudentID    string    `json:"student_id"`
	StudentName  string    `json:"student_name"`
	Class        string    `json:"class"`
	Term         string    `json:"term"`
	Month        string    `json:"month"`
	AcademicYear string    `json:"academic_year"`
	Amount       string    `json:"amount"`
	Balance      string    `json:"balance"`
	Status       Status    `json:"status"`
	PaymentDate  string    `json:"payment_date"`
	RecordedAt   time.Time `json:"recorded_at"`
}
