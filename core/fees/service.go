package fees

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

type (
	ServiceInterface interface {
		RecordPayment(ctx context.Context, np NewPayment) (Receipt, error)
		GetEntry(ctx context.Context, id string) (LedgerEntry, error)
		DeleteEntry(ctx context.Context, id string) error
		GetStudentPayments(ctx context.Context, studentID, term, academicYear string) ([]LedgerEntry, error)
		GetPaymentsByDate(ctx context.Context, date time.Time, ordering ...core.DBOrdering) ([]LedgerEntry, error)
		GetPaymentStatusByClass(ctx context.Context, class ClassID) ([]StatusGroup, error)
		GetDailySummary(ctx context.Context, date time.Time) (DailySummary, error)
		GetDailySummaries(ctx context.Context, start, end time.Time) ([]DailySummary, error)
		GenerateFinancialReport(ctx context.Context, term, academicYear string, start, end time.Time) (FinancialReport, error)
		RepairInconsistentStatuses(ctx context.Context) (int, error)
		SetFeeSchedule(ctx context.Context, nf NewFeeSchedule) (FeeSchedule, error)
		GetActiveFeeSchedule(ctx context.Context, key ScheduleKey) (FeeSchedule, error)
		QueryFeeSchedules(ctx context.Context, level, academicYear string) ([]FeeSchedule, error)
	}

	ServiceDeps struct {
		Ledger    LedgerRepository
		Schedules FeeScheduleRepository
		Students  StudentDirectory
		Publisher EventPublisher // optional
		Logger    core.Logger
		Validate  *validator.Validate
		Conf      *core.Config
	}

	Service struct {
		ledger        LedgerRepository
		schedules     FeeScheduleRepository
		students      StudentDirectory
		publisher     EventPublisher
		logger        core.Logger
		validate      *validator.Validate
		maxReportDays int
		now           func() time.Time
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(deps ServiceDeps) *Service {
	maxDays := 366
	if deps.Conf != nil && deps.Conf.Fees.MaxReportDays > 0 {
		maxDays = deps.Conf.Fees.MaxReportDays
	}
	return &Service{
		ledger:        deps.Ledger,
		schedules:     deps.Schedules,
		students:      deps.Students,
		publisher:     deps.Publisher,
		logger:        deps.Logger,
		validate:      deps.Validate,
		maxReportDays: maxDays,
		now:           time.Now,
	}
}

func (svc *Service) findStudent(ctx context.Context, id string) (Student, error) {
	std, err := svc.students.FindStudentByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrStudentNotFound {
			return Student{}, core.NewNotFoundError(ErrStudentNotFound, "student", id)
		}
		return Student{}, errors.Wrap(err, "finding student")
	}
	return std, nil
}

// ResolveFee returns the amount owed by std for a term, from the active fee schedule of their level.
func (svc *Service) ResolveFee(ctx context.Context, std Student, academicYear, term string) (decimal.Decimal, error) {
	sched, err := svc.schedules.FindActiveFeeSchedule(ctx, std.Level, academicYear, term)
	if err != nil {
		if errors.Cause(err) == ErrFeeScheduleNotFound {
			key := fmt.Sprintf("%s/%s/%s", std.Level, academicYear, term)
			return decimal.Zero, core.NewNotFoundError(ErrFeeScheduleNotFound, "fee schedule", key)
		}
		return decimal.Zero, errors.Wrap(err, "finding active fee schedule")
	}
	return sched.Amount, nil
}

// RecordPayment applies a payment to the ledger entry of the student for the period, creating it on first payment.
func (svc *Service) RecordPayment(ctx context.Context, np NewPayment) (Receipt, error) {
	if err := np.Validate(svc.validate); err != nil {
		return Receipt{}, err
	}
	std, err := svc.findStudent(ctx, np.StudentID)
	if err != nil {
		return Receipt{}, err
	}

	amount := np.AmountPaid
	date := np.Date()
	now := svc.now().UTC()

	entry, err := svc.ledger.UpdateOrCreateEntry(ctx, np.Key(), func(existing *LedgerEntry) (LedgerEntry, error) {
		var e LedgerEntry
		if existing == nil {
			owed, err := svc.ResolveFee(ctx, std, np.AcademicYear, np.Term)
			if err != nil {
				return LedgerEntry{}, err
			}
			e = LedgerEntry{
				StudentID:    np.StudentID,
				Term:         np.Term,
				Month:        np.Month,
				AcademicYear: np.AcademicYear,
				AmountOwed:   owed,
				AmountPaid:   amount,
				PaymentDate:  date,
				CreatedAt:    now,
			}
		} else {
			e = *existing
			e.AmountPaid = e.AmountPaid.Add(amount)
			if date.After(e.PaymentDate) {
				e.PaymentDate = date
			}
		}
		e.StudentName = std.Name
		e.Class = std.Class
		e.Balance, e.Status = Classify(e.AmountOwed, e.AmountPaid)
		e.UpdatedAt = now
		return e, nil
	})
	if err != nil {
		if core.IsNotFound(err) {
			return Receipt{}, err
		}
		return Receipt{}, errors.Wrap(err, "updating ledger entry")
	}

	svc.publishPaymentRecorded(ctx, entry, amount, now)
	return NewReceipt(entry, amount), nil
}

func (svc *Service) publishPaymentRecorded(ctx context.Context, entry LedgerEntry, amount decimal.Decimal, now time.Time) {
	if svc.publisher == nil {
		return
	}
	event := PaymentRecorded{
		EntryID:      entry.ID,
		StudentID:    entry.StudentID,
		StudentName:  entry.StudentName,
		Class:        entry.Class.Label(),
		Term:         entry.Term,
		Month:        entry.Month,
		AcademicYear: entry.AcademicYear,
		Amount:       amount.String(),
		Balance:      entry.Outstanding().String(),
		Status:       entry.Status,
		PaymentDate:  entry.PaymentDate.Format(DateLayout),
		RecordedAt:   now,
	}
	if err := svc.publisher.PublishPaymentRecorded(ctx, event); err != nil {
		svc.logger.Error("publishing payment recorded event", errors.Wrap(err, "publishing event"), map[string]interface{}{"entry_id": entry.ID})
	}
}

func (svc *Service) GetEntry(ctx context.Context, id string) (LedgerEntry, error) {
	entry, err := svc.ledger.GetEntry(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrEntryNotFound {
			return LedgerEntry{}, core.NewNotFoundError(ErrEntryNotFound, "ledger entry", id)
		}
		return LedgerEntry{}, errors.Wrap(err, "getting ledger entry")
	}
	return entry, nil
}

// DeleteEntry physically removes a ledger entry. Administrative use only.
func (svc *Service) DeleteEntry(ctx context.Context, id string) error {
	if err := svc.ledger.DeleteEntry(ctx, id); err != nil {
		if errors.Cause(err) == ErrEntryNotFound {
			return core.NewNotFoundError(ErrEntryNotFound, "ledger entry", id)
		}
		return errors.Wrap(err, "deleting ledger entry")
	}
	svc.logger.Info(fmt.Sprintf("ledger entry %s deleted", id))
	return nil
}

func (svc *Service) GetStudentPayments(ctx context.Context, studentID, term, academicYear string) ([]LedgerEntry, error) {
	entries, err := svc.ledger.QueryEntries(ctx, EntryFilter{
		StudentID:    core.CleanString(studentID),
		Term:         core.CleanString(term),
		AcademicYear: core.CleanString(academicYear),
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying student entries")
	}
	return entries, nil
}

func (svc *Service) GetPaymentsByDate(ctx context.Context, date time.Time, ordering ...core.DBOrdering) ([]LedgerEntry, error) {
	entries, err := svc.ledger.QueryEntries(ctx, EntryFilter{PaymentDate: core.DateOnly(date), Ordering: ordering})
	if err != nil {
		return nil, errors.Wrap(err, "querying entries by payment date")
	}
	return entries, nil
}

// GetPaymentStatusByClass lists the students of a class under each payment status.
func (svc *Service) GetPaymentStatusByClass(ctx context.Context, class ClassID) ([]StatusGroup, error) {
	class.Form = core.CleanString(class.Form)
	class.Section = core.CleanString(class.Section)
	entries, err := svc.ledger.QueryEntries(ctx, EntryFilter{Class: &class})
	if err != nil {
		return nil, errors.Wrap(err, "querying class entries")
	}
	groups, unknown := GroupByStatus(entries)
	for _, e := range unknown {
		svc.logger.Warn(fmt.Sprintf("ledger entry %s has unknown status %q", e.ID, e.Status))
	}
	return groups, nil
}

// GetDailySummary sums the payments of the entries last paid on date. No payments is not an error.
func (svc *Service) GetDailySummary(ctx context.Context, date time.Time) (DailySummary, error) {
	date = core.DateOnly(date)
	entries, err := svc.ledger.QueryEntries(ctx, EntryFilter{PaymentDate: date})
	if err != nil {
		return DailySummary{}, errors.Wrap(err, "querying entries by payment date")
	}
	return SummariseDay(date, entries), nil
}

func (svc *Service) checkRange(start, end time.Time) error {
	if start.After(end) {
		return core.NewValidationError(errStartAfterEnd,
			core.FieldError{Field: "start", Error: errStartAfterEnd.Error()})
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > svc.maxReportDays {
		msg := fmt.Sprintf("%s: at most %d days", errRangeTooLong, svc.maxReportDays)
		return core.NewValidationError(errRangeTooLong, core.FieldError{Field: "end", Error: msg})
	}
	return nil
}

// GetDailySummaries returns the summary of every day of [start, end] having payments.
// A failing day is logged and left out.
func (svc *Service) GetDailySummaries(ctx context.Context, start, end time.Time) ([]DailySummary, error) {
	start, end = core.DateOnly(start), core.DateOnly(end)
	if err := svc.checkRange(start, end); err != nil {
		return nil, err
	}

	summaries := make([]DailySummary, 0)
	for _, day := range Days(start, end) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sum, err := svc.GetDailySummary(ctx, day)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("summarising %s", day.Format(DateLayout)), err)
			continue
		}
		if sum.TotalTransactions == 0 {
			continue
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// GenerateFinancialReport reports on the ledger entries of a term.
// The dates only bound the daily summaries, class summaries cover the whole term.
func (svc *Service) GenerateFinancialReport(ctx context.Context, term, academicYear string, start, end time.Time) (FinancialReport, error) {
	term = core.CleanString(term)
	academicYear = core.CleanString(academicYear)
	if term == "" || academicYear == "" {
		return FinancialReport{}, core.NewValidationError(errBlankPeriod,
			core.FieldError{Field: "term", Error: errBlankPeriod.Error()},
			core.FieldError{Field: "academic_year", Error: errBlankPeriod.Error()})
	}
	start, end = core.DateOnly(start), core.DateOnly(end)
	if err := svc.checkRange(start, end); err != nil {
		return FinancialReport{}, err
	}

	entries, err := svc.ledger.QueryEntries(ctx, EntryFilter{Term: term, AcademicYear: academicYear})
	if err != nil {
		return FinancialReport{}, errors.Wrap(err, "querying term entries")
	}
	daily, err := svc.GetDailySummaries(ctx, start, end)
	if err != nil {
		return FinancialReport{}, errors.Wrap(err, "summarising days")
	}

	report := AssembleReport(term, academicYear, start, end, entries, daily)
	report.GeneratedAt = svc.now().UTC()
	return report, nil
}

// RepairInconsistentStatuses re-derives the balance and status of every entry and fixes the ones that differ.
// It returns the number of entries fixed; failing entries are logged and skipped.
func (svc *Service) RepairInconsistentStatuses(ctx context.Context) (int, error) {
	entries, err := svc.ledger.QueryEntries(ctx, EntryFilter{})
	if err != nil {
		return 0, errors.Wrap(err, "querying entries")
	}

	var fixed int
	for _, e := range entries {
		if e.IsConsistent() {
			continue
		}
		prev := e.Status
		e.Balance, e.Status = Classify(e.AmountOwed, e.AmountPaid)
		e.UpdatedAt = svc.now().UTC()
		if err := svc.ledger.RepairEntry(ctx, e); err != nil {
			svc.logger.Error(fmt.Sprintf("repairing ledger entry %s", e.ID), err)
			continue
		}
		svc.logger.Info(fmt.Sprintf("ledger entry %s repaired: %s -> %s", e.ID, prev, e.Status))
		fixed++
	}
	return fixed, nil
}

// SetFeeSchedule makes a new schedule the active one of its (level, academic year, term).
func (svc *Service) SetFeeSchedule(ctx context.Context, nf NewFeeSchedule) (FeeSchedule, error) {
	if err := nf.Validate(svc.validate); err != nil {
		return FeeSchedule{}, err
	}
	sched, err := svc.schedules.SetActiveFeeSchedule(ctx, FeeSchedule{
		Level:        nf.Level,
		AcademicYear: nf.AcademicYear,
		Term:         nf.Term,
		Amount:       nf.Amount,
		Active:       true,
		CreatedAt:    svc.now().UTC(),
	})
	if err != nil {
		return FeeSchedule{}, errors.Wrap(err, "setting active fee schedule")
	}
	return sched, nil
}

func (svc *Service) GetActiveFeeSchedule(ctx context.Context, key ScheduleKey) (FeeSchedule, error) {
	if err := key.Validate(svc.validate); err != nil {
		return FeeSchedule{}, err
	}
	sched, err := svc.schedules.FindActiveFeeSchedule(ctx, key.Level, key.AcademicYear, key.Term)
	if err != nil {
		if errors.Cause(err) == ErrFeeScheduleNotFound {
			k := fmt.Sprintf("%s/%s/%s", key.Level, key.AcademicYear, key.Term)
			return FeeSchedule{}, core.NewNotFoundError(ErrFeeScheduleNotFound, "fee schedule", k)
		}
		return FeeSchedule{}, errors.Wrap(err, "finding active fee schedule")
	}
	return sched, nil
}

func (svc *Service) QueryFeeSchedules(ctx context.Context, level, academicYear string) ([]FeeSchedule, error) {
	scheds, err := svc.schedules.QueryFeeSchedules(ctx, core.CleanString(level), core.CleanString(academicYear))
	if err != nil {
		return nil, errors.Wrap(err, "querying fee schedules")
	}
	return scheds, nil
}
