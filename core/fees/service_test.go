package fees_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fees"
	testutil "github.com/trezcool/bursar/tests"
)

var ctx = context.Background()

func date(s string) time.Time {
	d, err := time.Parse(fees.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func newEnv(t *testing.T, publisher ...fees.EventPublisher) *testutil.Env {
	env := testutil.NewInMemEnv(t, publisher...)
	for _, std := range []fees.Student{testutil.BennyBosha, testutil.AminaJuma, testutil.KofiMensah} {
		env.Students.AddStudent(std)
	}
	testutil.SetFee(t, env.Schedules, "Secondary", "2025", "Term 2", "100")
	testutil.SetFee(t, env.Schedules, "Primary", "2025", "Term 2", "50")
	return env
}

func pay(studentID, amount, on string) fees.NewPayment {
	return fees.NewPayment{
		StudentID:    studentID,
		Term:         "Term 2",
		Month:        "July",
		AcademicYear: "2025",
		AmountPaid:   decimalOf(amount),
		PaymentDate:  on,
	}
}

func mustPay(t *testing.T, env *testutil.Env, np fees.NewPayment) fees.Receipt {
	t.Helper()
	rcpt, err := env.Svc.RecordPayment(ctx, np)
	require.NoError(t, err)
	return rcpt
}

type fakePublisher struct {
	mu     sync.Mutex
	events []fees.PaymentRecorded
	err    error
}

func (p *fakePublisher) PublishPaymentRecorded(ctx context.Context, event fees.PaymentRecorded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func TestService_RecordPayment_partPayment(t *testing.T) {
	env := newEnv(t)

	rcpt := mustPay(t, env, pay(testutil.BennyBosha.ID, "70", "2025-07-10"))

	assert.NotEmpty(t, rcpt.EntryID)
	assert.Equal(t, "Benny Bosha", rcpt.StudentName)
	assert.Equal(t, "Form 5 B", rcpt.Class)
	assert.Equal(t, "Term 2", rcpt.Term)
	assert.Equal(t, "July", rcpt.Month)
	assert.Equal(t, "2025", rcpt.AcademicYear)
	assert.True(t, rcpt.AmountPaid.Equal(decimalOf("70")))
	assert.Equal(t, "seventy", rcpt.AmountInWords)
	assert.True(t, rcpt.AmountOwed.Equal(decimalOf("100")))
	assert.True(t, rcpt.Balance.Equal(decimalOf("30")))
	assert.True(t, rcpt.Credit.IsZero())
	assert.Equal(t, fees.StatusPartPayment, rcpt.Status)
	assert.Equal(t, date("2025-07-10"), rcpt.PaymentDate)

	entry, err := env.Svc.GetEntry(ctx, rcpt.EntryID)
	require.NoError(t, err)
	assert.True(t, entry.IsConsistent())
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestService_RecordPayment_accumulates(t *testing.T) {
	env := newEnv(t)

	steps := []struct {
		amount      string
		wantPaid    string
		wantBalance string
		wantCredit  string
		wantStatus  fees.Status
	}{
		{amount: "0", wantPaid: "0", wantBalance: "100", wantCredit: "0", wantStatus: fees.StatusNonPayer},
		{amount: "70", wantPaid: "70", wantBalance: "30", wantCredit: "0", wantStatus: fees.StatusPartPayment},
		{amount: "30", wantPaid: "100", wantBalance: "0", wantCredit: "0", wantStatus: fees.StatusFullPayment},
		{amount: "30", wantPaid: "130", wantBalance: "0", wantCredit: "30", wantStatus: fees.StatusFullPayment},
	}

	var entryID string
	prev := fees.StatusNonPayer
	for _, step := range steps {
		rcpt := mustPay(t, env, pay(testutil.BennyBosha.ID, step.amount, "2025-07-10"))
		if entryID == "" {
			entryID = rcpt.EntryID
		}
		assert.Equal(t, entryID, rcpt.EntryID, "one entry per student and period")
		assert.True(t, rcpt.AmountPaid.Equal(decimalOf(step.amount)))
		assert.True(t, rcpt.Balance.Equal(decimalOf(step.wantBalance)), "balance = %s", rcpt.Balance)
		assert.True(t, rcpt.Credit.Equal(decimalOf(step.wantCredit)), "credit = %s", rcpt.Credit)
		assert.Equal(t, step.wantStatus, rcpt.Status)
		assert.True(t, prev == rcpt.Status || prev.CanTransitionTo(rcpt.Status))
		prev = rcpt.Status

		entry, err := env.Svc.GetEntry(ctx, entryID)
		require.NoError(t, err)
		assert.True(t, entry.AmountPaid.Equal(decimalOf(step.wantPaid)))
		assert.True(t, entry.IsConsistent())
	}

	entry, err := env.Svc.GetEntry(ctx, entryID)
	require.NoError(t, err)
	assert.True(t, entry.Balance.Equal(decimalOf("-30")), "the stored balance keeps the credit")
}

func TestService_RecordPayment_keepsLatestPaymentDate(t *testing.T) {
	env := newEnv(t)

	mustPay(t, env, pay(testutil.BennyBosha.ID, "20", "2025-07-10"))
	rcpt := mustPay(t, env, pay(testutil.BennyBosha.ID, "20", "2025-07-05"))
	assert.Equal(t, date("2025-07-10"), rcpt.PaymentDate)

	rcpt = mustPay(t, env, pay(testutil.BennyBosha.ID, "20", "2025-07-12"))
	assert.Equal(t, date("2025-07-12"), rcpt.PaymentDate)
}

func TestService_RecordPayment_refreshesStudentDetails(t *testing.T) {
	env := newEnv(t)
	mustPay(t, env, pay(testutil.BennyBosha.ID, "20", "2025-07-10"))

	moved := testutil.BennyBosha
	moved.Class.Section = "C"
	env.Students.AddStudent(moved)

	rcpt := mustPay(t, env, pay(testutil.BennyBosha.ID, "20", "2025-07-11"))
	assert.Equal(t, "Form 5 C", rcpt.Class)
}

func TestService_RecordPayment_existingEntryKeepsAmountOwed(t *testing.T) {
	env := newEnv(t)
	mustPay(t, env, pay(testutil.BennyBosha.ID, "20", "2025-07-10"))

	testutil.SetFee(t, env.Schedules, "Secondary", "2025", "Term 2", "500")

	rcpt := mustPay(t, env, pay(testutil.BennyBosha.ID, "20", "2025-07-11"))
	assert.True(t, rcpt.AmountOwed.Equal(decimalOf("100")))
	assert.True(t, rcpt.Balance.Equal(decimalOf("60")))
}

func TestService_RecordPayment_errors(t *testing.T) {
	tests := []struct {
		name    string
		payment fees.NewPayment
		check   func(t *testing.T, err error)
	}{
		{
			name:    "unknown student",
			payment: pay("std-9999", "70", "2025-07-10"),
			check: func(t *testing.T, err error) {
				var nf *core.NotFoundError
				require.True(t, errors.As(err, &nf))
				assert.Equal(t, "student", nf.Resource)
				assert.True(t, errors.Is(err, fees.ErrStudentNotFound))
			},
		},
		{
			name: "no fee schedule",
			payment: func() fees.NewPayment {
				np := pay(testutil.BennyBosha.ID, "70", "2025-07-10")
				np.AcademicYear = "2026"
				return np
			}(),
			check: func(t *testing.T, err error) {
				assert.True(t, core.IsNotFound(err))
				assert.True(t, errors.Is(err, fees.ErrFeeScheduleNotFound))
			},
		},
		{
			name:    "negative amount",
			payment: pay(testutil.BennyBosha.ID, "-1", "2025-07-10"),
			check:   checkValidationFields("amount_paid"),
		},
		{
			name:    "malformed date",
			payment: pay(testutil.BennyBosha.ID, "70", "10/07/2025"),
			check:   checkValidationFields("payment_date"),
		},
		{
			name:    "blank fields",
			payment: fees.NewPayment{StudentID: "  ", AmountPaid: decimalOf("70"), PaymentDate: "2025-07-10"},
			check:   checkValidationFields("student_id", "term", "month", "academic_year"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			_, err := env.Svc.RecordPayment(ctx, tt.payment)
			require.Error(t, err)
			tt.check(t, err)

			entries, err := env.Ledger.QueryEntries(ctx, fees.EntryFilter{})
			require.NoError(t, err)
			assert.Empty(t, entries, "nothing is written on failure")
		})
	}
}

func checkValidationFields(fields ...string) func(t *testing.T, err error) {
	return func(t *testing.T, err error) {
		var verrs validator.ValidationErrors
		require.True(t, errors.As(err, &verrs), "got %T: %v", err, err)
		got := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			got = append(got, fe.Field())
		}
		assert.ElementsMatch(t, fields, got)
	}
}

func TestService_RecordPayment_concurrent(t *testing.T) {
	env := newEnv(t)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Svc.RecordPayment(ctx, pay(testutil.BennyBosha.ID, "2", "2025-07-10"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := env.Svc.GetStudentPayments(ctx, testutil.BennyBosha.ID, "Term 2", "2025")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].AmountPaid.Equal(decimalOf("100")), "paid = %s", entries[0].AmountPaid)
	assert.Equal(t, fees.StatusFullPayment, entries[0].Status)
}

func TestService_RecordPayment_publishesEvent(t *testing.T) {
	pub := new(fakePublisher)
	env := newEnv(t, pub)

	rcpt := mustPay(t, env, pay(testutil.BennyBosha.ID, "70", "2025-07-10"))

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, rcpt.EntryID, ev.EntryID)
	assert.Equal(t, testutil.BennyBosha.ID, ev.StudentID)
	assert.Equal(t, "Form 5 B", ev.Class)
	assert.Equal(t, "70", ev.Amount)
	assert.Equal(t, "30", ev.Balance)
	assert.Equal(t, fees.StatusPartPayment, ev.Status)
	assert.Equal(t, "2025-07-10", ev.PaymentDate)
}

func TestService_RecordPayment_publishFailureIsLogged(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	env := newEnv(t, pub)

	rcpt, err := env.Svc.RecordPayment(ctx, pay(testutil.BennyBosha.ID, "70", "2025-07-10"))
	require.NoError(t, err)
	assert.Equal(t, fees.StatusPartPayment, rcpt.Status)
	assert.Len(t, env.Logger.Entries("ERROR"), 1)
}

func TestService_GetEntry_DeleteEntry(t *testing.T) {
	env := newEnv(t)
	rcpt := mustPay(t, env, pay(testutil.BennyBosha.ID, "70", "2025-07-10"))

	_, err := env.Svc.GetEntry(ctx, "nope")
	assert.True(t, core.IsNotFound(err))
	assert.True(t, core.IsNotFound(env.Svc.DeleteEntry(ctx, "nope")))

	require.NoError(t, env.Svc.DeleteEntry(ctx, rcpt.EntryID))
	_, err = env.Svc.GetEntry(ctx, rcpt.EntryID)
	assert.True(t, errors.Is(err, fees.ErrEntryNotFound))

	// a new payment starts a new entry
	again := mustPay(t, env, pay(testutil.BennyBosha.ID, "10", "2025-07-11"))
	assert.NotEqual(t, rcpt.EntryID, again.EntryID)
	assert.True(t, again.Balance.Equal(decimalOf("90")))
}

func TestService_GetStudentPayments(t *testing.T) {
	env := newEnv(t)
	mustPay(t, env, pay(testutil.BennyBosha.ID, "70", "2025-07-10"))
	aug := pay(testutil.BennyBosha.ID, "10", "2025-08-01")
	aug.Month = "August"
	mustPay(t, env, aug)
	mustPay(t, env, pay(testutil.AminaJuma.ID, "10", "2025-07-10"))

	entries, err := env.Svc.GetStudentPayments(ctx, testutil.BennyBosha.ID, "Term 2", "2025")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = env.Svc.GetStudentPayments(ctx, testutil.BennyBosha.ID, "Term 1", "2025")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_GetPaymentsByDate(t *testing.T) {
	env := newEnv(t)
	mustPay(t, env, pay(testutil.BennyBosha.ID, "70", "2025-07-10"))
	mustPay(t, env, pay(testutil.AminaJuma.ID, "90", "2025-07-10"))
	mustPay(t, env, pay(testutil.KofiMensah.ID, "10", "2025-07-11"))

	entries, err := env.Svc.GetPaymentsByDate(ctx, date("2025-07-10"), core.DBOrdering{Field: "amount_paid"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, testutil.AminaJuma.ID, entries[0].StudentID)
	assert.Equal(t, testutil.BennyBosha.ID, entries[1].StudentID)
}

func TestService_GetPaymentStatusByClass(t *testing.T) {
	env := newEnv(t)
	mustPay(t, env, pay(testutil.BennyBosha.ID, "70", "2025-07-10"))
	mustPay(t, env, pay(testutil.AminaJuma.ID, "100", "2025-07-10"))
	mustPay(t, env, pay(testutil.KofiMensah.ID, "0", "2025-07-10"))
	env.Ledger.Put(fees.LedgerEntry{
		StudentID: "std-0042", StudentName: "Ghost", Class: testutil.BennyBosha.Class,
		Term: "Term 2", Month: "July", AcademicYear: "2025",
		AmountOwed: decimalOf("100"), AmountPaid: decimalOf("0"), Balance: decimalOf("100"), Status: "LOL",
	})

	groups, err := env.Svc.GetPaymentStatusByClass(ctx, fees.ClassID{Form: "Form 5", Section: "B"})
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.Equal(t, fees.StatusNonPayer, groups[0].Status)
	assert.Empty(t, groups[0].Students)
	require.Len(t, groups[1].Students, 1)
	assert.Equal(t, "Benny Bosha", groups[1].Students[0].StudentName)
	assert.True(t, groups[1].Students[0].Balance.Equal(decimalOf("30")))
	require.Len(t, groups[2].Students, 1)
	assert.Equal(t, "Amina Juma", groups[2].Students[0].StudentName)
	assert.Len(t, env.Logger.Entries("WARN"), 1, "unknown statuses are reported")

	groups, err = env.Svc.GetPaymentStatusByClass(ctx, fees.ClassID{Form: "Form 9", Section: "Z"})
	require.NoError(t, err)
	for _, g := range groups {
		assert.Empty(t, g.Students)
	}
}

func TestService_GetDailySummary(t *testing.T) {
	env := newEnv(t)
	mustPay(t, env, pay(testutil.BennyBosha.ID, "70", "2025-07-10"))
	mustPay(t, env, pay(testutil.KofiMensah.ID, "12.5", "2025-07-10"))

	sum, err := env.Svc.GetDailySummary(ctx, date("2025-07-10").Add(13*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, date("2025-07-10"), sum.Date)
	assert.True(t, sum.TotalAmount.Equal(decimalOf("82.5")))
	assert.Equal(t, 2, sum.TotalTransactions)

	sum, err = env.Svc.GetDailySummary(ctx, date("2025-07-11"))
	require.NoError(t, err)
	assert.True(t, sum.TotalAmount.IsZero())
	assert.Equal(t, 0, sum.TotalTransactions)
}

func TestService_GetDailySummaries(t *testing.T) {
	env := newEnv(t)
	mustPay(t, env, pay(testutil.BennyBosha.ID, "70", "2025-07-10"))
	mustPay(t, env, pay(testutil.KofiMensah.ID, "10", "2025-07-12"))

	sums, err := env.Svc.GetDailySummaries(ctx, date("2025-07-09"), date("2025-07-13"))
	require.NoError(t, err)
	require.Len(t, sums, 2, "days without payments are left out")
	assert.Equal(t, date("2025-07-10"), sums[0].Date)
	assert.Equal(t, date("2025-07-12"), sums[1].Date)

	sums, err = env.Svc.GetDailySummaries(ctx, date("2025-07-20"), date("2025-07-21"))
	require.NoError(t, err)
	assert.NotNil(t, sums)
	assert.Empty(t, sums)

	_, err = env.Svc.GetDailySummaries(ctx, date("2025-07-13"), date("2025-07-09"))
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "start", verr.Fields[0].Field)

	_, err = env.Svc.GetDailySummaries(ctx, date("2024-01-01"), date("2025-07-09"))
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "end", verr.Fields[0].Field)
}

func TestService_GenerateFinancialReport(t *testing.T) {
	env := newEnv(t)
	mustPay(t, env, pay(testutil.BennyBosha.ID, "70", "2025-07-10"))
	mustPay(t, env, pay(testutil.AminaJuma.ID, "130", "2025-07-11"))
	mustPay(t, env, pay(testutil.KofiMensah.ID, "20", "2025-06-30"))
	// another term
	testutil.SetFee(t, env.Schedules, "Secondary", "2025", "Term 1", "80")
	other := pay(testutil.BennyBosha.ID, "80", "2025-07-10")
	other.Term = "Term 1"
	mustPay(t, env, other)

	report, err := env.Svc.GenerateFinancialReport(ctx, " Term 2 ", "2025", date("2025-07-01"), date("2025-07-31"))
	require.NoError(t, err)

	assert.Equal(t, "Term 2", report.Term)
	assert.True(t, report.TotalCollectedAmount.Equal(decimalOf("220")), "collected = %s", report.TotalCollectedAmount)
	assert.True(t, report.TotalOutstandingAmount.Equal(decimalOf("60")), "outstanding = %s", report.TotalOutstandingAmount)
	assert.True(t, report.TotalCredit.Equal(decimalOf("30")))
	assert.True(t, report.TotalExpectedRevenue.Equal(report.TotalCollectedAmount.Add(report.TotalOutstandingAmount)))
	assert.False(t, report.GeneratedAt.IsZero())

	require.Len(t, report.ClassSummaries, 2, "class summaries cover the whole term")
	assert.Equal(t, "Form 1 A", report.ClassSummaries[0].ClassLabel)
	assert.Equal(t, 1, report.ClassSummaries[0].PartPayments)
	assert.Equal(t, 2, report.ClassSummaries[1].TotalStudents)

	require.Len(t, report.DailySummaries, 2)
	assert.True(t, report.DailySummaries[0].TotalAmount.Equal(decimalOf("150")), "daily summaries are not restricted to the term")

	empty, err := env.Svc.GenerateFinancialReport(ctx, "Term 3", "2025", date("2025-09-01"), date("2025-09-30"))
	require.NoError(t, err)
	assert.True(t, empty.TotalExpectedRevenue.IsZero())
	assert.Empty(t, empty.ClassSummaries)
	assert.Empty(t, empty.DailySummaries)
}

func TestService_GenerateFinancialReport_invalid(t *testing.T) {
	env := newEnv(t)

	var verr *core.ValidationError
	_, err := env.Svc.GenerateFinancialReport(ctx, " ", "2025", date("2025-07-01"), date("2025-07-31"))
	assert.True(t, errors.As(err, &verr))

	_, err = env.Svc.GenerateFinancialReport(ctx, "Term 2", "2025", date("2025-07-31"), date("2025-07-01"))
	assert.True(t, errors.As(err, &verr))
}

func TestService_RepairInconsistentStatuses(t *testing.T) {
	env := newEnv(t)
	consistent := mustPay(t, env, pay(testutil.BennyBosha.ID, "70", "2025-07-10"))

	base := fees.LedgerEntry{Term: "Term 2", Month: "July", AcademicYear: "2025", Class: testutil.AminaJuma.Class}
	stale := base
	stale.StudentID, stale.AmountOwed, stale.AmountPaid = testutil.AminaJuma.ID, decimalOf("100"), decimalOf("100")
	stale.Balance, stale.Status = decimalOf("100"), fees.StatusNonPayer
	stale = env.Ledger.Put(stale)

	wrongStatus := base
	wrongStatus.StudentID, wrongStatus.AmountOwed, wrongStatus.AmountPaid = testutil.KofiMensah.ID, decimalOf("50"), decimalOf("20")
	wrongStatus.Balance, wrongStatus.Status = decimalOf("30"), fees.StatusFullPayment
	wrongStatus = env.Ledger.Put(wrongStatus)

	fixed, err := env.Svc.RepairInconsistentStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)
	assert.Len(t, env.Logger.Entries("INFO"), 2)

	got, err := env.Svc.GetEntry(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, fees.StatusFullPayment, got.Status)
	assert.True(t, got.Balance.IsZero())
	assert.True(t, got.AmountPaid.Equal(decimalOf("100")), "amounts are left untouched")

	got, err = env.Svc.GetEntry(ctx, wrongStatus.ID)
	require.NoError(t, err)
	assert.Equal(t, fees.StatusPartPayment, got.Status)

	got, err = env.Svc.GetEntry(ctx, consistent.EntryID)
	require.NoError(t, err)
	assert.Equal(t, fees.StatusPartPayment, got.Status)

	fixed, err = env.Svc.RepairInconsistentStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fixed)
}

func TestService_FeeSchedules(t *testing.T) {
	env := newEnv(t)

	key := fees.ScheduleKey{Level: "Secondary", AcademicYear: "2025", Term: "Term 2"}
	sched, err := env.Svc.GetActiveFeeSchedule(ctx, key)
	require.NoError(t, err)
	assert.True(t, sched.Amount.Equal(decimalOf("100")))

	newSched, err := env.Svc.SetFeeSchedule(ctx, fees.NewFeeSchedule{Level: " Secondary", AcademicYear: "2025", Term: "Term 2", Amount: decimalOf("120")})
	require.NoError(t, err)
	assert.True(t, newSched.Active)

	sched, err = env.Svc.GetActiveFeeSchedule(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, newSched.ID, sched.ID)

	scheds, err := env.Svc.QueryFeeSchedules(ctx, "Secondary", "2025")
	require.NoError(t, err)
	require.Len(t, scheds, 2)
	var active int
	for _, s := range scheds {
		if s.Active {
			active++
		}
	}
	assert.Equal(t, 1, active)

	_, err = env.Svc.GetActiveFeeSchedule(ctx, fees.ScheduleKey{Level: "Secondary", AcademicYear: "2030", Term: "Term 2"})
	assert.True(t, core.IsNotFound(err))

	_, err = env.Svc.SetFeeSchedule(ctx, fees.NewFeeSchedule{Level: "Secondary", AcademicYear: "2025", Term: "Term 2", Amount: decimalOf("-5")})
	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs))
}

func decimalOf(s string) decimal.Decimal { return decimal.RequireFromString(s) }
