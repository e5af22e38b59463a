package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fees"
	"github.com/trezcool/bursar/storage/database"
	"github.com/trezcool/bursar/storage/database/inmem"
)

var (
	// fixtures
	BennyBosha = fees.Student{ID: "std-0001", Name: "Benny Bosha", Class: fees.ClassID{Form: "Form 5", Section: "B"}, Level: "Secondary"}
	AminaJuma  = fees.Student{ID: "std-0002", Name: "Amina Juma", Class: fees.ClassID{Form: "Form 5", Section: "B"}, Level: "Secondary"}
	KofiMensah = fees.Student{ID: "std-0003", Name: "Kofi Mensah", Class: fees.ClassID{Form: "Form 1", Section: "A"}, Level: "Primary"}
)

// LogEntry is one call recorded by Logger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records logs in memory. Safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg, args) }

// Entries returns the recorded logs of a level, all of them if level is empty.
func (l *Logger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var entries []LogEntry
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			entries = append(entries, e)
		}
	}
	return entries
}

func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate, translator
}

func Dec(t testing.TB, s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("Dec(%q) failed: %v", s, err)
	}
	return d
}

type (
	Ledger interface {
		fees.LedgerRepository
		Put(entry fees.LedgerEntry) fees.LedgerEntry
	}

	Students interface {
		fees.StudentDirectory
		AddStudent(std fees.Student)
	}

	// Env is a fees.Service wired to in-memory repositories.
	Env struct {
		Svc        *fees.Service
		Ledger     Ledger
		Schedules  fees.FeeScheduleRepository
		Students   Students
		Logger     *Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Conf       *core.Config
	}
)

func NewInMemEnv(t testing.TB, publisher ...fees.EventPublisher) *Env {
	db := inmemdb.Open()
	env := &Env{
		Ledger:    inmemdb.NewLedgerRepository(db),
		Schedules: inmemdb.NewFeeScheduleRepository(db),
		Students:  inmemdb.NewStudentRepository(db),
		Logger:    new(Logger),
		Conf:      new(core.Config),
	}
	env.Conf.Fees.MaxReportDays = 366
	env.Validate, env.Translator = NewValidator()

	deps := fees.ServiceDeps{
		Ledger:    env.Ledger,
		Schedules: env.Schedules,
		Students:  env.Students,
		Logger:    env.Logger,
		Validate:  env.Validate,
		Conf:      env.Conf,
	}
	if len(publisher) > 0 {
		deps.Publisher = publisher[0]
	}
	env.Svc = fees.NewService(deps)
	return env
}

// SetFee activates a fee schedule.
func SetFee(t testing.TB, repo fees.FeeScheduleRepository, level, academicYear, term, amount string) fees.FeeSchedule {
	sched, err := repo.SetActiveFeeSchedule(context.Background(), fees.FeeSchedule{
		Level:        level,
		AcademicYear: academicYear,
		Term:         term,
		Amount:       Dec(t, amount),
	})
	if err != nil {
		t.Fatalf("SetFee() failed: %v", err)
	}
	return sched
}

// OpenDB opens and migrates the test database. The test is skipped if no database is configured.
func OpenDB(t testing.TB) (*sql.DB, *core.Config) {
	conf := core.NewConfig()
	if !conf.IsConfigured() {
		t.Skip("no test database configured")
	}
	if err := database.CreateIfNotExist(conf); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	if err = database.Migrate(db); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, conf
}

// ResetDB empties every table.
func ResetDB(t testing.TB, db *sql.DB) {
	for _, table := range []string{"ledger_entries", "fee_schedules", "students"} {
		if _, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			t.Fatalf("ResetDB() failed: %v", err)
		}
	}
}

// PrepareDB opens a clean test database.
func PrepareDB(t testing.TB) (*sql.DB, *core.Config) {
	db, conf := OpenDB(t)
	ResetDB(t, db)
	return db, conf
}
