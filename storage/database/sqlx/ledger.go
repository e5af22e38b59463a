package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fees"
)

// maxCreateAttempts bounds the retries of a first payment losing an insert race on the same key.
const maxCreateAttempts = 3

const (
	ledgerColumns = `id, student_id, student_name, form, section, term, month, academic_year,
		amount_owed, amount_paid, balance, status, payment_date, created_at, updated_at`

	selectEntryForUpdate = `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE student_id = $1 AND term = $2 AND month = $3 AND academic_year = $4
		FOR UPDATE`

	insertEntry = `INSERT INTO ledger_entries (` + ledgerColumns + `)
		VALUES (:id, :student_id, :student_name, :form, :section, :term, :month, :academic_year,
			:amount_owed, :amount_paid, :balance, :status, :payment_date, :created_at, :updated_at)
		ON CONFLICT ON CONSTRAINT ledger_entries_key_uniq DO NOTHING`

	updateEntry = `UPDATE ledger_entries SET
			student_name = :student_name, form = :form, section = :section,
			amount_paid = :amount_paid, balance = :balance, status = :status,
			payment_date = :payment_date, updated_at = :updated_at
		WHERE id = :id`
)

type ledgerRow struct {
	ID           string          `db:"id"`
	StudentID    string          `db:"student_id"`
	StudentName  string          `db:"student_name"`
	Form         string          `db:"form"`
	Section      string          `db:"section"`
	Term         string          `db:"term"`
	Month        string          `db:"month"`
	AcademicYear string          `db:"academic_year"`
	AmountOwed   decimal.Decimal `db:"amount_owed"`
	AmountPaid   decimal.Decimal `db:"amount_paid"`
	Balance      decimal.Decimal `db:"balance"`
	Status       string          `db:"status"`
	PaymentDate  null.Time       `db:"payment_date"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

func toRow(e fees.LedgerEntry) ledgerRow {
	return ledgerRow{
		ID:           e.ID,
		StudentID:    e.StudentID,
		StudentName:  e.StudentName,
		Form:         e.Class.Form,
		Section:      e.Class.Section,
		Term:         e.Term,
		Month:        e.Month,
		AcademicYear: e.AcademicYear,
		AmountOwed:   e.AmountOwed,
		AmountPaid:   e.AmountPaid,
		Balance:      e.Balance,
		Status:       string(e.Status),
		PaymentDate:  null.NewTime(core.DateOnly(e.PaymentDate), !e.PaymentDate.IsZero()),
		CreatedAt:    e.CreatedAt.UTC(),
		UpdatedAt:    e.UpdatedAt.UTC(),
	}
}

func (r ledgerRow) entry() fees.LedgerEntry {
	e := fees.LedgerEntry{
		ID:           r.ID,
		StudentID:    r.StudentID,
		StudentName:  r.StudentName,
		Class:        fees.ClassID{Form: r.Form, Section: r.Section},
		Term:         r.Term,
		Month:        r.Month,
		AcademicYear: r.AcademicYear,
		AmountOwed:   r.AmountOwed,
		AmountPaid:   r.AmountPaid,
		Balance:      r.Balance,
		Status:       fees.Status(r.Status),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.PaymentDate.Valid {
		e.PaymentDate = core.DateOnly(r.PaymentDate.Time)
	}
	return e
}

type ledgerRepository struct {
	db *sqlx.DB
}

var _ fees.LedgerRepository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db *sql.DB) *ledgerRepository {
	return &ledgerRepository{db: sqlx.NewDb(db, "postgres")}
}

// errCreateConflict is returned when a concurrent transaction created the entry first.
var errCreateConflict = errors.New("ledger entry created concurrently")

// UpdateOrCreateEntry runs fn in a read-committed transaction holding the row lock of the entry.
func (repo *ledgerRepository) UpdateOrCreateEntry(ctx context.Context, key fees.EntryKey, fn fees.EntryUpdater) (fees.LedgerEntry, error) {
	var err error
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		var entry fees.LedgerEntry
		entry, err = repo.updateOrCreateEntry(ctx, key, fn)
		if err != errCreateConflict {
			return entry, err
		}
	}
	return fees.LedgerEntry{}, errors.Wrap(err, "updating ledger entry")
}

func (repo *ledgerRepository) updateOrCreateEntry(ctx context.Context, key fees.EntryKey, fn fees.EntryUpdater) (fees.LedgerEntry, error) {
	tx, err := repo.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fees.LedgerEntry{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }() // no-op once committed

	var existing *fees.LedgerEntry
	var row ledgerRow
	err = tx.GetContext(ctx, &row, selectEntryForUpdate, key.StudentID, key.Term, key.Month, key.AcademicYear)
	switch err {
	case nil:
		e := row.entry()
		existing = &e
	case sql.ErrNoRows:
	default:
		return fees.LedgerEntry{}, errors.Wrap(err, "locking ledger entry")
	}

	entry, err := fn(existing)
	if err != nil {
		return fees.LedgerEntry{}, err
	}

	if existing == nil {
		entry.ID = uuid.New().String()
		res, err := tx.NamedExecContext(ctx, insertEntry, toRow(entry))
		if err != nil {
			return fees.LedgerEntry{}, errors.Wrap(err, "inserting ledger entry")
		}
		if n, err := res.RowsAffected(); err != nil {
			return fees.LedgerEntry{}, errors.Wrap(err, "inserting ledger entry")
		} else if n == 0 {
			return fees.LedgerEntry{}, errCreateConflict
		}
	} else {
		entry.ID = existing.ID
		if _, err := tx.NamedExecContext(ctx, updateEntry, toRow(entry)); err != nil {
			return fees.LedgerEntry{}, errors.Wrap(err, "updating ledger entry")
		}
	}

	if err = tx.Commit(); err != nil {
		return fees.LedgerEntry{}, errors.Wrap(err, "committing ledger entry")
	}
	return entry, nil
}

func (repo *ledgerRepository) GetEntry(ctx context.Context, id string) (fees.LedgerEntry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return fees.LedgerEntry{}, fees.ErrEntryNotFound
	}
	var row ledgerRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE id = $1`, id); err != nil {
		return fees.LedgerEntry{}, trapNoRowsErr(err, "getting ledger entry")
	}
	return row.entry(), nil
}

func (repo *ledgerRepository) QueryEntries(ctx context.Context, filter fees.EntryFilter) ([]fees.LedgerEntry, error) {
	q, args := buildEntryQuery(filter)
	var rows []ledgerRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying ledger entries")
	}
	entries := make([]fees.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}

// buildEntryQuery returns a query with "?" bind vars.
func buildEntryQuery(filter fees.EntryFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	where := func(cond string, arg ...interface{}) {
		conds = append(conds, cond)
		args = append(args, arg...)
	}

	if filter.StudentID != "" {
		where("student_id = ?", filter.StudentID)
	}
	if filter.Term != "" {
		where("term = ?", filter.Term)
	}
	if filter.Month != "" {
		where("month = ?", filter.Month)
	}
	if filter.AcademicYear != "" {
		where("academic_year = ?", filter.AcademicYear)
	}
	if filter.Class != nil {
		where("form = ? AND section = ?", filter.Class.Form, filter.Class.Section)
	}
	if filter.Status != "" {
		where("status = ?", string(filter.Status))
	}
	if !filter.PaymentDate.IsZero() {
		where("payment_date = ?::date", filter.PaymentDate.Format(fees.DateLayout))
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + ledgerColumns + " FROM ledger_entries")
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	orderList := make([]string, 0, len(filter.Ordering)+4)
	for _, ord := range filter.Ordering {
		if fees.EntryOrderingFields[ord.Field] { // never interpolate unknown fields
			orderList = append(orderList, ord.String())
		}
	}
	orderList = append(orderList, "student_name ASC", "academic_year ASC", "month ASC", "term ASC", "id ASC")
	sb.WriteString(fmt.Sprintf(" ORDER BY %s", strings.Join(orderList, ", ")))

	return sb.String(), args
}

func (repo *ledgerRepository) RepairEntry(ctx context.Context, entry fees.LedgerEntry) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE ledger_entries SET balance = $1, status = $2, updated_at = $3 WHERE id = $4`,
		entry.Balance, string(entry.Status), entry.UpdatedAt.UTC(), entry.ID)
	if err != nil {
		return errors.Wrap(err, "repairing ledger entry")
	}
	return checkAffected(res, "repairing ledger entry")
}

func (repo *ledgerRepository) DeleteEntry(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fees.ErrEntryNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting ledger entry")
	}
	return checkAffected(res, "deleting ledger entry")
}

// trapNoRowsErr maps psql "no rows" err to fees.ErrEntryNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return fees.ErrEntryNotFound
	}
	return errors.Wrap(err, msg)
}

func checkAffected(res sql.Result, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return fees.ErrEntryNotFound
	}
	return nil
}
