package boiledrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fees"
)

const feeScheduleColumns = "id, level, academic_year, term, amount, active, created_at"

type feeScheduleRow struct {
	ID           string          `boil:"id"`
	Level        string          `boil:"level"`
	AcademicYear string          `boil:"academic_year"`
	Term         string          `boil:"term"`
	Amount       decimal.Decimal `boil:"amount"`
	Active       bool            `boil:"active"`
	CreatedAt    time.Time       `boil:"created_at"`
}

type feeScheduleRepository struct {
	db core.DB
}

var _ fees.FeeScheduleRepository = (*feeScheduleRepository)(nil) // interface compliance check

func NewFeeScheduleRepository(db core.DB) *feeScheduleRepository {
	return &feeScheduleRepository{db: db}
}

func (repo feeScheduleRepository) unboil(row feeScheduleRow) fees.FeeSchedule {
	return fees.FeeSchedule{
		ID:           row.ID,
		Level:        row.Level,
		AcademicYear: row.AcademicYear,
		Term:         row.Term,
		Amount:       row.Amount,
		Active:       row.Active,
		CreatedAt:    row.CreatedAt.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" err to fees.ErrFeeScheduleNotFound
func (repo feeScheduleRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return fees.ErrFeeScheduleNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo feeScheduleRepository) FindActiveFeeSchedule(ctx context.Context, level, academicYear, term string) (fees.FeeSchedule, error) {
	var row feeScheduleRow
	err := queries.Raw(
		"SELECT "+feeScheduleColumns+" FROM fee_schedules WHERE level = $1 AND academic_year = $2 AND term = $3 AND active",
		level, academicYear, term,
	).Bind(ctx, repo.db, &row)
	if err != nil {
		return fees.FeeSchedule{}, repo.trapNoRowsErr(err, "finding active fee schedule")
	}
	return repo.unboil(row), nil
}

func (repo feeScheduleRepository) SetActiveFeeSchedule(ctx context.Context, sched fees.FeeSchedule) (fees.FeeSchedule, error) {
	sched.ID = uuid.New().String()
	sched.Active = true
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = time.Now().UTC()
	}

	err := core.WithTx(ctx, repo.db, func(tx core.DBTransactor) error {
		_, err := queries.Raw(
			"UPDATE fee_schedules SET active = FALSE WHERE level = $1 AND academic_year = $2 AND term = $3 AND active",
			sched.Level, sched.AcademicYear, sched.Term,
		).ExecContext(ctx, tx)
		if err != nil {
			return errors.Wrap(err, "deactivating fee schedule")
		}

		_, err = queries.Raw(
			"INSERT INTO fee_schedules ("+feeScheduleColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
			sched.ID, sched.Level, sched.AcademicYear, sched.Term, sched.Amount, sched.Active, sched.CreatedAt.UTC(),
		).ExecContext(ctx, tx)
		return errors.Wrap(err, "inserting fee schedule")
	})
	if err != nil {
		return fees.FeeSchedule{}, err
	}
	return sched, nil
}

func (repo feeScheduleRepository) QueryFeeSchedules(ctx context.Context, level, academicYear string) ([]fees.FeeSchedule, error) {
	var conds []string
	var args []interface{}
	if level != "" {
		args = append(args, level)
		conds = append(conds, "level = $1")
	}
	if academicYear != "" {
		args = append(args, academicYear)
		if len(args) == 1 {
			conds = append(conds, "academic_year = $1")
		} else {
			conds = append(conds, "academic_year = $2")
		}
	}

	q := "SELECT " + feeScheduleColumns + " FROM fee_schedules"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC"

	var rows []feeScheduleRow
	if err := queries.Raw(q, args...).Bind(ctx, repo.db, &rows); err != nil {
		return nil, errors.Wrap(err, "querying fee schedules")
	}
	scheds := make([]fees.FeeSchedule, 0, len(rows))
	for _, row := range rows {
		scheds = append(scheds, repo.unboil(row))
	}
	return scheds, nil
}
