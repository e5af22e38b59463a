package boiledrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fees"
)

type studentRow struct {
	ID        string      `boil:"id"`
	Name      string      `boil:"name"`
	Form      string      `boil:"form"`
	Section   null.String `boil:"section"`
	Level     string      `boil:"level"`
	UpdatedAt null.Time   `boil:"updated_at"`
}

type studentRepository struct {
	exec core.DBExecutor
}

var _ fees.StudentDirectory = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{exec: exec}
}

func (repo studentRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo studentRepository) FindStudentByID(ctx context.Context, id string) (fees.Student, error) {
	var row studentRow
	err := queries.Raw("SELECT id, name, form, section, level, updated_at FROM students WHERE id = $1", id).
		Bind(ctx, repo.exec, &row)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return fees.Student{}, fees.ErrStudentNotFound
		}
		return fees.Student{}, errors.Wrap(err, "finding student")
	}
	return fees.Student{
		ID:    row.ID,
		Name:  row.Name,
		Class: fees.ClassID{Form: row.Form, Section: row.Section.String},
		Level: row.Level,
	}, nil
}

// UpdateOrCreateStudent copies a student of the registry into the local directory.
func (repo studentRepository) UpdateOrCreateStudent(ctx context.Context, std fees.Student, exec ...core.DBExecutor) error {
	_, err := queries.Raw(
		`INSERT INTO students (id, name, form, section, level, updated_at) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, form = EXCLUDED.form, section = EXCLUDED.section,
			level = EXCLUDED.level, updated_at = EXCLUDED.updated_at`,
		std.ID, std.Name, std.Class.Form,
		null.NewString(std.Class.Section, std.Class.Section != ""),
		std.Level, null.TimeFrom(time.Now().UTC()),
	).ExecContext(ctx, repo.getExec(exec))
	return errors.Wrap(err, "upserting student")
}
