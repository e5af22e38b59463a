package inmemdb

import (
	"context"

	"github.com/trezcool/bursar/core/fees"
)

type studentRepository struct {
	db *studentTable
}

var _ fees.StudentDirectory = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db.students}
}

func (repo *studentRepository) FindStudentByID(ctx context.Context, id string) (fees.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if std, ok := repo.db.table[id]; ok {
		return std, nil
	}
	return fees.Student{}, fees.ErrStudentNotFound
}

// AddStudent registers std in the directory, replacing any student with the same ID.
func (repo *studentRepository) AddStudent(std fees.Student) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.table[std.ID] = std
}
