package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/bursar/core/fees"
)

type feeScheduleRepository struct {
	db *scheduleTable
}

var _ fees.FeeScheduleRepository = (*feeScheduleRepository)(nil) // interface compliance check

func NewFeeScheduleRepository(db *DB) *feeScheduleRepository {
	return &feeScheduleRepository{db: db.schedules}
}

func (repo *feeScheduleRepository) FindActiveFeeSchedule(ctx context.Context, level, academicYear, term string) (fees.FeeSchedule, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, s := range repo.db.table {
		if s.Active && s.Level == level && s.AcademicYear == academicYear && s.Term == term {
			return *s, nil
		}
	}
	return fees.FeeSchedule{}, fees.ErrFeeScheduleNotFound
}

func (repo *feeScheduleRepository) SetActiveFeeSchedule(ctx context.Context, sched fees.FeeSchedule) (fees.FeeSchedule, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, s := range repo.db.table {
		if s.Level == sched.Level && s.AcademicYear == sched.AcademicYear && s.Term == sched.Term {
			s.Active = false
		}
	}
	sched.ID = uuid.New().String()
	sched.Active = true
	repo.db.table = append(repo.db.table, &sched)
	return sched, nil
}

func (repo *feeScheduleRepository) QueryFeeSchedules(ctx context.Context, level, academicYear string) ([]fees.FeeSchedule, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	scheds := make([]fees.FeeSchedule, 0)
	for _, s := range repo.db.table {
		if (level == "" || s.Level == level) && (academicYear == "" || s.AcademicYear == academicYear) {
			scheds = append(scheds, *s)
		}
	}
	// newest first
	sort.SliceStable(scheds, func(i, j int) bool { return scheds[i].CreatedAt.After(scheds[j].CreatedAt) })
	return scheds, nil
}
