package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fees"
)

type ledgerRepository struct {
	db *ledgerTable
}

var _ fees.LedgerRepository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db *DB) *ledgerRepository {
	return &ledgerRepository{db: db.ledger}
}

// UpdateOrCreateEntry holds the table write lock while fn runs, so updates of the same key are serialised.
func (repo *ledgerRepository) UpdateOrCreateEntry(ctx context.Context, key fees.EntryKey, fn fees.EntryUpdater) (fees.LedgerEntry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var existing *fees.LedgerEntry
	if id, ok := repo.db.keys[key]; ok {
		e := *repo.db.table[id]
		existing = &e
	}

	entry, err := fn(existing)
	if err != nil {
		return fees.LedgerEntry{}, err
	}
	if existing != nil {
		entry.ID = existing.ID
	} else if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	repo.db.table[entry.ID] = &entry
	repo.db.keys[key] = entry.ID
	return entry, nil
}

func (repo *ledgerRepository) GetEntry(ctx context.Context, id string) (fees.LedgerEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.table[id]; ok {
		return *e, nil
	}
	return fees.LedgerEntry{}, fees.ErrEntryNotFound
}

func (repo *ledgerRepository) QueryEntries(ctx context.Context, filter fees.EntryFilter) ([]fees.LedgerEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]fees.LedgerEntry, 0)
	for _, e := range repo.db.table {
		if filter.Matches(*e) {
			entries = append(entries, *e)
		}
	}
	sortEntries(entries, filter.Ordering)
	return entries, nil
}

func (repo *ledgerRepository) RepairEntry(ctx context.Context, entry fees.LedgerEntry) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	e, ok := repo.db.table[entry.ID]
	if !ok {
		return fees.ErrEntryNotFound
	}
	e.Balance = entry.Balance
	e.Status = entry.Status
	e.UpdatedAt = entry.UpdatedAt
	return nil
}

func (repo *ledgerRepository) DeleteEntry(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	e, ok := repo.db.table[id]
	if !ok {
		return fees.ErrEntryNotFound
	}
	delete(repo.db.keys, e.Key())
	delete(repo.db.table, id)
	return nil
}

// Put stores entry as is, bypassing classification. Meant for seeding.
func (repo *ledgerRepository) Put(entry fees.LedgerEntry) fees.LedgerEntry {
	repo.db.Lock()
	defer repo.db.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	repo.db.table[entry.ID] = &entry
	repo.db.keys[entry.Key()] = entry.ID
	return entry
}

// compareEntries compares a and b on one of fees.EntryOrderingFields.
func compareEntries(a, b fees.LedgerEntry, field string) int {
	switch field {
	case "student_name":
		return strings.Compare(a.StudentName, b.StudentName)
	case "amount_paid":
		return a.AmountPaid.Cmp(b.AmountPaid)
	case "balance":
		return a.Balance.Cmp(b.Balance)
	case "payment_date":
		return a.PaymentDate.Compare(b.PaymentDate)
	case "month":
		return strings.Compare(a.Month, b.Month)
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "academic_year":
		return strings.Compare(a.AcademicYear, b.AcademicYear)
	}
	return 0
}

var defaultOrdering = []core.DBOrdering{
	{Field: "student_name", Ascending: true},
	{Field: "academic_year", Ascending: true},
	{Field: "month", Ascending: true},
}

func sortEntries(entries []fees.LedgerEntry, ordering []core.DBOrdering) {
	ordering = append(append([]core.DBOrdering{}, ordering...), defaultOrdering...)
	sort.SliceStable(entries, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareEntries(entries[i], entries[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		if entries[i].Term != entries[j].Term {
			return entries[i].Term < entries[j].Term
		}
		return entries[i].ID < entries[j].ID
	})
}
