package inmemdb

import (
	"sync"

	"github.com/trezcool/bursar/core/fees"
)

type (
	DB struct {
		ledger    *ledgerTable
		schedules *scheduleTable
		students  *studentTable
	}

	ledgerTable struct {
		sync.RWMutex
		table map[string]*fees.LedgerEntry // {id: entry}
		keys  map[fees.EntryKey]string     // {key: id}
	}

	scheduleTable struct {
		sync.RWMutex
		table []*fees.FeeSchedule
	}

	studentTable struct {
		sync.RWMutex
		table map[string]fees.Student
	}
)

func Open() *DB {
	return &DB{
		ledger: &ledgerTable{
			table: make(map[string]*fees.LedgerEntry),
			keys:  make(map[fees.EntryKey]string),
		},
		schedules: &scheduleTable{},
		students:  &studentTable{table: make(map[string]fees.Student)},
	}
}
