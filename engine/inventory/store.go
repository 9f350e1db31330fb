package inventory

import (
	"io"
	"sort"

	"github.com/TruckFinderAI/truckfinder-mvp/pkg/fn"
)

// Store is the in-memory record collection. It is immutable after
// construction and safe for concurrent readers.
type Store struct {
	records []Record
	byID    map[int]int // id -> index into records
}

// NewStore indexes the given records. Record order is preserved.
func NewStore(records []Record) *Store {
	byID := make(map[int]int, len(records))
	for i, r := range records {
		byID[r.ID] = i
	}
	return &Store{records: records, byID: byID}
}

// NewStoreFromFile loads, normalizes, and indexes an inventory CSV.
func NewStoreFromFile(path string, cfg LoadConfig) (*Store, []RowWarning, error) {
	records, warnings, err := LoadFile(path, cfg)
	if err != nil {
		return nil, warnings, err
	}
	return NewStore(records), warnings, nil
}

// NewStoreFromReader is NewStoreFromFile for an already-open input.
func NewStoreFromReader(r io.Reader, cfg LoadConfig) (*Store, []RowWarning, error) {
	records, warnings, err := Load(r, cfg)
	if err != nil {
		return nil, warnings, err
	}
	return NewStore(records), warnings, nil
}

// ByID looks a record up by identifier.
func (s *Store) ByID(id int) (Record, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}

// All returns the records in stable insertion order. The returned slice is
// shared and must not be modified.
func (s *Store) All() []Record { return s.records }

// Len returns the number of records.
func (s *Store) Len() int { return len(s.records) }

// Brands returns the sorted brand vocabulary of the loaded inventory.
func (s *Store) Brands() []string {
	brands := fn.Unique(fn.FilterMap(s.records, func(r Record) (string, bool) {
		return r.Brand, r.Brand != ""
	}))
	sort.Strings(brands)
	return brands
}
