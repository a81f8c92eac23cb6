package memory

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	ports "cloudledger/internal/sheets"
)

// SeedFile is the optional CSV loaded by NewFromDir.
const SeedFile = "transactions.csv"

// Store keeps the table in process memory. Revisions are a write counter.
type Store struct {
	mu    sync.Mutex
	table ports.Table
	rev   int
}

var _ ports.Store = (*Store)(nil)

func New(t ports.Table) *Store {
	if len(t.Header) == 0 {
		t.Header = ports.EmptyTable().Header
	}
	return &Store{table: clone(t)}
}

// NewFromDir seeds the store from base/transactions.csv when it exists.
// The first CSV record is the header.
func NewFromDir(base string) *Store {
	records := readCSV(filepath.Join(base, SeedFile))
	if len(records) == 0 {
		return New(ports.EmptyTable())
	}
	return New(ports.Table{Header: records[0], Rows: records[1:]})
}

func (s *Store) ReadTable(_ context.Context) (ports.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := clone(s.table)
	t.Revision = strconv.Itoa(s.rev)
	return t, nil
}

func (s *Store) WriteTable(_ context.Context, t ports.Table, expected string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expected != "" && expected != strconv.Itoa(s.rev) {
		return "", ports.ErrConflict
	}
	s.table = clone(t)
	s.rev++
	return strconv.Itoa(s.rev), nil
}

func readCSV(path string) [][]string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil
	}
	return records
}

func clone(t ports.Table) ports.Table {
	out := ports.Table{Header: append([]string(nil), t.Header...), Revision: t.Revision}
	out.Rows = make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out
}
