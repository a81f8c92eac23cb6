package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloudledger/internal/core"
	"cloudledger/internal/log"
	"cloudledger/internal/metrics"
	ports "cloudledger/internal/sheets"
)

// Snapshot is one load of the ledger, newest entry first.
type Snapshot struct {
	Transactions []core.Transaction
	Revision     string
	Dropped      int
	// Degraded is set when the store could not be read and the snapshot
	// is the empty fallback.
	Degraded bool
}

// Ledger loads, appends to and deletes from the transaction table. Every
// mutation rewrites the whole table.
type Ledger struct {
	store   ports.Store
	logger  *log.Logger
	metrics *metrics.Metrics
	newID   func() string

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

type Option func(*Ledger)

func WithLogger(l *log.Logger) Option {
	return func(s *Ledger) { s.logger = l.WithComponent(log.ComponentLedger) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Ledger) { s.metrics = m }
}

// WithIDGenerator replaces the ULID generator, mainly for tests.
func WithIDGenerator(f func() string) Option {
	return func(s *Ledger) { s.newID = f }
}

func NewLedger(store ports.Store, opts ...Option) *Ledger {
	s := &Ledger{
		store:  store,
		logger: log.New(log.DefaultConfig()).WithComponent(log.ComponentLedger),
		newID:  core.NewID,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load reads the whole table. It never fails: on any read or decode error
// it logs and returns an empty snapshot.
func (s *Ledger) Load(ctx context.Context) Snapshot {
	snap, err := s.read(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load ledger, showing empty table",
			log.NewFields().WithOperation(log.OpLoad).WithError(err)...)
		if s.metrics != nil {
			s.metrics.LoadFailures.Inc()
		}
		return Snapshot{Transactions: []core.Transaction{}, Degraded: true}
	}
	return snap
}

func (s *Ledger) read(ctx context.Context) (Snapshot, error) {
	tbl, err := s.store.ReadTable(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read table: %w", err)
	}
	dec, err := ports.Decode(tbl)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode table: %w", err)
	}
	if dec.Dropped > 0 {
		s.logger.DebugContext(ctx, "Skipped rows with unparsable dates",
			log.FieldDroppedRows, dec.Dropped, log.FieldRevision, tbl.Revision)
		if s.metrics != nil {
			s.metrics.DroppedRows.Add(float64(dec.Dropped))
		}
	}
	txs := dec.Transactions
	if txs == nil {
		txs = []core.Transaction{}
	}
	core.SortByDateDesc(txs)
	return Snapshot{Transactions: txs, Revision: tbl.Revision, Dropped: dec.Dropped}, nil
}

// Append validates the input, adds it after the loaded rows and rewrites
// the table. Validation errors are returned before the store is touched.
func (s *Ledger) Append(ctx context.Context, in core.NewTransaction) (core.Transaction, error) {
	tx, err := in.Build(s.newID())
	if err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.read(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	rows := append(snap.Transactions, tx)
	if _, err := s.write(ctx, rows, snap, log.OpAppend); err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Transaction appended",
		log.NewFields().WithOperation(log.OpAppend).WithTransaction(tx).With(log.FieldRows, len(rows))...)
	if s.metrics != nil {
		s.metrics.TransactionsAppended.Inc()
	}
	return tx, nil
}

// DeleteAt removes the entry at a zero-based position of the loaded,
// date-descending list. A non-empty revision must match the current table.
func (s *Ledger) DeleteAt(ctx context.Context, index int, revision string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.read(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	if revision != "" && revision != snap.Revision {
		s.conflict()
		return core.Transaction{}, ports.ErrConflict
	}
	if index < 0 || index >= len(snap.Transactions) {
		return core.Transaction{}, fmt.Errorf("%w: %d of %d", core.ErrIndexOutOfRange, index, len(snap.Transactions))
	}
	return s.remove(ctx, snap, index)
}

// Delete removes the entry with the given id.
func (s *Ledger) Delete(ctx context.Context, id, revision string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.read(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	if revision != "" && revision != snap.Revision {
		s.conflict()
		return core.Transaction{}, ports.ErrConflict
	}
	for i, tx := range snap.Transactions {
		if tx.ID == id {
			return s.remove(ctx, snap, i)
		}
	}
	return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
}

func (s *Ledger) remove(ctx context.Context, snap Snapshot, i int) (core.Transaction, error) {
	removed := snap.Transactions[i]
	rows := make([]core.Transaction, 0, len(snap.Transactions)-1)
	rows = append(rows, snap.Transactions[:i]...)
	rows = append(rows, snap.Transactions[i+1:]...)
	if _, err := s.write(ctx, rows, snap, log.OpDelete); err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Transaction deleted",
		log.NewFields().WithOperation(log.OpDelete).WithTransaction(removed).With(log.FieldIndex, i)...)
	if s.metrics != nil {
		s.metrics.TransactionsDeleted.Inc()
	}
	return removed, nil
}

func (s *Ledger) write(ctx context.Context, rows []core.Transaction, snap Snapshot, op string) (string, error) {
	if snap.Dropped > 0 {
		s.logger.WarnContext(ctx, "Rows with unparsable dates are not written back",
			log.NewFields().WithOperation(op).With(log.FieldDroppedRows, snap.Dropped)...)
	}
	rev, err := s.store.WriteTable(ctx, ports.Encode(rows), snap.Revision)
	if err != nil {
		if errors.Is(err, ports.ErrConflict) {
			s.conflict()
		} else if s.metrics != nil {
			s.metrics.WriteFailures.Inc()
		}
		s.logger.ErrorContext(ctx, "Failed to write ledger table",
			log.NewFields().WithOperation(op).WithError(err)...)
		return "", fmt.Errorf("write table: %w", err)
	}
	return rev, nil
}

func (s *Ledger) conflict() {
	if s.metrics != nil {
		s.metrics.WriteConflicts.Inc()
	}
}

// Ping reads the table once and reports any store error. Used by readiness
// probes, where Load's silent fallback would hide an outage.
func (s *Ledger) Ping(ctx context.Context) error {
	_, err := s.store.ReadTable(ctx)
	return err
}
