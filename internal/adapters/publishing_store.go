package adapters

import (
	"context"
	"log/slog"

	ports "cloudledger/internal/sheets"
)

// Publisher announces completed table writes.
type Publisher interface {
	PublishTableReplaced(ctx context.Context, revision string, rows int, reason string) error
}

// PublishingStore decorates a store so every successful write is announced
// to the sync worker. Publish failures are logged; the write stands.
type PublishingStore struct {
	ports.Store
	publisher Publisher
}

var _ ports.Store = (*PublishingStore)(nil)

func NewPublishingStore(store ports.Store, publisher Publisher) *PublishingStore {
	return &PublishingStore{Store: store, publisher: publisher}
}

func (s *PublishingStore) WriteTable(ctx context.Context, t ports.Table, expected string) (string, error) {
	rev, err := s.Store.WriteTable(ctx, t, expected)
	if err != nil {
		return "", err
	}
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP publisher not available, skipping table.replaced")
		return rev, nil
	}
	if err := s.publisher.PublishTableReplaced(ctx, rev, len(t.Rows), "write"); err != nil {
		slog.ErrorContext(ctx, "Failed to publish table.replaced", "revision", rev, "error", err)
	}
	return rev, nil
}
