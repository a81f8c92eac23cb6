package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloudledger/internal/amqp"
	"cloudledger/internal/log"
	"cloudledger/internal/metrics"
	ports "cloudledger/internal/sheets"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// Consumer delivers table.replaced messages until ctx is done.
type Consumer interface {
	ConsumeTableReplaced(ctx context.Context, handler func(context.Context, *amqp.TableReplacedMessage) error) error
}

// SyncWorker mirrors the source table into the Google Sheet.
type SyncWorker struct {
	source  ports.TableReader
	mirror  ports.TableWriter
	logger  *log.Logger
	metrics *metrics.Metrics

	// MaxRetry bounds how long one mirror attempt keeps retrying.
	MaxRetry time.Duration

	mu       sync.Mutex
	mirrored string // last source revision copied
}

func NewSyncWorker(source ports.TableReader, mirror ports.TableWriter, logger *log.Logger, m *metrics.Metrics) *SyncWorker {
	return &SyncWorker{
		source:   source,
		mirror:   mirror,
		logger:   logger.WithComponent(log.ComponentWorker),
		metrics:  m,
		MaxRetry: 2 * time.Minute,
	}
}

// HandleTableReplaced mirrors the current source table. The message only
// signals that something changed; the source is always read fresh.
func (w *SyncWorker) HandleTableReplaced(ctx context.Context, msg *amqp.TableReplacedMessage) error {
	w.logger.InfoContext(ctx, "Mirroring after table.replaced",
		log.FieldRevision, msg.Revision, log.FieldRows, msg.Rows)
	return w.Mirror(ctx)
}

// Mirror copies the source table to the sheet unless that revision was
// already copied. Transient failures retry with exponential backoff.
func (w *SyncWorker) Mirror(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tbl, err := w.source.ReadTable(ctx)
	if err != nil {
		w.count("read_error")
		return fmt.Errorf("read source: %w", err)
	}
	if tbl.Revision != "" && tbl.Revision == w.mirrored {
		w.count("skipped")
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxElapsedTime = w.MaxRetry
	attempt := 0
	op := func() error {
		attempt++
		// The sheet is a mirror: no revision check.
		_, err := w.mirror.WriteTable(ctx, tbl, "")
		if errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		w.logger.WarnContext(ctx, "Mirror write failed, retrying",
			log.FieldError, err.Error(), "attempt", attempt, "next_in", next.String())
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		w.count("write_error")
		return fmt.Errorf("mirror write: %w", err)
	}

	w.mirrored = tbl.Revision
	w.count("ok")
	w.logger.InfoContext(ctx, "Sheet mirrored",
		log.FieldOperation, log.OpMirror, log.FieldRevision, tbl.Revision, log.FieldRows, len(tbl.Rows))
	return nil
}

// Reconcile mirrors every interval until ctx is done.
func (w *SyncWorker) Reconcile(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Mirror(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Periodic mirror failed", log.FieldError, err.Error())
			}
		}
	}
}

// Run performs a startup mirror, then consumes messages and reconciles
// periodically. It returns when ctx is done or the consumer fails.
func (w *SyncWorker) Run(ctx context.Context, consumer Consumer, interval time.Duration) error {
	if err := w.Mirror(ctx); err != nil {
		w.logger.WarnContext(ctx, "Startup mirror failed", log.FieldError, err.Error())
	}

	g, ctx := errgroup.WithContext(ctx)
	if consumer != nil {
		g.Go(func() error {
			err := consumer.ConsumeTableReplaced(ctx, w.HandleTableReplaced)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error { return w.Reconcile(ctx, interval) })
	return g.Wait()
}

func (w *SyncWorker) count(outcome string) {
	if w.metrics != nil {
		w.metrics.MirrorRuns.WithLabelValues(outcome).Inc()
	}
}
