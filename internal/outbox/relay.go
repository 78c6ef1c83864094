// Package outbox relays domain events recorded in the outbox table to a
// message broker.
package outbox

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/sage-warehouse/internal/domain/event"
)

// Store reads and acknowledges pending outbox rows.
type Store interface {
	Unpublished(ctx context.Context, limit int) ([]event.Event, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}

// Publisher delivers events to the broker.
type Publisher interface {
	Publish(ctx context.Context, events ...event.Event) error
}

// Transactor runs fn atomically.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Config controls polling.
type Config struct {
	Interval  time.Duration
	BatchSize int
}

// Relay polls the outbox and publishes pending events in creation order.
// Each batch is read, published and acknowledged inside one transaction, so
// concurrent relays never publish the same row twice while it is in flight.
// Delivery is at-least-once: a crash between publish and commit republishes
// the batch.
type Relay struct {
	store     Store
	publisher Publisher
	tx        Transactor
	cfg       Config
	lg        *zap.Logger
	now       func() time.Time
}

// NewRelay creates a Relay.
func NewRelay(store Store, publisher Publisher, tx Transactor, cfg Config, lg *zap.Logger) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		tx:        tx,
		cfg:       cfg,
		lg:        lg,
		now:       time.Now,
	}
}

// Run polls until ctx is done. A full batch is followed immediately by the
// next poll.
func (r *Relay) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		n, err := r.Flush(ctx)
		if err != nil && ctx.Err() == nil {
			r.lg.Warn("Outbox flush failed", zap.Error(err))
		}

		next := r.cfg.Interval
		if err == nil && n == r.cfg.BatchSize {
			next = 0
		}
		timer.Reset(next)
	}
}

// Flush publishes one batch and returns how many events were delivered.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var published int
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		events, err := r.store.Unpublished(ctx, r.cfg.BatchSize)
		if err != nil {
			return errors.Wrap(err, "load unpublished")
		}
		if len(events) == 0 {
			return nil
		}
		if err := r.publisher.Publish(ctx, events...); err != nil {
			return errors.Wrap(err, "publish")
		}

		ids := make([]string, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		if err := r.store.MarkPublished(ctx, ids, r.now()); err != nil {
			return errors.Wrap(err, "mark published")
		}
		published = len(events)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if published > 0 {
		r.lg.Debug("Outbox batch published", zap.Int("count", published))
	}
	return published, nil
}
