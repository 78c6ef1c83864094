package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sage-warehouse/internal/domain/event"
)

const (
	appendEventSQL = `INSERT INTO outbox (id, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	unpublishedEventsSQL = `SELECT id, aggregate_id, event_type, payload, created_at, published_at
		FROM outbox WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	markPublishedSQL = `UPDATE outbox SET published_at = $2 WHERE id = ANY($1)`
)

var _ event.Writer = (*OutboxRepository)(nil)

// OutboxRepository stores domain events next to the state change that
// produced them.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Append records e, inside the transaction in ctx when there is one.
func (r *OutboxRepository) Append(ctx context.Context, e event.Event) error {
	_, err := conn(ctx, r.pool).Exec(ctx, appendEventSQL,
		e.ID, e.AggregateID, string(e.Type), e.Payload, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending %s event %q: %w", e.Type, e.ID, err)
	}
	return nil
}

// Unpublished returns up to limit pending events in creation order. Inside a
// transaction the rows stay locked, and rows locked by another relay are skipped.
func (r *OutboxRepository) Unpublished(ctx context.Context, limit int) ([]event.Event, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, unpublishedEventsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unpublished events: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (event.Event, error) {
		var (
			e   event.Event
			typ string
		)
		err := row.Scan(&e.ID, &e.AggregateID, &typ, &e.Payload, &e.CreatedAt, &e.PublishedAt)
		e.Type = event.Type(typ)
		return e, err
	})
}

// MarkPublished stamps the given events as delivered.
func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := conn(ctx, r.pool).Exec(ctx, markPublishedSQL, ids, at); err != nil {
		return fmt.Errorf("marking %d events published: %w", len(ids), err)
	}
	return nil
}
