// Package event defines domain events recorded in the transactional outbox.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Type names an event kind. It is published as the "event_type" message header.
type Type string

const (
	OrderPlaced        Type = "order.placed"
	OrderStatusChanged Type = "order.status_changed"
	OrderCancelled     Type = "order.cancelled"
)

// Event is a single outbox record.
type Event struct {
	ID          string
	AggregateID string
	Type        Type
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// New builds an Event with a JSON-encoded payload.
func New(t Type, aggregateID string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, errors.Wrapf(err, "marshal %s payload", t)
	}
	return Event{
		ID:          uuid.New().String(),
		AggregateID: aggregateID,
		Type:        t,
		Payload:     data,
		CreatedAt:   time.Now(),
	}, nil
}

// Writer appends events to the outbox, inside the caller's transaction when
// one is present in ctx.
type Writer interface {
	Append(ctx context.Context, e Event) error
}
