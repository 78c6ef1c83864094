package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics counts order outcomes.
type Metrics struct {
	placed      metric.Int64Counter
	rejected    metric.Int64Counter
	transitions metric.Int64Counter
}

// NewMetrics registers the order instruments on mp. A nil mp yields no-op
// instruments.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter("sage-warehouse/order")

	placed, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders committed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders.placed")
	}
	rejected, err := meter.Int64Counter("orders.rejected",
		metric.WithDescription("Order placements that failed, by reason"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders.rejected")
	}
	transitions, err := meter.Int64Counter("orders.status_transitions",
		metric.WithDescription("Order status changes, by target status"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders.status_transitions")
	}

	return &Metrics{placed: placed, rejected: rejected, transitions: transitions}, nil
}

func (m *Metrics) orderPlaced(ctx context.Context) {
	if m == nil {
		return
	}
	m.placed.Add(ctx, 1)
}

func (m *Metrics) orderRejected(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectReason(err))))
}

func (m *Metrics) statusChanged(ctx context.Context, to Status) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(to))))
}

func rejectReason(err error) string {
	var (
		verr *ValidationError
		serr *InsufficientStockError
	)
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.As(err, &serr):
		return "insufficient_stock"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
