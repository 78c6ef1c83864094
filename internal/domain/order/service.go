package order

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/sage-warehouse/internal/domain/event"
	"github.com/xenking/sage-warehouse/internal/domain/product"
)

// Service manages the order lifecycle: placement, status transitions and
// cancellation. Every mutation runs in a single transaction together with
// its stock changes and outbox event.
type Service struct {
	assembler *Assembler
	orders    Repository
	users     UserLinker
	ledger    product.Ledger
	tx        Transactor
	events    event.Writer
	cache     product.Invalidator
	metrics   *Metrics
	now       func() time.Time
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithCache drops cached products after their stock changes.
func WithCache(c product.Invalidator) Option {
	return func(s *Service) { s.cache = c }
}

// WithMetrics records order outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an order Service.
func NewService(
	assembler *Assembler,
	orders Repository,
	users UserLinker,
	ledger product.Ledger,
	tx Transactor,
	events event.Writer,
	opts ...Option,
) *Service {
	s := &Service{
		assembler: assembler,
		orders:    orders,
		users:     users,
		ledger:    ledger,
		tx:        tx,
		events:    events,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// PlaceOrder assembles req and commits the order for userID. Stock is
// reserved, the order is stored, linked to the user and its products are
// removed from the user's cart, all atomically.
func (s *Service) PlaceOrder(ctx context.Context, userID string, req PlaceOrderRequest) (*Order, error) {
	draft, err := s.assembler.Assemble(ctx, req)
	if err != nil {
		s.metrics.orderRejected(ctx, err)
		return nil, err
	}

	now := s.now()
	o := &Order{
		ID:            uuid.New().String(),
		UserID:        userID,
		Items:         draft.Items,
		Shipping:      draft.Shipping,
		Payment:       draft.Payment,
		TaxPrice:      draft.TaxPrice,
		ShippingPrice: draft.ShippingPrice,
		ItemsPrice:    draft.ItemsPrice,
		TotalPrice:    draft.TotalPrice,
		Status:        StatusProcessing,
		PaidAt:        now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	productIDs := draft.ProductIDs()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, l := range stockLines(o.Items) {
			if err := s.ledger.Reserve(ctx, l.ProductID, l.Quantity); err != nil {
				return reserveError(l, err)
			}
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if err := s.users.AttachOrder(ctx, userID, o.ID); err != nil {
			return errors.Wrap(err, "attach order")
		}
		if err := s.users.PruneCart(ctx, userID, productIDs); err != nil {
			return errors.Wrap(err, "prune cart")
		}
		return s.emit(ctx, event.OrderPlaced, o.ID, newOrderPayload(o))
	})
	if err != nil {
		s.metrics.orderRejected(ctx, err)
		return nil, err
	}

	s.invalidate(ctx, productIDs)
	s.metrics.orderPlaced(ctx)
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", userID),
		zap.Int("items", len(o.Items)),
		zap.String("total", o.TotalPrice.StringFixed(2)),
	)
	return o, nil
}

// Get returns the order with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// ListForUser returns the orders placed by userID, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// UpdateStatus moves the order to status. Any non-terminal status may follow
// any other; DELIVERED and CANCELLED orders are locked. Stock is untouched:
// it was reserved when the order was placed.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return invalidField("status", "must be one of: PROCESSING, IN_PROGRESS, TRANSIT, DELIVERED")
	}
	if status == StatusCancelled {
		return invalidField("status", "use the cancel operation to cancel an order")
	}

	var from Status
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return ErrOrderLocked
		}
		from = o.Status

		var deliveredAt *time.Time
		if status == StatusDelivered {
			now := s.now()
			deliveredAt = &now
		}
		if err := s.orders.UpdateStatus(ctx, id, status, deliveredAt); err != nil {
			return errors.Wrap(err, "update status")
		}
		return s.emit(ctx, event.OrderStatusChanged, id, statusPayload{
			OrderID: id,
			From:    from,
			To:      status,
		})
	})
	if err != nil {
		return err
	}

	s.metrics.statusChanged(ctx, status)
	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
	)
	return nil
}

// Cancel moves a non-terminal order to CANCELLED and returns its reserved
// stock to the catalog.
func (s *Service) Cancel(ctx context.Context, id string) (*Order, error) {
	var o *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return ErrOrderLocked
		}
		for _, l := range stockLines(o.Items) {
			if err := s.ledger.Restore(ctx, l.ProductID, l.Quantity); err != nil {
				return errors.Wrapf(err, "restore stock of %s", l.ProductID)
			}
		}
		if err := s.orders.UpdateStatus(ctx, id, StatusCancelled, nil); err != nil {
			return errors.Wrap(err, "update status")
		}
		o.Status = StatusCancelled
		o.UpdatedAt = s.now()
		return s.emit(ctx, event.OrderCancelled, id, newOrderPayload(o))
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(o.Items))
	for _, l := range stockLines(o.Items) {
		ids = append(ids, l.ProductID)
	}
	s.invalidate(ctx, ids)
	s.metrics.statusChanged(ctx, StatusCancelled)
	zctx.From(ctx).Info("Order cancelled", zap.String("order_id", id))
	return o, nil
}

func (s *Service) emit(ctx context.Context, t event.Type, orderID string, payload any) error {
	e, err := event.New(t, orderID, payload)
	if err != nil {
		return err
	}
	if err := s.events.Append(ctx, e); err != nil {
		return errors.Wrapf(err, "append %s event", t)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, ids []string) {
	if s.cache == nil {
		return
	}
	for _, id := range ids {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			zctx.From(ctx).Warn("Invalidate cached product", zap.String("product_id", id), zap.Error(err))
		}
	}
}

// stockLine is the total quantity of one product across an order's items.
type stockLine struct {
	ProductID string
	Name      string
	Quantity  int
}

// stockLines sums items per product and sorts the result by product id.
// Every transaction touching product rows locks them in this order, so two
// orders sharing products never wait on each other in a cycle.
func stockLines(items []LineItem) []stockLine {
	lines := make([]stockLine, 0, len(items))
	idx := make(map[string]int, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			lines[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(lines)
		lines = append(lines, stockLine{ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity})
	}
	slices.SortFunc(lines, func(a, b stockLine) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return lines
}

// reserveError converts a ledger failure for l into an order error. A
// reservation can still fail after a successful stock check when a
// concurrent order took the remaining units first.
func reserveError(l stockLine, err error) error {
	switch {
	case errors.Is(err, product.ErrOutOfStock):
		return &InsufficientStockError{ProductID: l.ProductID, Name: l.Name, Requested: l.Quantity}
	case errors.Is(err, product.ErrNotFound):
		return &InsufficientStockError{ProductID: l.ProductID, Requested: l.Quantity, Missing: true}
	default:
		return errors.Wrapf(err, "reserve %s", l.ProductID)
	}
}

type orderPayload struct {
	OrderID    string     `json:"orderId"`
	UserID     string     `json:"userId"`
	Status     Status     `json:"status"`
	Items      []LineItem `json:"items"`
	TotalPrice string     `json:"totalPrice"`
}

func newOrderPayload(o *Order) orderPayload {
	return orderPayload{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		Items:      o.Items,
		TotalPrice: o.TotalPrice.StringFixed(2),
	}
}

type statusPayload struct {
	OrderID string `json:"orderId"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}
