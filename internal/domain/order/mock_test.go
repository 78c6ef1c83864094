package order

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/sage-warehouse/internal/domain/event"
	"github.com/xenking/sage-warehouse/internal/domain/product"
	"github.com/xenking/sage-warehouse/internal/validate"
)

// --- Mock implementations ---

// memStore is an in-memory stand-in for the database. Transactions are
// serialized and roll back to a snapshot when fn fails.
type memStore struct {
	mu         sync.Mutex
	txMu       sync.Mutex
	products   map[string]product.Product
	orders     map[string]Order
	carts      map[string][]string
	userOrders map[string][]string
	events     []event.Event

	appendErr error
}

type snapshot struct {
	products   map[string]product.Product
	orders     map[string]Order
	carts      map[string][]string
	userOrders map[string][]string
	events     []event.Event
}

func newMemStore(products ...product.Product) *memStore {
	s := &memStore{
		products:   make(map[string]product.Product, len(products)),
		orders:     make(map[string]Order),
		carts:      make(map[string][]string),
		userOrders: make(map[string][]string),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		products:   maps.Clone(s.products),
		orders:     maps.Clone(s.orders),
		carts:      make(map[string][]string, len(s.carts)),
		userOrders: make(map[string][]string, len(s.userOrders)),
		events:     slices.Clone(s.events),
	}
	for k, v := range s.carts {
		snap.carts[k] = slices.Clone(v)
	}
	for k, v := range s.userOrders {
		snap.userOrders[k] = slices.Clone(v)
	}
	return snap
}

func (s *memStore) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = snap.products
	s.orders = snap.orders
	s.carts = snap.carts
	s.userOrders = snap.userOrders
	s.events = snap.events
}

func (s *memStore) stock(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *memStore) order(id string) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) eventTypes() []event.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Type, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

type memTx struct{ s *memStore }

func (m memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.s.txMu.Lock()
	defer m.s.txMu.Unlock()

	snap := m.s.snapshot()
	if err := fn(ctx); err != nil {
		m.s.restore(snap)
		return err
	}
	return nil
}

type memCatalog struct{ s *memStore }

func (m memCatalog) List(_ context.Context, _ product.Filter) ([]product.Product, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return slices.Collect(maps.Values(m.s.products)), nil
}

func (m memCatalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m memCatalog) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, err := m.GetByID(ctx, id); err == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m memCatalog) Create(_ context.Context, p *product.Product) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.products[p.ID] = *p
	return nil
}

func (m memCatalog) Reserve(_ context.Context, id string, quantity int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.products[id]
	if !ok {
		return product.ErrNotFound
	}
	if p.Stock < quantity {
		return product.ErrOutOfStock
	}
	p.Stock -= quantity
	m.s.products[id] = p
	return nil
}

func (m memCatalog) Restore(_ context.Context, id string, quantity int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.products[id]
	if !ok {
		return product.ErrNotFound
	}
	p.Stock += quantity
	m.s.products[id] = p
	return nil
}

type memOrders struct{ s *memStore }

func (m memOrders) Create(_ context.Context, o *Order) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.orders[o.ID] = *o
	return nil
}

func (m memOrders) GetByID(_ context.Context, id string) (*Order, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	o, ok := m.s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

func (m memOrders) GetForUpdate(ctx context.Context, id string) (*Order, error) {
	return m.GetByID(ctx, id)
}

func (m memOrders) UpdateStatus(_ context.Context, id string, status Status, deliveredAt *time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	o, ok := m.s.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	if deliveredAt != nil {
		o.DeliveredAt = deliveredAt
	}
	m.s.orders[id] = o
	return nil
}

func (m memOrders) ListByUser(_ context.Context, userID string) ([]Order, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []Order
	for _, o := range m.s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

type memUsers struct{ s *memStore }

func (m memUsers) AttachOrder(_ context.Context, userID, orderID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.userOrders[userID] = append(m.s.userOrders[userID], orderID)
	return nil
}

func (m memUsers) PruneCart(_ context.Context, userID string, productIDs []string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.carts[userID] = slices.DeleteFunc(m.s.carts[userID], func(id string) bool {
		return slices.Contains(productIDs, id)
	})
	return nil
}

type memEvents struct{ s *memStore }

func (m memEvents) Append(_ context.Context, e event.Event) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.appendErr != nil {
		return m.s.appendErr
	}
	m.s.events = append(m.s.events, e)
	return nil
}

// recordingLedger logs every stock mutation before delegating to memCatalog.
type recordingLedger struct {
	memCatalog
	mu    sync.Mutex
	calls []string
}

func (r *recordingLedger) Reserve(ctx context.Context, id string, quantity int) error {
	r.record(fmt.Sprintf("reserve %s %d", id, quantity))
	return r.memCatalog.Reserve(ctx, id, quantity)
}

func (r *recordingLedger) Restore(ctx context.Context, id string, quantity int) error {
	r.record(fmt.Sprintf("restore %s %d", id, quantity))
	return r.memCatalog.Restore(ctx, id, quantity)
}

func (r *recordingLedger) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

// --- Helpers ---

var errOutboxDown = errors.New("outbox unavailable")

func newTestProduct(id, name string, price string, stock int) product.Product {
	return product.Product{
		ID:       id,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Category: "Electronics",
		Seller:   "Acme",
		Images:   []product.Image{{PublicID: id + "-1", URL: "https://img.example.com/" + id + ".jpg"}},
	}
}

func newTestService(s *memStore, opts ...Option) *Service {
	return newTestServiceWith(s, AssemblerOptions{}, opts...)
}

func newTestServiceWith(s *memStore, aopts AssemblerOptions, opts ...Option) *Service {
	asm := NewAssembler(memCatalog{s}, validate.New(), aopts)
	return NewService(asm, memOrders{s}, memUsers{s}, memCatalog{s}, memTx{s}, memEvents{s}, opts...)
}

func testShipping() ShippingRequest {
	return ShippingRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Street:    "12 Analytical Way",
		City:      "London",
		State:     "Greater London",
		ZipCode:   "N1 9GU",
		Country:   "GB",
	}
}

func newRequest(total string, items ...ItemRequest) PlaceOrderRequest {
	return PlaceOrderRequest{
		Items:           items,
		ShippingAddress: testShipping(),
		Payment:         PaymentRequest{Reference: "ref-123", Status: "success", Message: "Approved"},
		TaxPrice:        decimal.Zero,
		ShippingPrice:   decimal.Zero,
		TotalPrice:      decimal.RequireFromString(total),
	}
}

func item(productID string, qty int, price string) ItemRequest {
	return ItemRequest{ProductID: productID, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}
