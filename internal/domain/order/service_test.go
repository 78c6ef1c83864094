package order

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/sage-warehouse/internal/domain/event"
	"github.com/xenking/sage-warehouse/internal/validate"
)

// --- Tests ---

func TestPlaceOrder_Success(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 5))
	store.carts["u1"] = []string{"p1", "p9"}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, WithClock(func() time.Time { return fixed }))

	o, err := svc.PlaceOrder(context.Background(), "u1", newRequest("30.00", item("p1", 3, "10.00")))
	require.NoError(t, err)

	assert.Equal(t, 2, store.stock("p1"))
	assert.Equal(t, StatusProcessing, o.Status)
	assert.True(t, decimal.RequireFromString("30.00").Equal(o.TotalPrice))
	assert.True(t, decimal.RequireFromString("30.00").Equal(o.ItemsPrice))
	assert.Equal(t, fixed, o.PaidAt)
	assert.Nil(t, o.DeliveredAt)
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, "Ada", o.Shipping.FirstName)
	assert.Equal(t, "ref-123", o.Payment.Reference)

	assert.Equal(t, []string{o.ID}, store.userOrders["u1"])
	assert.Equal(t, []string{"p9"}, store.carts["u1"])
	assert.Equal(t, []event.Type{event.OrderPlaced}, store.eventTypes())
	assert.Equal(t, o.ID, store.order(o.ID).ID)
}

func TestPlaceOrder_LineItemSnapshot(t *testing.T) {
	store := newMemStore(
		newTestProduct("p1", "Widget", "10.00", 5),
		newTestProduct("p2", "Gadget", "4.50", 5),
	)
	svc := newTestService(store)

	o, err := svc.PlaceOrder(context.Background(), "u1", newRequest("29.00",
		item("p1", 2, "10.00"),
		item("p2", 2, "4.50"),
	))
	require.NoError(t, err)

	require.Len(t, o.Items, 2)
	assert.Equal(t, LineItem{
		ProductID: "p1",
		Quantity:  2,
		Price:     decimal.RequireFromString("10.00"),
		Name:      "Widget",
		Image:     "https://img.example.com/p1.jpg",
	}, o.Items[0])
	assert.Equal(t, "Gadget", o.Items[1].Name)
	assert.True(t, decimal.RequireFromString("29.00").Equal(o.ItemsPrice))
}

func TestPlaceOrder_DeclaredTotalKept(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 5))
	svc := newTestService(store)

	req := newRequest("27.35", item("p1", 2, "10.00"))
	req.TaxPrice = decimal.RequireFromString("2.35")
	req.ShippingPrice = decimal.RequireFromString("5")

	o, err := svc.PlaceOrder(context.Background(), "u1", req)
	require.NoError(t, err)
	assert.Equal(t, "27.35", o.TotalPrice.StringFixed(2))
	assert.Equal(t, "2.35", o.TaxPrice.StringFixed(2))
	assert.Equal(t, "5.00", o.ShippingPrice.StringFixed(2))
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 2))
	svc := newTestService(store)

	_, err := svc.PlaceOrder(context.Background(), "u1", newRequest("30.00", item("p1", 3, "10.00")))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "p1", stockErr.ProductID)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 2, store.stock("p1"))
	assert.Zero(t, store.orderCount())
	assert.Empty(t, store.eventTypes())
}

func TestPlaceOrder_ZeroStock(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 0))
	svc := newTestService(store)

	_, err := svc.PlaceOrder(context.Background(), "u1", newRequest("10.00", item("p1", 1, "10.00")))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.EqualError(t, stockErr, "Widget is out of stock")
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 5))
	svc := newTestService(store)

	_, err := svc.PlaceOrder(context.Background(), "u1", newRequest("20.00",
		item("p1", 1, "10.00"),
		item("missing", 1, "10.00"),
	))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.True(t, stockErr.Missing)
	assert.Equal(t, "missing", stockErr.ProductID)
	assert.Equal(t, 5, store.stock("p1"))
}

func TestPlaceOrder_NoMutationWhenAnyLineFails(t *testing.T) {
	store := newMemStore(
		newTestProduct("p1", "Widget", "10.00", 5),
		newTestProduct("p2", "Gadget", "10.00", 1),
	)
	svc := newTestService(store)

	_, err := svc.PlaceOrder(context.Background(), "u1", newRequest("50.00",
		item("p1", 3, "10.00"),
		item("p2", 2, "10.00"),
	))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "p2", stockErr.ProductID)
	assert.Equal(t, 5, store.stock("p1"))
	assert.Equal(t, 1, store.stock("p2"))
}

func TestPlaceOrder_DuplicateLinesAreSummed(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 5))
	svc := newTestService(store)

	_, err := svc.PlaceOrder(context.Background(), "u1", newRequest("60.00",
		item("p1", 3, "10.00"),
		item("p1", 3, "10.00"),
	))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 5, store.stock("p1"))
}

func TestPlaceOrder_ReservesInProductIDOrder(t *testing.T) {
	store := newMemStore(
		newTestProduct("p1", "Widget", "10.00", 10),
		newTestProduct("p2", "Gadget", "20.00", 10),
		newTestProduct("p3", "Gizmo", "5.00", 10),
	)
	ledger := &recordingLedger{memCatalog: memCatalog{store}}
	asm := NewAssembler(memCatalog{store}, validate.New(), AssemblerOptions{})
	svc := NewService(asm, memOrders{store}, memUsers{store}, ledger, memTx{store}, memEvents{store})

	o, err := svc.PlaceOrder(context.Background(), "u1", newRequest("65.00",
		item("p3", 1, "5.00"),
		item("p1", 2, "10.00"),
		item("p2", 1, "20.00"),
		item("p1", 1, "10.00"),
		item("p3", 2, "5.00"),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"reserve p1 3", "reserve p2 1", "reserve p3 3"}, ledger.calls)
	assert.Len(t, o.Items, 5)
	assert.Equal(t, 7, store.stock("p1"))
	assert.Equal(t, 7, store.stock("p3"))

	ledger.calls = nil
	_, err = svc.Cancel(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"restore p1 3", "restore p2 1", "restore p3 3"}, ledger.calls)
	assert.Equal(t, 10, store.stock("p1"))
	assert.Equal(t, 10, store.stock("p3"))
}

func TestPlaceOrder_OppositeLineOrdersBothSucceed(t *testing.T) {
	store := newMemStore(
		newTestProduct("a", "Alpha", "1.00", 100),
		newTestProduct("b", "Beta", "1.00", 100),
	)
	svc := newTestService(store)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, second := "a", "b"
			if i%2 == 1 {
				first, second = second, first
			}
			_, err := svc.PlaceOrder(context.Background(), "u1", newRequest("2.00",
				item(first, 1, "1.00"),
				item(second, 1, "1.00"),
			))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 80, store.stock("a"))
	assert.Equal(t, 80, store.stock("b"))
}

func TestStockLines(t *testing.T) {
	lines := stockLines([]LineItem{
		{ProductID: "c", Name: "C", Quantity: 1},
		{ProductID: "a", Name: "A", Quantity: 2},
		{ProductID: "c", Name: "C", Quantity: 4},
	})
	assert.Equal(t, []stockLine{
		{ProductID: "a", Name: "A", Quantity: 2},
		{ProductID: "c", Name: "C", Quantity: 5},
	}, lines)
	assert.Empty(t, stockLines(nil))
}

func TestPlaceOrder_ValidationError(t *testing.T) {
	tests := []struct {
		name  string
		req   func() PlaceOrderRequest
		field string
	}{
		{
			name:  "empty items",
			req:   func() PlaceOrderRequest { return newRequest("0") },
			field: "items",
		},
		{
			name:  "zero quantity",
			req:   func() PlaceOrderRequest { return newRequest("0", item("p1", 0, "10.00")) },
			field: "items[0].quantity",
		},
		{
			name:  "quantity above cap",
			req:   func() PlaceOrderRequest { return newRequest("0", item("p1", MaxQuantity+1, "10.00")) },
			field: "items[0].quantity",
		},
		{
			name:  "quantity near int overflow",
			req:   func() PlaceOrderRequest { return newRequest("0", item("p1", math.MaxInt, "10.00")) },
			field: "items[0].quantity",
		},
		{
			name: "summed lines above cap",
			req: func() PlaceOrderRequest {
				return newRequest("0", item("p1", MaxQuantity, "10.00"), item("p1", 1, "10.00"))
			},
			field: "items",
		},
		{
			name:  "negative price",
			req:   func() PlaceOrderRequest { return newRequest("0", item("p1", 1, "-1")) },
			field: "items[0].price",
		},
		{
			name: "missing city",
			req: func() PlaceOrderRequest {
				r := newRequest("10.00", item("p1", 1, "10.00"))
				r.ShippingAddress.City = ""
				return r
			},
			field: "shippingAddress.city",
		},
		{
			name: "missing payment reference",
			req: func() PlaceOrderRequest {
				r := newRequest("10.00", item("p1", 1, "10.00"))
				r.Payment.Reference = ""
				return r
			},
			field: "payment.reference",
		},
		{
			name: "negative tax",
			req: func() PlaceOrderRequest {
				r := newRequest("10.00", item("p1", 1, "10.00"))
				r.TaxPrice = decimal.RequireFromString("-0.01")
				return r
			},
			field: "taxPrice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(newTestProduct("p1", "Widget", "10.00", 5))
			svc := newTestService(store)

			_, err := svc.PlaceOrder(context.Background(), "u1", tt.req())

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			fields := make([]string, 0, len(verr.Fields))
			for _, f := range verr.Fields {
				fields = append(fields, f.Field)
			}
			assert.Contains(t, fields, tt.field)
			assert.Equal(t, 5, store.stock("p1"))
		})
	}
}

func TestPlaceOrder_RollbackOnLaterFailure(t *testing.T) {
	store := newMemStore(
		newTestProduct("p1", "Widget", "10.00", 5),
		newTestProduct("p2", "Gadget", "10.00", 5),
	)
	store.carts["u1"] = []string{"p1"}
	store.appendErr = errOutboxDown
	svc := newTestService(store)

	_, err := svc.PlaceOrder(context.Background(), "u1", newRequest("40.00",
		item("p1", 2, "10.00"),
		item("p2", 2, "10.00"),
	))
	require.ErrorIs(t, err, errOutboxDown)

	assert.Equal(t, 5, store.stock("p1"))
	assert.Equal(t, 5, store.stock("p2"))
	assert.Zero(t, store.orderCount())
	assert.Empty(t, store.userOrders["u1"])
	assert.Equal(t, []string{"p1"}, store.carts["u1"])
}

func TestPlaceOrder_ConcurrentOrdersSerialize(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 5))
	svc := newTestService(store)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
		start     = make(chan struct{})
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.PlaceOrder(context.Background(), "u1", newRequest("30.00", item("p1", 3, "10.00")))
			var stockErr *InsufficientStockError
			switch {
			case err == nil:
				succeeded.Add(1)
			case assert.ErrorAs(t, err, &stockErr):
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(1), rejected.Load())
	assert.Equal(t, 2, store.stock("p1"))
	assert.Equal(t, 1, store.orderCount())
}

func TestPlaceOrder_StockNeverNegative(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "1.00", 5))
	svc := newTestService(store)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.PlaceOrder(context.Background(), "u1", newRequest("1.00", item("p1", 1, "1.00"))); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), succeeded.Load())
	assert.Equal(t, 0, store.stock("p1"))
}

func TestPlaceOrder_StrictPricing(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 5))
	svc := newTestServiceWith(store, AssemblerOptions{StrictPricing: true})

	t.Run("unit price mismatch", func(t *testing.T) {
		_, err := svc.PlaceOrder(context.Background(), "u1", newRequest("1.00", item("p1", 1, "1.00")))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "items[0].price", verr.Fields[0].Field)
	})
	t.Run("total mismatch", func(t *testing.T) {
		_, err := svc.PlaceOrder(context.Background(), "u1", newRequest("99.00", item("p1", 1, "10.00")))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "totalPrice", verr.Fields[0].Field)
	})
	t.Run("consistent", func(t *testing.T) {
		_, err := svc.PlaceOrder(context.Background(), "u1", newRequest("10.00", item("p1", 1, "10.00")))
		require.NoError(t, err)
	})
	assert.Equal(t, 4, store.stock("p1"))
}

func TestPlaceOrder_InvalidatesCache(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 5))
	cache := &mockInvalidator{}
	svc := newTestService(store, WithCache(cache))

	_, err := svc.PlaceOrder(context.Background(), "u1", newRequest("10.00", item("p1", 1, "10.00")))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, cache.ids)
}

func TestPlaceOrder_Metrics(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)

	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 1))
	svc := newTestService(store, WithMetrics(m))

	_, err = svc.PlaceOrder(context.Background(), "u1", newRequest("10.00", item("p1", 1, "10.00")))
	require.NoError(t, err)
	_, err = svc.PlaceOrder(context.Background(), "u1", newRequest("10.00", item("p1", 1, "10.00")))
	require.Error(t, err)
}

type mockInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (m *mockInvalidator) Invalidate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	return nil
}

func placeTestOrder(t *testing.T, svc *Service) *Order {
	t.Helper()
	o, err := svc.PlaceOrder(context.Background(), "u1", newRequest("30.00", item("p1", 3, "10.00")))
	require.NoError(t, err)
	return o
}

func TestUpdateStatus_NotFound(t *testing.T) {
	svc := newTestService(newMemStore())

	err := svc.UpdateStatus(context.Background(), "nope", StatusTransit)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 5))
	svc := newTestService(store)
	o := placeTestOrder(t, svc)

	err := svc.UpdateStatus(context.Background(), o.ID, Status("SHIPPED"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StatusProcessing, store.order(o.ID).Status)
}

func TestUpdateStatus_AnyNonTerminalOrder(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 5))
	svc := newTestService(store)
	o := placeTestOrder(t, svc)

	for _, s := range []Status{StatusTransit, StatusProcessing, StatusInProgress} {
		require.NoError(t, svc.UpdateStatus(context.Background(), o.ID, s))
		assert.Equal(t, s, store.order(o.ID).Status)
	}
	assert.Equal(t, []event.Type{
		event.OrderPlaced,
		event.OrderStatusChanged,
		event.OrderStatusChanged,
		event.OrderStatusChanged,
	}, store.eventTypes())
}

func TestUpdateStatus_DeliveredDoesNotTouchStock(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 5))
	delivered := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	svc := newTestService(store, WithClock(func() time.Time { return delivered }))
	o := placeTestOrder(t, svc)
	require.Equal(t, 2, store.stock("p1"))

	require.NoError(t, svc.UpdateStatus(context.Background(), o.ID, StatusDelivered))

	got := store.order(o.ID)
	assert.Equal(t, StatusDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt)
	assert.Equal(t, delivered, *got.DeliveredAt)
	assert.Equal(t, 2, store.stock("p1"))
}

func TestUpdateStatus_DeliveredIsLocked(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 5))
	svc := newTestService(store)
	o := placeTestOrder(t, svc)
	require.NoError(t, svc.UpdateStatus(context.Background(), o.ID, StatusDelivered))
	before := store.order(o.ID)

	for _, s := range []Status{StatusProcessing, StatusInProgress, StatusTransit, StatusDelivered} {
		err := svc.UpdateStatus(context.Background(), o.ID, s)
		require.ErrorIs(t, err, ErrOrderLocked)
	}
	_, err := svc.Cancel(context.Background(), o.ID)
	require.ErrorIs(t, err, ErrOrderLocked)

	assert.Equal(t, before, store.order(o.ID))
	assert.Equal(t, 2, store.stock("p1"))
}

func TestUpdateStatus_CancelledRequiresCancel(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 5))
	svc := newTestService(store)
	o := placeTestOrder(t, svc)

	err := svc.UpdateStatus(context.Background(), o.ID, StatusCancelled)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 2, store.stock("p1"))
}

func TestCancel_RestoresStock(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 5))
	svc := newTestService(store)
	o := placeTestOrder(t, svc)
	require.NoError(t, svc.UpdateStatus(context.Background(), o.ID, StatusTransit))

	got, err := svc.Cancel(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, StatusCancelled, store.order(o.ID).Status)
	assert.Equal(t, 5, store.stock("p1"))
	assert.Equal(t, event.OrderCancelled, store.eventTypes()[2])

	_, err = svc.Cancel(context.Background(), o.ID)
	require.ErrorIs(t, err, ErrOrderLocked)
	assert.Equal(t, 5, store.stock("p1"))
}

func TestCancel_NotFound(t *testing.T) {
	svc := newTestService(newMemStore())

	_, err := svc.Cancel(context.Background(), "nope")
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCancel_RollbackOnEventFailure(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 5))
	svc := newTestService(store)
	o := placeTestOrder(t, svc)
	store.appendErr = errOutboxDown

	_, err := svc.Cancel(context.Background(), o.ID)
	require.ErrorIs(t, err, errOutboxDown)
	assert.Equal(t, 2, store.stock("p1"))
	assert.Equal(t, StatusProcessing, store.order(o.ID).Status)
}

func TestListForUser(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "Widget", "10.00", 10))
	svc := newTestService(store)
	placeTestOrder(t, svc)
	placeTestOrder(t, svc)

	orders, err := svc.ListForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	orders, err = svc.ListForUser(context.Background(), "u2")
	require.NoError(t, err)
	assert.Empty(t, orders)
}
