//go:build integration

package integration

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
)

func orderBody(items []map[string]any, tax, shipping, total string) map[string]any {
	return map[string]any{
		"items": items,
		"shippingAddress": map[string]string{
			"firstName": "Ada",
			"lastName":  "Lovelace",
			"street":    "12 Analytical Row",
			"city":      "London",
			"state":     "Greater London",
			"zipCode":   "N1 9GU",
			"country":   "UK",
		},
		"payment": map[string]string{
			"reference":   "pay_123",
			"status":      "success",
			"transaction": "txn_123",
		},
		"taxPrice":      tax,
		"shippingPrice": shipping,
		"totalPrice":    total,
	}
}

func item(id string, qty int, price string) map[string]any {
	return map[string]any{"productId": id, "quantity": qty, "price": price}
}

func placeOrder(t *testing.T, token string, body map[string]any) orderResponse {
	t.Helper()
	resp := do(t, http.MethodPost, "/api/v1/orders", token, body)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
	return decodeJSON[envelope[orderResponse]](t, resp).Data
}

// outboxEvents lists the event types recorded for an order, oldest first.
func outboxEvents(t *testing.T, orderID string) []string {
	t.Helper()

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, `SELECT event_type FROM outbox WHERE aggregate_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		t.Fatalf("query outbox: %v", err)
	}
	types, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		t.Fatalf("collect outbox: %v", err)
	}
	return types
}

func TestPlaceOrder_ReservesStockAndCancelRestores(t *testing.T) {
	s := register(t)
	speaker := productNamed(t, "JBL Flip 6")
	mouse := productNamed(t, "Logitech MX Master 3S")
	speakerStock := getProduct(t, speaker.ID).Stock
	mouseStock := getProduct(t, mouse.ID).Stock

	o := placeOrder(t, s.Token, orderBody([]map[string]any{
		item(speaker.ID, 2, "129.95"),
		item(mouse.ID, 1, "99.99"),
	}, "10.00", "5.00", "374.89"))

	if o.OrderStatus != "PROCESSING" {
		t.Fatalf("new order status: got %q", o.OrderStatus)
	}
	if o.UserID != s.User.ID {
		t.Fatalf("order owner: got %q, want %q", o.UserID, s.User.ID)
	}
	if got := getProduct(t, speaker.ID).Stock; got != speakerStock-2 {
		t.Fatalf("speaker stock after order: got %d, want %d", got, speakerStock-2)
	}
	if got := getProduct(t, mouse.ID).Stock; got != mouseStock-1 {
		t.Fatalf("mouse stock after order: got %d, want %d", got, mouseStock-1)
	}

	resp := do(t, http.MethodPost, "/api/v1/orders/"+o.ID+"/cancel", s.Token, nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
	if got := decodeJSON[envelope[orderResponse]](t, resp).Data.OrderStatus; got != "CANCELLED" {
		t.Fatalf("cancelled status: got %q", got)
	}

	if got := getProduct(t, speaker.ID).Stock; got != speakerStock {
		t.Fatalf("speaker stock after cancel: got %d, want %d", got, speakerStock)
	}
	if got := getProduct(t, mouse.ID).Stock; got != mouseStock {
		t.Fatalf("mouse stock after cancel: got %d, want %d", got, mouseStock)
	}

	events := outboxEvents(t, o.ID)
	if !slices.Equal(events, []string{"order.placed", "order.cancelled"}) {
		t.Fatalf("outbox events: got %v", events)
	}
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	s := register(t)
	camera := productNamed(t, "Canon EOS R50")
	stock := getProduct(t, camera.ID).Stock

	resp := do(t, http.MethodPost, "/api/v1/orders", s.Token, orderBody([]map[string]any{
		item(camera.ID, stock+1, "679.00"),
	}, "0", "0", "0"))
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)

	if got := getProduct(t, camera.ID).Stock; got != stock {
		t.Fatalf("stock changed by rejected order: got %d, want %d", got, stock)
	}
}

func TestPlaceOrder_PriceMismatchRejected(t *testing.T) {
	s := register(t)
	speaker := productNamed(t, "JBL Flip 6")

	resp := do(t, http.MethodPost, "/api/v1/orders", s.Token, orderBody([]map[string]any{
		item(speaker.ID, 1, "1.00"),
	}, "0", "0", "1.00"))
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)

	body := decodeJSON[errorResponse](t, resp)
	if body.Message != "invalid order request" {
		t.Fatalf("message: got %q", body.Message)
	}
}

func TestPlaceOrder_Unauthenticated(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/v1/orders", "", orderBody(nil, "0", "0", "0"))
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestGetOrder_ForeignOrderHidden(t *testing.T) {
	owner := register(t)
	other := register(t)
	book := productNamed(t, "The Pragmatic Programmer")

	o := placeOrder(t, owner.Token, orderBody([]map[string]any{
		item(book.ID, 1, "39.99"),
	}, "0", "0", "39.99"))

	resp := do(t, http.MethodGet, "/api/v1/orders/"+o.ID, other.Token, nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusNotFound)

	admin := login(t, adminEmail, adminPassword)
	resp = do(t, http.MethodGet, "/api/v1/orders/"+o.ID, admin.Token, nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
}

func TestUpdateOrderStatus_DeliveredIsFinal(t *testing.T) {
	s := register(t)
	admin := login(t, adminEmail, adminPassword)
	book := productNamed(t, "The Pragmatic Programmer")

	o := placeOrder(t, s.Token, orderBody([]map[string]any{
		item(book.ID, 1, "39.99"),
	}, "0", "0", "39.99"))

	for _, status := range []string{"IN_PROGRESS", "TRANSIT", "DELIVERED"} {
		resp := do(t, http.MethodPatch, "/api/v1/orders/"+o.ID, admin.Token, map[string]string{"status": status})
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	resp := do(t, http.MethodPost, "/api/v1/orders/"+o.ID+"/cancel", s.Token, nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)

	events := outboxEvents(t, o.ID)
	want := []string{"order.placed", "order.status_changed", "order.status_changed", "order.status_changed"}
	if !slices.Equal(events, want) {
		t.Fatalf("outbox events: got %v, want %v", events, want)
	}
}

func TestListMyOrders(t *testing.T) {
	s := register(t)
	book := productNamed(t, "The Pragmatic Programmer")
	o := placeOrder(t, s.Token, orderBody([]map[string]any{
		item(book.ID, 1, "39.99"),
	}, "0", "0", "39.99"))

	resp := do(t, http.MethodGet, "/api/v1/users/me/orders", s.Token, nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	orders := decodeJSON[envelope[[]orderResponse]](t, resp).Data
	if len(orders) != 1 || orders[0].ID != o.ID {
		t.Fatalf("my orders: got %+v", orders)
	}
}

func TestPlaceOrder_OppositeLineOrdersDoNotDeadlock(t *testing.T) {
	s := register(t)
	headphones := productNamed(t, "SoundCore Q30 Wireless Headphones")
	controller := productNamed(t, "PlayStation 5 DualSense Controller")
	headphonesStock := getProduct(t, headphones.ID).Stock
	controllerStock := getProduct(t, controller.ID).Stock

	const orders = 12
	var wg sync.WaitGroup
	statuses := make(chan int, orders)
	for i := range orders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lines := []map[string]any{
				item(headphones.ID, 1, "79.99"),
				item(controller.ID, 1, "69.99"),
			}
			if i%2 == 1 {
				slices.Reverse(lines)
			}
			resp := do(t, http.MethodPost, "/api/v1/orders", s.Token, orderBody(lines, "0.00", "0.00", "149.98"))
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	for code := range statuses {
		if code != http.StatusOK {
			t.Fatalf("concurrent order status: got %d, want %d", code, http.StatusOK)
		}
	}
	if got := getProduct(t, headphones.ID).Stock; got != headphonesStock-orders {
		t.Fatalf("headphones stock: got %d, want %d", got, headphonesStock-orders)
	}
	if got := getProduct(t, controller.ID).Stock; got != controllerStock-orders {
		t.Fatalf("controller stock: got %d, want %d", got, controllerStock-orders)
	}
}

// setStock writes stock straight to the database, leaving any cached copy
// of the product untouched.
func setStock(t *testing.T, productID string, stock int) {
	t.Helper()

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, `UPDATE products SET stock = $2 WHERE id = $1`, productID, stock); err != nil {
		t.Fatalf("set stock: %v", err)
	}
}

func TestPlaceOrder_StockCheckIgnoresCachedProduct(t *testing.T) {
	s := register(t)
	watch := productNamed(t, "Apple Watch SE")
	stock := watch.Stock

	// Listing is uncached; the first lookup by id caches the product.
	setStock(t, watch.ID, 0)
	if got := getProduct(t, watch.ID).Stock; got != 0 {
		t.Fatalf("cached stock: got %d, want 0", got)
	}
	setStock(t, watch.ID, stock)

	placeOrder(t, s.Token, orderBody([]map[string]any{
		item(watch.ID, 1, "249.00"),
	}, "0.00", "0.00", "249.00"))

	if got := getProduct(t, watch.ID).Stock; got != stock-1 {
		t.Fatalf("stock after order: got %d, want %d", got, stock-1)
	}
}
