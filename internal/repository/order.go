package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sage-warehouse/internal/domain/order"
)

const orderColumns = `id, user_id, items, shipping, payment, tax_price, shipping_price,
	items_price, total_price, status, paid_at, delivered_at, created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders (id, user_id, items, shipping, payment, tax_price,
		shipping_price, items_price, total_price, status, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = getOrderByIDSQL + ` FOR UPDATE`

	listOrdersByUserSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	updateOrderStatusSQL = `UPDATE orders
		SET status = $2, delivered_at = COALESCE($3, delivered_at), updated_at = now()
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Line items, shipping and payment info are
// serialized to JSON for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	shippingJSON, err := json.Marshal(o.Shipping)
	if err != nil {
		return fmt.Errorf("marshaling shipping info: %w", err)
	}
	paymentJSON, err := json.Marshal(o.Payment)
	if err != nil {
		return fmt.Errorf("marshaling payment info: %w", err)
	}

	_, err = conn(ctx, r.pool).Exec(ctx, createOrderSQL,
		o.ID, o.UserID, itemsJSON, shippingJSON, paymentJSON,
		o.TaxPrice, o.ShippingPrice, o.ItemsPrice, o.TotalPrice,
		o.Status, o.PaidAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	return nil
}

// GetByID returns the order with the given id.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetForUpdate returns the order with the given id and locks its row until
// the surrounding transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderForUpdateSQL, id)
}

// UpdateStatus sets the order status. A nil deliveredAt keeps the stored value.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status, deliveredAt *time.Time) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateOrderStatusSQL, id, status, deliveredAt)
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

// ListByUser returns the orders of userID, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func (r *OrderRepository) getOne(ctx context.Context, sql, id string) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Items, &o.Shipping, &o.Payment,
		&o.TaxPrice, &o.ShippingPrice, &o.ItemsPrice, &o.TotalPrice,
		&status, &o.PaidAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}
