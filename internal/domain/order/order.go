package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusTransit    Status = "TRANSIT"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusInProgress, StatusTransit, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether an order in status s is immutable.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Order is a placed customer order.
type Order struct {
	ID            string
	UserID        string
	Items         []LineItem
	Shipping      ShippingInfo
	Payment       PaymentInfo
	TaxPrice      decimal.Decimal
	ShippingPrice decimal.Decimal
	ItemsPrice    decimal.Decimal
	TotalPrice    decimal.Decimal
	Status        Status
	PaidAt        time.Time
	DeliveredAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LineItem is a single product, quantity and price entry within an order. Name
// and Image are copied from the catalog at placement time.
type LineItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
}

// ShippingInfo is the delivery address captured with the order.
type ShippingInfo struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zipCode"`
	Country   string `json:"country"`
}

// PaymentInfo records the payment provider outcome reported by the client.
type PaymentInfo struct {
	Status      string `json:"status"`
	Reference   string `json:"reference"`
	Message     string `json:"message"`
	Transaction string `json:"transaction"`
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// GetForUpdate loads the order and locks it until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	UpdateStatus(ctx context.Context, id string, status Status, deliveredAt *time.Time) error
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}

// UserLinker maintains the order-related fields of a user.
type UserLinker interface {
	AttachOrder(ctx context.Context, userID, orderID string) error
	PruneCart(ctx context.Context, userID string, productIDs []string) error
}

// Transactor runs fn as a single atomic unit. Repositories called with the
// ctx passed to fn take part in the transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
