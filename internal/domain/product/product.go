package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrOutOfStock is returned by the stock ledger when the requested quantity
	// exceeds the available stock.
	ErrOutOfStock = errors.New("out of stock")
	// ErrNameTaken is returned when another product already uses the name.
	ErrNameTaken = errors.New("product name already exists")
)

// Categories lists the catalog categories a product may belong to.
var Categories = []string{
	"Electronics",
	"Cameras",
	"Laptops",
	"Accessories",
	"Headphones",
	"Books",
	"Food",
	"Clothes/Shoes",
	"Beauty/Health",
	"Sports",
	"Outdoor",
	"Home",
	"TV Wall Mount",
	"Portable Speakers",
	"Watch",
	"Mobile Phone Accessories",
	"Glasses",
	"Smartphones",
	"Televisions",
	"Controllers",
	"Gaming Consoles",
	"Tablets",
}

// Product represents a catalog item available for purchase.
type Product struct {
	ID           string
	Name         string
	Description  string
	Price        decimal.Decimal
	Stock        int
	Category     string
	Seller       string
	Images       []Image
	Ratings      decimal.Decimal
	NumOfReviews int
	Discount     decimal.Decimal
	FlashSale    bool
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Image references a hosted product picture.
type Image struct {
	PublicID string `json:"publicId"`
	URL      string `json:"url"`
}

// PrimaryImage returns the URL of the first image, or an empty string.
func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].URL
}

// Filter narrows catalog listings.
type Filter struct {
	Category string
}

// Repository defines catalog operations.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
}

// Ledger is the per-product available-quantity counter. Implementations must
// make Reserve an atomic compare-and-decrement so that concurrent callers can
// never drive stock below zero.
type Ledger interface {
	// Reserve decrements stock by quantity. It returns ErrOutOfStock when the
	// product has fewer than quantity units, and ErrNotFound when it does not exist.
	Reserve(ctx context.Context, productID string, quantity int) error
	// Restore increments stock by quantity.
	Restore(ctx context.Context, productID string, quantity int) error
}
