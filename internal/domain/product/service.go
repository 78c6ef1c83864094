package product

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxRestock caps a single restock so stock stays within the column range.
const MaxRestock = 1_000_000

// ErrInvalidQuantity is returned when a restock quantity is not positive or
// exceeds MaxRestock.
var ErrInvalidQuantity = errors.New("quantity must be between 1 and 1000000")

// InvalidFieldError describes a rejected product attribute.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// Invalidator drops cached copies of a product after its stock changes.
type Invalidator interface {
	Invalidate(ctx context.Context, id string) error
}

// CreateRequest holds the attributes of a new catalog product.
type CreateRequest struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
	Seller      string
	Images      []Image
	Discount    decimal.Decimal
	FlashSale   bool
	CreatedBy   string
}

// Service implements catalog management on top of a Repository and Ledger.
type Service struct {
	repo   Repository
	ledger Ledger
	cache  Invalidator
	now    func() time.Time
}

// NewService creates a catalog Service. cache may be nil.
func NewService(repo Repository, ledger Ledger, cache Invalidator) *Service {
	return &Service{repo: repo, ledger: ledger, cache: cache, now: time.Now}
}

// List returns catalog products matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Product, error) {
	return s.repo.List(ctx, f)
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

// Validate checks the attributes of a new product. It returns an
// *InvalidFieldError naming the first rejected field.
func (req CreateRequest) Validate() error {
	switch {
	case req.Name == "" || len(req.Name) > 300:
		return &InvalidFieldError{Field: "name", Reason: "must be 1 to 300 characters"}
	case req.Description == "":
		return &InvalidFieldError{Field: "description", Reason: "required"}
	case req.Price.IsNegative():
		return &InvalidFieldError{Field: "price", Reason: "must not be negative"}
	case req.Stock < 0:
		return &InvalidFieldError{Field: "stock", Reason: "must not be negative"}
	case !slices.Contains(Categories, req.Category):
		return &InvalidFieldError{Field: "category", Reason: "unknown category"}
	case req.Seller == "":
		return &InvalidFieldError{Field: "seller", Reason: "required"}
	}
	return nil
}

// NewProduct builds a Product from req with a fresh id and zero rating.
func NewProduct(req CreateRequest, now time.Time) *Product {
	return &Product{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price.Round(2),
		Stock:       req.Stock,
		Category:    req.Category,
		Seller:      req.Seller,
		Images:      req.Images,
		Ratings:     decimal.Zero,
		Discount:    req.Discount,
		FlashSale:   req.FlashSale,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Create validates and persists a new product.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Product, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p := NewProduct(req, s.now())
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return p, nil
}

// Restock returns quantity units to the product's stock and drops any cached copy.
func (s *Service) Restock(ctx context.Context, id string, quantity int) (*Product, error) {
	if quantity <= 0 || quantity > MaxRestock {
		return nil, ErrInvalidQuantity
	}
	if err := s.ledger.Restore(ctx, id, quantity); err != nil {
		return nil, errors.Wrap(err, "restore stock")
	}
	if s.cache != nil {
		// Best effort: a stale entry still expires with its TTL.
		_ = s.cache.Invalidate(ctx, id)
	}
	return s.repo.GetByID(ctx, id)
}
