package review

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrAlreadyReviewed is returned when a user reviews the same product twice.
var ErrAlreadyReviewed = errors.New("product already reviewed by this user")

// Review is a user's rating and comment on a product.
type Review struct {
	ID        string
	UserID    string
	ProductID string
	Subject   string
	Rating    int
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository persists reviews.
type Repository interface {
	// Create stores r. It returns ErrAlreadyReviewed when the user already
	// reviewed the product.
	Create(ctx context.Context, r *Review) error
	ListByProduct(ctx context.Context, productID string) ([]Review, error)
}

// RatingUpdater recomputes a product's rating aggregate from its reviews.
type RatingUpdater interface {
	RecomputeRating(ctx context.Context, productID string) error
}

// Transactor runs fn atomically.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
