package review

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/sage-warehouse/internal/domain/product"
)

// Input is the body of a new review.
type Input struct {
	Subject string `json:"subject" validate:"required,max=200"`
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Review  string `json:"review" validate:"required,max=2000"`
}

// Validator checks tagged input structs.
type Validator interface {
	Struct(s any) error
}

// Service manages product reviews.
type Service struct {
	reviews   Repository
	products  product.Repository
	ratings   RatingUpdater
	tx        Transactor
	validator Validator
	cache     product.Invalidator
	now       func() time.Time
}

// NewService creates a review Service. cache may be nil.
func NewService(
	reviews Repository,
	products product.Repository,
	ratings RatingUpdater,
	tx Transactor,
	v Validator,
	cache product.Invalidator,
) *Service {
	return &Service{
		reviews:   reviews,
		products:  products,
		ratings:   ratings,
		tx:        tx,
		validator: v,
		cache:     cache,
		now:       time.Now,
	}
}

// Create stores a review of productID by userID and refreshes the product's
// rating and review count in the same transaction.
func (s *Service) Create(ctx context.Context, userID, productID string, in Input) (*Review, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	now := s.now()
	r := &Review{
		ID:        uuid.New().String(),
		UserID:    userID,
		ProductID: productID,
		Subject:   in.Subject,
		Rating:    in.Rating,
		Body:      in.Review,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.products.GetByID(ctx, productID); err != nil {
			return err
		}
		if err := s.reviews.Create(ctx, r); err != nil {
			return err
		}
		if err := s.ratings.RecomputeRating(ctx, productID); err != nil {
			return errors.Wrap(err, "recompute rating")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, productID)
	}
	return r, nil
}

// List returns the reviews of productID, newest first.
func (s *Service) List(ctx context.Context, productID string) ([]Review, error) {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	return s.reviews.ListByProduct(ctx, productID)
}
