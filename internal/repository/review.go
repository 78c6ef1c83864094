package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sage-warehouse/internal/domain/product"
	"github.com/xenking/sage-warehouse/internal/domain/review"
)

const (
	createReviewSQL = `INSERT INTO reviews (id, user_id, product_id, subject, rating, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	listReviewsByProductSQL = `SELECT id, user_id, product_id, subject, rating, body, created_at, updated_at
		FROM reviews WHERE product_id = $1 ORDER BY created_at DESC`
)

var _ review.Repository = (*ReviewRepository)(nil)

// ReviewRepository implements review.Repository backed by PostgreSQL.
type ReviewRepository struct {
	pool *pgxpool.Pool
}

// NewReviewRepository returns a ReviewRepository that uses the given pool.
func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// Create inserts r. The (user_id, product_id) unique constraint enforces one
// review per user and product.
func (r *ReviewRepository) Create(ctx context.Context, rv *review.Review) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createReviewSQL,
		rv.ID, rv.UserID, rv.ProductID, rv.Subject, rv.Rating, rv.Body, rv.CreatedAt, rv.UpdatedAt,
	)
	switch {
	case err == nil:
		return nil
	case isPgError(err, codeUniqueViolation):
		return review.ErrAlreadyReviewed
	case isPgError(err, codeForeignKeyViolation):
		return product.ErrNotFound
	default:
		return fmt.Errorf("creating review %q: %w", rv.ID, err)
	}
}

// ListByProduct returns the reviews of productID, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string) ([]review.Review, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listReviewsByProductSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("listing reviews of %q: %w", productID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (review.Review, error) {
		var rv review.Review
		err := row.Scan(&rv.ID, &rv.UserID, &rv.ProductID, &rv.Subject, &rv.Rating, &rv.Body,
			&rv.CreatedAt, &rv.UpdatedAt)
		return rv, err
	})
}
