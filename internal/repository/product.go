package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sage-warehouse/internal/domain/product"
	"github.com/xenking/sage-warehouse/internal/domain/review"
)

const productColumns = `id, name, description, price, stock, category, seller, images,
	ratings, num_of_reviews, discount, flash_sale, created_by, created_at, updated_at`

const (
	listProductsSQL = `SELECT ` + productColumns + `
		FROM products WHERE ($1 = '' OR category = $1) ORDER BY created_at DESC, id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	createProductSQL = `INSERT INTO products (id, name, description, price, stock, category, seller,
		images, ratings, num_of_reviews, discount, flash_sale, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	upsertProductSQL = `INSERT INTO products (id, name, description, price, stock, category, seller,
		images, discount, flash_sale, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			category = EXCLUDED.category,
			seller = EXCLUDED.seller,
			images = EXCLUDED.images,
			discount = EXCLUDED.discount,
			flash_sale = EXCLUDED.flash_sale,
			updated_at = now()
		RETURNING id`

	reserveStockSQL = `UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`

	restoreStockSQL = `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	recomputeRatingSQL = `UPDATE products SET
			ratings = COALESCE((SELECT ROUND(AVG(rating)::numeric, 2) FROM reviews WHERE product_id = $1), 0),
			num_of_reviews = (SELECT COUNT(*) FROM reviews WHERE product_id = $1),
			updated_at = now()
		WHERE id = $1`
)

var (
	_ product.Repository   = (*ProductRepository)(nil)
	_ product.Ledger       = (*ProductRepository)(nil)
	_ review.RatingUpdater = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository and product.Ledger backed
// by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns catalog products, newest first, optionally restricted to a category.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listProductsSQL, f.Category)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	images, err := json.Marshal(imagesOrEmpty(p.Images))
	if err != nil {
		return fmt.Errorf("marshaling product images: %w", err)
	}
	_, err = conn(ctx, r.pool).Exec(ctx, createProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.Stock, p.Category, p.Seller,
		images, p.Ratings, p.NumOfReviews, p.Discount, p.FlashSale, p.CreatedBy,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isPgError(err, codeUniqueViolation) {
			return fmt.Errorf("product %q: %w", p.Name, product.ErrNameTaken)
		}
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// Upsert inserts p or, when a product with the same name exists, overwrites
// its catalog attributes and stock. p.ID is set to the stored id.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	images, err := json.Marshal(imagesOrEmpty(p.Images))
	if err != nil {
		return fmt.Errorf("marshaling product images: %w", err)
	}
	err = conn(ctx, r.pool).QueryRow(ctx, upsertProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.Stock, p.Category, p.Seller,
		images, p.Discount, p.FlashSale, p.CreatedBy,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.Name, err)
	}
	return nil
}

// Reserve atomically decrements stock when at least quantity units are available.
func (r *ProductRepository) Reserve(ctx context.Context, productID string, quantity int) error {
	db := conn(ctx, r.pool)
	tag, err := db.Exec(ctx, reserveStockSQL, productID, quantity)
	if err != nil {
		return fmt.Errorf("reserving stock of %q: %w", productID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := db.QueryRow(ctx, productExistsSQL, productID).Scan(&exists); err != nil {
		return fmt.Errorf("checking product %q: %w", productID, err)
	}
	if !exists {
		return product.ErrNotFound
	}
	return product.ErrOutOfStock
}

// Restore increments stock by quantity.
func (r *ProductRepository) Restore(ctx context.Context, productID string, quantity int) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, restoreStockSQL, productID, quantity)
	if err != nil {
		return fmt.Errorf("restoring stock of %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// RecomputeRating refreshes the rating average and review count of productID.
func (r *ProductRepository) RecomputeRating(ctx context.Context, productID string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, recomputeRatingSQL, productID)
	if err != nil {
		return fmt.Errorf("recomputing rating of %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Category, &p.Seller, &p.Images,
		&p.Ratings, &p.NumOfReviews, &p.Discount, &p.FlashSale, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func imagesOrEmpty(images []product.Image) []product.Image {
	if images == nil {
		return []product.Image{}
	}
	return images
}
