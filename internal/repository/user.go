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
	"github.com/xenking/sage-warehouse/internal/domain/user"
)

const userColumns = `id, name, email, password_hash, avatar, role, cart, favorites, order_ids,
	created_at, updated_at`

const (
	createUserSQL = `INSERT INTO users (id, name, email, password_hash, avatar, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	getUserByIDSQL = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	getUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	attachOrderSQL = `UPDATE users SET order_ids = array_append(order_ids, $2), updated_at = now()
		WHERE id = $1`

	pruneCartSQL = `UPDATE users SET
			cart = COALESCE((
				SELECT jsonb_agg(e ORDER BY ord)
				FROM jsonb_array_elements(cart) WITH ORDINALITY AS t(e, ord)
				WHERE NOT (e->>'productId' = ANY($2::text[]))
			), '[]'::jsonb),
			updated_at = now()
		WHERE id = $1`

	putCartItemSQL = `UPDATE users SET
			cart = CASE
				WHEN EXISTS (SELECT 1 FROM jsonb_array_elements(cart) e WHERE e->>'productId' = $2)
				THEN (
					SELECT jsonb_agg(CASE WHEN e->>'productId' = $2 THEN $3::jsonb ELSE e END ORDER BY ord)
					FROM jsonb_array_elements(cart) WITH ORDINALITY AS t(e, ord)
				)
				ELSE cart || jsonb_build_array($3::jsonb)
			END,
			updated_at = now()
		WHERE id = $1`

	addFavoriteSQL = `UPDATE users SET
			favorites = CASE WHEN $2 = ANY(favorites) THEN favorites ELSE array_append(favorites, $2) END,
			updated_at = now()
		WHERE id = $1`

	removeFavoriteSQL = `UPDATE users SET favorites = array_remove(favorites, $2), updated_at = now()
		WHERE id = $1`

	updateProfileSQL = `UPDATE users SET name = $2, avatar = $3, updated_at = $4 WHERE id = $1`

	setPasswordHashSQL = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`

	listUsersSQL = `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id LIMIT $1 OFFSET $2`
)

var (
	_ user.Repository  = (*UserRepository)(nil)
	_ order.UserLinker = (*UserRepository)(nil)
)

// UserRepository implements user.Repository backed by PostgreSQL. The cart
// is a JSONB array on the user row; favorites and order ids are text arrays.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a new user. It returns user.ErrEmailTaken when the email is in use.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createUserSQL,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Avatar, u.Role, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isPgError(err, codeUniqueViolation) {
			return user.ErrEmailTaken
		}
		return fmt.Errorf("creating user %q: %w", u.ID, err)
	}
	return nil
}

// GetByID returns the user with the given id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	return r.getOne(ctx, getUserByIDSQL, id)
}

// GetByEmail returns the user registered with email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getOne(ctx, getUserByEmailSQL, email)
}

// AttachOrder appends orderID to the user's order list.
func (r *UserRepository) AttachOrder(ctx context.Context, userID, orderID string) error {
	return r.exec(ctx, "attaching order", attachOrderSQL, userID, orderID)
}

// PruneCart removes every cart entry whose product id is in productIDs.
func (r *UserRepository) PruneCart(ctx context.Context, userID string, productIDs []string) error {
	return r.exec(ctx, "pruning cart", pruneCartSQL, userID, productIDs)
}

// PutCartItem replaces the cart entry for item.ProductID in place, or appends it.
func (r *UserRepository) PutCartItem(ctx context.Context, userID string, item user.CartItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshaling cart item: %w", err)
	}
	return r.exec(ctx, "putting cart item", putCartItemSQL, userID, item.ProductID, data)
}

// AddFavorite adds productID to the user's favorites once.
func (r *UserRepository) AddFavorite(ctx context.Context, userID, productID string) error {
	return r.exec(ctx, "adding favorite", addFavoriteSQL, userID, productID)
}

// RemoveFavorite removes productID from the user's favorites.
func (r *UserRepository) RemoveFavorite(ctx context.Context, userID, productID string) error {
	return r.exec(ctx, "removing favorite", removeFavoriteSQL, userID, productID)
}

// UpdateProfile stores the name and avatar of u.
func (r *UserRepository) UpdateProfile(ctx context.Context, u *user.User) error {
	return r.exec(ctx, "updating profile", updateProfileSQL, u.ID, u.Name, u.Avatar, u.UpdatedAt)
}

// SetPasswordHash replaces the password hash of id.
func (r *UserRepository) SetPasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	return r.exec(ctx, "setting password", setPasswordHashSQL, id, hash, at)
}

// List returns one page of users, oldest first.
func (r *UserRepository) List(ctx context.Context, page user.Page) ([]user.User, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listUsersSQL, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return pgx.CollectRows(rows, scanUser)
}

// exec runs a single-row update keyed by user id; no matching row is user.ErrNotFound.
func (r *UserRepository) exec(ctx context.Context, op, sql, userID string, args ...any) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, sql, append([]any{userID}, args...)...)
	if err != nil {
		return fmt.Errorf("%s for user %q: %w", op, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, sql, key string) (*user.User, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("getting user %q: %w", key, err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", key, err)
	}
	return &u, nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var (
		u    user.User
		role string
	)
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Avatar, &role,
		&u.Cart, &u.Favorites, &u.OrderIDs, &u.CreatedAt, &u.UpdatedAt,
	)
	u.Role = user.Role(role)
	return u, err
}
