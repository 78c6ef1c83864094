package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sage-warehouse/internal/domain/address"
)

const addressColumns = `id, user_id, first_name, last_name, phone_number, street, city, state,
	zip_code, country, is_default, created_at, updated_at`

const (
	createAddressSQL = `INSERT INTO addresses (` + addressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	getAddressSQL = `SELECT ` + addressColumns + ` FROM addresses WHERE user_id = $1 AND id = $2`

	listAddressesSQL = `SELECT ` + addressColumns + `
		FROM addresses WHERE user_id = $1 ORDER BY is_default DESC, created_at`

	updateAddressSQL = `UPDATE addresses SET first_name = $3, last_name = $4, phone_number = $5,
			street = $6, city = $7, state = $8, zip_code = $9, country = $10, is_default = $11,
			updated_at = $12
		WHERE user_id = $1 AND id = $2`

	deleteAddressSQL = `DELETE FROM addresses WHERE user_id = $1 AND id = $2`

	clearDefaultAddressSQL = `UPDATE addresses SET is_default = FALSE, updated_at = now()
		WHERE user_id = $1 AND id <> $2 AND is_default`
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

func (r *AddressRepository) Create(ctx context.Context, a *address.Address) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createAddressSQL,
		a.ID, a.UserID, a.FirstName, a.LastName, a.PhoneNumber, a.Street, a.City, a.State,
		a.ZipCode, a.Country, a.Default, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isPgError(err, codeUniqueViolation) {
			return address.ErrDefaultConflict
		}
		return fmt.Errorf("creating address %q: %w", a.ID, err)
	}
	return nil
}

func (r *AddressRepository) Get(ctx context.Context, userID, id string) (*address.Address, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getAddressSQL, userID, id)
	if err != nil {
		return nil, fmt.Errorf("getting address %q: %w", id, err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, fmt.Errorf("getting address %q: %w", id, err)
	}
	return &a, nil
}

func (r *AddressRepository) List(ctx context.Context, userID string) ([]address.Address, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listAddressesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing addresses of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanAddress)
}

func (r *AddressRepository) Update(ctx context.Context, a *address.Address) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateAddressSQL,
		a.UserID, a.ID, a.FirstName, a.LastName, a.PhoneNumber, a.Street, a.City, a.State,
		a.ZipCode, a.Country, a.Default, a.UpdatedAt,
	)
	if err != nil {
		if isPgError(err, codeUniqueViolation) {
			return address.ErrDefaultConflict
		}
		return fmt.Errorf("updating address %q: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return address.ErrNotFound
	}
	return nil
}

func (r *AddressRepository) Delete(ctx context.Context, userID, id string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteAddressSQL, userID, id)
	if err != nil {
		return fmt.Errorf("deleting address %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return address.ErrNotFound
	}
	return nil
}

func (r *AddressRepository) ClearDefault(ctx context.Context, userID, exceptID string) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, clearDefaultAddressSQL, userID, exceptID); err != nil {
		return fmt.Errorf("clearing default address of %q: %w", userID, err)
	}
	return nil
}

func scanAddress(row pgx.CollectableRow) (address.Address, error) {
	var a address.Address
	err := row.Scan(
		&a.ID, &a.UserID, &a.FirstName, &a.LastName, &a.PhoneNumber, &a.Street, &a.City, &a.State,
		&a.ZipCode, &a.Country, &a.Default, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}
