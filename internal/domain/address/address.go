package address

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when the address does not exist or belongs to
// another user.
var ErrNotFound = errors.New("address not found")

// ErrDefaultConflict is returned when a concurrent change made another
// address of the user the default first.
var ErrDefaultConflict = errors.New("another default address was set concurrently")

// Address is a saved shipping address of a user.
type Address struct {
	ID          string
	UserID      string
	FirstName   string
	LastName    string
	PhoneNumber string
	Street      string
	City        string
	State       string
	ZipCode     string
	Country     string
	Default     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository persists addresses. Every lookup is scoped to the owning user.
type Repository interface {
	Create(ctx context.Context, a *Address) error
	Get(ctx context.Context, userID, id string) (*Address, error)
	List(ctx context.Context, userID string) ([]Address, error)
	Update(ctx context.Context, a *Address) error
	Delete(ctx context.Context, userID, id string) error
	// ClearDefault unsets the default flag on every address of userID except
	// exceptID.
	ClearDefault(ctx context.Context, userID, exceptID string) error
}

// Transactor runs fn atomically.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
