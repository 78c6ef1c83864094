package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when registering an email that is already in use.
	ErrEmailTaken = errors.New("email already in use")
	// ErrCartItemNotFound is returned when removing a product that is not in the cart.
	ErrCartItemNotFound = errors.New("item not found in cart")
)

// Role controls which operations a user may perform.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is a registered customer or administrator.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Avatar       string
	Role         Role
	Cart         []CartItem
	Favorites    []string
	OrderIDs     []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CartItem is a product snapshot the user intends to buy.
type CartItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
}

// Repository defines persistence operations for users. The order-list and
// cart mutations are expected to run inside the caller's transaction when one
// is present in ctx.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)

	// AttachOrder appends orderID to the user's order list.
	AttachOrder(ctx context.Context, userID, orderID string) error
	// PruneCart removes every cart entry whose product id is in productIDs.
	PruneCart(ctx context.Context, userID string, productIDs []string) error
	// PutCartItem inserts the item or replaces the entry for the same product.
	PutCartItem(ctx context.Context, userID string, item CartItem) error

	AddFavorite(ctx context.Context, userID, productID string) error
	RemoveFavorite(ctx context.Context, userID, productID string) error

	// UpdateProfile stores u.Name, u.Avatar and u.UpdatedAt.
	UpdateProfile(ctx context.Context, u *User) error
	// SetPasswordHash replaces the stored password hash of id.
	SetPasswordHash(ctx context.Context, id, hash string, at time.Time) error
	// List returns users ordered by creation time, oldest first.
	List(ctx context.Context, page Page) ([]User, error)
}

// Page bounds a listing.
type Page struct {
	Limit  int
	Offset int
}

// Page limits.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// Normalize clamps the page to valid bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	p.Limit = min(p.Limit, MaxPageLimit)
	p.Offset = max(p.Offset, 0)
	return p
}

// ProfilePatch is a partial profile update. Nil fields are left unchanged.
type ProfilePatch struct {
	Name   *string `json:"name" validate:"omitempty,min=1,max=100"`
	Avatar *string `json:"avatar" validate:"omitempty,max=500"`
}
