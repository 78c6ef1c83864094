package user

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/sage-warehouse/internal/domain/product"
	"github.com/xenking/sage-warehouse/internal/validate"
)

// ErrInvalidQuantity is returned for non-positive cart quantities.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// Validator checks tagged input structs.
type Validator interface {
	Struct(s any) error
}

// Service implements profile, cart and favorites management.
type Service struct {
	users     Repository
	products  product.Repository
	validator Validator
	now       func() time.Time
}

// NewService creates a user Service.
func NewService(users Repository, products product.Repository, v Validator) *Service {
	return &Service{users: users, products: products, validator: v, now: time.Now}
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdateProfile applies p to the profile of id and returns the result.
func (s *Service) UpdateProfile(ctx context.Context, id string, p ProfilePatch) (*User, error) {
	if err := s.validator.Struct(p); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, validate.Errors{{Field: "name", Message: "is required"}}
		}
		u.Name = name
	}
	if p.Avatar != nil {
		u.Avatar = strings.TrimSpace(*p.Avatar)
	}
	u.UpdatedAt = s.now()
	if err := s.users.UpdateProfile(ctx, u); err != nil {
		return nil, errors.Wrap(err, "update profile")
	}
	return u, nil
}

// List returns one page of registered users.
func (s *Service) List(ctx context.Context, page Page) ([]User, error) {
	return s.users.List(ctx, page.Normalize())
}

// Cart returns the user's cart entries.
func (s *Service) Cart(ctx context.Context, userID string) ([]CartItem, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Cart, nil
}

// PutCartItem adds productID to the cart, or sets its quantity when already
// present. The entry captures the current catalog price, name and image.
func (s *Service) PutCartItem(ctx context.Context, userID, productID string, quantity int) ([]CartItem, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	if quantity > p.Stock {
		return nil, product.ErrOutOfStock
	}

	item := CartItem{
		ProductID: p.ID,
		Quantity:  quantity,
		Price:     p.Price,
		Name:      p.Name,
		Image:     p.PrimaryImage(),
	}
	if err := s.users.PutCartItem(ctx, userID, item); err != nil {
		return nil, errors.Wrap(err, "put cart item")
	}
	return s.Cart(ctx, userID)
}

// RemoveCartItem drops productID from the cart.
func (s *Service) RemoveCartItem(ctx context.Context, userID, productID string) ([]CartItem, error) {
	cart, err := s.Cart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(cart, func(c CartItem) bool { return c.ProductID == productID }) {
		return nil, ErrCartItemNotFound
	}
	if err := s.users.PruneCart(ctx, userID, []string{productID}); err != nil {
		return nil, errors.Wrap(err, "prune cart")
	}
	return s.Cart(ctx, userID)
}

// Favorites resolves the user's favorite product ids to catalog products.
// Ids of products removed from the catalog are skipped.
func (s *Service) Favorites(ctx context.Context, userID string) ([]product.Product, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(u.Favorites) == 0 {
		return []product.Product{}, nil
	}
	products, err := s.products.GetByIDs(ctx, u.Favorites)
	if err != nil {
		return nil, errors.Wrap(err, "get favorite products")
	}
	return products, nil
}

// AddFavorite marks productID as a favorite. Adding an existing favorite is a no-op.
func (s *Service) AddFavorite(ctx context.Context, userID, productID string) error {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return errors.Wrap(err, "get product")
	}
	return s.users.AddFavorite(ctx, userID, productID)
}

// RemoveFavorite unmarks productID.
func (s *Service) RemoveFavorite(ctx context.Context, userID, productID string) error {
	return s.users.RemoveFavorite(ctx, userID, productID)
}
