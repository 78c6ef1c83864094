package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/sage-warehouse/internal/domain/address"
	"github.com/xenking/sage-warehouse/internal/domain/auth"
	"github.com/xenking/sage-warehouse/internal/domain/order"
	"github.com/xenking/sage-warehouse/internal/domain/product"
	"github.com/xenking/sage-warehouse/internal/domain/review"
	"github.com/xenking/sage-warehouse/internal/domain/user"
)

// OrderService places and manages orders.
type OrderService interface {
	PlaceOrder(ctx context.Context, userID string, req order.PlaceOrderRequest) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	ListForUser(ctx context.Context, userID string) ([]order.Order, error)
	UpdateStatus(ctx context.Context, id string, status order.Status) error
	Cancel(ctx context.Context, id string) (*order.Order, error)
}

// ProductService manages the catalog.
type ProductService interface {
	List(ctx context.Context, f product.Filter) ([]product.Product, error)
	Get(ctx context.Context, id string) (*product.Product, error)
	Create(ctx context.Context, req product.CreateRequest) (*product.Product, error)
	Restock(ctx context.Context, id string, quantity int) (*product.Product, error)
}

// UserService manages profiles, carts and favorites.
type UserService interface {
	Get(ctx context.Context, id string) (*user.User, error)
	UpdateProfile(ctx context.Context, id string, p user.ProfilePatch) (*user.User, error)
	List(ctx context.Context, page user.Page) ([]user.User, error)
	Cart(ctx context.Context, userID string) ([]user.CartItem, error)
	PutCartItem(ctx context.Context, userID, productID string, quantity int) ([]user.CartItem, error)
	RemoveCartItem(ctx context.Context, userID, productID string) ([]user.CartItem, error)
	Favorites(ctx context.Context, userID string) ([]product.Product, error)
	AddFavorite(ctx context.Context, userID, productID string) error
	RemoveFavorite(ctx context.Context, userID, productID string) error
}

// AddressService manages saved shipping addresses.
type AddressService interface {
	Create(ctx context.Context, userID string, in address.Input) (*address.Address, error)
	List(ctx context.Context, userID string) ([]address.Address, error)
	Default(ctx context.Context, userID string) (*address.Address, error)
	Update(ctx context.Context, userID, id string, p address.Patch) (*address.Address, error)
	Delete(ctx context.Context, userID, id string) error
}

// ReviewService manages product reviews.
type ReviewService interface {
	Create(ctx context.Context, userID, productID string, in review.Input) (*review.Review, error)
	List(ctx context.Context, productID string) ([]review.Review, error)
}

// AuthService registers users and verifies tokens.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.Session, error)
	ChangePassword(ctx context.Context, userID string, in auth.ChangePasswordInput) (*auth.Session, error)
	Authenticate(raw string) (auth.Identity, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
}

// Services bundles the domain services the Handler delegates to.
type Services struct {
	Orders    OrderService
	Products  ProductService
	Users     UserService
	Addresses AddressService
	Reviews   ReviewService
	Auth      AuthService
}

// Handler serves the REST API, delegating business logic to the domain
// services.
type Handler struct {
	orders       OrderService
	products     ProductService
	users        UserService
	addresses    AddressService
	reviews      ReviewService
	auth         AuthService
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, s Services) *Handler {
	return &Handler{
		orders:       s.Orders,
		products:     s.Products,
		users:        s.Users,
		addresses:    s.Addresses,
		reviews:      s.Reviews,
		auth:         s.Auth,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes returns the API router mounted under /api/v1.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errMethodNotAllowed)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/products/{id}/reviews", h.ListReviews)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Post("/products/{id}/reviews", h.CreateReview)

			r.Put("/auth/password", h.ChangePassword)

			r.Get("/users/me", h.Me)
			r.Patch("/users/me", h.UpdateMe)
			r.Get("/users/me/orders", h.ListMyOrders)
			r.Get("/users/me/cart", h.Cart)
			r.Put("/users/me/cart", h.PutCartItem)
			r.Delete("/users/me/cart/{productId}", h.RemoveCartItem)
			r.Get("/users/me/favorites", h.Favorites)
			r.Put("/users/me/favorites/{productId}", h.AddFavorite)
			r.Delete("/users/me/favorites/{productId}", h.RemoveFavorite)

			r.Post("/addresses", h.CreateAddress)
			r.Get("/addresses", h.ListAddresses)
			r.Get("/addresses/default", h.DefaultAddress)
			r.Patch("/addresses/{id}", h.UpdateAddress)
			r.Delete("/addresses/{id}", h.DeleteAddress)

			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders/{id}", h.GetOrder)
			r.Post("/orders/{id}/cancel", h.CancelOrder)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)

				r.Patch("/orders/{id}", h.UpdateOrderStatus)
				r.Post("/products", h.CreateProduct)
				r.Post("/products/{id}/restock", h.RestockProduct)
				r.Get("/users", h.ListUsers)
			})
		})
	})
	return r
}
