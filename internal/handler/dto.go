package handler

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/sage-warehouse/internal/domain/address"
	"github.com/xenking/sage-warehouse/internal/domain/order"
	"github.com/xenking/sage-warehouse/internal/domain/product"
	"github.com/xenking/sage-warehouse/internal/domain/review"
	"github.com/xenking/sage-warehouse/internal/domain/user"
)

type productImage struct {
	PublicID string `json:"publicId"`
	URL      string `json:"url"`
}

type productResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	Category     string          `json:"category"`
	Seller       string          `json:"seller"`
	Images       []productImage  `json:"images"`
	Ratings      decimal.Decimal `json:"ratings"`
	NumOfReviews int             `json:"numOfReviews"`
	Discount     decimal.Decimal `json:"discount"`
	FlashSale    bool            `json:"flashSale"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type orderResponse struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user"`
	OrderItems    []order.LineItem   `json:"orderItems"`
	ShippingInfo  order.ShippingInfo `json:"shippingInfo"`
	PaymentInfo   order.PaymentInfo  `json:"paymentInfo"`
	TaxPrice      decimal.Decimal    `json:"taxPrice"`
	ShippingPrice decimal.Decimal    `json:"shippingPrice"`
	ItemsPrice    decimal.Decimal    `json:"itemsPrice"`
	TotalPrice    decimal.Decimal    `json:"totalPrice"`
	OrderStatus   order.Status       `json:"orderStatus"`
	PaidAt        time.Time          `json:"paidAt"`
	DeliveredAt   *time.Time         `json:"deliveredAt,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

type userResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Avatar    string          `json:"avatar,omitempty"`
	Role      user.Role       `json:"role"`
	Cart      []user.CartItem `json:"cart"`
	Favorites []string        `json:"favorites"`
	Orders    []string        `json:"orders"`
	CreatedAt time.Time       `json:"createdAt"`
}

type addressResponse struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	PhoneNumber string    `json:"phoneNumber"`
	Street      string    `json:"street"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	ZipCode     string    `json:"zipCode"`
	Country     string    `json:"country"`
	Default     bool      `json:"default"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type reviewResponse struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Product   string    `json:"product"`
	Subject   string    `json:"subject"`
	Rating    int       `json:"rating"`
	Review    string    `json:"review"`
	CreatedAt time.Time `json:"createdAt"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

func (h *Handler) productToResponse(p *product.Product) productResponse {
	images := make([]productImage, len(p.Images))
	for i, img := range p.Images {
		images[i] = productImage{PublicID: img.PublicID, URL: h.resolveImageURL(img.URL)}
	}
	return productResponse{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Price:        p.Price,
		Stock:        p.Stock,
		Category:     p.Category,
		Seller:       p.Seller,
		Images:       images,
		Ratings:      p.Ratings,
		NumOfReviews: p.NumOfReviews,
		Discount:     p.Discount,
		FlashSale:    p.FlashSale,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (h *Handler) productsToResponse(ps []product.Product) []productResponse {
	out := make([]productResponse, len(ps))
	for i := range ps {
		out[i] = h.productToResponse(&ps[i])
	}
	return out
}

// resolveImageURL prepends the configured base URL to relative image paths.
func (h *Handler) resolveImageURL(path string) string {
	if h.imageBaseURL == "" || path == "" ||
		strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (h *Handler) orderToResponse(o *order.Order) orderResponse {
	items := make([]order.LineItem, len(o.Items))
	for i, it := range o.Items {
		it.Image = h.resolveImageURL(it.Image)
		items[i] = it
	}
	return orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		OrderItems:    items,
		ShippingInfo:  o.Shipping,
		PaymentInfo:   o.Payment,
		TaxPrice:      o.TaxPrice,
		ShippingPrice: o.ShippingPrice,
		ItemsPrice:    o.ItemsPrice,
		TotalPrice:    o.TotalPrice,
		OrderStatus:   o.Status,
		PaidAt:        o.PaidAt,
		DeliveredAt:   o.DeliveredAt,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func (h *Handler) ordersToResponse(list []order.Order) []orderResponse {
	out := make([]orderResponse, len(list))
	for i := range list {
		out[i] = h.orderToResponse(&list[i])
	}
	return out
}

func userToResponse(u *user.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Avatar:    u.Avatar,
		Role:      u.Role,
		Cart:      nonNil(u.Cart),
		Favorites: nonNil(u.Favorites),
		Orders:    nonNil(u.OrderIDs),
		CreatedAt: u.CreatedAt,
	}
}

func addressToResponse(a *address.Address) addressResponse {
	return addressResponse{
		ID:          a.ID,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		PhoneNumber: a.PhoneNumber,
		Street:      a.Street,
		City:        a.City,
		State:       a.State,
		ZipCode:     a.ZipCode,
		Country:     a.Country,
		Default:     a.Default,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func reviewToResponse(r *review.Review) reviewResponse {
	return reviewResponse{
		ID:        r.ID,
		User:      r.UserID,
		Product:   r.ProductID,
		Subject:   r.Subject,
		Rating:    r.Rating,
		Review:    r.Body,
		CreatedAt: r.CreatedAt,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
