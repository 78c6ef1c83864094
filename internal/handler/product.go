package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/sage-warehouse/internal/domain/product"
	"github.com/xenking/sage-warehouse/internal/domain/review"
)

type createProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	Seller      string          `json:"seller"`
	Images      []productImage  `json:"images"`
	Discount    decimal.Decimal `json:"discount"`
	FlashSale   bool            `json:"flashSale"`
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

// ListProducts returns the catalog, optionally filtered by ?category=.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context(), product.Filter{
		Category: r.URL.Query().Get("category"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "ok", h.productsToResponse(products))
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "ok", h.productToResponse(p))
}

// CreateProduct adds a product to the catalog. Admin only.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	images := make([]product.Image, len(req.Images))
	for i, img := range req.Images {
		images[i] = product.Image{PublicID: img.PublicID, URL: img.URL}
	}
	p, err := h.products.Create(r.Context(), product.CreateRequest{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
		Seller:      req.Seller,
		Images:      images,
		Discount:    req.Discount,
		FlashSale:   req.FlashSale,
		CreatedBy:   identity(r).UserID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Product created", h.productToResponse(p))
}

// RestockProduct returns units to a product's stock. Admin only.
func (h *Handler) RestockProduct(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.products.Restock(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Product restocked", h.productToResponse(p))
}

// CreateReview stores the authenticated user's review of a product.
func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	var in review.Input
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	rv, err := h.reviews.Create(r.Context(), identity(r).UserID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Review created", reviewToResponse(rv))
}

// ListReviews returns a product's reviews, newest first.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviews.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]reviewResponse, len(reviews))
	for i := range reviews {
		out[i] = reviewToResponse(&reviews[i])
	}
	writeData(w, http.StatusOK, "ok", out)
}
