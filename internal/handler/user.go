package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/sage-warehouse/internal/domain/address"
	"github.com/xenking/sage-warehouse/internal/domain/auth"
	"github.com/xenking/sage-warehouse/internal/domain/user"
)

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Register signs up a new user and returns an access token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.auth.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Account created", sessionToResponse(s))
}

// Login exchanges credentials for an access token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.auth.Login(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "success", sessionToResponse(s))
}

// ChangePassword replaces the caller's password and returns a fresh token.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in auth.ChangePasswordInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.auth.ChangePassword(r.Context(), identity(r).UserID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Password updated", sessionToResponse(s))
}

func sessionToResponse(s *auth.Session) sessionResponse {
	return sessionResponse{Token: s.Token, ExpiresAt: s.ExpiresAt, User: userToResponse(s.User)}
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), identity(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "profile found", userToResponse(u))
}

// UpdateMe applies a partial profile update; absent fields keep their value.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var p user.ProfilePatch
	if err := decode(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.UpdateProfile(r.Context(), identity(r).UserID, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Profile updated", userToResponse(u))
}

// ListUsers returns one page of users. Admin only.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	users, err := h.users.List(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]userResponse, len(users))
	for i := range users {
		out[i] = userToResponse(&users[i])
	}
	writeData(w, http.StatusOK, "ok", out)
}

func pageFromQuery(r *http.Request) (user.Page, error) {
	var page user.Page
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return user.Page{}, &badRequestError{msg: name + " must be a non-negative integer"}
		}
		*dst = n
	}
	return page, nil
}

func (h *Handler) Cart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.users.Cart(r.Context(), identity(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "ok", nonNil(cart))
}

// PutCartItem adds a product to the cart or sets its quantity.
func (h *Handler) PutCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cart, err := h.users.PutCartItem(r.Context(), identity(r).UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "success", nonNil(cart))
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	cart, err := h.users.RemoveCartItem(r.Context(), identity(r).UserID, chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "success", nonNil(cart))
}

// Favorites returns the user's favorite products.
func (h *Handler) Favorites(w http.ResponseWriter, r *http.Request) {
	products, err := h.users.Favorites(r.Context(), identity(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "ok", h.productsToResponse(products))
}

func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	if err := h.users.AddFavorite(r.Context(), identity(r).UserID, chi.URLParam(r, "productId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "success", nil)
}

func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	if err := h.users.RemoveFavorite(r.Context(), identity(r).UserID, chi.URLParam(r, "productId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "success", nil)
}

// CreateAddress saves a shipping address.
func (h *Handler) CreateAddress(w http.ResponseWriter, r *http.Request) {
	var in address.Input
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.addresses.Create(r.Context(), identity(r).UserID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Shipping Info created", addressToResponse(a))
}

func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := h.addresses.List(r.Context(), identity(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]addressResponse, len(list))
	for i := range list {
		out[i] = addressToResponse(&list[i])
	}
	writeData(w, http.StatusOK, "ok", out)
}

func (h *Handler) DefaultAddress(w http.ResponseWriter, r *http.Request) {
	a, err := h.addresses.Default(r.Context(), identity(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "ok", addressToResponse(a))
}

// UpdateAddress applies a partial update; absent fields keep their value.
func (h *Handler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var p address.Patch
	if err := decode(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.addresses.Update(r.Context(), identity(r).UserID, chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Shipping info updated", addressToResponse(a))
}

func (h *Handler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.addresses.Delete(r.Context(), identity(r).UserID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Deleted successfully", nil)
}
