package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/sage-warehouse/internal/domain/order"
)

type updateStatusRequest struct {
	Status string `json:"status"`
}

// PlaceOrder creates an order for the authenticated user.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req order.PlaceOrderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), identity(r).UserID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Order placed successfully", h.orderToResponse(o))
}

// GetOrder returns an order to its owner or an admin.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Foreign orders are reported as missing.
	if !identity(r).CanAccess(o.UserID) {
		writeError(w, r, order.ErrOrderNotFound)
		return
	}
	writeData(w, http.StatusOK, "ok", h.orderToResponse(o))
}

// ListMyOrders returns the authenticated user's orders, newest first.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListForUser(r.Context(), identity(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "ok", h.ordersToResponse(orders))
}

// UpdateOrderStatus moves an order to a new fulfilment status. Admin only.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), order.Status(req.Status)); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Order status updated", nil)
}

// CancelOrder cancels a non-terminal order and returns its stock.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	o, err := h.orders.Get(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !identity(r).CanAccess(o.UserID) {
		writeError(w, r, order.ErrOrderNotFound)
		return
	}

	o, err = h.orders.Cancel(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Order cancelled", h.orderToResponse(o))
}
