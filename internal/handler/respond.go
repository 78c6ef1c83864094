package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/sage-warehouse/internal/domain/address"
	"github.com/xenking/sage-warehouse/internal/domain/auth"
	"github.com/xenking/sage-warehouse/internal/domain/order"
	"github.com/xenking/sage-warehouse/internal/domain/product"
	"github.com/xenking/sage-warehouse/internal/domain/review"
	"github.com/xenking/sage-warehouse/internal/domain/user"
	"github.com/xenking/sage-warehouse/internal/validate"
)

const maxBodyBytes = 1 << 20

var (
	errUnauthorized     = errors.New("authentication required")
	errForbidden        = errors.New("insufficient permissions")
	errRouteNotFound    = errors.New("route not found")
	errMethodNotAllowed = errors.New("method not allowed")
)

// badRequestError reports a request that could not be decoded.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

// envelope is the success body.
type envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// errorBody is the failure body.
type errorBody struct {
	Code    int                   `json:"code"`
	Message string                `json:"message"`
	Errors  []validate.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Message: message, Data: data})
}

// writeError maps err to a status code and error body. Unclassified errors are
// logged and reported as 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Message: err.Error()}

	var (
		orderValidation *order.ValidationError
		fieldErrors     validate.Errors
		invalidProduct  *product.InvalidFieldError
		stockErr        *order.InsufficientStockError
		badRequest      *badRequestError
	)
	switch {
	case errors.As(err, &orderValidation):
		body.Code = http.StatusBadRequest
		body.Message = "invalid order request"
		body.Errors = orderValidation.Fields
	case errors.As(err, &fieldErrors):
		body.Code = http.StatusBadRequest
		body.Message = "validation failed"
		body.Errors = fieldErrors
	case errors.As(err, &invalidProduct):
		body.Code = http.StatusBadRequest
		body.Message = "validation failed"
		body.Errors = []validate.FieldError{{Field: invalidProduct.Field, Message: invalidProduct.Reason}}
	case errors.As(err, &stockErr):
		body.Code = http.StatusBadRequest
		body.Message = stockErr.Error()
	case errors.As(err, &badRequest),
		errors.Is(err, order.ErrOrderLocked),
		errors.Is(err, product.ErrOutOfStock),
		errors.Is(err, product.ErrInvalidQuantity),
		errors.Is(err, user.ErrInvalidQuantity),
		errors.Is(err, auth.ErrWrongPassword):
		body.Code = http.StatusBadRequest
		body.Message = rootMessage(err)
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, user.ErrNotFound),
		errors.Is(err, user.ErrCartItemNotFound),
		errors.Is(err, address.ErrNotFound),
		errors.Is(err, errRouteNotFound):
		body.Code = http.StatusNotFound
		body.Message = rootMessage(err)
	case errors.Is(err, errMethodNotAllowed):
		body.Code = http.StatusMethodNotAllowed
	case errors.Is(err, errUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidCredentials):
		body.Code = http.StatusUnauthorized
		body.Message = rootMessage(err)
	case errors.Is(err, errForbidden):
		body.Code = http.StatusForbidden
	case errors.Is(err, user.ErrEmailTaken),
		errors.Is(err, review.ErrAlreadyReviewed),
		errors.Is(err, product.ErrNameTaken),
		errors.Is(err, address.ErrDefaultConflict):
		body.Code = http.StatusConflict
		body.Message = rootMessage(err)
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		body.Code = http.StatusInternalServerError
		body.Message = "internal server error"
	}
	writeJSON(w, body.Code, body)
}

// rootMessage returns the message of the sentinel at the bottom of err's
// chain, so wrapping context never leaks to clients.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// decode reads a JSON body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &badRequestError{msg: "request body is required"}
		}
		return &badRequestError{msg: "malformed request body: " + err.Error()}
	}
	return nil
}
