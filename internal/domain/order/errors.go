package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/sage-warehouse/internal/validate"
)

var (
	// ErrOrderNotFound is returned when the referenced order does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderLocked is returned when mutating an order in a terminal status.
	ErrOrderLocked = errors.New("order can no longer be modified")
)

// ValidationError reports a malformed order request.
type ValidationError struct {
	Fields []validate.FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid order request"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid order request: " + strings.Join(parts, "; ")
}

func invalidField(field, message string) *ValidationError {
	return &ValidationError{Fields: []validate.FieldError{{Field: field, Message: message}}}
}

// InsufficientStockError reports a line item that cannot be fulfilled from
// current stock. Missing is set when the product does not exist at all.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
	Missing   bool
}

func (e *InsufficientStockError) Error() string {
	if e.Missing {
		return fmt.Sprintf("product %s not found", e.ProductID)
	}
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	if e.Available == 0 {
		return fmt.Sprintf("%s is out of stock", name)
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, e.Requested, e.Available)
}
