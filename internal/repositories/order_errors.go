package repositories

import (
	"errors"
	"fmt"
)

// OrderErrorCode enumerates business failures detected inside order writes.
type OrderErrorCode string

const (
	// OrderErrorProductUnavailable means a product vanished or is no longer purchasable.
	OrderErrorProductUnavailable OrderErrorCode = "order_product_unavailable"
	// OrderErrorInsufficientStock means the requested quantity exceeds the stock on hand.
	OrderErrorInsufficientStock OrderErrorCode = "order_insufficient_stock"
	// OrderErrorInvalidTransition means the status change is not allowed from the current status.
	OrderErrorInvalidTransition OrderErrorCode = "order_invalid_transition"
)

// OrderError carries the failure code and the product or order it concerns.
type OrderError struct {
	Op        string
	Code      OrderErrorCode
	ProductID string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *OrderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *OrderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsConflict lets OrderError satisfy the conflict branch of RepositoryError checks.
func (e *OrderError) IsConflict() bool { return e != nil }

// IsNotFound is always false; missing orders are reported by the backend error type.
func (e *OrderError) IsNotFound() bool { return false }

// IsUnavailable is always false.
func (e *OrderError) IsUnavailable() bool { return false }

// NewOrderError constructs a typed order error.
func NewOrderError(code OrderErrorCode, productID, message string) *OrderError {
	if message == "" {
		message = string(code)
	}
	return &OrderError{Code: code, ProductID: productID, Message: message}
}

// AsOrderError extracts an OrderError from err.
func AsOrderError(err error) (*OrderError, bool) {
	var orderErr *OrderError
	if errors.As(err, &orderErr) {
		return orderErr, true
	}
	return nil, false
}
