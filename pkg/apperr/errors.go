// Package apperr holds the error taxonomy shared by the use cases and the
// mapping of that taxonomy onto transport status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrStockInsufficient = errors.New("insufficient stock")
	ErrLockContention    = errors.New("resource is being modified by another request")
	ErrIneligible        = errors.New("not eligible")
	ErrExpired           = errors.New("expired")
	ErrUnavailable       = errors.New("temporarily unavailable")
)

// StockError reports a requested quantity that exceeds what is available.
type StockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrStockInsufficient }

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// HTTPStatus maps an error to the status code the boundary responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrLockContention):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrStockInsufficient):
		return http.StatusConflict
	case errors.Is(err, ErrIneligible):
		return http.StatusForbidden
	case errors.Is(err, ErrExpired):
		return http.StatusGone
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller should simply try again.
func Retryable(err error) bool {
	return errors.Is(err, ErrLockContention) || errors.Is(err, ErrUnavailable)
}
