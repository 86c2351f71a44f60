// Package apperr holds the error kinds returned by the ledger and order workflow.
package apperr

import (
	"errors"
	"fmt"
)

// DomainError is a coded, user-presentable error.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string { return e.Message }

func New(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

var (
	ErrNotFound            = New("NOT_FOUND", "resource not found")
	ErrInvalidInput        = New("INVALID_INPUT", "invalid input provided")
	ErrInvalidState        = New("INVALID_STATE", "operation not allowed in current state")
	ErrInsufficientStock   = New("INSUFFICIENT_STOCK", "insufficient stock available")
	ErrAlreadyAssigned     = New("ALREADY_ASSIGNED", "order is already assigned to someone else")
	ErrNotStaffCapable     = New("NOT_STAFF_CAPABLE", "only staff members can be assigned to orders")
	ErrPriceUnavailable    = New("PRICE_UNAVAILABLE", "item has no current price")
	ErrInvalidQuantity     = New("INVALID_QUANTITY", "quantity violates order constraints")
	ErrDuplicateLine       = New("DUPLICATE_LINE", "item already present in order")
	ErrConcurrencyConflict = New("CONCURRENCY_CONFLICT", "resource was modified by another transaction")
)

// InsufficientStockError reports how much stock a failed reserve or consume wanted.
type InsufficientStockError struct {
	ItemID    string `json:"item_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: requested %d, available %d", e.ItemID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// QuantityConstraintError reports a line quantity outside the item's order bounds.
// Max is nil when the item has no upper bound.
type QuantityConstraintError struct {
	ItemID    string `json:"item_id"`
	Requested int    `json:"requested"`
	Min       int    `json:"min"`
	Max       *int   `json:"max,omitempty"`
}

func (e *QuantityConstraintError) Error() string {
	if e.Max != nil {
		return fmt.Sprintf("quantity %d for item %s must be between %d and %d", e.Requested, e.ItemID, e.Min, *e.Max)
	}
	return fmt.Sprintf("quantity %d for item %s must be at least %d", e.Requested, e.ItemID, e.Min)
}

func (e *QuantityConstraintError) Is(target error) bool { return target == ErrInvalidQuantity }

// Invalid returns an INVALID_INPUT error carrying a specific message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// State returns an INVALID_STATE error carrying a specific message.
func State(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

var codes = []*DomainError{
	ErrNotFound, ErrInvalidInput, ErrInvalidState, ErrInsufficientStock,
	ErrAlreadyAssigned, ErrNotStaffCapable, ErrPriceUnavailable,
	ErrInvalidQuantity, ErrDuplicateLine, ErrConcurrencyConflict,
}

// Code returns the domain code matching err, or "" for infrastructure errors.
func Code(err error) string {
	for _, d := range codes {
		if errors.Is(err, d) {
			return d.Code
		}
	}
	return ""
}
