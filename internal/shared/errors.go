package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a malformed or incomplete command.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock indicates a consume larger than the quantity on hand.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientFunds indicates a debit larger than the safe balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidState indicates a workflow transition that is not allowed.
	ErrInvalidState = errors.New("invalid state transition")
)

// NotFound wraps ErrNotFound with the missing resource.
func NotFound(resource string, id int64) error {
	return fmt.Errorf("%s %d: %w", resource, id, ErrNotFound)
}

// Invalid wraps ErrValidation with a human readable reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InsufficientError carries the shortfall of a failed stock consume or safe debit.
type InsufficientError struct {
	Kind      error
	Resource  string
	Required  decimal.Decimal
	Available decimal.Decimal
}

// InsufficientStock builds an InsufficientError for an inventory item.
func InsufficientStock(resource string, required, onHand decimal.Decimal) *InsufficientError {
	return &InsufficientError{Kind: ErrInsufficientStock, Resource: resource, Required: required, Available: onHand}
}

// InsufficientFunds builds an InsufficientError for a cash safe.
func InsufficientFunds(resource string, required, balance decimal.Decimal) *InsufficientError {
	return &InsufficientError{Kind: ErrInsufficientFunds, Resource: resource, Required: required, Available: balance}
}

func (e *InsufficientError) Error() string {
	if errors.Is(e.Kind, ErrInsufficientFunds) {
		return fmt.Sprintf("insufficient funds in %s: required %s, balance %s", e.Resource, e.Required.StringFixed(2), e.Available.StringFixed(2))
	}
	return fmt.Sprintf("insufficient stock for %s: required %s, on hand %s", e.Resource, e.Required.String(), e.Available.String())
}

// Is matches the sentinel kind so callers can use errors.Is.
func (e *InsufficientError) Is(target error) bool {
	return target == e.Kind
}

// Shortfall returns how much is missing.
func (e *InsufficientError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}
