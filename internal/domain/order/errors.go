package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	ErrNotFound   = errors.New("order not found")
	ErrEmptyItems = errors.New("order must contain at least one item")
	ErrNotOwner   = errors.New("order belongs to another user")

	// ErrStatusConflict is returned when a status write lost a race with a
	// concurrent update. The operation had no effect; callers may re-read
	// and retry.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// ProductUnavailableError indicates a referenced product is not purchasable.
type ProductUnavailableError struct {
	ProductID int64
	Name      string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %q is not available", e.Name)
}

// InvalidStatusError indicates a status value outside the five known states.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid order status %q", e.Value)
}

// InvalidTransitionError indicates a status change not allowed by the
// transition table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// NotCancellableError indicates a user-initiated cancellation of an order
// that already shipped, was delivered, or is already cancelled.
type NotCancellableError struct {
	Status Status
}

func (e *NotCancellableError) Error() string {
	return fmt.Sprintf("order in status %s cannot be cancelled", e.Status)
}
