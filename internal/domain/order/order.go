package order

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/shop-backoffice/internal/domain/pagination"
)

// Status is the fulfillment state of an order.
type Status string

// Order lifecycle states.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// statusTransitions is the allowed adjacency for SetStatus. Delivered and
// cancelled are terminal. Non-adjacent jumps require ForceStatus.
var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
}

// ParseStatus validates a raw status value.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return s, nil
	}
	return "", &InvalidStatusError{Value: v}
}

// CanTransitionTo reports whether target is reachable from s in one step.
// A status can always "transition" to itself; such writes are no-ops.
func (s Status) CanTransitionTo(target Status) bool {
	if s == target {
		return true
	}
	return slices.Contains(statusTransitions[s], target)
}

// Cancellable reports whether cancelling from s must restore stock. Once an
// order has shipped its stock is gone for good.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

// Order is a priced record of a user's purchase. The total is a snapshot
// computed at creation time and never recomputed; only the status mutates.
type Order struct {
	ID        int64
	UserID    int64
	Total     decimal.Decimal
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is one priced line within an order, immutable once created. Price is
// the unit price captured at order time, decoupled from the live product
// price.
type Item struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// NewItem is a requested line item for order creation.
type NewItem struct {
	ProductID int64
	Quantity  int
}

// Stats summarizes orders by status. Revenue and AverageValue only count
// orders in processing, shipped or delivered: pending orders are not yet
// money and cancelled ones never were.
type Stats struct {
	Total        int64
	Pending      int64
	Processing   int64
	Shipped      int64
	Delivered    int64
	Cancelled    int64
	Revenue      decimal.Decimal
	AverageValue decimal.Decimal
}

// Repository defines persistence operations for orders.
//
// Create persists the order, its items and the matching stock decrements in
// one transaction; nothing survives a failure of any step.
//
// UpdateStatus writes the new status conditioned on the current one (compare
// and swap). When restock is true it also restores stock for every item of
// the order inside the same transaction. It returns ErrStatusConflict when
// the order's status no longer equals from.
type Repository interface {
	Create(ctx context.Context, o *Order, items []Item) (int64, error)
	GetByID(ctx context.Context, id int64) (*Order, error)
	ItemsByOrder(ctx context.Context, orderID int64) ([]Item, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status, restock bool) error
	ListByUser(ctx context.Context, userID int64, p pagination.Params) (pagination.Page[Order], error)
	ListByStatus(ctx context.Context, status Status, p pagination.Params) (pagination.Page[Order], error)
	Stats(ctx context.Context) (*Stats, error)
}
