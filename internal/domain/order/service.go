package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/shop-backoffice/internal/domain/pagination"
	"github.com/xenking/shop-backoffice/internal/domain/product"
	"github.com/xenking/shop-backoffice/internal/domain/user"
)

// UserReader is the slice of the user repository the order service needs.
type UserReader interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
}

// ProductReader is the slice of the product repository the order service
// needs for the validation pass. Stock mutation happens inside the order
// repository's transactions, not through this interface.
type ProductReader interface {
	GetByID(ctx context.Context, id int64) (*product.Product, error)
}

// Service implements the order workflows: creation, the status state machine
// with stock compensation, owner cancellation, listings and statistics.
type Service struct {
	users    UserReader
	products ProductReader
	orders   Repository
}

// NewService creates an order Service with the required domain dependencies.
func NewService(users UserReader, products ProductReader, orders Repository) *Service {
	return &Service{
		users:    users,
		products: products,
		orders:   orders,
	}
}

// Create places an order for userID.
//
// It runs two passes. The validation pass checks the request shape, the user,
// and every product (existence, purchasability, stock) in the caller-supplied
// item order, accumulating the total from prices read during this pass; it
// mutates nothing, so a failure aborts with zero side effects. The commit
// pass persists the order, its items with snapshot prices, and the stock
// decrements in a single transaction. Stock checks are re-applied atomically
// at decrement time, so an adjustment that lost a race fails the whole
// transaction instead of oversell.
func (s *Service) Create(ctx context.Context, userID int64, items []NewItem) (int64, error) {
	if len(items) == 0 {
		return 0, ErrEmptyItems
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return 0, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return 0, err
	}

	// Validation pass: snapshot prices and accumulate the total. Stock is not
	// mutated here, so multiple lines for the same product each see the full
	// current stock.
	total := decimal.Zero
	lines := make([]Item, len(items))
	for i, item := range items {
		p, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			return 0, err
		}
		if !p.Purchasable() {
			return 0, &ProductUnavailableError{ProductID: p.ID, Name: p.Name}
		}
		if p.Stock < item.Quantity {
			return 0, &product.InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Available: p.Stock,
				Requested: item.Quantity,
			}
		}

		lines[i] = Item{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     p.Price,
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	o := &Order{
		UserID: userID,
		Total:  total,
		Status: StatusPending,
	}
	id, err := s.orders.Create(ctx, o, lines)
	if err != nil {
		return 0, errors.Wrap(err, "create order")
	}
	return id, nil
}

// SetStatus applies a state machine transition. Cancelling an order that is
// still pending or processing restores the reserved stock atomically with
// the status write. Setting the current status again is a no-op; in
// particular a second cancellation never restores stock twice.
func (s *Service) SetStatus(ctx context.Context, orderID int64, next Status) error {
	return s.setStatus(ctx, orderID, next, false)
}

// ForceStatus is the administrative override: it skips the adjacency check
// but still applies the cancellation compensation rule.
func (s *Service) ForceStatus(ctx context.Context, orderID int64, next Status) error {
	return s.setStatus(ctx, orderID, next, true)
}

func (s *Service) setStatus(ctx context.Context, orderID int64, next Status, force bool) error {
	if _, err := ParseStatus(string(next)); err != nil {
		return err
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == next {
		return nil
	}
	if !force && !o.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{From: o.Status, To: next}
	}

	restock := next == StatusCancelled && o.Status.Cancellable()
	return s.orders.UpdateStatus(ctx, orderID, o.Status, next, restock)
}

// Cancel cancels an order, restoring stock when it had not shipped yet.
func (s *Service) Cancel(ctx context.Context, orderID int64) error {
	return s.SetStatus(ctx, orderID, StatusCancelled)
}

// CancelAsOwner cancels an order on behalf of the user who placed it. The
// caller must own the order and it must still be pending or processing;
// anything later (or already cancelled) is rejected rather than silently
// accepted.
func (s *Service) CancelAsOwner(ctx context.Context, orderID, userID int64) error {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.UserID != userID {
		return ErrNotOwner
	}
	if !o.Status.Cancellable() {
		return &NotCancellableError{Status: o.Status}
	}
	return s.orders.UpdateStatus(ctx, orderID, o.Status, StatusCancelled, true)
}

// Get returns a single order.
func (s *Service) Get(ctx context.Context, orderID int64) (*Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// OrderWithItems bundles an order with its line items.
type OrderWithItems struct {
	Order *Order
	Items []Item
}

// GetWithItems loads an order and its items concurrently.
func (s *Service) GetWithItems(ctx context.Context, orderID int64) (*OrderWithItems, error) {
	var res OrderWithItems

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o, err := s.orders.GetByID(ctx, orderID)
		res.Order = o
		return err
	})
	g.Go(func() error {
		items, err := s.orders.ItemsByOrder(ctx, orderID)
		res.Items = items
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListByUser returns one page of a user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64, p pagination.Params) (pagination.Page[Order], error) {
	return s.orders.ListByUser(ctx, userID, p.Normalize())
}

// ListByStatus returns one page of orders in the given status, newest first.
func (s *Service) ListByStatus(ctx context.Context, status Status, p pagination.Params) (pagination.Page[Order], error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return pagination.Page[Order]{}, err
	}
	return s.orders.ListByStatus(ctx, status, p.Normalize())
}

// Stats returns order aggregates with money values rounded to two decimal
// places at this boundary; the stored totals stay exact.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.orders.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats.Revenue = stats.Revenue.Round(2)
	stats.AverageValue = stats.AverageValue.Round(2)
	return stats, nil
}
