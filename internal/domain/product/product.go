package product

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-backoffice/internal/domain/pagination"
)

// Sentinel errors for catalog operations.
var (
	ErrNotFound      = errors.New("product not found")
	ErrDuplicateName = errors.New("a product with that name already exists")
	ErrInvalidPrice  = errors.New("price must be greater than 0")
	ErrNegativeStock = errors.New("stock cannot be negative")
)

// InsufficientStockError indicates a stock adjustment would drive stock below
// zero. Available is the stock observed when the adjustment was rejected.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d, requested %d",
		e.Name, e.Available, e.Requested)
}

// Product represents a catalog item.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Purchasable reports whether the product can appear on a new order.
// Deactivated products stay readable (existing orders reference them) but are
// excluded from purchasability checks.
func (p *Product) Purchasable() bool {
	return p.IsActive
}

// Stats summarizes the catalog.
type Stats struct {
	Total        int64
	Active       int64
	Inactive     int64
	LowStock     int64
	Categories   int64
	AveragePrice decimal.Decimal
}

// CreateParams holds the input for creating a catalog item.
type CreateParams struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
}

// UpdateParams holds a partial update. Nil fields are left unchanged.
type UpdateParams struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
	Category    *string
}

// Repository defines persistence operations for the product catalog.
//
// AdjustStock applies a signed delta to a product's stock as a single
// conditional update so that concurrent adjustments cannot drive stock
// negative. Implementations must execute it inside the caller's transaction
// when one is active.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
	FindActiveByName(ctx context.Context, name string) (*Product, error)
	ListActive(ctx context.Context, p pagination.Params) (pagination.Page[Product], error)
	ListLowStock(ctx context.Context, threshold int) ([]Product, error)
	Create(ctx context.Context, params CreateParams) (int64, error)
	Update(ctx context.Context, id int64, params UpdateParams) error
	SetActive(ctx context.Context, id int64, active bool) error
	AdjustStock(ctx context.Context, id int64, delta int) error
	Stats(ctx context.Context) (*Stats, error)
}
