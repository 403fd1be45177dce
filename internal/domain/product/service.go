package product

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/shop-backoffice/internal/domain/pagination"
)

// LowStockThreshold is the stock level at or below which a product counts as
// low stock in listings and stats.
const LowStockThreshold = 5

// Service encapsulates catalog management rules: active-name uniqueness,
// positive prices, non-negative stock, and soft deletion.
type Service struct {
	products Repository
}

// NewService creates a catalog Service.
func NewService(products Repository) *Service {
	return &Service{products: products}
}

// Get returns a single product by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	return s.products.GetByID(ctx, id)
}

// List returns one page of active products.
func (s *Service) List(ctx context.Context, p pagination.Params) (pagination.Page[Product], error) {
	return s.products.ListActive(ctx, p.Normalize())
}

// ListLowStock returns active products at or below the given threshold,
// lowest stock first. A non-positive threshold falls back to the default.
func (s *Service) ListLowStock(ctx context.Context, threshold int) ([]Product, error) {
	if threshold <= 0 {
		threshold = LowStockThreshold
	}
	return s.products.ListLowStock(ctx, threshold)
}

// Create validates and persists a new catalog item, returning its ID.
func (s *Service) Create(ctx context.Context, params CreateParams) (int64, error) {
	if !params.Price.IsPositive() {
		return 0, ErrInvalidPrice
	}
	if params.Stock < 0 {
		return 0, ErrNegativeStock
	}

	existing, err := s.products.FindActiveByName(ctx, params.Name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, errors.Wrap(err, "check name")
	}
	if existing != nil {
		return 0, ErrDuplicateName
	}

	return s.products.Create(ctx, params)
}

// Update applies a partial update after re-checking the catalog invariants
// for every provided field.
func (s *Service) Update(ctx context.Context, id int64, params UpdateParams) error {
	if _, err := s.products.GetByID(ctx, id); err != nil {
		return err
	}

	if params.Price != nil && !params.Price.IsPositive() {
		return ErrInvalidPrice
	}
	if params.Stock != nil && *params.Stock < 0 {
		return ErrNegativeStock
	}
	if params.Name != nil {
		existing, err := s.products.FindActiveByName(ctx, *params.Name)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return errors.Wrap(err, "check name")
		}
		if existing != nil && existing.ID != id {
			return ErrDuplicateName
		}
	}

	return s.products.Update(ctx, id, params)
}

// Delete deactivates a product. Rows are never removed: existing order items
// keep referencing the product, it just stops being purchasable.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.products.GetByID(ctx, id); err != nil {
		return err
	}
	return s.products.SetActive(ctx, id, false)
}

// AdjustStock applies a manual inventory correction by a signed delta. The
// repository rejects adjustments that would drive stock negative.
func (s *Service) AdjustStock(ctx context.Context, id int64, delta int) error {
	if delta == 0 {
		return nil
	}
	return s.products.AdjustStock(ctx, id, delta)
}

// Stats returns catalog-wide aggregates.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.products.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats.AveragePrice = stats.AveragePrice.Round(2)
	return stats, nil
}
