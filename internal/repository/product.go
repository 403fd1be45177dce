package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/shop-backoffice/internal/domain/pagination"
	"github.com/xenking/shop-backoffice/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, stock, category, is_active, created_at, updated_at`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	findActiveByNameSQL = `SELECT ` + productColumns + ` FROM products
		WHERE name = $1 AND is_active LIMIT 1`

	listActiveSQL = `SELECT ` + productColumns + ` FROM products
		WHERE is_active ORDER BY id LIMIT $1 OFFSET $2`

	countActiveSQL = `SELECT COUNT(*) FROM products WHERE is_active`

	listLowStockSQL = `SELECT ` + productColumns + ` FROM products
		WHERE is_active AND stock <= $1 ORDER BY stock, id`

	insertProductSQL = `INSERT INTO products (name, description, price, stock, category)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	// Nil parameters arrive as NULL, so COALESCE keeps the stored value for
	// fields the caller did not provide.
	updateProductSQL = `UPDATE products SET
			name        = COALESCE($2, name),
			description = COALESCE($3, description),
			price       = COALESCE($4, price),
			stock       = COALESCE($5, stock),
			category    = COALESCE($6, category),
			updated_at  = now()
		WHERE id = $1`

	setProductActiveSQL = `UPDATE products SET is_active = $2, updated_at = now() WHERE id = $1`

	// The stock guard lives in the WHERE clause: a delta that would go
	// negative matches no row instead of tripping the CHECK constraint, and
	// concurrent adjustments serialize on the row without a prior
	// read-modify-write window.
	adjustStockSQL = `UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0`

	probeStockSQL = `SELECT name, stock FROM products WHERE id = $1`

	productStatsSQL = `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*) FILTER (WHERE NOT is_active),
			COUNT(*) FILTER (WHERE is_active AND stock <= $1),
			COUNT(DISTINCT category) FILTER (WHERE is_active AND category <> ''),
			COALESCE(AVG(price) FILTER (WHERE is_active), 0)
		FROM products`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	return r.getProduct(ctx, getProductByIDSQL, id)
}

// FindActiveByName returns the active product with the given name, if any.
func (r *ProductRepository) FindActiveByName(ctx context.Context, name string) (*product.Product, error) {
	return r.getProduct(ctx, findActiveByNameSQL, name)
}

func (r *ProductRepository) getProduct(ctx context.Context, sql string, arg any) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, wrapStore("get product", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, wrapStore("get product", err)
	}
	return &p, nil
}

// ListActive returns one page of active products together with the total
// count. Count and page run concurrently on separate pool connections; under
// concurrent writes they may observe slightly different snapshots, which is
// acceptable for catalog listings.
func (r *ProductRepository) ListActive(ctx context.Context, p pagination.Params) (pagination.Page[product.Product], error) {
	var (
		items []product.Product
		total int64
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := r.pool.Query(ctx, listActiveSQL, p.Limit, p.Offset())
		if err != nil {
			return wrapStore("list products", err)
		}
		items, err = pgx.CollectRows(rows, scanProduct)
		return wrapStore("list products", err)
	})
	g.Go(func() error {
		return wrapStore("count products", r.pool.QueryRow(ctx, countActiveSQL).Scan(&total))
	})
	if err := g.Wait(); err != nil {
		return pagination.Page[product.Product]{}, err
	}

	return pagination.NewPage(items, total, p), nil
}

// ListLowStock returns active products at or below the threshold, lowest
// stock first.
func (r *ProductRepository) ListLowStock(ctx context.Context, threshold int) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listLowStockSQL, threshold)
	if err != nil {
		return nil, wrapStore("list low stock", err)
	}
	items, err := pgx.CollectRows(rows, scanProduct)
	return items, wrapStore("list low stock", err)
}

// Create inserts a new product and returns its generated ID.
func (r *ProductRepository) Create(ctx context.Context, params product.CreateParams) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, insertProductSQL,
		params.Name, params.Description, params.Price, params.Stock, params.Category,
	).Scan(&id)
	if err != nil {
		return 0, wrapStore("create product", err)
	}
	return id, nil
}

// Update applies a partial update to a product.
func (r *ProductRepository) Update(ctx context.Context, id int64, params product.UpdateParams) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL, id,
		params.Name, params.Description, params.Price, params.Stock, params.Category,
	)
	if err != nil {
		return wrapStore("update product", err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// SetActive flips the soft-delete flag.
func (r *ProductRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, setProductActiveSQL, id, active)
	if err != nil {
		return wrapStore("set product active", err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// AdjustStock applies a signed stock delta outside any enclosing transaction.
func (r *ProductRepository) AdjustStock(ctx context.Context, id int64, delta int) error {
	return adjustStock(ctx, r.pool, id, delta)
}

// Stats returns catalog aggregates in a single query.
func (r *ProductRepository) Stats(ctx context.Context) (*product.Stats, error) {
	var s product.Stats
	err := r.pool.QueryRow(ctx, productStatsSQL, product.LowStockThreshold).Scan(
		&s.Total, &s.Active, &s.Inactive, &s.LowStock, &s.Categories, &s.AveragePrice,
	)
	if err != nil {
		return nil, wrapStore("product stats", err)
	}
	return &s, nil
}

// adjustStock runs the conditional stock update against q, which may be a
// pool or an open transaction. A zero affected-row count means either the
// product is gone or the delta would drive stock negative; a probe read
// distinguishes the two.
func adjustStock(ctx context.Context, q querier, id int64, delta int) error {
	tag, err := q.Exec(ctx, adjustStockSQL, id, delta)
	if err != nil {
		return wrapStore("adjust stock", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var (
		name  string
		stock int
	)
	err = q.QueryRow(ctx, probeStockSQL, id).Scan(&name, &stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return wrapStore("adjust stock", err)
	}
	return &product.InsufficientStockError{
		ProductID: id,
		Name:      name,
		Available: stock,
		Requested: -delta,
	}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock,
		&p.Category, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
