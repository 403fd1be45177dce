package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/shop-backoffice/internal/domain/order"
	"github.com/xenking/shop-backoffice/internal/domain/pagination"
)

const (
	orderColumns = `id, user_id, total, status, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (user_id, total, status)
		VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4) RETURNING id`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	itemsByOrderSQL = `SELECT id, order_id, product_id, quantity, price
		FROM order_items WHERE order_id = $1 ORDER BY id`

	// Compare-and-swap on the current status: a concurrent writer makes this
	// match zero rows instead of silently overwriting.
	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`

	countOrdersByUserSQL = `SELECT COUNT(*) FROM orders WHERE user_id = $1`

	listOrdersByStatusSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE status = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`

	countOrdersByStatusSQL = `SELECT COUNT(*) FROM orders WHERE status = $1`

	orderStatsSQL = `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'shipped'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(SUM(total) FILTER (WHERE status IN ('processing', 'shipped', 'delivered')), 0),
			COALESCE(AVG(total) FILTER (WHERE status IN ('processing', 'shipped', 'delivered')), 0)
		FROM orders`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order, its items and the matching stock decrements in
// one transaction. Any failure, including a stock decrement losing a race
// with a concurrent order, rolls the whole transaction back: no order row,
// no items, no stock change.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, items []order.Item) (int64, error) {
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertOrderSQL, o.UserID, o.Total, o.Status).
			Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return wrapStore("insert order", err)
		}

		for i := range items {
			items[i].OrderID = o.ID
			err := tx.QueryRow(ctx, insertOrderItemSQL,
				o.ID, items[i].ProductID, items[i].Quantity, items[i].Price,
			).Scan(&items[i].ID)
			if err != nil {
				return wrapStore("insert order item", err)
			}

			if err := adjustStock(ctx, tx, items[i].ProductID, -items[i].Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return o.ID, nil
}

// GetByID returns a single order.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	var o order.Order
	err := r.pool.QueryRow(ctx, getOrderByIDSQL, id).Scan(
		&o.ID, &o.UserID, &o.Total, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, wrapStore("get order", err)
	}
	return &o, nil
}

// ItemsByOrder returns the line items of an order in insertion order.
func (r *OrderRepository) ItemsByOrder(ctx context.Context, orderID int64) ([]order.Item, error) {
	rows, err := r.pool.Query(ctx, itemsByOrderSQL, orderID)
	if err != nil {
		return nil, wrapStore("list order items", err)
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	return items, wrapStore("list order items", err)
}

// UpdateStatus writes the new status conditioned on the current one. When
// restock is true it first restores stock for every item of the order, in
// the same transaction as the status write, so cancellation compensation is
// all-or-nothing. Returns order.ErrStatusConflict when the order's status no
// longer equals from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, from, to order.Status, restock bool) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateOrderStatusSQL, id, from, to)
		if err != nil {
			return wrapStore("update order status", err)
		}
		if tag.RowsAffected() == 0 {
			// Distinguish a vanished order from a concurrent status change.
			var current order.Status
			err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
			if errors.Is(err, pgx.ErrNoRows) {
				return order.ErrNotFound
			}
			if err != nil {
				return wrapStore("update order status", err)
			}
			return order.ErrStatusConflict
		}

		if !restock {
			return nil
		}

		rows, err := tx.Query(ctx, itemsByOrderSQL, id)
		if err != nil {
			return wrapStore("list order items", err)
		}
		items, err := pgx.CollectRows(rows, scanOrderItem)
		if err != nil {
			return wrapStore("list order items", err)
		}
		for _, item := range items {
			if err := adjustStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByUser returns one page of a user's orders, newest first, plus the
// total count. Count and page run concurrently; see ListActive in product.go
// for the consistency trade-off.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64, p pagination.Params) (pagination.Page[order.Order], error) {
	return r.list(ctx, p,
		func(ctx context.Context) (pgx.Rows, error) {
			return r.pool.Query(ctx, listOrdersByUserSQL, userID, p.Limit, p.Offset())
		},
		func(ctx context.Context, total *int64) error {
			return r.pool.QueryRow(ctx, countOrdersByUserSQL, userID).Scan(total)
		},
	)
}

// ListByStatus returns one page of orders in the given status, newest first,
// plus the total count.
func (r *OrderRepository) ListByStatus(ctx context.Context, status order.Status, p pagination.Params) (pagination.Page[order.Order], error) {
	return r.list(ctx, p,
		func(ctx context.Context) (pgx.Rows, error) {
			return r.pool.Query(ctx, listOrdersByStatusSQL, status, p.Limit, p.Offset())
		},
		func(ctx context.Context, total *int64) error {
			return r.pool.QueryRow(ctx, countOrdersByStatusSQL, status).Scan(total)
		},
	)
}

func (r *OrderRepository) list(
	ctx context.Context,
	p pagination.Params,
	query func(context.Context) (pgx.Rows, error),
	count func(context.Context, *int64) error,
) (pagination.Page[order.Order], error) {
	var (
		items []order.Order
		total int64
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := query(ctx)
		if err != nil {
			return wrapStore("list orders", err)
		}
		items, err = pgx.CollectRows(rows, scanOrder)
		return wrapStore("list orders", err)
	})
	g.Go(func() error {
		return wrapStore("count orders", count(ctx, &total))
	})
	if err := g.Wait(); err != nil {
		return pagination.Page[order.Order]{}, err
	}

	return pagination.NewPage(items, total, p), nil
}

// Stats returns order aggregates in a single query.
func (r *OrderRepository) Stats(ctx context.Context) (*order.Stats, error) {
	var s order.Stats
	err := r.pool.QueryRow(ctx, orderStatsSQL).Scan(
		&s.Total, &s.Pending, &s.Processing, &s.Shipped, &s.Delivered, &s.Cancelled,
		&s.Revenue, &s.AverageValue,
	)
	if err != nil {
		return nil, wrapStore("order stats", err)
	}
	return &s, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Total, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price)
	return it, err
}
