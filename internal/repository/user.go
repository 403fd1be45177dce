package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shop-backoffice/internal/domain/user"
)

const (
	getUserByIDSQL = `SELECT id, email, first_name, last_name, is_active, created_at
		FROM users WHERE id = $1`

	getUserByEmailSQL = `SELECT id, email, first_name, last_name, is_active, created_at
		FROM users WHERE email = $1`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns a single user by their identifier.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	return r.getUser(ctx, getUserByIDSQL, id)
}

// GetByEmail returns a single user by their email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getUser(ctx, getUserByEmailSQL, email)
}

func (r *UserRepository) getUser(ctx context.Context, sql string, arg any) (*user.User, error) {
	var u user.User
	err := r.pool.QueryRow(ctx, sql, arg).Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.IsActive, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, wrapStore("get user", err)
	}
	return &u, nil
}
