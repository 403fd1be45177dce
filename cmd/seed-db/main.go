// Command seed-db loads user and product fixtures into the database. Fixture
// files are JSON arrays, optionally gzip-compressed, and may be large:
// records are streamed instead of loaded whole, and duplicates inside a
// fixture are skipped with a bloom filter before ever hitting the database.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-backoffice/internal/repository"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
)

const (
	upsertUserSQL = `INSERT INTO users (email, first_name, last_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE
		SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name`

	upsertProductSQL = `INSERT INTO products (name, description, price, stock, category)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) WHERE is_active DO UPDATE
		SET description = EXCLUDED.description,
		    price       = EXCLUDED.price,
		    stock       = EXCLUDED.stock,
		    category    = EXCLUDED.category`
)

type userRecord struct {
	Email     string
	FirstName string
	LastName  string
}

type productRecord struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
}

func main() {
	var (
		databaseURL  string
		usersFile    string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&usersFile, "users-file", "db/seed/users.json", "path to users JSON file (.json or .json.gz)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file (.json or .json.gz)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, usersFile, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, usersFile, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedUsers(ctx, pool, usersFile); err != nil {
		return errors.Wrap(err, "seed users")
	}
	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	return nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, path string) error {
	slog.Info("seeding users", slog.String("path", path))

	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	count := 0

	err := streamArray(path, func(d *jx.Decoder) error {
		u, err := decodeUser(d)
		if err != nil {
			return err
		}
		if u.Email == "" || seen.TestOrAddString(u.Email) {
			return nil
		}
		if _, err := pool.Exec(ctx, upsertUserSQL, u.Email, u.FirstName, u.LastName); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.Email)
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("users seeded", slog.Int("count", count))
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, path string) error {
	slog.Info("seeding products", slog.String("path", path))

	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	count := 0

	err := streamArray(path, func(d *jx.Decoder) error {
		p, err := decodeProduct(d)
		if err != nil {
			return err
		}
		if p.Name == "" || seen.TestOrAddString(p.Name) {
			return nil
		}
		if !p.Price.IsPositive() || p.Stock < 0 {
			slog.Warn("skipping invalid product", slog.String("name", p.Name))
			return nil
		}
		_, err = pool.Exec(ctx, upsertProductSQL,
			p.Name, p.Description, p.Price, p.Stock, p.Category,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.Name)
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("products seeded", slog.Int("count", count))
	return nil
}

// streamArray decodes a top-level JSON array from path, calling fn once per
// element. Files ending in .gz are decompressed on the fly.
func streamArray(path string, fn func(d *jx.Decoder) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open fixture")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrap(err, "open gzip")
		}
		defer gz.Close()
		r = gz
	}

	d := jx.Decode(r, 4096)
	return d.Arr(fn)
}

func decodeUser(d *jx.Decoder) (userRecord, error) {
	var u userRecord
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			u.Email, err = d.Str()
		case "firstName":
			u.FirstName, err = d.Str()
		case "lastName":
			u.LastName, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return u, err
}

func decodeProduct(d *jx.Decoder) (productRecord, error) {
	var p productRecord
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "price":
			var n jx.Num
			if n, err = d.Num(); err == nil {
				p.Price, err = decimal.NewFromString(n.String())
			}
		case "stock":
			p.Stock, err = d.Int()
		case "category":
			p.Category, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return p, err
}
