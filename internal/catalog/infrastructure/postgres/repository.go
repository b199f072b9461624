package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/storefront/internal/catalog/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

const selectProduct = `SELECT id, name, description, category, price::text, stock, created_at, updated_at FROM products`

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s price: %w", p.ID, err)
	}
	p.Price = d
	return p, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, selectProduct+` WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, apperr.NotFound("product %s", id)
	}
	return p, err
}

func (r *Repository) List(ctx context.Context, category string) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, selectProduct+` WHERE ($1 = '' OR category = $1) ORDER BY name, id`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateStock applies delta in one statement. A decrement that would take
// stock below zero changes nothing and returns a StockError.
func (r *Repository) UpdateStock(ctx context.Context, id string, delta int) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0`, id, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var stock int
	err = r.pool.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, id).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("product %s", id)
	}
	if err != nil {
		return err
	}
	return &apperr.StockError{ProductID: id, Requested: -delta, Available: stock}
}

// Save upserts a product. Used by seeding and tests.
func (r *Repository) Save(ctx context.Context, p domain.Product) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (id, name, description, category, price, stock)
		VALUES ($1,$2,$3,$4,$5::text::numeric,$6)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, description=EXCLUDED.description, category=EXCLUDED.category,
			price=EXCLUDED.price, stock=EXCLUDED.stock, updated_at=now()`,
		p.ID, p.Name, p.Description, p.Category, p.Price.String(), p.Stock)
	return err
}
