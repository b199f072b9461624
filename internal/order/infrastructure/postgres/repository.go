package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Save(ctx context.Context, o domain.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	var userID, guestEmail, guestName *string
	if o.UserID != "" {
		userID = &o.UserID
	}
	if o.Guest != nil {
		guestEmail, guestName = &o.Guest.Email, &o.Guest.Name
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO orders (id, user_id, guest_email, guest_name, items, total, status, shipping_address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5::jsonb,$6::text::numeric,$7,$8,$9,$10)`,
		o.ID, userID, guestEmail, guestName, string(items), o.Total.String(), string(o.Status),
		o.ShippingAddress, o.CreatedAt, o.UpdatedAt)
	return err
}

const selectOrder = `
	SELECT id, user_id, guest_email, guest_name, items, total::text, status, shipping_address, created_at, updated_at
	FROM orders`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                             domain.Order
		userID, guestEmail, guestName *string
		items                         []byte
		total                         string
	)
	if err := row.Scan(&o.ID, &userID, &guestEmail, &guestName, &items, &total, &o.Status,
		&o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	if userID != nil {
		o.UserID = *userID
	}
	if guestEmail != nil {
		o.Guest = &domain.Guest{Email: *guestEmail}
		if guestName != nil {
			o.Guest.Name = *guestName
		}
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return domain.Order{}, fmt.Errorf("decode order items: %w", err)
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s total: %w", o.ID, err)
	}
	o.Total = d
	return o, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, selectOrder+` WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, apperr.NotFound("order %s", id)
	}
	return o, err
}

func (r *Repository) FindByUserID(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, selectOrder+` WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	ct, err := r.pool.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("order %s", id)
	}
	return nil
}
