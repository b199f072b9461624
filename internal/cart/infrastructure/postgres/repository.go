package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/storefront/internal/cart/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Repository) FindByUserID(ctx context.Context, userID string) (*domain.Cart, error) {
	var (
		c        domain.Cart
		items    []byte
		status   *string
		activity *time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, items, updated_at, expires_at, status, last_activity_at
		FROM carts WHERE user_id=$1`, userID).
		Scan(&c.ID, &c.UserID, &items, &c.UpdatedAt, &c.ExpiresAt, &status, &activity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("cart for user %s", userID)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &c.Items); err != nil {
		return nil, fmt.Errorf("decode cart items: %w", err)
	}
	if status != nil {
		c.Status = domain.Status(*status)
	}
	if activity != nil {
		c.LastActivityAt = *activity
	}
	c.Normalize(r.now())
	return &c, nil
}

// Save upserts on user_id: a replacement cart takes over the user's row.
func (r *Repository) Save(ctx context.Context, c *domain.Cart) error {
	items, err := json.Marshal(c.Items)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO carts (id, user_id, items, updated_at, expires_at, status, last_activity_at)
		VALUES ($1,$2,$3::jsonb,$4,$5,$6,$7)
		ON CONFLICT (user_id) DO UPDATE SET
			id=EXCLUDED.id,
			items=EXCLUDED.items,
			updated_at=EXCLUDED.updated_at,
			expires_at=EXCLUDED.expires_at,
			status=EXCLUDED.status,
			last_activity_at=EXCLUDED.last_activity_at`,
		c.ID, c.UserID, string(items), c.UpdatedAt, c.ExpiresAt, string(c.Status), c.LastActivityAt)
	return err
}

// Clear empties the user's cart and marks it EXPIRED. A user without a
// cart is not an error.
func (r *Repository) Clear(ctx context.Context, userID string) error {
	now := r.now()
	_, err := r.pool.Exec(ctx, `
		UPDATE carts SET items='[]'::jsonb, status=$2, last_activity_at=$3, updated_at=$3
		WHERE user_id=$1`, userID, string(domain.StatusExpired), now)
	return err
}
