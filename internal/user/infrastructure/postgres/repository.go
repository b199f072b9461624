package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/storefront/internal/user/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) FindByID(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, name, status, role, email_verified, created_at
		FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.Status, &u.Role, &u.EmailVerified, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, apperr.NotFound("user %s", id)
	}
	return u, err
}

// Save upserts a user. Account management lives elsewhere; this exists for
// seeding and tests.
func (r *Repository) Save(ctx context.Context, u domain.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, status, role, email_verified)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
			email=EXCLUDED.email, name=EXCLUDED.name, status=EXCLUDED.status,
			role=EXCLUDED.role, email_verified=EXCLUDED.email_verified`,
		u.ID, u.Email, u.Name, string(u.Status), string(u.Role), u.EmailVerified)
	return err
}
