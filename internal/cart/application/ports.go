package application

import (
	"context"
	"time"

	"github.com/dmehra2102/storefront/internal/cart/domain"
	catalog "github.com/dmehra2102/storefront/internal/catalog/domain"
	user "github.com/dmehra2102/storefront/internal/user/domain"
	"github.com/dmehra2102/storefront/pkg/events"
)

// CartRepository returns apperr.ErrNotFound for a user without a cart.
type CartRepository interface {
	FindByUserID(ctx context.Context, userID string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	Clear(ctx context.Context, userID string) error
}

type UserRepository interface {
	FindByID(ctx context.Context, id string) (user.User, error)
}

type ProductRepository interface {
	FindByID(ctx context.Context, id string) (catalog.Product, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Notifier only offers best-effort delivery: cart updates are never worth
// failing a mutation over.
type Notifier interface {
	Publish(ctx context.Context, e events.Event)
}
