package application

import (
	"context"

	catalog "github.com/dmehra2102/storefront/internal/catalog/domain"
	"github.com/dmehra2102/storefront/internal/order/domain"
	user "github.com/dmehra2102/storefront/internal/user/domain"
	"github.com/dmehra2102/storefront/pkg/events"
)

type OrderRepository interface {
	Save(ctx context.Context, o domain.Order) error
	FindByID(ctx context.Context, id string) (domain.Order, error)
	FindByUserID(ctx context.Context, userID string) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error
}

type UserRepository interface {
	FindByID(ctx context.Context, id string) (user.User, error)
}

type ProductRepository interface {
	FindByID(ctx context.Context, id string) (catalog.Product, error)
	// UpdateStock adds delta atomically and refuses to go below zero.
	UpdateStock(ctx context.Context, id string, delta int) error
}

type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

type CacheInvalidator interface {
	Delete(ctx context.Context, key string)
}

// EventPublisher is the critical path: implementations retry internally and
// own the failure.
type EventPublisher interface {
	PublishWithRetry(ctx context.Context, e events.Event)
}

// ConfirmationNotifier is best-effort and cannot report failure.
type ConfirmationNotifier interface {
	NotifyOrderConfirmed(ctx context.Context, c domain.Confirmation)
}
