package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront/internal/cart/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
	"github.com/dmehra2102/storefront/pkg/events"
	"github.com/dmehra2102/storefront/pkg/retry"
)

// LockTTL bounds how long a crashed holder can block a user's cart.
const LockTTL = 10 * time.Second

type Service struct {
	log      *slog.Logger
	carts    CartRepository
	users    UserRepository
	products ProductRepository
	cache    Cache
	locks    Locker
	notifier Notifier
	topic    string

	policy retry.Policy
	now    func() time.Time
	newID  func() string

	tracer     trace.Tracer
	meter      metric.MeterProvider
	contention metric.Int64Counter
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLockPolicy(p retry.Policy) Option { return func(s *Service) { s.policy = p } }

func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

func WithMeterProvider(mp metric.MeterProvider) Option { return func(s *Service) { s.meter = mp } }

func NewService(log *slog.Logger, carts CartRepository, users UserRepository, products ProductRepository,
	cache Cache, locks Locker, notifier Notifier, topic string, opts ...Option) *Service {
	s := &Service{
		log:      log,
		carts:    carts,
		users:    users,
		products: products,
		cache:    cache,
		locks:    locks,
		notifier: notifier,
		topic:    topic,
		policy:   retry.LockPolicy(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		tracer:   otel.Tracer("cart-service"),
		meter:    otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}

	counter, err := s.meter.Meter("storefront/cart").Int64Counter("cart.lock.contention",
		metric.WithDescription("cart lock acquisition attempts that found the lock held"))
	if err != nil {
		log.Warn("cart: contention counter unavailable", "err", err)
	}
	s.contention = counter
	return s
}

// UpdatedEvent is the cart.updated payload.
type UpdatedEvent struct {
	CartID    string     `json:"cartId"`
	UserID    string     `json:"userId"`
	ProductID string     `json:"productId"`
	Quantity  int        `json:"quantity,omitempty"`
	Action    string     `json:"action"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// AddItem puts quantity of a product into the user's cart, starting a new
// cart when the user has none or the old one was cleared.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "cart.AddItem", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("product_id", productID),
		attribute.Int("quantity", quantity),
	))
	defer span.End()

	if quantity <= 0 {
		return nil, apperr.Validation("quantity must be greater than 0")
	}

	var out *domain.Cart
	err := s.withLock(ctx, userID, func(ctx context.Context) error {
		if _, err := s.users.FindByID(ctx, userID); err != nil {
			return err
		}
		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			return err
		}
		if !product.HasStock(quantity) {
			return &apperr.StockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   quantity,
				Available:   product.Stock,
			}
		}

		now := s.now()
		cart, err := s.carts.FindByUserID(ctx, userID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			cart = nil
		case err != nil:
			return fmt.Errorf("load cart: %w", err)
		}
		if cart != nil && cart.DeriveStatus(now) == domain.StatusExpired {
			s.log.Info("replacing expired cart", "user_id", userID, "cart_id", cart.ID)
			cart = nil
		}
		if cart == nil {
			cart = domain.New(s.newID(), userID, now)
		}

		if err := cart.AddItem(productID, quantity); err != nil {
			return err
		}
		cart.Touch(now)
		if err := s.carts.Save(ctx, cart); err != nil {
			return fmt.Errorf("save cart: %w", err)
		}
		s.cache.Set(ctx, domain.CacheKey(userID), cart, cart.CacheTTL(now))

		s.notifier.Publish(ctx, s.updatedEvent(cart, productID, quantity, "add"))
		out = cart
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

// RemoveItem drops a product from the user's cart. Unlike AddItem it never
// revives a cleared cart.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "cart.RemoveItem", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("product_id", productID),
	))
	defer span.End()

	var out *domain.Cart
	err := s.withLock(ctx, userID, func(ctx context.Context) error {
		cart, err := s.carts.FindByUserID(ctx, userID)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.NotFound("cart not found")
		}
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}

		now := s.now()
		if cart.DeriveStatus(now) == domain.StatusExpired {
			return fmt.Errorf("%w: cart has expired, please add items again", apperr.ErrExpired)
		}
		removed := cart.Quantity(productID)
		if !cart.RemoveItem(productID) {
			return apperr.NotFound("item not in cart")
		}

		cart.Touch(now)
		if err := s.carts.Save(ctx, cart); err != nil {
			return fmt.Errorf("save cart: %w", err)
		}
		s.cache.Set(ctx, domain.CacheKey(userID), cart, cart.CacheTTL(now))

		s.notifier.Publish(ctx, s.updatedEvent(cart, productID, removed, "remove"))
		out = cart
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

// Get returns the user's cart with its status derived at read time. A
// cleared cart is purged and reported as an empty one.
func (s *Service) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "cart.Get", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	now := s.now()
	key := domain.CacheKey(userID)

	var cached domain.Cart
	if s.cache.Get(ctx, key, &cached) {
		cached.Normalize(now)
		if cached.DeriveStatus(now) == domain.StatusExpired {
			if err := s.carts.Clear(ctx, userID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
				return nil, fmt.Errorf("clear expired cart: %w", err)
			}
			s.cache.Delete(ctx, key)
			return domain.Empty(userID, now), nil
		}
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached.Effective(now), nil
	}

	cart, err := s.carts.FindByUserID(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return domain.Empty(userID, now), nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart.DeriveStatus(now) == domain.StatusExpired {
		// A cart already emptied by checkout needs no second write.
		if !cart.IsEmpty() {
			if err := s.carts.Clear(ctx, userID); err != nil {
				return nil, fmt.Errorf("clear expired cart: %w", err)
			}
		}
		return domain.Empty(userID, now), nil
	}

	s.cache.Set(ctx, key, cart, cart.CacheTTL(now))
	return cart.Effective(now), nil
}

// withLock runs fn while holding the user's cart lock. The lock is always
// released, with a context that outlives the caller's cancellation.
func (s *Service) withLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	key := domain.LockKey(userID)

	var token string
	var backendErr error
	err := s.policy.Do(ctx, func(ctx context.Context, attempt int) (bool, error) {
		tok, ok, err := s.locks.Acquire(ctx, key, LockTTL)
		if err != nil {
			s.log.Warn("cart lock backend error", "user_id", userID, "attempt", attempt+1, "err", err)
			backendErr = err
			return false, err
		}
		backendErr = nil
		if !ok && s.contention != nil {
			s.contention.Add(ctx, 1, metric.WithAttributes(attribute.Int("attempt", attempt+1)))
		}
		token = tok
		return ok, nil
	})
	if errors.Is(err, retry.ErrExhausted) {
		if backendErr != nil {
			s.log.Error("cart lock backend unavailable", "user_id", userID, "err", err)
			return fmt.Errorf("%w: cart is temporarily unavailable: %w", apperr.ErrUnavailable, backendErr)
		}
		s.log.Warn("cart lock contention", "user_id", userID, "err", err)
		return fmt.Errorf("%w: cart is being updated by another request, please try again in a moment", apperr.ErrLockContention)
	}
	if err != nil {
		return err
	}

	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.locks.Release(rctx, key, token); err != nil {
			s.log.Error("cart lock release failed", "user_id", userID, "err", err)
		}
	}()
	return fn(ctx)
}

func (s *Service) updatedEvent(cart *domain.Cart, productID string, quantity int, action string) events.Event {
	return events.Event{
		Topic: s.topic,
		Key:   cart.UserID,
		Type:  "CartUpdated",
		Payload: UpdatedEvent{
			CartID:    cart.ID,
			UserID:    cart.UserID,
			ProductID: productID,
			Quantity:  quantity,
			Action:    action,
			ExpiresAt: cart.ExpiresAt,
		},
	}
}
