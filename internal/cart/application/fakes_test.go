package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/storefront/internal/cart/domain"
	catalog "github.com/dmehra2102/storefront/internal/catalog/domain"
	user "github.com/dmehra2102/storefront/internal/user/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
	"github.com/dmehra2102/storefront/pkg/cache"
	"github.com/dmehra2102/storefront/pkg/events"
	"github.com/dmehra2102/storefront/pkg/lock"
	"github.com/dmehra2102/storefront/pkg/logging"
	"github.com/dmehra2102/storefront/pkg/retry"
)

type cartStore struct {
	mu      sync.Mutex
	carts   map[string]domain.Cart
	saves   int
	cleared []string
}

func newCartStore() *cartStore { return &cartStore{carts: map[string]domain.Cart{}} }

func (s *cartStore) FindByUserID(_ context.Context, userID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		return nil, apperr.NotFound("cart for user %s", userID)
	}
	c.Items = append([]domain.Item{}, c.Items...)
	return &c, nil
}

func (s *cartStore) Save(_ context.Context, c *domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.Items = append([]domain.Item{}, c.Items...)
	s.carts[c.UserID] = cp
	s.saves++
	return nil
}

func (s *cartStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, userID)
	if c, ok := s.carts[userID]; ok {
		c.Expire(time.Now().UTC())
		s.carts[userID] = c
	}
	return nil
}

func (s *cartStore) get(userID string) (domain.Cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	return c, ok
}

type userStore map[string]user.User

func (u userStore) FindByID(_ context.Context, id string) (user.User, error) {
	if usr, ok := u[id]; ok {
		return usr, nil
	}
	return user.User{}, apperr.NotFound("user %s", id)
}

type productStore struct {
	products map[string]catalog.Product
	// onFind runs before each lookup; tests use it to stall a critical section.
	onFind func(id string)
}

func (p *productStore) FindByID(_ context.Context, id string) (catalog.Product, error) {
	if p.onFind != nil {
		p.onFind(id)
	}
	if prod, ok := p.products[id]; ok {
		return prod, nil
	}
	return catalog.Product{}, apperr.NotFound("product %s", id)
}

type notifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (n *notifier) Publish(_ context.Context, e events.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *notifier) last() events.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

// countingLocker wraps a real locker and counts calls.
type countingLocker struct {
	Locker
	acquires atomic.Int64
	releases atomic.Int64
}

func (c *countingLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	c.acquires.Add(1)
	return c.Locker.Acquire(ctx, key, ttl)
}

func (c *countingLocker) Release(ctx context.Context, key, token string) error {
	c.releases.Add(1)
	return c.Locker.Release(ctx, key, token)
}

type stubLocker struct {
	ok  bool
	err error
}

func (s stubLocker) Acquire(context.Context, string, time.Duration) (string, bool, error) {
	if s.ok && s.err == nil {
		return "stub", true, nil
	}
	return "", s.ok, s.err
}

func (s stubLocker) Release(context.Context, string, string) error { return nil }

type fixture struct {
	svc      *Service
	carts    *cartStore
	products *productStore
	cache    *cache.Cache
	locks    *countingLocker
	events   *notifier
	now      time.Time
	sleeps   []time.Duration
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		carts: newCartStore(),
		products: &productStore{products: map[string]catalog.Product{
			"P1": {ID: "P1", Name: "Mug", Category: "kitchen", Price: decimal.RequireFromString("9.99"), Stock: 10},
			"P2": {ID: "P2", Name: "Tea", Category: "food", Price: decimal.RequireFromString("4.50"), Stock: 3},
			"P3": {ID: "P3", Name: "Pot", Category: "kitchen", Price: decimal.RequireFromString("25.00"), Stock: 5},
		}},
		cache:  cache.New(logging.Discard(), nil, cache.NewMemory(100)),
		locks:  &countingLocker{Locker: lock.NewMemory()},
		events: &notifier{},
		now:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	users := userStore{
		"U1": {ID: "U1", Status: user.StatusActive},
		"U2": {ID: "U2", Status: user.StatusActive},
	}

	policy := retry.LockPolicy()
	policy.Sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}

	base := []Option{
		WithClock(func() time.Time { return f.now }),
		WithLockPolicy(policy),
	}
	f.svc = NewService(logging.Discard(), f.carts, users, f.products, f.cache, f.locks, f.events, "cart.updated",
		append(base, opts...)...)
	return f
}
