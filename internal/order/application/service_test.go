package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalog "github.com/dmehra2102/storefront/internal/catalog/domain"
	"github.com/dmehra2102/storefront/internal/order/domain"
	user "github.com/dmehra2102/storefront/internal/user/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
	"github.com/dmehra2102/storefront/pkg/events"
	"github.com/dmehra2102/storefront/pkg/logging"
)

type orderStore struct {
	orders map[string]domain.Order
	err    error
}

func (s *orderStore) Save(_ context.Context, o domain.Order) error {
	if s.err != nil {
		return s.err
	}
	s.orders[o.ID] = o
	return nil
}

func (s *orderStore) FindByID(_ context.Context, id string) (domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, apperr.NotFound("order %s", id)
	}
	return o, nil
}

func (s *orderStore) FindByUserID(_ context.Context, userID string) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *orderStore) UpdateStatus(_ context.Context, id string, st domain.OrderStatus) error {
	o, ok := s.orders[id]
	if !ok {
		return apperr.NotFound("order %s", id)
	}
	o.Status = st
	s.orders[id] = o
	return nil
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
	// external simulates concurrent orders draining stock after the check.
	external map[string]int
	updates  []string
}

func (p *productStore) FindByID(_ context.Context, id string) (catalog.Product, error) {
	if prod, ok := p.products[id]; ok {
		return prod, nil
	}
	return catalog.Product{}, apperr.NotFound("product %s", id)
}

func (p *productStore) UpdateStock(_ context.Context, id string, delta int) error {
	p.updates = append(p.updates, id)
	prod := p.products[id]
	available := prod.Stock - p.external[id]
	if available+delta < 0 {
		return &apperr.StockError{ProductID: id, Requested: -delta, Available: available}
	}
	prod.Stock += delta
	p.products[id] = prod
	return nil
}

type cartClearer struct {
	cleared []string
	err     error
}

func (c *cartClearer) Clear(_ context.Context, userID string) error {
	c.cleared = append(c.cleared, userID)
	return c.err
}

type cacheSpy struct{ deleted []string }

func (c *cacheSpy) Delete(_ context.Context, key string) { c.deleted = append(c.deleted, key) }

type publisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *publisher) PublishWithRetry(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

type notifier struct{ sent []domain.Confirmation }

func (n *notifier) NotifyOrderConfirmed(_ context.Context, c domain.Confirmation) {
	n.sent = append(n.sent, c)
}

type fixture struct {
	svc      *Service
	orders   *orderStore
	products *productStore
	carts    *cartClearer
	cache    *cacheSpy
	events   *publisher
	notifier *notifier
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	f := &fixture{
		orders: &orderStore{orders: map[string]domain.Order{}},
		products: &productStore{
			products: map[string]catalog.Product{
				"P1": {ID: "P1", Name: "Mug", Category: "kitchen", Price: decimal.RequireFromString("9.99"), Stock: 10},
				"P2": {ID: "P2", Name: "Tea", Category: "food", Price: decimal.RequireFromString("4.50"), Stock: 2},
				"P3": {ID: "P3", Name: "Pot", Category: "kitchen", Price: decimal.RequireFromString("25.00"), Stock: 1},
			},
			external: map[string]int{},
		},
		carts:    &cartClearer{},
		cache:    &cacheSpy{},
		events:   &publisher{},
		notifier: &notifier{},
	}
	users := userStore{
		"U1":        {ID: "U1", Status: user.StatusActive},
		"suspended": {ID: "suspended", Status: user.StatusSuspended},
	}
	f.svc = NewService(logging.Discard(), f.orders, users, f.products, f.carts, f.cache, f.events, "order.created",
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "ORD-1" }),
		WithNotifier(f.notifier),
	)
	return f
}

func TestCreateOrderForUser(t *testing.T) {
	f := newFixture()

	o, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID:          "U1",
		Items:           []ItemRequest{{ProductID: "P1", Quantity: 5}, {ProductID: "P3", Quantity: 1}},
		ShippingAddress: "123 Main St",
	})
	require.NoError(t, err)
	f.svc.Drain()

	assert.Equal(t, "ORD-1", o.ID)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.True(t, decimal.RequireFromString("74.95").Equal(o.Total))
	assert.Equal(t, fixedNow, o.CreatedAt)
	assert.Contains(t, f.orders.orders, "ORD-1")

	assert.Equal(t, 5, f.products.products["P1"].Stock)
	assert.Equal(t, 0, f.products.products["P3"].Stock)

	assert.ElementsMatch(t, []string{
		"product:P1", "product:P3", "products:all", "products:category:kitchen", "cart:U1",
	}, f.cache.deleted)
	assert.Equal(t, []string{"U1"}, f.carts.cleared)
	assert.Empty(t, f.notifier.sent)

	require.Len(t, f.events.events, 1)
	ev := f.events.events[0]
	assert.Equal(t, "order.created", ev.Topic)
	assert.Equal(t, "ORD-1", ev.Key)
	payload := ev.Payload.(domain.OrderCreated)
	assert.Equal(t, "U1", payload.UserID)
	assert.True(t, o.Total.Equal(payload.Total))
}

func TestCreateOrderForGuest(t *testing.T) {
	f := newFixture()

	o, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		Items:           []ItemRequest{{ProductID: "P2", Quantity: 2}},
		ShippingAddress: "9 Side Rd",
		GuestEmail:      "g@example.com",
		GuestName:       "Gail",
	})
	require.NoError(t, err)
	f.svc.Drain()

	assert.True(t, o.IsGuest())
	assert.Empty(t, f.carts.cleared, "guest orders never touch a cart")
	for _, key := range f.cache.deleted {
		assert.NotContains(t, key, "cart:")
	}

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "g@example.com", f.notifier.sent[0].Email)
	assert.Equal(t, "ORD-1", f.notifier.sent[0].OrderID)

	payload := f.events.events[0].Payload.(domain.OrderCreated)
	assert.Equal(t, "guest", payload.UserID)
	assert.Equal(t, "Gail", payload.GuestName)
}

func TestCreateOrderAbortsBeforeCommit(t *testing.T) {
	cases := []struct {
		name string
		req  CreateOrderRequest
		want error
	}{
		{"unknown user", CreateOrderRequest{UserID: "ghost", Items: []ItemRequest{{"P1", 1}}, ShippingAddress: "a"}, apperr.ErrNotFound},
		{"ineligible user", CreateOrderRequest{UserID: "suspended", Items: []ItemRequest{{"P1", 1}}, ShippingAddress: "a"}, apperr.ErrIneligible},
		{"guest without name", CreateOrderRequest{GuestEmail: "g@example.com", Items: []ItemRequest{{"P1", 1}}, ShippingAddress: "a"}, apperr.ErrValidation},
		{"both identities", CreateOrderRequest{UserID: "U1", GuestEmail: "g@example.com", GuestName: "G", Items: []ItemRequest{{"P1", 1}}, ShippingAddress: "a"}, apperr.ErrValidation},
		{"no items", CreateOrderRequest{UserID: "U1", ShippingAddress: "a"}, apperr.ErrValidation},
		{"zero quantity", CreateOrderRequest{UserID: "U1", Items: []ItemRequest{{"P1", 0}}, ShippingAddress: "a"}, apperr.ErrValidation},
		{"no address", CreateOrderRequest{UserID: "U1", Items: []ItemRequest{{"P1", 1}}}, apperr.ErrValidation},
		{"unknown product", CreateOrderRequest{UserID: "U1", Items: []ItemRequest{{"P1", 1}, {"nope", 1}}, ShippingAddress: "a"}, apperr.ErrNotFound},
		{"insufficient stock", CreateOrderRequest{UserID: "U1", Items: []ItemRequest{{"P1", 1}, {"P2", 3}}, ShippingAddress: "a"}, apperr.ErrStockInsufficient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.CreateOrder(context.Background(), tc.req)
			f.svc.Drain()

			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), err)
			assert.Empty(t, f.orders.orders, "no order persisted")
			assert.Empty(t, f.products.updates, "no stock decremented")
			assert.Empty(t, f.carts.cleared)
			assert.Empty(t, f.events.events)
		})
	}
}

func TestCreateOrderStockErrorNamesProduct(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: "U1", Items: []ItemRequest{{"P2", 3}}, ShippingAddress: "a",
	})

	var stockErr *apperr.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "Tea", stockErr.ProductName)
	assert.Equal(t, 2, stockErr.Available)
}

func TestCreateOrderSaveFailureAborts(t *testing.T) {
	f := newFixture()
	f.orders.err = errors.New("connection reset")

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: "U1", Items: []ItemRequest{{"P1", 1}}, ShippingAddress: "a",
	})
	require.Error(t, err)
	assert.Empty(t, f.products.updates)
	assert.Empty(t, f.events.events)
}

func TestCreateOrderSurvivesLateFailures(t *testing.T) {
	f := newFixture()
	f.carts.err = errors.New("cart store down")
	f.products.external["P3"] = 1

	o, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: "U1", Items: []ItemRequest{{"P3", 1}, {"P1", 1}}, ShippingAddress: "a",
	})
	require.NoError(t, err, "oversell and cart failures are logged, not returned")
	f.svc.Drain()

	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Contains(t, f.orders.orders, o.ID)
	assert.Equal(t, []string{"P3", "P1"}, f.products.updates, "remaining decrements still run")
	assert.Equal(t, 1, f.products.products["P3"].Stock, "floored decrement left stock alone")
	assert.Len(t, f.events.events, 1)
}

func TestCheckoutTotalsAndClearsCart(t *testing.T) {
	f := newFixture()
	o, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: "U1", Items: []ItemRequest{{"P1", 5}}, ShippingAddress: "123 Main St",
	})
	require.NoError(t, err)
	f.svc.Drain()

	assert.True(t, decimal.RequireFromString("9.99").Mul(decimal.NewFromInt(5)).Equal(o.Total))
	assert.Equal(t, []string{"U1"}, f.carts.cleared)
}

func TestOrderReadsAndStatusUpdate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "U1", Items: []ItemRequest{{"P1", 1}}, ShippingAddress: "a"})
	require.NoError(t, err)
	f.svc.Drain()

	got, err := f.svc.GetOrder(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "U1", got.UserID)

	list, err := f.svc.ListOrders(ctx, "U1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	updated, err := f.svc.UpdateStatus(ctx, "ORD-1", "shipped")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusShipped, updated.Status)

	_, err = f.svc.UpdateStatus(ctx, "ORD-1", "teleported")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.svc.GetOrder(ctx, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
