package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cart "github.com/dmehra2102/storefront/internal/cart/domain"
	catalog "github.com/dmehra2102/storefront/internal/catalog/domain"
	"github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
	"github.com/dmehra2102/storefront/pkg/events"
)

type ItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderRequest struct {
	UserID          string        `json:"userId,omitempty"`
	Items           []ItemRequest `json:"items"`
	ShippingAddress string        `json:"shippingAddress"`
	GuestEmail      string        `json:"guestEmail,omitempty"`
	GuestName       string        `json:"guestName,omitempty"`
}

type Service struct {
	log      *slog.Logger
	orders   OrderRepository
	users    UserRepository
	products ProductRepository
	carts    CartClearer
	cache    CacheInvalidator
	events   EventPublisher
	notifier ConfirmationNotifier
	topic    string

	now    func() time.Time
	newID  func() string
	tracer trace.Tracer

	background sync.WaitGroup
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

// WithNotifier enables guest confirmations.
func WithNotifier(n ConfirmationNotifier) Option { return func(s *Service) { s.notifier = n } }

func NewService(log *slog.Logger, orders OrderRepository, users UserRepository, products ProductRepository,
	carts CartClearer, cache CacheInvalidator, pub EventPublisher, topic string, opts ...Option) *Service {
	s := &Service{
		log:      log,
		orders:   orders,
		users:    users,
		products: products,
		carts:    carts,
		cache:    cache,
		events:   pub,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    domain.NewID,
		tracer:   otel.Tracer("order-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder places an order. Only identity resolution, stock validation
// and the order write can fail it; every later step is logged and skipped
// on error because the order already exists.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Create", trace.WithAttributes(
		attribute.Bool("guest", req.UserID == ""),
		attribute.Int("items", len(req.Items)),
	))
	defer span.End()

	o, categories, err := s.place(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Order{}, err
	}
	span.SetAttributes(attribute.String("order_id", o.ID))
	log := s.log.With("order_id", o.ID)

	for _, it := range req.Items {
		if err := s.products.UpdateStock(ctx, it.ProductID, -it.Quantity); err != nil {
			if errors.Is(err, apperr.ErrStockInsufficient) {
				log.Error("oversell: stock ran out between check and decrement",
					"product_id", it.ProductID, "quantity", it.Quantity, "err", err)
			} else {
				log.Error("stock decrement failed", "product_id", it.ProductID, "err", err)
			}
		}
		s.cache.Delete(ctx, catalog.ProductKey(it.ProductID))
	}

	s.cache.Delete(ctx, catalog.AllProductsKey)
	for _, c := range categories {
		s.cache.Delete(ctx, catalog.CategoryKey(c))
	}

	if !o.IsGuest() {
		if err := s.carts.Clear(ctx, o.UserID); err != nil {
			log.Error("cart clear after order failed", "user_id", o.UserID, "err", err)
		}
		s.cache.Delete(ctx, cart.CacheKey(o.UserID))
	} else if s.notifier != nil {
		s.notifier.NotifyOrderConfirmed(ctx, domain.NewConfirmation(o))
	}

	ev := events.Event{
		Topic:   s.topic,
		Key:     o.ID,
		Type:    domain.EventOrderCreated,
		Payload: domain.NewOrderCreated(o),
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.events.PublishWithRetry(ctx, ev)
	}()

	log.Info("order created", "total", o.Total.StringFixed(2), "guest", o.IsGuest())
	return o, nil
}

// place runs the steps that may abort the order and persists it. It returns
// the distinct categories of the ordered products.
func (s *Service) place(ctx context.Context, req CreateOrderRequest) (domain.Order, []string, error) {
	if err := validate(req); err != nil {
		return domain.Order{}, nil, err
	}

	var guest *domain.Guest
	if req.UserID != "" {
		u, err := s.users.FindByID(ctx, req.UserID)
		if err != nil {
			return domain.Order{}, nil, err
		}
		if !u.CanPlaceOrder() {
			return domain.Order{}, nil, fmt.Errorf("%w: user cannot place orders, status %s", apperr.ErrIneligible, u.Status)
		}
	} else {
		guest = &domain.Guest{Email: req.GuestEmail, Name: req.GuestName}
	}

	lines := make([]domain.LineItem, 0, len(req.Items))
	var categories []string
	seen := map[string]bool{}
	for _, it := range req.Items {
		p, err := s.products.FindByID(ctx, it.ProductID)
		if err != nil {
			return domain.Order{}, nil, err
		}
		if !p.HasStock(it.Quantity) {
			return domain.Order{}, nil, &apperr.StockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   it.Quantity,
				Available:   p.Stock,
			}
		}
		lines = append(lines, domain.NewLineItem(p.ID, p.Name, it.Quantity, p.Price))
		if !seen[p.Category] {
			seen[p.Category] = true
			categories = append(categories, p.Category)
		}
	}

	o, err := domain.NewOrder(s.newID(), req.UserID, guest, lines, req.ShippingAddress, s.now())
	if err != nil {
		return domain.Order{}, nil, err
	}
	if err := s.orders.Save(ctx, o); err != nil {
		return domain.Order{}, nil, fmt.Errorf("save order: %w", err)
	}
	return o, categories, nil
}

func validate(req CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return apperr.Validation("items must be a non-empty array")
	}
	for _, it := range req.Items {
		if it.ProductID == "" {
			return apperr.Validation("every item needs a productId")
		}
		if it.Quantity <= 0 {
			return apperr.Validation("quantity for product %s must be greater than 0", it.ProductID)
		}
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return apperr.Validation("shipping address is required")
	}
	hasGuest := req.GuestEmail != "" || req.GuestName != ""
	switch {
	case req.UserID != "" && hasGuest:
		return apperr.Validation("an order is placed either by a user or by a guest, not both")
	case req.UserID == "" && (req.GuestEmail == "" || req.GuestName == ""):
		return apperr.Validation("guest email and name are required for guest orders")
	}
	return nil
}

// Drain waits for in-flight event publishing.
func (s *Service) Drain() {
	s.background.Wait()
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Get", trace.WithAttributes(attribute.String("order_id", id)))
	defer span.End()
	return s.orders.FindByID(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.List", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()
	return s.orders.FindByUserID(ctx, userID)
}

// UpdateStatus is a plain write; no transition rules are enforced.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus", trace.WithAttributes(
		attribute.String("order_id", id),
		attribute.String("status", status),
	))
	defer span.End()

	st, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.orders.UpdateStatus(ctx, id, st); err != nil {
		return domain.Order{}, err
	}
	return s.orders.FindByID(ctx, id)
}
