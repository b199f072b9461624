package application

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront/internal/catalog/domain"
)

type ProductRepository interface {
	FindByID(ctx context.Context, id string) (domain.Product, error)
	// List returns every product, or those in category when it is set.
	List(ctx context.Context, category string) ([]domain.Product, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration)
}

type Service struct {
	log    *slog.Logger
	repo   ProductRepository
	cache  Cache
	ttl    time.Duration
	tracer trace.Tracer
}

func NewService(log *slog.Logger, repo ProductRepository, cache Cache, ttl time.Duration) *Service {
	return &Service{
		log:    log,
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		tracer: otel.Tracer("catalog-service"),
	}
}

// ListProducts reads through the cache. With useCache false the cache is
// not consulted but is still refreshed from the store.
func (s *Service) ListProducts(ctx context.Context, category string, useCache bool) ([]domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.ListProducts", trace.WithAttributes(
		attribute.String("category", category),
		attribute.Bool("use_cache", useCache),
	))
	defer span.End()

	key := domain.AllProductsKey
	if category != "" {
		key = domain.CategoryKey(category)
	}

	if useCache {
		var cached []domain.Product
		if s.cache.Get(ctx, key, &cached) {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
	}

	products, err := s.repo.List(ctx, category)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if products == nil {
		products = []domain.Product{}
	}
	s.cache.Set(ctx, key, products, s.ttl)
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string, useCache bool) (domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.GetProduct", trace.WithAttributes(
		attribute.String("product_id", id),
		attribute.Bool("use_cache", useCache),
	))
	defer span.End()

	key := domain.ProductKey(id)
	if useCache {
		var cached domain.Product
		if s.cache.Get(ctx, key, &cached) {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
	}

	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.Product{}, err
	}
	s.cache.Set(ctx, key, p, s.ttl)
	return p, nil
}
