package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront/internal/catalog/domain"
	"github.com/dmehra2102/storefront/pkg/httpx"
)

type CatalogService interface {
	ListProducts(ctx context.Context, category string, useCache bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string, useCache bool) (domain.Product, error)
}

type Handler struct {
	log     *slog.Logger
	service CatalogService
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service CatalogService) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("catalog-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.listProducts)
	r.Get("/{id}", h.getProduct)

	return r
}

// useCache is on unless the caller passes useCache=false.
func useCache(r *http.Request) bool {
	return r.URL.Query().Get("useCache") != "false"
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListProducts")
	defer span.End()

	products, err := h.service.ListProducts(ctx, r.URL.Query().Get("category"), useCache(r))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetProduct")
	defer span.End()

	p, err := h.service.GetProduct(ctx, chi.URLParam(r, "id"), useCache(r))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
