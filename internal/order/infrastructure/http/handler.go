package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront/internal/order/application"
	"github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
	"github.com/dmehra2102/storefront/pkg/httpx"
)

type OrderService interface {
	CreateOrder(ctx context.Context, req application.CreateOrderRequest) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Order, error)
}

type Handler struct {
	log     *slog.Logger
	service OrderService
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service OrderService) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
}

type updateStatusReq struct {
	Status string `json:"status"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.createOrder)
	r.Get("/{id}", h.getOrder)
	r.Patch("/{id}/status", h.updateStatus)
	r.With(httpx.RequireUser).Get("/", h.listOrders)

	return r
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req application.CreateOrderRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	// The identity comes from the gateway header, never from the body.
	req.UserID, _ = httpx.UserID(ctx)

	o, err := h.service.CreateOrder(ctx, req)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	id := chi.URLParam(r, "id")
	o, err := h.service.GetOrder(ctx, id)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	if caller, _ := httpx.UserID(ctx); o.UserID != "" && o.UserID != caller {
		httpx.Error(w, h.log, apperr.NotFound("order %s", id))
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	userID, _ := httpx.UserID(ctx)
	orders, err := h.service.ListOrders(ctx, userID)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateOrderStatus")
	defer span.End()

	var req updateStatusReq
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	o, err := h.service.UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}
