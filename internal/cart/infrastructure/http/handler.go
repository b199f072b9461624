package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront/internal/cart/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
	"github.com/dmehra2102/storefront/pkg/httpx"
)

type CartService interface {
	AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error)
	Get(ctx context.Context, userID string) (*domain.Cart, error)
}

type Handler struct {
	log     *slog.Logger
	service CartService
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service CartService) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("cart-http"),
	}
}

type addItemReq struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.RequireUser)
	r.Get("/", h.getCart)
	r.Post("/items", h.addItem)
	r.Delete("/items/{productId}", h.removeItem)

	return r
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetCart")
	defer span.End()

	userID, _ := httpx.UserID(ctx)
	cart, err := h.service.Get(ctx, userID)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cart)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddCartItem")
	defer span.End()

	var req addItemReq
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	if req.ProductID == "" {
		httpx.Error(w, h.log, apperr.Validation("missing required fields: productId, quantity"))
		return
	}
	if req.Quantity <= 0 {
		httpx.Error(w, h.log, apperr.Validation("quantity must be greater than 0"))
		return
	}

	userID, _ := httpx.UserID(ctx)
	cart, err := h.service.AddItem(ctx, userID, req.ProductID, req.Quantity)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, cart)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RemoveCartItem")
	defer span.End()

	userID, _ := httpx.UserID(ctx)
	cart, err := h.service.RemoveItem(ctx, userID, chi.URLParam(r, "productId"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cart)
}
