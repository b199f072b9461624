package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/storefront/pkg/apperr"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusConfirmed  OrderStatus = "CONFIRMED"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

func ParseStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, nil
	default:
		return "", apperr.Validation("unknown order status %q", s)
	}
}

type Guest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// LineItem is a price snapshot taken when the order is placed.
type LineItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

func NewLineItem(productID, productName string, quantity int, unitPrice decimal.Decimal) LineItem {
	return LineItem{
		ProductID:   productID,
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Subtotal:    unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId,omitempty"`
	Guest           *Guest          `json:"guest,omitempty"`
	Items           []LineItem      `json:"items"`
	Total           decimal.Decimal `json:"total"`
	Status          OrderStatus     `json:"status"`
	ShippingAddress string          `json:"shippingAddress"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func NewID() string {
	return "ORD-" + strings.ToUpper(uuid.NewString())
}

// NewOrder builds a PENDING order owned by exactly one of userID or guest.
// The total is fixed here.
func NewOrder(id, userID string, guest *Guest, items []LineItem, shippingAddress string, now time.Time) (Order, error) {
	if (userID == "") == (guest == nil) {
		return Order{}, apperr.Validation("order needs either a user or a guest identity")
	}
	if guest != nil && (guest.Email == "" || guest.Name == "") {
		return Order{}, apperr.Validation("guest email and name are required for guest orders")
	}
	if len(items) == 0 {
		return Order{}, apperr.Validation("order has no items")
	}
	if strings.TrimSpace(shippingAddress) == "" {
		return Order{}, apperr.Validation("shipping address is required")
	}

	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal)
	}
	return Order{
		ID:              id,
		UserID:          userID,
		Guest:           guest,
		Items:           items,
		Total:           total,
		Status:          StatusPending,
		ShippingAddress: shippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (o Order) IsGuest() bool { return o.Guest != nil }

func (o Order) String() string {
	owner := o.UserID
	if o.IsGuest() {
		owner = "guest:" + o.Guest.Email
	}
	return fmt.Sprintf("order %s (%s, %s, %s)", o.ID, owner, o.Status, o.Total.StringFixed(2))
}
