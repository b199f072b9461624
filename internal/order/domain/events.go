package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const EventOrderCreated = "OrderCreated"

// OrderCreated is the payload published once an order is persisted.
type OrderCreated struct {
	OrderID    string          `json:"orderId"`
	UserID     string          `json:"userId"`
	Total      decimal.Decimal `json:"total"`
	Items      []LineItem      `json:"items"`
	Status     OrderStatus     `json:"status"`
	GuestEmail string          `json:"guestEmail,omitempty"`
	GuestName  string          `json:"guestName,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func NewOrderCreated(o Order) OrderCreated {
	ev := OrderCreated{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Total:     o.Total,
		Items:     o.Items,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
	}
	if o.IsGuest() {
		ev.UserID = "guest"
		ev.GuestEmail = o.Guest.Email
		ev.GuestName = o.Guest.Name
	}
	return ev
}

// Confirmation is what a guest is told about their order.
type Confirmation struct {
	Email           string
	Name            string
	OrderID         string
	Total           decimal.Decimal
	Items           []LineItem
	ShippingAddress string
}

func NewConfirmation(o Order) Confirmation {
	c := Confirmation{
		OrderID:         o.ID,
		Total:           o.Total,
		Items:           o.Items,
		ShippingAddress: o.ShippingAddress,
	}
	if o.Guest != nil {
		c.Email = o.Guest.Email
		c.Name = o.Guest.Name
	}
	return c
}
