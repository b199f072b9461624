package mail

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/dmehra2102/storefront/internal/order/domain"
)

type sendClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGrid delivers order confirmations through the SendGrid v3 API.
type SendGrid struct {
	client   sendClient
	from     string
	fromName string
}

func NewSendGrid(apiKey, from string) *SendGrid {
	return &SendGrid{client: sendgrid.NewSendClient(apiKey), from: from, fromName: "Storefront"}
}

func (s *SendGrid) SendOrderConfirmation(ctx context.Context, c domain.Confirmation) error {
	if c.Email == "" {
		return errors.New("confirmation has no recipient")
	}
	resp, err := s.client.SendWithContext(ctx, s.message(c))
	if err != nil {
		return fmt.Errorf("sendgrid send error: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send failed: status=%d, body=%s", resp.StatusCode, resp.Body)
	}
	return nil
}

func (s *SendGrid) message(c domain.Confirmation) *sgmail.SGMailV3 {
	from := sgmail.NewEmail(s.fromName, s.from)
	to := sgmail.NewEmail(c.Name, c.Email)
	subject := fmt.Sprintf("Your order %s", c.OrderID)

	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\nThanks for your order %s.\n\n", c.Name, c.OrderID)
	for _, it := range c.Items {
		fmt.Fprintf(&text, "  %d x %s @ %s = %s\n", it.Quantity, it.ProductName, it.UnitPrice.StringFixed(2), it.Subtotal.StringFixed(2))
	}
	fmt.Fprintf(&text, "\nTotal: %s\nShipping to: %s\n", c.Total.StringFixed(2), c.ShippingAddress)

	body := text.String()
	return sgmail.NewSingleEmail(from, subject, to, body, "<pre>"+html.EscapeString(body)+"</pre>")
}

type Sender interface {
	SendOrderConfirmation(ctx context.Context, c domain.Confirmation) error
}

// BestEffort sends confirmations without ever reporting failure: the order
// already exists when a confirmation goes out.
type BestEffort struct {
	log     *slog.Logger
	sender  Sender
	timeout time.Duration
}

func NewBestEffort(log *slog.Logger, sender Sender) *BestEffort {
	return &BestEffort{log: log, sender: sender, timeout: 10 * time.Second}
}

func (b *BestEffort) NotifyOrderConfirmed(ctx context.Context, c domain.Confirmation) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.log.Error("order confirmation mail panicked", "order_id", c.OrderID, "panic", r)
		}
	}()
	if err := b.sender.SendOrderConfirmation(ctx, c); err != nil {
		b.log.Warn("order confirmation mail failed", "order_id", c.OrderID, "err", err)
		return
	}
	b.log.Info("order confirmation mail sent", "order_id", c.OrderID)
}
