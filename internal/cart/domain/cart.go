package domain

import (
	"slices"
	"time"

	"github.com/dmehra2102/storefront/pkg/apperr"
)

const (
	// ActiveWindow is how long after the last add/remove a cart stays ACTIVE.
	ActiveWindow = 30 * time.Minute
	// AbandonAfter is the idle time after which a cart is ABANDONED.
	AbandonAfter = 24 * time.Hour
	// CacheTTLPolicy is the upper bound for a cached cart copy.
	CacheTTLPolicy = 15 * time.Minute
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusAbandoned Status = "ABANDONED"
	StatusExpired   Status = "EXPIRED"
)

type Item struct {
	ProductID     string     `json:"productId"`
	Quantity      int        `json:"quantity"`
	ReservedUntil *time.Time `json:"reservedUntil,omitempty"`
}

type Cart struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updatedAt"`
	// ExpiresAt is kept for stored carts that predate activity tracking.
	// Nothing reads it to decide the cart's lifecycle.
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	Status         Status     `json:"status"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
}

// CacheKey and LockKey name the per-user cart in the cache and lock spaces.
func CacheKey(userID string) string { return "cart:" + userID }
func LockKey(userID string) string  { return "cart:" + userID }

func New(id, userID string, now time.Time) *Cart {
	legacyExpiry := now.Add(CacheTTLPolicy)
	return &Cart{
		ID:             id,
		UserID:         userID,
		Items:          []Item{},
		UpdatedAt:      now,
		ExpiresAt:      &legacyExpiry,
		Status:         StatusActive,
		LastActivityAt: now,
	}
}

// Empty is what readers get for a user without a usable cart. It is never
// persisted.
func Empty(userID string, now time.Time) *Cart {
	return &Cart{
		UserID:         userID,
		Items:          []Item{},
		UpdatedAt:      now,
		Status:         StatusActive,
		LastActivityAt: now,
	}
}

// Normalize fills in fields missing from carts stored before status and
// activity tracking existed.
func (c *Cart) Normalize(now time.Time) {
	if c.Status == "" {
		c.Status = StatusActive
	}
	if c.LastActivityAt.IsZero() {
		if !c.UpdatedAt.IsZero() {
			c.LastActivityAt = c.UpdatedAt
		} else {
			c.LastActivityAt = now
		}
	}
	if c.Items == nil {
		c.Items = []Item{}
	}
}

// AddItem accumulates quantity for a product already in the cart.
func (c *Cart) AddItem(productID string, quantity int) error {
	if quantity <= 0 {
		return apperr.Validation("quantity must be positive, got %d", quantity)
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += quantity
			return nil
		}
	}
	c.Items = append(c.Items, Item{ProductID: productID, Quantity: quantity})
	return nil
}

// RemoveItem reports whether the product was in the cart.
func (c *Cart) RemoveItem(productID string) bool {
	n := len(c.Items)
	c.Items = slices.DeleteFunc(c.Items, func(it Item) bool { return it.ProductID == productID })
	return len(c.Items) != n
}

func (c *Cart) HasItem(productID string) bool {
	return slices.ContainsFunc(c.Items, func(it Item) bool { return it.ProductID == productID })
}

func (c *Cart) Quantity(productID string) int {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it.Quantity
		}
	}
	return 0
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// IsExpired is true only for carts explicitly cleared.
func (c *Cart) IsExpired() bool { return c.Status == StatusExpired }

// Touch records a user-initiated mutation.
func (c *Cart) Touch(now time.Time) {
	c.UpdatedAt = now
	c.LastActivityAt = now
	c.Status = StatusActive
}

// Expire empties the cart and marks it EXPIRED.
func (c *Cart) Expire(now time.Time) {
	c.Items = []Item{}
	c.Status = StatusExpired
	c.UpdatedAt = now
	c.LastActivityAt = now
}

func (c *Cart) lastActivity(now time.Time) time.Time {
	switch {
	case !c.LastActivityAt.IsZero():
		return c.LastActivityAt
	case !c.UpdatedAt.IsZero():
		return c.UpdatedAt
	default:
		return now
	}
}

// DeriveStatus computes the lifecycle status at now. EXPIRED is sticky; the
// others follow idle time, with each boundary belonging to the later status.
func (c *Cart) DeriveStatus(now time.Time) Status {
	if c.Status == StatusExpired {
		return StatusExpired
	}
	idle := now.Sub(c.lastActivity(now))
	switch {
	case idle < ActiveWindow:
		return StatusActive
	case idle < AbandonAfter:
		return StatusInactive
	default:
		return StatusAbandoned
	}
}

// CacheTTL sizes a cached copy so it never outlives the status it was
// cached with: CacheTTLPolicy, cut short at the next status boundary.
func (c *Cart) CacheTTL(now time.Time) time.Duration {
	idle := now.Sub(c.lastActivity(now))

	var untilNext time.Duration
	switch {
	case c.Status == StatusExpired:
		return CacheTTLPolicy
	case idle < ActiveWindow:
		untilNext = ActiveWindow - idle
	case idle < AbandonAfter:
		untilNext = AbandonAfter - idle
	default:
		return CacheTTLPolicy
	}
	return max(min(CacheTTLPolicy, untilNext), time.Second)
}

// Effective returns a copy whose Status is the one derived at now.
func (c *Cart) Effective(now time.Time) *Cart {
	cp := *c
	cp.Items = slices.Clone(c.Items)
	if cp.Items == nil {
		cp.Items = []Item{}
	}
	cp.Status = c.DeriveStatus(now)
	return &cp
}
