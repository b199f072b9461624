package domain

import "time"

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleRetailer Role = "RETAILER"
)

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Status        Status    `json:"status"`
	Role          Role      `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// CanPlaceOrder is the ordering eligibility rule.
func (u User) CanPlaceOrder() bool {
	return u.Status == StatusActive
}
