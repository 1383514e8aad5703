package types

import (
	"strings"
	"time"
)

// DeliveryMethod is how an order reaches the customer.
type DeliveryMethod string

const (
	DeliveryMethodDelivery DeliveryMethod = "delivery"
	DeliveryMethodPickup   DeliveryMethod = "pickup"
)

// Valid reports whether m is one of the known delivery methods.
func (m DeliveryMethod) Valid() bool {
	return m == DeliveryMethodDelivery || m == DeliveryMethodPickup
}

// User represents a storefront account.
// It contains identity, role, saved delivery preferences and
// password-reset state.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique display name chosen at signup.
	Username string `json:"username" db:"username"`

	// Email is the unique address used to log in.
	Email string `json:"email" db:"email"`

	// IsAdmin grants access to the admin dashboard.
	IsAdmin bool `json:"isAdmin" db:"is_admin"`

	// DeliveryInfo holds the shipping preferences used to prefill checkout.
	DeliveryInfo DeliveryInfo `json:"deliveryInfo" db:"-"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// ResetTokenHash is the SHA-256 digest of the pending reset token.
	// It is set and cleared together with ResetTokenExpiresAt.
	ResetTokenHash *string `json:"-" db:"reset_token_hash"`

	// ResetTokenExpiresAt is the moment the pending reset token stops working.
	ResetTokenExpiresAt *time.Time `json:"-" db:"reset_token_expires_at"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// DeliveryInfo is a user's saved shipping preferences.
type DeliveryInfo struct {
	FullName              string         `json:"fullName"`
	Phone                 string         `json:"phone"`
	Address               string         `json:"address"`
	DefaultDeliveryMethod DeliveryMethod `json:"defaultDeliveryMethod"`
	LastUpdated           *time.Time     `json:"lastUpdated,omitempty"`
}

// DeliveryInfoUpdate is a partial update of DeliveryInfo. Nil or blank
// fields keep the existing value.
type DeliveryInfoUpdate struct {
	FullName              *string `json:"fullName"`
	Phone                 *string `json:"phone"`
	Address               *string `json:"address"`
	DefaultDeliveryMethod *string `json:"defaultDeliveryMethod"`
}

// Merge applies u on top of d. Each field takes the new value when one is
// given, else the existing value, else the type default.
func (d DeliveryInfo) Merge(u DeliveryInfoUpdate, now time.Time) DeliveryInfo {
	merged := DeliveryInfo{
		FullName:              pick(u.FullName, d.FullName),
		Phone:                 pick(u.Phone, d.Phone),
		Address:               pick(u.Address, d.Address),
		DefaultDeliveryMethod: DeliveryMethod(pick(u.DefaultDeliveryMethod, string(d.DefaultDeliveryMethod))),
	}
	if !merged.DefaultDeliveryMethod.Valid() {
		merged.DefaultDeliveryMethod = DeliveryMethodDelivery
	}
	merged.LastUpdated = &now
	return merged
}

func pick(next *string, current string) string {
	if next != nil {
		if v := strings.TrimSpace(*next); v != "" {
			return v
		}
	}
	return current
}

// Profile is the public view of a user returned by login and profile reads.
type Profile struct {
	ID           int          `json:"id"`
	Email        string       `json:"email"`
	Username     string       `json:"username"`
	IsAdmin      bool         `json:"isAdmin"`
	DeliveryInfo DeliveryInfo `json:"deliveryInfo"`
}

// Profile returns the public view of u.
func (u User) Profile() Profile {
	return Profile{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		IsAdmin:      u.IsAdmin,
		DeliveryInfo: u.DeliveryInfo,
	}
}
