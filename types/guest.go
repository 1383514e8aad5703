package types

import "time"

// GuestInfo is delivery information saved for a customer without an account.
type GuestInfo struct {
	Email                 string         `json:"email" db:"email"`
	FullName              string         `json:"fullName" db:"full_name"`
	Phone                 string         `json:"phone" db:"phone"`
	Address               string         `json:"address" db:"address"`
	DefaultDeliveryMethod DeliveryMethod `json:"defaultDeliveryMethod" db:"default_delivery_method"`
	LastUpdated           time.Time      `json:"lastUpdated" db:"last_updated"`
}
