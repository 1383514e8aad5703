package types

import (
	"sort"
	"time"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderStatuses lists every status in fulfilment order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	for _, status := range OrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Sizes lists the garment sizes in display order.
var Sizes = []string{"xs", "s", "m", "l", "xl", "xxl"}

// SizeQuantities maps a garment size to the number of items ordered.
type SizeQuantities map[string]int

// Total returns the number of garments across all sizes.
func (q SizeQuantities) Total() int {
	total := 0
	for _, n := range q {
		total += n
	}
	return total
}

// SizeLine is one non-empty size of an order.
type SizeLine struct {
	Size     string
	Quantity int
}

// Lines returns the sizes with a positive quantity, known sizes first in
// display order and anything else after them alphabetically.
func (q SizeQuantities) Lines() []SizeLine {
	lines := make([]SizeLine, 0, len(q))
	seen := make(map[string]bool, len(Sizes))
	for _, size := range Sizes {
		seen[size] = true
		if n := q[size]; n > 0 {
			lines = append(lines, SizeLine{Size: size, Quantity: n})
		}
	}
	var extra []string
	for size, n := range q {
		if !seen[size] && n > 0 {
			extra = append(extra, size)
		}
	}
	sort.Strings(extra)
	for _, size := range extra {
		lines = append(lines, SizeLine{Size: size, Quantity: q[size]})
	}
	return lines
}

// Order represents a checkout submission for a customized garment.
type Order struct {
	// ID is the internal identifier used by admin operations.
	ID int64 `json:"id" db:"id"`

	// OrderNumber is the human-readable reference shown to customers.
	OrderNumber string `json:"orderNumber" db:"order_number"`

	// UserID is the owning account, nil for guest orders.
	UserID *int `json:"userId,omitempty" db:"user_id"`

	FullName       string         `json:"fullName" db:"full_name"`
	Email          string         `json:"email" db:"email"`
	Phone          string         `json:"phone" db:"phone"`
	DeliveryMethod DeliveryMethod `json:"deliveryMethod" db:"delivery_method"`

	// Address is empty for pickup orders.
	Address string `json:"address" db:"address"`

	// SizeData holds the per-size quantities.
	SizeData SizeQuantities `json:"sizeData" db:"size_data"`

	TotalPrice float64 `json:"totalPrice" db:"total_price"`

	// DesignImage references the printed design, either as given by the
	// client or as an object storage location.
	DesignImage string `json:"designImage" db:"design_image"`

	// Status starts as pending and only changes through admin updates.
	Status OrderStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// OrderFilter narrows admin order listings.
type OrderFilter struct {
	Status OrderStatus
	Search string
}

// OrderEvent is published to the message broker when an order changes.
type OrderEvent struct {
	Type           string      `json:"type"`
	OrderID        int64       `json:"orderId"`
	OrderNumber    string      `json:"orderNumber"`
	Email          string      `json:"email"`
	FullName       string      `json:"fullName"`
	Status         OrderStatus `json:"status"`
	PreviousStatus OrderStatus `json:"previousStatus,omitempty"`
	OccurredAt     time.Time   `json:"occurredAt"`
}

const (
	OrderEventCreated       = "order.created"
	OrderEventStatusChanged = "order.status_changed"
)
