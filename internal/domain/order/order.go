package order

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
)

// Valid reports whether s is one of the known order statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

var (
	ErrMalformedRecord = errors.New("malformed order record")
	ErrInvalidStatus   = errors.New("invalid order status")
)

// Item is a purchased line item. Name and price are snapshots taken at
// purchase time, not live references into the catalog.
type Item struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
	Image      string `json:"image,omitempty"`
}

// Order is one purchase transaction as delivered by the upstream store.
// Contact and shipping fields are immutable snapshots; Status and UpdatedAt
// are the only fields expected to change after creation.
type Order struct {
	ID            string    `json:"id"`
	CustomerName  string    `json:"customer_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	City          string    `json:"city"`
	PostalCode    string    `json:"postal_code"`
	Country       string    `json:"country"`
	Items         []Item    `json:"items"`
	SubtotalCents int64     `json:"subtotal_cents"`
	ShippingCents int64     `json:"shipping_cents"`
	TaxCents      int64     `json:"tax_cents"`
	TotalCents    int64     `json:"total_cents"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks the fields the pipeline depends on. A record missing its
// identity or creation timestamp cannot be merged or ordered.
func (o *Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	if o.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing created_at for %s", ErrMalformedRecord, o.ID)
	}
	return nil
}

// FormatCents renders an integer minor-unit amount as a two-decimal display
// value. Sums are kept in cents internally so thousands of incremental
// additions and subtractions never drift.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ChangeKind classifies a change-data-capture event.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Valid reports whether k is a known change kind.
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeInsert, ChangeUpdate, ChangeDelete:
		return true
	}
	return false
}

// ChangeEvent is one transport-level change notification. It is consumed
// once and folded into the reconciliation cache, never persisted.
type ChangeEvent struct {
	Kind       ChangeKind `json:"kind"`
	Record     Order      `json:"record"`
	ReceivedAt time.Time  `json:"received_at"`
}
