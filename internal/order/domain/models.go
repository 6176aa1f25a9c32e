// Package domain contains persistence models for storefront orders.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OrderStatus represents lifecycle states for an order.
type OrderStatus string

const (
	OrderStatusPending            OrderStatus = "PENDING"
	OrderStatusProcessing         OrderStatus = "PROCESSING"
	OrderStatusReady              OrderStatus = "READY"
	OrderStatusCompleted          OrderStatus = "COMPLETED"
	OrderStatusCancelled          OrderStatus = "CANCELLED"
	OrderStatusShipping           OrderStatus = "SHIPPING"
	OrderStatusDelivered          OrderStatus = "DELIVERED"
	OrderStatusPaymentFailed      OrderStatus = "PAYMENT_FAILED"
	OrderStatusFulfillmentUpdated OrderStatus = "FULFILLMENT_UPDATED"

	// Catering orders use a disjoint vocabulary.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
)

// IsTerminal reports whether no further provider-driven transition is
// expected from the status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusDelivered:
		return true
	}
	return false
}

// PaymentStatus is the payment axis of an order, distinct from OrderStatus.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// Channel identifies which order pipeline a row belongs to. Square delivers a
// single webhook stream for the merchant, so the channel is stamped at
// creation time and is the signal the reconciliation engine dispatches on.
type Channel string

const (
	ChannelStorefront Channel = "storefront"
	ChannelCatering   Channel = "catering"
	ChannelPOS        Channel = "pos"
)

type FulfillmentType string

const (
	FulfillmentPickup             FulfillmentType = "pickup"
	FulfillmentLocalDelivery      FulfillmentType = "local_delivery"
	FulfillmentNationwideShipping FulfillmentType = "nationwide_shipping"
)

// Order sources. Checkout is the sole creator of primary orders; rows
// materialized from the Square API by the backfill path are tagged so they
// can be told apart.
const (
	SourceCheckout  = "checkout"
	SourceSquareAPI = "square_api"
)

// Placeholder sentinels for customer contact fields on orders created
// out-of-band (point of sale). Real values are backfilled from payment buyer
// data, and only while the stored value is still the placeholder.
const (
	PlaceholderName  = "pending"
	PlaceholderEmail = "pending@example.com"
	PlaceholderPhone = "pending"
)

// Order is the canonical sellable transaction.
type Order struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	ExternalOrderID *string      `gorm:"type:text;uniqueIndex"`
	Channel         Channel      `gorm:"type:text;not null;default:storefront"`
	Status          OrderStatus  `gorm:"type:text;not null"`
	PaymentStatus   PaymentStatus `gorm:"type:text;not null"`

	// Amounts in cents.
	TotalAmount    int64 `gorm:"not null;default:0"`
	GratuityAmount int64 `gorm:"not null;default:0"`

	CustomerName  string `gorm:"type:text"`
	CustomerEmail string `gorm:"type:text"`
	CustomerPhone string `gorm:"type:text"`

	FulfillmentType FulfillmentType `gorm:"type:text;not null;default:pickup"`
	ShippingRateID  *string         `gorm:"type:text"`
	TrackingNumber  *string         `gorm:"type:text"`
	LabelURL        *string         `gorm:"type:text"`

	Source     string  `gorm:"type:text;not null;default:checkout"`
	SyncReason *string `gorm:"type:text"`

	// Dedup watermark: the last provider event applied to this row.
	LastEventID *string        `gorm:"type:text"`
	LastEventAt *time.Time     `gorm:""`
	RawPayload  datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// SeenEvent reports whether the stored watermark already covers eventID.
func (o *Order) SeenEvent(eventID string) bool {
	return o.LastEventID != nil && *o.LastEventID == eventID
}

// HasPlaceholderEmail reports whether the contact email is still the
// out-of-band creation sentinel.
func (o *Order) HasPlaceholderEmail() bool { return o.CustomerEmail == PlaceholderEmail }

func (o *Order) HasPlaceholderName() bool { return o.CustomerName == PlaceholderName }

func (o *Order) HasPlaceholderPhone() bool { return o.CustomerPhone == PlaceholderPhone }
