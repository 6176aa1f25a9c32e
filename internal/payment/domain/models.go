// Package domain contains persistence models for provider payments and
// refunds.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/harvestline/storefront/internal/order/domain"
	"gorm.io/datatypes"
)

// Payment is one provider-side payment transaction, keyed by the external
// payment ID. An order may accumulate multiple payment attempts.
type Payment struct {
	ID                snowflake.ID              `gorm:"primaryKey"`
	ExternalPaymentID string                    `gorm:"type:text;not null;uniqueIndex"`
	OrderID           snowflake.ID              `gorm:"not null;index"`
	Amount            int64                     `gorm:"not null;default:0"`
	TipAmount         int64                     `gorm:"not null;default:0"`
	Status            orderdomain.PaymentStatus `gorm:"type:text;not null"`

	LastEventID *string        `gorm:"type:text"`
	LastEventAt *time.Time     `gorm:""`
	RawPayload  datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// SeenEvent reports whether the stored watermark already covers eventID.
func (p *Payment) SeenEvent(eventID string) bool {
	return p.LastEventID != nil && *p.LastEventID == eventID
}

// RefundStatus mirrors Square's refund states.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusCompleted RefundStatus = "COMPLETED"
	RefundStatusRejected  RefundStatus = "REJECTED"
	RefundStatusFailed    RefundStatus = "FAILED"
)

// Refund is one provider-side refund linked to a Payment.
type Refund struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	ExternalRefundID string       `gorm:"type:text;not null;uniqueIndex"`
	PaymentID        snowflake.ID `gorm:"not null;index"`
	Amount           int64        `gorm:"not null;default:0"`
	Status           RefundStatus `gorm:"type:text;not null"`
	Reason           string       `gorm:"type:text"`

	LastEventID *string        `gorm:"type:text"`
	LastEventAt *time.Time     `gorm:""`
	RawPayload  datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Refund) TableName() string { return "refunds" }

// SeenEvent reports whether the stored watermark already covers eventID.
func (r *Refund) SeenEvent(eventID string) bool {
	return r.LastEventID != nil && *r.LastEventID == eventID
}
