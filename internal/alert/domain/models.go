// Package domain contains the audit model for outbound notifications. Alert
// rows exist for observability and retry only; they are never authoritative
// business state.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type AlertType string

const (
	AlertTypeNewOrder          AlertType = "new_order"
	AlertTypeOrderConfirmation AlertType = "order_confirmation"
	AlertTypeStatusChange      AlertType = "status_change"
	AlertTypeLabelFollowUp     AlertType = "label_follow_up"
)

type AlertPriority string

const (
	AlertPriorityLow    AlertPriority = "low"
	AlertPriorityNormal AlertPriority = "normal"
	AlertPriorityHigh   AlertPriority = "high"
)

type AlertChannel string

const (
	AlertChannelEmail AlertChannel = "email"
	AlertChannelSlack AlertChannel = "slack"
)

type AlertStatus string

const (
	AlertStatusPending  AlertStatus = "PENDING"
	AlertStatusSent     AlertStatus = "SENT"
	AlertStatusFailed   AlertStatus = "FAILED"
	AlertStatusRetrying AlertStatus = "RETRYING"
)

type Alert struct {
	ID       snowflake.ID  `gorm:"primaryKey"`
	OrderID  snowflake.ID  `gorm:"index"`
	Type     AlertType     `gorm:"type:text;not null"`
	Priority AlertPriority `gorm:"type:text;not null;default:normal"`
	Channel  AlertChannel  `gorm:"type:text;not null"`

	Recipient string `gorm:"type:text;not null"`
	Subject   string `gorm:"type:text"`
	Body      string `gorm:"type:text"`

	Status            AlertStatus `gorm:"type:text;not null;index"`
	RetryCount        int         `gorm:"not null;default:0"`
	ProviderMessageID string      `gorm:"type:text"`
	LastError         string      `gorm:"type:text"`
	NextAttemptAt     *time.Time  `gorm:"index"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Alert) TableName() string { return "alerts" }
