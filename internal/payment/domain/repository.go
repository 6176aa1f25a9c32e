package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// FindByExternalID returns nil, nil when no payment carries the ID.
	FindByExternalID(ctx context.Context, db *gorm.DB, externalPaymentID string) (*Payment, error)
	// Upsert creates or updates the row keyed by ExternalPaymentID. Repeated
	// delivery of the same payment event must not create duplicate rows.
	Upsert(ctx context.Context, db *gorm.DB, payment *Payment) error

	FindRefundByExternalID(ctx context.Context, db *gorm.DB, externalRefundID string) (*Refund, error)
	UpsertRefund(ctx context.Context, db *gorm.DB, refund *Refund) error
}
