package repository

import (
	"context"
	"time"

	"github.com/harvestline/storefront/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalPaymentID string) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).
		Where("external_payment_id = ?", externalPaymentID).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// Upsert is keyed on external_payment_id so redelivered payment events land
// on the existing row instead of violating the unique index.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, external_payment_id, order_id, amount, tip_amount, status,
			last_event_id, last_event_at, raw_payload, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_payment_id) DO UPDATE SET
			amount = excluded.amount,
			tip_amount = excluded.tip_amount,
			status = excluded.status,
			last_event_id = excluded.last_event_id,
			last_event_at = excluded.last_event_at,
			raw_payload = excluded.raw_payload,
			updated_at = excluded.updated_at`,
		payment.ID,
		payment.ExternalPaymentID,
		payment.OrderID,
		payment.Amount,
		payment.TipAmount,
		payment.Status,
		payment.LastEventID,
		payment.LastEventAt,
		payment.RawPayload,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindRefundByExternalID(ctx context.Context, db *gorm.DB, externalRefundID string) (*domain.Refund, error) {
	var item domain.Refund
	err := db.WithContext(ctx).
		Where("external_refund_id = ?", externalRefundID).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpsertRefund(ctx context.Context, db *gorm.DB, refund *domain.Refund) error {
	now := time.Now().UTC()
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = now
	}
	refund.UpdatedAt = now
	return db.WithContext(ctx).Exec(
		`INSERT INTO refunds (
			id, external_refund_id, payment_id, amount, status, reason,
			last_event_id, last_event_at, raw_payload, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_refund_id) DO UPDATE SET
			amount = excluded.amount,
			status = excluded.status,
			reason = excluded.reason,
			last_event_id = excluded.last_event_id,
			last_event_at = excluded.last_event_at,
			raw_payload = excluded.raw_payload,
			updated_at = excluded.updated_at`,
		refund.ID,
		refund.ExternalRefundID,
		refund.PaymentID,
		refund.Amount,
		refund.Status,
		refund.Reason,
		refund.LastEventID,
		refund.LastEventAt,
		refund.RawPayload,
		refund.CreatedAt,
		refund.UpdatedAt,
	).Error
}
