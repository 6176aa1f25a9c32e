package repository

import (
	"context"
	"time"

	"github.com/harvestline/storefront/internal/alert/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, alert *domain.Alert) error {
	now := time.Now().UTC()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now
	return db.WithContext(ctx).Create(alert).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, alert *domain.Alert) error {
	alert.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(alert).Error
}

func (r *repo) FindRetryable(ctx context.Context, db *gorm.DB, maxRetries int, now time.Time, limit int) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	var alerts []domain.Alert
	err := db.WithContext(ctx).
		Where("status = ? AND retry_count < ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)",
			domain.AlertStatusFailed, maxRetries, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}
