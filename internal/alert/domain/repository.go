package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, alert *Alert) error
	Update(ctx context.Context, db *gorm.DB, alert *Alert) error
	// FindRetryable returns failed alerts under the retry threshold whose
	// backoff delay has elapsed.
	FindRetryable(ctx context.Context, db *gorm.DB, maxRetries int, now time.Time, limit int) ([]Alert, error)
}
