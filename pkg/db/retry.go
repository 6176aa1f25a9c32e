package db

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRetryAttempts = 3
	retryBaseDelay       = 100 * time.Millisecond
)

// WithRetry runs fn, retrying on transient infrastructure errors with a small
// exponential backoff. Non-transient errors return immediately. The final
// transient error is returned once attempts are exhausted so the caller can
// surface it to the webhook transport for redelivery.
func WithRetry(ctx context.Context, log *zap.Logger, fn func(ctx context.Context) error) error {
	var err error
	delay := retryBaseDelay
	for attempt := 1; attempt <= defaultRetryAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !IsTransientErr(err) {
			return err
		}
		if attempt == defaultRetryAttempts {
			break
		}
		if log != nil {
			log.Warn("transient database error, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
