package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(errors.New(`ERROR: duplicate key value violates unique constraint "idx_orders_external_order_id" (SQLSTATE 23505)`)))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: payments.external_payment_id")))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
}

func TestIsTransientErr(t *testing.T) {
	assert.False(t, IsTransientErr(nil))
	assert.True(t, IsTransientErr(driver.ErrBadConn))
	assert.True(t, IsTransientErr(io.EOF))
	assert.True(t, IsTransientErr(context.DeadlineExceeded))
	assert.True(t, IsTransientErr(errors.New("dial tcp 10.0.0.5:5432: connection refused")))
	assert.True(t, IsTransientErr(errors.New("write: broken pipe")))
	assert.True(t, IsTransientErr(errors.New("pq: too many connections")))

	// Constraint violations must never be retried.
	assert.False(t, IsTransientErr(gorm.ErrDuplicatedKey))
	assert.False(t, IsTransientErr(errors.New("UNIQUE constraint failed: refunds.external_refund_id")))
	assert.False(t, IsTransientErr(errors.New("null value in column violates not-null constraint")))
}

func TestWithRetryStopsOnNonTransient(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), zap.NewNop(), func(ctx context.Context) error {
		calls++
		return gorm.ErrDuplicatedKey
	})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRecoversFromTransient(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), zap.NewNop(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return driver.ErrBadConn
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), zap.NewNop(), func(ctx context.Context) error {
		calls++
		return driver.ErrBadConn
	})
	assert.ErrorIs(t, err, driver.ErrBadConn)
	assert.Equal(t, defaultRetryAttempts, calls)
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithRetry(ctx, zap.NewNop(), func(ctx context.Context) error {
		return driver.ErrBadConn
	})
	assert.ErrorIs(t, err, context.Canceled)
}
