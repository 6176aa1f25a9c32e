package service

import (
	"context"
	"time"

	"github.com/harvestline/storefront/internal/alert/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sweepBatchSize = 50

// SweepRetries reattempts failed alerts under the retry threshold whose
// backoff delay has elapsed. Returns how many were attempted.
func (s *Service) SweepRetries(ctx context.Context) (int, error) {
	cfg := s.notify.Get()
	alerts, err := s.repo.FindRetryable(ctx, s.db, cfg.MaxRetries, s.clock.Now(), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	for i := range alerts {
		alert := &alerts[i]
		alert.Status = domain.AlertStatusRetrying
		if err := s.repo.Update(ctx, s.db, alert); err != nil {
			s.log.Error("failed to claim alert for retry", zap.Error(err))
			continue
		}
		s.attempt(ctx, alert)
	}
	return len(alerts), nil
}

// RunSweeper drives SweepRetries on the configured interval until the
// lifecycle stops it.
func RunSweeper(lc fx.Lifecycle, s *Service) {
	stop := make(chan struct{})
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				interval := s.notify.Get().SweepInterval
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-stop:
						return
					case <-ticker.C:
						ctx, cancel := context.WithTimeout(context.Background(), interval)
						if n, err := s.SweepRetries(ctx); err != nil {
							s.log.Error("alert retry sweep failed", zap.Error(err))
						} else if n > 0 {
							s.log.Info("alert retry sweep", zap.Int("attempted", n))
						}
						cancel()
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stop)
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
