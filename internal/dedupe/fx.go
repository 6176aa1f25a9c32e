package dedupe

import (
	"github.com/harvestline/storefront/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewFromConfig(cfg config.Config, log *zap.Logger) *Group {
	return New(log, Options{
		TTL:           cfg.DedupeTTL,
		LogDuplicates: cfg.LogDuplicates,
	})
}

var Module = fx.Module("dedupe",
	fx.Provide(NewFromConfig),
)
