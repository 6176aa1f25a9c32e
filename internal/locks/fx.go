package locks

import (
	"github.com/harvestline/storefront/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewFromConfig(cfg config.Config, log *zap.Logger) *Locker {
	if cfg.RedisAddr == "" {
		log.Info("redis not configured, distributed locking disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return NewLocker(client)
}

var Module = fx.Module("locks",
	fx.Provide(NewFromConfig),
)
