package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// NotifyConfig is the notification policy: who receives admin alerts and how
// failed alert deliveries are retried. It lives in a file rather than the
// environment so operators can adjust recipients without a restart.
type NotifyConfig struct {
	AdminRecipients []string      `mapstructure:"adminRecipients"`
	MaxRetries      int           `mapstructure:"maxRetries"`
	RetryBase       time.Duration `mapstructure:"retryBase"`
	RetryCap        time.Duration `mapstructure:"retryCap"`
	SweepInterval   time.Duration `mapstructure:"sweepInterval"`
}

func DefaultNotifyConfig() NotifyConfig {
	return NotifyConfig{
		AdminRecipients: []string{"orders@harvestline.com"},
		MaxRetries:      5,
		RetryBase:       30 * time.Second,
		RetryCap:        30 * time.Minute,
		SweepInterval:   time.Minute,
	}
}

// NotifyConfigHolder serves an atomic snapshot of NotifyConfig, hot-reloaded
// when the underlying file changes.
type NotifyConfigHolder struct {
	current atomic.Value // holds NotifyConfig
}

func NewNotifyConfigHolder() (*NotifyConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("notify")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/storefront")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultNotifyConfig()
	v.SetDefault("notify.adminRecipients", defaults.AdminRecipients)
	v.SetDefault("notify.maxRetries", defaults.MaxRetries)
	v.SetDefault("notify.retryBase", defaults.RetryBase)
	v.SetDefault("notify.retryCap", defaults.RetryCap)
	v.SetDefault("notify.sweepInterval", defaults.SweepInterval)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg NotifyConfig
	if err := v.UnmarshalKey("notify", &cfg); err != nil {
		return nil, err
	}
	if err := validateNotifyConfig(cfg); err != nil {
		return nil, err
	}

	holder := &NotifyConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated NotifyConfig
		if err := v.UnmarshalKey("notify", &updated); err != nil {
			log.Printf("[notify-config] reload failed: %v", err)
			return
		}
		if err := validateNotifyConfig(updated); err != nil {
			log.Printf("[notify-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
	})

	return holder, nil
}

func (h *NotifyConfigHolder) Get() NotifyConfig {
	return h.current.Load().(NotifyConfig)
}

// NewStaticNotifyConfigHolder returns a holder pinned to cfg, for tests.
func NewStaticNotifyConfigHolder(cfg NotifyConfig) *NotifyConfigHolder {
	holder := &NotifyConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateNotifyConfig(cfg NotifyConfig) error {
	if cfg.MaxRetries < 0 {
		return errors.New("notify.maxRetries must not be negative")
	}
	if cfg.RetryBase <= 0 {
		return errors.New("notify.retryBase must be positive")
	}
	if cfg.RetryCap < cfg.RetryBase {
		return errors.New("notify.retryCap must be at least retryBase")
	}
	if cfg.SweepInterval <= 0 {
		return errors.New("notify.sweepInterval must be positive")
	}
	return nil
}
