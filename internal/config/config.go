package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	Square   SquareConfig
	Shipping ShippingConfig
	SMTP     SMTPConfig
	Slack    SlackConfig

	RedisAddr     string
	RedisPassword string

	// DedupeTTL bounds how long a completed webhook operation is retained to
	// absorb near-duplicate deliveries.
	DedupeTTL time.Duration
	// LabelVerifyDelay is how long after a blocked label purchase the
	// deferred tracking-number check runs.
	LabelVerifyDelay time.Duration
	LogDuplicates    bool
}

type SquareConfig struct {
	AccessToken     string
	SignatureKey    string
	NotificationURL string
	APIBaseURL      string
}

type ShippingConfig struct {
	BaseURL string
	APIKey  string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SlackConfig struct {
	WebhookURL string
	Channel    string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "storefront"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "storefront"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		Square: SquareConfig{
			AccessToken:     strings.TrimSpace(getenv("SQUARE_ACCESS_TOKEN", "")),
			SignatureKey:    strings.TrimSpace(getenv("SQUARE_WEBHOOK_SIGNATURE_KEY", "")),
			NotificationURL: strings.TrimSpace(getenv("SQUARE_WEBHOOK_NOTIFICATION_URL", "")),
			APIBaseURL:      getenv("SQUARE_API_BASE_URL", "https://connect.squareup.com"),
		},
		Shipping: ShippingConfig{
			BaseURL: getenv("SHIPPING_API_BASE_URL", ""),
			APIKey:  strings.TrimSpace(getenv("SHIPPING_API_KEY", "")),
		},
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "orders@harvestline.com"),
		},
		Slack: SlackConfig{
			WebhookURL: strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
			Channel:    getenv("SLACK_CHANNEL", "#orders"),
		},

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		DedupeTTL:        getenvDuration("WEBHOOK_DEDUPE_TTL", 120*time.Second),
		LabelVerifyDelay: getenvDuration("LABEL_VERIFY_DELAY", 15*time.Second),
		LogDuplicates:    getenvBool("LOG_DUPLICATE_WEBHOOKS", true),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewNotifyConfigHolder),
)
