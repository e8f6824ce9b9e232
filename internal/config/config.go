package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Stripe     StripeConfig
	Promotion  PromotionConfig
	Auth       AuthConfig
	Migrations MigrationsConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	PromotionActivated string
	PromotionExpired   string
	OrderCreated       string
}

// All returns every topic the service produces to.
func (t TopicConfig) All() []string {
	return []string{t.PromotionActivated, t.PromotionExpired, t.OrderCreated}
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Timeout       time.Duration
}

type PromotionConfig struct {
	Currency           string
	LockTTL            time.Duration
	PendingOrderTTL    time.Duration
	PremiumSweepCron   string
	StaleSweepInterval time.Duration
}

type AuthConfig struct {
	OIDCIssuer string
}

type MigrationsConfig struct {
	Dir         string
	AutoMigrate bool
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8086"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				PromotionActivated: getEnv("KAFKA_TOPIC_PROMOTION_ACTIVATED", "promotion.activated"),
				PromotionExpired:   getEnv("KAFKA_TOPIC_PROMOTION_EXPIRED", "promotion.expired"),
				OrderCreated:       getEnv("KAFKA_TOPIC_ORDER_CREATED", "promotion.order.created"),
			},
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:    getEnv("STRIPE_SUCCESS_URL", "https://www.saarland-events-new.de/payment-success"),
			CancelURL:     getEnv("STRIPE_CANCEL_URL", "https://www.saarland-events-new.de/payment-cancel"),
			Timeout:       time.Duration(getEnvInt("STRIPE_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Promotion: PromotionConfig{
			Currency:           strings.ToLower(getEnv("PROMOTION_CURRENCY", "eur")),
			LockTTL:            time.Duration(getEnvInt("PROMOTION_LOCK_TTL_SECONDS", 30)) * time.Second,
			PendingOrderTTL:    time.Duration(getEnvInt("PENDING_ORDER_TTL_HOURS", 24)) * time.Hour,
			PremiumSweepCron:   getEnv("PREMIUM_SWEEP_CRON", "0 1 * * *"),
			StaleSweepInterval: time.Duration(getEnvInt("STALE_ORDER_SWEEP_MINUTES", 60)) * time.Minute,
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
		},
		Migrations: MigrationsConfig{
			Dir:         getEnv("MIGRATIONS_DIR", "./migrations"),
			AutoMigrate: getEnvBool("AUTO_MIGRATE", true),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, e.g. KAFKA_BROKERS=kafka-1:9092,kafka-2:9092
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
