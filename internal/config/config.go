package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	CORSAllowedOrigins []string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayBaseURL       string
	GatewayTimeout        time.Duration

	CurrencyCode          string
	FreeShippingThreshold float64
	ShippingFlatRate      float64

	PaymentMaxAttempts    int
	PaymentAttemptTTL     time.Duration
	OrderNumberMaxRetries int

	IdempotencyTTL   time.Duration
	WebhookReplayTTL time.Duration

	PaymentRateLimit string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		RazorpayKeyID:         k.String("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     k.String("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: k.String("RAZORPAY_WEBHOOK_SECRET"),
		RazorpayBaseURL:       strings.TrimSpace(k.String("RAZORPAY_BASE_URL")),
		GatewayTimeout:        parseDuration(k.String("PAYMENT_GATEWAY_TIMEOUT"), "10s"),

		CurrencyCode:          valueOrDefault(k.String("CURRENCY_CODE"), "INR"),
		FreeShippingThreshold: parseFloat(k.String("FREE_SHIPPING_THRESHOLD"), 1000),
		ShippingFlatRate:      parseFloat(k.String("SHIPPING_FLAT_RATE"), 150),

		PaymentMaxAttempts:    parseInt(k.String("PAYMENT_MAX_ATTEMPTS"), 5),
		PaymentAttemptTTL:     parseDuration(k.String("PAYMENT_ATTEMPT_TTL"), "30m"),
		OrderNumberMaxRetries: parseInt(k.String("ORDER_NUMBER_MAX_RETRIES"), 3),

		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		WebhookReplayTTL: parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),

		PaymentRateLimit: valueOrDefault(k.String("PAYMENT_RATE_LIMIT"), "60-M"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.RazorpayKeyID == "" || cfg.RazorpayKeySecret == "" {
		return nil, errors.New("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required")
	}
	if cfg.RazorpayWebhookSecret == "" {
		return nil, errors.New("RAZORPAY_WEBHOOK_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
