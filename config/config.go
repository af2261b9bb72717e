package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rajasatyajit/ResumeCore/internal/models"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	Admin     AdminConfig
	Redis     RedisConfig
	Webhooks  WebhookConfig
	Billing   BillingConfig
	Credits   CreditsConfig
	AI        AIConfig
	Analytics AnalyticsConfig
	Secrets   SecretsConfig
}

type ServerConfig struct {
	Host                    string
	Port                    int
	ReadTimeout             time.Duration
	WriteTimeout            time.Duration
	IdleTimeout             time.Duration
	GracefulShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	AutoMigrate     bool
}

type LoggingConfig struct {
	Level  string
	Format string // json or text
}

type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

type RedisConfig struct {
	URL      string
	DedupTTL time.Duration
}

type AdminConfig struct {
	AdminSecret string
}

type WebhookConfig struct {
	IdentitySecret string // svix-style whsec_ secret
	BillingSecret  string // Standard Webhooks secret, used as raw bytes
	Tolerance      time.Duration
	MaxBodyBytes   int64
	RateLimit      float64 // requests per second per client IP
	RateBurst      int
}

type BillingConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	// Products maps billing product ids to the plan they sell
	Products map[string]models.Plan
}

type CreditsConfig struct {
	SignupGrant int64
}

type AIConfig struct {
	DefaultProvider string
	DefaultModel    string
	DefaultAPIKey   string
	Providers       []string
	// CheapModels maps a provider to its cost-saving model variant
	CheapModels map[string]string
}

type AnalyticsConfig struct {
	PostHogAPIKey string
	PostHogHost   string
}

type SecretsConfig struct {
	// Key is the 32-byte key sealing stored provider API keys
	Key []byte
}

// Load loads configuration from environment variables with sensible defaults.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	products, err := parseProducts(getEnv("PLAN_PRODUCTS", ""))
	if err != nil {
		return nil, fmt.Errorf("parse PLAN_PRODUCTS: %w", err)
	}
	cheap, err := parsePairs(getEnv("AI_CHEAP_MODELS", ""))
	if err != nil {
		return nil, fmt.Errorf("parse AI_CHEAP_MODELS: %w", err)
	}
	secretsKey, err := parseKey(getEnv("SECRETS_KEY", ""))
	if err != nil {
		return nil, fmt.Errorf("parse SECRETS_KEY: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:                    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:                    getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:             getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:            getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:             getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			GracefulShutdownTimeout: getEnvDuration("SERVER_GRACEFUL_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvDuration("DB_MAX_CONN_LIFETIME", 1*time.Hour),
			MaxConnIdleTime: getEnvDuration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 9090),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			DedupTTL: getEnvDuration("WEBHOOK_DEDUP_TTL", 72*time.Hour),
		},
		Admin: AdminConfig{
			AdminSecret: getEnv("ADMIN_SECRET", ""),
		},
		Webhooks: WebhookConfig{
			IdentitySecret: getEnv("IDENTITY_WEBHOOK_SECRET", ""),
			BillingSecret:  getEnv("BILLING_WEBHOOK_SECRET", ""),
			Tolerance:      getEnvDuration("WEBHOOK_TOLERANCE", 5*time.Minute),
			MaxBodyBytes:   getEnvInt64("WEBHOOK_MAX_BODY_BYTES", 1<<20),
			RateLimit:      getEnvFloat("WEBHOOK_RATE_LIMIT", 20),
			RateBurst:      getEnvInt("WEBHOOK_RATE_BURST", 40),
		},
		Billing: BillingConfig{
			StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Products:            products,
		},
		Credits: CreditsConfig{
			SignupGrant: getEnvInt64("SIGNUP_CREDITS", 10),
		},
		AI: AIConfig{
			DefaultProvider: getEnv("AI_DEFAULT_PROVIDER", "openai"),
			DefaultModel:    getEnv("AI_DEFAULT_MODEL", "gpt-4o"),
			DefaultAPIKey:   getEnv("AI_DEFAULT_API_KEY", ""),
			Providers:       getEnvList("AI_PROVIDERS", []string{"openai", "anthropic", "google"}),
			CheapModels:     cheap,
		},
		Analytics: AnalyticsConfig{
			PostHogAPIKey: getEnv("POSTHOG_API_KEY", ""),
			PostHogHost:   getEnv("POSTHOG_HOST", "https://us.i.posthog.com"),
		},
		Secrets: SecretsConfig{
			Key: secretsKey,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}
	if c.Credits.SignupGrant < 0 {
		return fmt.Errorf("signup credits must be non-negative")
	}
	if c.Webhooks.MaxBodyBytes < 1 {
		return fmt.Errorf("webhook max body bytes must be positive")
	}
	if c.Webhooks.Tolerance <= 0 {
		return fmt.Errorf("webhook tolerance must be positive")
	}
	if c.AI.DefaultProvider == "" || c.AI.DefaultModel == "" {
		return fmt.Errorf("default AI provider and model are required")
	}
	legend := 0
	for _, plan := range c.Billing.Products {
		if plan == models.PlanLegend {
			legend++
		}
	}
	if len(c.Billing.Products) > 0 && legend != 1 {
		return fmt.Errorf("PLAN_PRODUCTS must map exactly one product to legend, got %d", legend)
	}
	return nil
}

// parseProducts parses "prod_a:plus,prod_b:pro,prod_c:legend".
// A product may appear only once.
func parseProducts(raw string) (map[string]models.Plan, error) {
	pairs, err := parsePairs(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Plan, len(pairs))
	for id, name := range pairs {
		plan, ok := models.ParsePlan(name)
		if !ok || plan == models.PlanFree {
			return nil, fmt.Errorf("product %q: invalid plan %q", id, name)
		}
		out[id] = plan
	}
	return out, nil
}

func parsePairs(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		k, v, ok := strings.Cut(item, ":")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("malformed entry %q", item)
		}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("duplicate key %q", k)
		}
		out[k] = v
	}
	return out, nil
}

func parseKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
