package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ReplicateTokenPrefix is the prefix every Replicate API token carries.
const ReplicateTokenPrefix = "r8_"

type Config struct {
	// Replicate API. Model references are either "owner/name" (latest
	// version) or "owner/name:version".
	ReplicateAPIToken               string
	ReplicateAPIBaseURL             string
	ReplicateAnimationVersion       string
	ReplicateTalkingPortraitVersion string
	ReplicateVoiceCloneVersion      string

	// Supabase
	SupabaseURL            string
	SupabasePublishableKey string
	SupabaseJWTSecret      string
	SupabaseStorageBucket  string

	// Database
	DatabaseURL string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Stripe
	StripeWebhookSecret string

	// Rate limiting on the proxy routes
	RateLimitCapacity int
	RateLimitRefill   float64

	// Polling
	PollMaxAttempts int

	// Server
	BaseURL         string
	Port            string
	Environment     string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	// TrustedProxies lists the IPs or CIDRs whose X-Forwarded-For is
	// believed. Empty means the socket peer is the client.
	TrustedProxies []string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ReplicateAPIToken:               strings.TrimSpace(os.Getenv("REPLICATE_API_TOKEN")),
		ReplicateAPIBaseURL:             getEnv("REPLICATE_API_BASE_URL", "https://api.replicate.com/v1/"),
		ReplicateAnimationVersion:       getEnv("REPLICATE_ANIMATION_VERSION", "fofr/live-portrait"),
		ReplicateTalkingPortraitVersion: getEnv("REPLICATE_TALKING_PORTRAIT_VERSION", "zsxkib/sonic"),
		ReplicateVoiceCloneVersion:      getEnv("REPLICATE_VOICE_CLONE_VERSION", "jichengdu/fish-speech"),

		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabasePublishableKey: getEnv("SUPABASE_PUBLISHABLE_KEY", ""),
		SupabaseJWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
		SupabaseStorageBucket:  getEnv("SUPABASE_STORAGE_BUCKET", "generations"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", 20),
		RateLimitRefill:   getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", 0.5),

		PollMaxAttempts: getEnvInt("POLL_MAX_ATTEMPTS", 180),

		BaseURL:         getEnv("BASE_URL", ""),
		Port:            getEnv("PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		TrustedProxies:  getEnvList("TRUSTED_PROXIES", nil),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks settings the server cannot start without. The Replicate
// token is not one of them: it is reported per request and by check-env.
func (c *Config) Validate() error {
	if c.SupabaseJWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.PollMaxAttempts < 1 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// TokenError describes what is wrong with the configured Replicate token,
// or returns nil when it looks usable.
func (c *Config) TokenError() error {
	return ValidateReplicateToken(c.ReplicateAPIToken)
}

var (
	ErrTokenMissing   = errors.New("REPLICATE_API_TOKEN is not set")
	ErrTokenMalformed = errors.New("REPLICATE_API_TOKEN is malformed")
)

func ValidateReplicateToken(token string) error {
	if token == "" {
		return ErrTokenMissing
	}
	if !strings.HasPrefix(token, ReplicateTokenPrefix) || len(token) < len(ReplicateTokenPrefix)+8 {
		return ErrTokenMalformed
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnvList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
