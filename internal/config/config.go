package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "VirtuSIM"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultMinorPerCoin   = 15
	defaultPolicy         = "multiplicative"
	defaultMarginFactor   = 1.5
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// External collaborators. Empty base URLs select the built-in stubs,
	// which is only permitted in development.
	ProviderBaseURL  string
	ProviderAPIKey   string
	PaymentBaseURL   string
	PaymentSecretKey string

	// MinorPerCoin is the fixed payment conversion rate: gateway minor
	// currency units per coin.
	MinorPerCoin int64

	// AllowedOrigins is the comma-separated CORS allow-list.
	AllowedOrigins string

	Pricing PricingConfig
}

// PricingConfig selects and parameterises the markup policy. Rates are
// configuration inputs, never computed.
type PricingConfig struct {
	Policy         string
	MarginFactor   float64
	FixedMarkup    int64
	TierThreshold  float64
	TierPremium    int64
	ProviderPerRef float64
	TargetPerRef   float64
	TargetMarkup   float64
	CoinsPerUnit   float64
	RoundPoint     int64
	RoundBand      float64
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           getEnv("APP_ENV", defaultAppEnv),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		ShutdownPeriod:   defaultShutdownDelay,
		IdempotencyTTL:   defaultIdempotencyTTL,
		ProviderBaseURL:  os.Getenv("PROVIDER_BASE_URL"),
		ProviderAPIKey:   os.Getenv("PROVIDER_API_KEY"),
		PaymentBaseURL:   os.Getenv("PAYMENT_BASE_URL"),
		PaymentSecretKey: os.Getenv("PAYMENT_SECRET_KEY"),
		MinorPerCoin:     defaultMinorPerCoin,
		AllowedOrigins:   getEnv("ALLOWED_ORIGINS", "*"),
	}

	var err error
	if cfg.ShutdownPeriod, err = getDuration("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.MinorPerCoin, err = getInt64("PAYMENT_MINOR_PER_COIN", defaultMinorPerCoin); err != nil {
		return Config{}, err
	}

	p := PricingConfig{Policy: getEnv("PRICING_POLICY", defaultPolicy)}
	if p.MarginFactor, err = getFloat("PRICING_MARGIN_FACTOR", defaultMarginFactor); err != nil {
		return Config{}, err
	}
	if p.FixedMarkup, err = getInt64("PRICING_FIXED_MARKUP", 100); err != nil {
		return Config{}, err
	}
	if p.TierThreshold, err = getFloat("PRICING_TIER_THRESHOLD", 50); err != nil {
		return Config{}, err
	}
	if p.TierPremium, err = getInt64("PRICING_TIER_PREMIUM", 250); err != nil {
		return Config{}, err
	}
	if p.ProviderPerRef, err = getFloat("PRICING_PROVIDER_PER_REF", 70); err != nil {
		return Config{}, err
	}
	if p.TargetPerRef, err = getFloat("PRICING_TARGET_PER_REF", 1500); err != nil {
		return Config{}, err
	}
	if p.TargetMarkup, err = getFloat("PRICING_TARGET_MARKUP", 200); err != nil {
		return Config{}, err
	}
	if p.CoinsPerUnit, err = getFloat("PRICING_COINS_PER_UNIT", 0.1); err != nil {
		return Config{}, err
	}
	if p.RoundPoint, err = getInt64("PRICING_ROUND_POINT", 0); err != nil {
		return Config{}, err
	}
	if p.RoundBand, err = getFloat("PRICING_ROUND_BAND", 0); err != nil {
		return Config{}, err
	}
	cfg.Pricing = p

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
