package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	PayoutModeLive    = "live"
	PayoutModeSandbox = "sandbox"
)

type Config struct {
	Env     string `env:"ENV" envDefault:"development"`
	Port    string `env:"PORT" envDefault:"8080"`
	LogPath string `env:"LOG_PATH"`

	// FIREBASE_PROJECT_ID wins over GOOGLE_CLOUD_PROJECT
	ProjectID      string   `env:"FIREBASE_PROJECT_ID"`
	CloudProject   string   `env:"GOOGLE_CLOUD_PROJECT"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	CheckoutSuccessURL  string `env:"CHECKOUT_SUCCESS_URL" envDefault:"http://localhost:3000/bookings?paid=1"`
	CheckoutCancelURL   string `env:"CHECKOUT_CANCEL_URL" envDefault:"http://localhost:3000/bookings"`

	Currency            string        `env:"CURRENCY" envDefault:"gbp"`
	PayoutMode          string        `env:"PAYOUT_MODE"`
	TeacherSharePercent float64       `env:"TEACHER_SHARE_PERCENT" envDefault:"80"`
	PayoutLease         time.Duration `env:"PAYOUT_LEASE" envDefault:"10m"`
	PayoutRetries       uint64        `env:"PAYOUT_RETRIES" envDefault:"3"`

	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RateLimitSweep time.Duration `env:"RATE_LIMIT_SWEEP" envDefault:"1m"`

	StatsdAddr string `env:"DD_AGENT_ADDR"`
}

// Load reads .env (when present) and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.ProjectID == "" {
		cfg.ProjectID = cfg.CloudProject
	}

	allowed := []string{}
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o != "" {
			allowed = append(allowed, o)
		}
	}
	cfg.AllowedOrigins = allowed

	cfg.Currency = strings.ToLower(strings.TrimSpace(cfg.Currency))
	cfg.PayoutMode = strings.ToLower(strings.TrimSpace(cfg.PayoutMode))
	if cfg.PayoutMode == "" {
		if cfg.StripeSecretKey != "" {
			cfg.PayoutMode = PayoutModeLive
		} else {
			cfg.PayoutMode = PayoutModeSandbox
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.PayoutMode {
	case PayoutModeLive:
		if c.StripeSecretKey == "" {
			return errors.New("PAYOUT_MODE=live requires STRIPE_SECRET_KEY")
		}
	case PayoutModeSandbox:
	default:
		return fmt.Errorf("unknown PAYOUT_MODE %q", c.PayoutMode)
	}
	if c.TeacherSharePercent <= 0 || c.TeacherSharePercent > 100 {
		return fmt.Errorf("TEACHER_SHARE_PERCENT must be in (0, 100], got %v", c.TeacherSharePercent)
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be an ISO 4217 code, got %q", c.Currency)
	}
	if c.PayoutLease <= 0 {
		return errors.New("PAYOUT_LEASE must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}
