package ratelimit

import (
	"context"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"go.uber.org/zap"
)

const (
	CategoryPayment = "payment"
	CategoryBooking = "booking"
	CategoryGeneral = "general"
	CategoryWebhook = "webhook"
)

// unknownRemaining is reported for categories without a rule.
const unknownRemaining = 1000

// Rule allows Max hits per Window.
type Rule struct {
	Max    int
	Window time.Duration
}

// DefaultRules is the production category table.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		CategoryPayment: {Max: 5, Window: time.Minute},
		CategoryBooking: {Max: 10, Window: time.Minute},
		CategoryGeneral: {Max: 100, Window: time.Minute},
		CategoryWebhook: {Max: 200, Window: time.Minute},
	}
}

// Store counts hits per key inside fixed windows. The first hit on a key, or
// the first hit after its window ended, starts a new window at now.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (count int, resetAt time.Time, err error)
}

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter struct {
	store   Store
	rules   map[string]Rule
	logger  *zap.Logger
	metrics statsd.ClientInterface
	now     func() time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithMetrics(m statsd.ClientInterface) Option {
	return func(l *Limiter) { l.metrics = m }
}

func New(store Store, rules map[string]Rule, logger *zap.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:   store,
		rules:   rules,
		logger:  logger.Named("ratelimit"),
		metrics: &statsd.NoOpClient{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records one hit for identifier in category. Store failures let the
// request through.
func (l *Limiter) Allow(ctx context.Context, identifier, category string) Result {
	now := l.now()

	rule, ok := l.rules[category]
	if !ok {
		l.logger.Warn("unknown rate limit category", zap.String("category", category))
		return Result{Allowed: true, Limit: unknownRemaining, Remaining: unknownRemaining, ResetAt: now}
	}

	count, resetAt, err := l.store.Hit(ctx, category+":"+identifier, rule.Window, now)
	if err != nil {
		l.logger.Error("rate limit store failed, allowing request",
			zap.String("category", category),
			zap.Error(err),
		)
		return Result{Allowed: true, Limit: rule.Max, Remaining: rule.Max, ResetAt: now.Add(rule.Window)}
	}

	if count > rule.Max {
		_ = l.metrics.Incr("ratelimit.denied", []string{"category:" + category}, 1)
		return Result{Allowed: false, Limit: rule.Max, Remaining: 0, ResetAt: resetAt}
	}
	return Result{Allowed: true, Limit: rule.Max, Remaining: rule.Max - count, ResetAt: resetAt}
}
