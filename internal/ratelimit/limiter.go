// Package ratelimit bounds request rates per client identity with fixed
// windows. Store failures fail open.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/mediastream/pkg/logger"
	"github.com/your-org/mediastream/pkg/metrics"
)

// Decision is the outcome of one Check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Degraded is set when the store failed and the request was admitted
	// without being counted.
	Degraded bool
}

type Limiter struct {
	store   Store
	max     int
	window  time.Duration
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

type Config struct {
	Max    int
	Window time.Duration
	// Timeout bounds each store call. Zero means no extra bound.
	Timeout time.Duration
	Logger  *zap.Logger
}

func NewLimiter(store Store, cfg Config) *Limiter {
	if cfg.Max <= 0 {
		cfg.Max = 30
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{
		store:   store,
		max:     cfg.Max,
		window:  cfg.Window,
		timeout: cfg.Timeout,
		logger:  logger.OrNop(cfg.Logger),
		now:     time.Now,
	}
}

// Allow reports whether identity may make another request in its window.
func (l *Limiter) Allow(ctx context.Context, identity string) bool {
	return l.Check(ctx, identity).Allowed
}

// Check counts a request for identity. The first Max requests of a window
// are allowed; later ones are refused until the window resets.
func (l *Limiter) Check(ctx context.Context, identity string) Decision {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	count, resetAt, err := l.store.Incr(ctx, identity, l.window)
	if err != nil {
		metrics.RateLimitDecisions.WithLabelValues("fail_open").Inc()
		l.logger.Warn("rate limit store unavailable, admitting request",
			zap.String("key", identity), zap.Error(err))
		return Decision{Allowed: true, Limit: l.max, Remaining: l.max, ResetAt: l.now().Add(l.window), Degraded: true}
	}

	d := Decision{
		Allowed: count <= int64(l.max),
		Limit:   l.max,
		ResetAt: resetAt,
	}
	if remaining := int64(l.max) - count; remaining > 0 {
		d.Remaining = int(remaining)
	}
	if d.Allowed {
		metrics.RateLimitDecisions.WithLabelValues("allowed").Inc()
	} else {
		metrics.RateLimitDecisions.WithLabelValues("limited").Inc()
	}
	return d
}

// RetryAfter is the whole seconds until d's window resets, at least 1.
func (l *Limiter) RetryAfter(d Decision) int {
	secs := int((d.ResetAt.Sub(l.now()) + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
