package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/your-org/mediastream/pkg/logger"
	"github.com/your-org/mediastream/pkg/metrics"
	"github.com/your-org/mediastream/pkg/tracing"
)

// Status reports how a snapshot was obtained.
type Status string

const (
	StatusHit  Status = "HIT"
	StatusMiss Status = "MISS"
	// StatusSkip means the backend was unusable and the snapshot was computed
	// without touching the cache.
	StatusSkip Status = "SKIP"
)

// Computer produces a fresh snapshot on a cache miss.
type Computer interface {
	ComputeAnalytics(ctx context.Context, mediaID string) (Snapshot, error)
}

// Key is the cache key of a media id's snapshot.
func Key(mediaID string) string {
	return "analytics:media:" + mediaID
}

// Cache is a read-through cache over a Computer. Backend failures never fail
// a read: lookups and stores are bounded by a timeout and guarded by a
// circuit breaker, and any failure degrades to a direct computation.
//
// A compute that overlaps an Invalidate for the same id may store a snapshot
// that predates the write. It lives at most one TTL.
type Cache struct {
	backend Backend
	compute Computer
	breaker *gobreaker.CircuitBreaker[[]byte]
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

type CacheConfig struct {
	TTL             time.Duration
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Logger          *zap.Logger
}

// NewCache wraps compute. A nil backend disables caching: every read is
// computed and reported as SKIP.
func NewCache(backend Backend, compute Computer, cfg CacheConfig) *Cache {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 250 * time.Millisecond
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	log := logger.OrNop(cfg.Logger)
	failures := cfg.BreakerFailures

	return &Cache{
		backend: backend,
		compute: compute,
		ttl:     cfg.TTL,
		timeout: cfg.Timeout,
		logger:  log,
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "analytics-cache",
			MaxRequests: 1,
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrMiss) || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("cache circuit breaker state change",
					zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		}),
	}
}

// Get is GetOrCompute with the configured TTL.
func (c *Cache) Get(ctx context.Context, mediaID string) (Snapshot, Status, error) {
	return c.GetOrCompute(ctx, mediaID, c.ttl)
}

// GetOrCompute returns the cached snapshot for mediaID or computes and stores
// a fresh one with ttl. Errors come only from the Computer.
func (c *Cache) GetOrCompute(ctx context.Context, mediaID string, ttl time.Duration) (snap Snapshot, status Status, err error) {
	ctx, span := tracing.Start(ctx, "analytics.GetOrCompute", tracing.MediaID(mediaID))
	defer func() {
		if err == nil {
			metrics.AnalyticsCache.WithLabelValues(string(status)).Inc()
		}
		tracing.End(span, err)
	}()

	if c.backend == nil {
		snap, err = c.compute.ComputeAnalytics(ctx, mediaID)
		return snap, StatusSkip, err
	}

	key := Key(mediaID)
	raw, lookupErr := c.guarded(ctx, func(ctx context.Context) ([]byte, error) {
		return c.backend.Get(ctx, key)
	})
	switch {
	case lookupErr == nil:
		var cached Snapshot
		if err := json.Unmarshal(raw, &cached); err == nil && cached.ViewsPerDay != nil {
			return cached, StatusHit, nil
		}
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key))
	case errors.Is(lookupErr, ErrMiss):
	default:
		c.logger.Warn("cache lookup failed, computing directly", zap.String("key", key), zap.Error(lookupErr))
		snap, err = c.compute.ComputeAnalytics(ctx, mediaID)
		return snap, StatusSkip, err
	}

	snap, err = c.compute.ComputeAnalytics(ctx, mediaID)
	if err != nil {
		return Snapshot{}, StatusMiss, err
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		c.logger.Warn("encode snapshot failed", zap.String("key", key), zap.Error(err))
		return snap, StatusSkip, nil
	}
	_, storeErr := c.guarded(ctx, func(ctx context.Context) ([]byte, error) {
		return nil, c.backend.Set(ctx, key, payload, ttl)
	})
	if storeErr != nil {
		c.logger.Warn("cache store failed", zap.String("key", key), zap.Error(storeErr))
		return snap, StatusSkip, nil
	}
	return snap, StatusMiss, nil
}

// Invalidate deletes the cached snapshot of mediaID. Failures are logged and
// counted, never returned. It bypasses the breaker so a delete is attempted
// even while reads are being skipped.
func (c *Cache) Invalidate(ctx context.Context, mediaID string) {
	if c.backend == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.backend.Delete(ctx, Key(mediaID)); err != nil {
		metrics.CacheInvalidationFailures.Inc()
		c.logger.Warn("cache invalidation failed", zap.String("media_id", mediaID), zap.Error(err))
	}
}

func (c *Cache) guarded(ctx context.Context, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return fn(ctx)
	})
}
