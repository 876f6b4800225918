package viewlog

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/mediastream/pkg/logger"
	"github.com/your-org/mediastream/pkg/metrics"
)

// ErrDispatcherClosed is returned by Close on a second call.
var ErrDispatcherClosed = errors.New("view dispatcher closed")

// Logger is the synchronous view logging operation run by the dispatcher.
type Logger interface {
	LogView(ctx context.Context, v View) (Entry, error)
}

// Dispatcher logs views off the request path. Record never blocks: when the
// queue is full the view is dropped with a warning. Each job runs once with
// its own timeout, independent of the request that produced it.
type Dispatcher struct {
	views   Logger
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan View
	wg     sync.WaitGroup
}

type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	Logger    *zap.Logger
}

// NewDispatcher starts cfg.Workers goroutines draining the queue.
func NewDispatcher(views Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	d := &Dispatcher{
		views:   views,
		logger:  logger.OrNop(cfg.Logger),
		timeout: cfg.Timeout,
		now:     time.Now,
		queue:   make(chan View, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Record queues a view stamped with the current time.
func (d *Dispatcher) Record(mediaID, sourceIP string) {
	v := View{MediaID: mediaID, SourceIP: sourceIP, Timestamp: d.now()}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.ViewLogFailures.WithLabelValues("closed").Inc()
		d.logger.Warn("view dropped after shutdown", zap.String("media_id", mediaID))
		return
	}
	select {
	case d.queue <- v:
	default:
		metrics.ViewLogFailures.WithLabelValues("queue_full").Inc()
		d.logger.Warn("view log queue full, dropping view",
			zap.String("media_id", mediaID), zap.String("source_ip", sourceIP))
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for v := range d.queue {
		d.process(v)
	}
}

func (d *Dispatcher) process(v View) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if _, err := d.views.LogView(ctx, v); err != nil {
		metrics.ViewLogFailures.WithLabelValues("error").Inc()
		d.logger.Warn("async view log failed",
			zap.String("media_id", v.MediaID), zap.String("source_ip", v.SourceIP), zap.Error(err))
	}
}

// Close stops accepting views and waits for queued ones to finish or for
// ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
