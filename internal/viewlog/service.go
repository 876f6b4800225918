// Package viewlog records stream views and keeps the analytics cache
// coherent with them.
package viewlog

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/mediastream/internal/apperror"
	"github.com/your-org/mediastream/internal/catalog"
	"github.com/your-org/mediastream/pkg/kafka"
	"github.com/your-org/mediastream/pkg/logger"
	"github.com/your-org/mediastream/pkg/metrics"
	"github.com/your-org/mediastream/pkg/tracing"
)

// EventViewLogged is the event_type header of view events.
const EventViewLogged = "media.view.logged"

// ViewLoggedEvent is published after a view has been appended.
type ViewLoggedEvent struct {
	MediaID   string    `json:"media_id"`
	SourceIP  string    `json:"source_ip"`
	Timestamp time.Time `json:"timestamp"`
}

// Invalidator drops a cached analytics snapshot. It must not fail the caller.
type Invalidator interface {
	Invalidate(ctx context.Context, mediaID string)
}

// View is a request to log one view. A zero Timestamp means now.
type View struct {
	MediaID   string
	SourceIP  string
	Timestamp time.Time
}

type Service struct {
	catalog   catalog.Reader
	store     Store
	cache     Invalidator
	publisher kafka.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

type Params struct {
	Catalog   catalog.Reader
	Store     Store
	Cache     Invalidator
	Publisher kafka.Publisher
	Logger    *zap.Logger
}

func NewService(p Params) *Service {
	pub := p.Publisher
	if pub == nil {
		pub = kafka.NopPublisher{}
	}
	return &Service{
		catalog:   p.Catalog,
		store:     p.Store,
		cache:     p.Cache,
		publisher: pub,
		logger:    logger.OrNop(p.Logger),
		now:       time.Now,
	}
}

// LogView appends a view entry for an existing media asset, then invalidates
// its cached analytics. Only the append is authoritative: invalidation and
// event publication failures are logged and otherwise ignored.
func (s *Service) LogView(ctx context.Context, v View) (entry Entry, err error) {
	ctx, span := tracing.Start(ctx, "viewlog.LogView", tracing.MediaID(v.MediaID))
	defer func() { tracing.End(span, err) }()

	if !catalog.ValidID(v.MediaID) {
		return Entry{}, apperror.InvalidArgument("malformed media id")
	}
	if _, err := s.catalog.Get(ctx, v.MediaID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Entry{}, apperror.NotFound("media not found")
		}
		return Entry{}, apperror.Internal("lookup media", err)
	}

	ts := v.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	entry = Entry{MediaID: v.MediaID, SourceIP: v.SourceIP, Timestamp: ts.UTC()}

	if err := s.store.Append(ctx, entry); err != nil {
		return Entry{}, apperror.Internal("append view", err)
	}
	metrics.ViewsLogged.Inc()

	// The entry is committed; side effects must not die with the request.
	sideCtx := context.WithoutCancel(ctx)
	if s.cache != nil {
		s.cache.Invalidate(sideCtx, v.MediaID)
	}

	event := ViewLoggedEvent(entry)
	if err := kafka.PublishEvent(sideCtx, s.publisher, entry.MediaID, EventViewLogged, event); err != nil {
		s.logger.Warn("publish view event failed", zap.String("media_id", entry.MediaID), zap.Error(err))
	}
	return entry, nil
}
