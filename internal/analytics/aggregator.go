// Package analytics derives per-media view statistics from the view log and
// caches them in front of the computation.
package analytics

import (
	"context"
	"errors"

	"github.com/your-org/mediastream/internal/apperror"
	"github.com/your-org/mediastream/internal/catalog"
	"github.com/your-org/mediastream/internal/viewlog"
	"github.com/your-org/mediastream/pkg/tracing"
)

// DayLayout formats views_per_day keys.
const DayLayout = "2006-01-02"

// Snapshot is the aggregate for one media asset.
type Snapshot struct {
	TotalViews  int            `json:"total_views"`
	UniqueIPs   int            `json:"unique_ips"`
	ViewsPerDay map[string]int `json:"views_per_day"`
}

// ViewSource replays the view log for a media id.
type ViewSource interface {
	ForMedia(ctx context.Context, mediaID string, fn func(viewlog.Entry) error) error
}

// Aggregator computes snapshots. It holds no state between calls.
type Aggregator struct {
	catalog catalog.Reader
	views   ViewSource
}

func NewAggregator(cat catalog.Reader, views ViewSource) *Aggregator {
	return &Aggregator{catalog: cat, views: views}
}

// ComputeAnalytics scans every view of mediaID. Days are UTC calendar days.
func (a *Aggregator) ComputeAnalytics(ctx context.Context, mediaID string) (snap Snapshot, err error) {
	ctx, span := tracing.Start(ctx, "analytics.ComputeAnalytics", tracing.MediaID(mediaID))
	defer func() { tracing.End(span, err) }()

	if !catalog.ValidID(mediaID) {
		return Snapshot{}, apperror.InvalidArgument("malformed media id")
	}
	if _, err := a.catalog.Get(ctx, mediaID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Snapshot{}, apperror.NotFound("media not found")
		}
		return Snapshot{}, apperror.Internal("lookup media", err)
	}

	snap = Snapshot{ViewsPerDay: map[string]int{}}
	ips := map[string]struct{}{}
	err = a.views.ForMedia(ctx, mediaID, func(e viewlog.Entry) error {
		snap.TotalViews++
		ips[e.SourceIP] = struct{}{}
		snap.ViewsPerDay[e.Timestamp.UTC().Format(DayLayout)]++
		return nil
	})
	if err != nil {
		return Snapshot{}, apperror.Internal("read view log", err)
	}
	snap.UniqueIPs = len(ips)
	return snap, nil
}
