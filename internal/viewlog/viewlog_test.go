package viewlog

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mediastream/internal/apperror"
	"github.com/your-org/mediastream/internal/catalog"
	"github.com/your-org/mediastream/pkg/database"
)

func TestStores(t *testing.T) {
	db, err := database.OpenBolt(filepath.Join(t.TempDir(), "views.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"bolt":   NewBoltStore(db),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			require.NoError(t, store.Append(ctx, Entry{MediaID: "m1", SourceIP: "1.1.1.1", Timestamp: day}))
			require.NoError(t, store.Append(ctx, Entry{MediaID: "m1", SourceIP: "2.2.2.2", Timestamp: day.Add(time.Hour)}))
			require.NoError(t, store.Append(ctx, Entry{MediaID: "m2", SourceIP: "3.3.3.3", Timestamp: day}))

			var got []Entry
			require.NoError(t, store.ForMedia(ctx, "m1", func(e Entry) error {
				got = append(got, e)
				return nil
			}))
			require.Len(t, got, 2)
			assert.Equal(t, "1.1.1.1", got[0].SourceIP)
			assert.True(t, day.Equal(got[0].Timestamp))
			assert.Equal(t, "2.2.2.2", got[1].SourceIP)

			require.NoError(t, store.ForMedia(ctx, "unknown", func(Entry) error {
				t.Fatal("no entries expected")
				return nil
			}))

			stop := errors.New("stop")
			calls := 0
			err := store.ForMedia(ctx, "m1", func(Entry) error {
				calls++
				return stop
			})
			assert.ErrorIs(t, err, stop)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp(json.RawMessage(`"2024-03-01T10:00:00Z"`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), got)

	got, err = ParseTimestamp(json.RawMessage(`"2024-03-01T10:00:00.5+02:00"`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 500e6, time.UTC), got.UTC())

	got, err = ParseTimestamp(json.RawMessage(`1709287200000`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), got)

	for _, empty := range []string{"", "null", "  "} {
		got, err = ParseTimestamp(json.RawMessage(empty))
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	}

	for _, bad := range []string{`"yesterday"`, `"2024-03-01"`, `true`, `{}`, `-5`, `"`} {
		_, err := ParseTimestamp(json.RawMessage(bad))
		assert.Error(t, err, bad)
	}
}

type fakeInvalidator struct {
	mu     sync.Mutex
	ids    []string
	ctxErr error
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	f.ctxErr = ctx.Err()
}

type capturePublisher struct {
	mu     sync.Mutex
	events []ViewLoggedEvent
	err    error
	ctxErr error
}

func (p *capturePublisher) Publish(ctx context.Context, _ []byte, value []byte, headers map[string]string) error {
	p.mu.Lock()
	p.ctxErr = ctx.Err()
	p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	var e ViewLoggedEvent
	if err := json.Unmarshal(value, &e); err != nil {
		return err
	}
	if headers["event_type"] != EventViewLogged {
		return errors.New("unexpected event type")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) Close(context.Context) error { return nil }

func newService(t *testing.T, pub *capturePublisher) (*Service, *MemoryStore, *fakeInvalidator) {
	t.Helper()
	cat := catalog.NewMemoryStore()
	require.NoError(t, cat.Create(context.Background(), catalog.Asset{ID: "M", Type: catalog.Video, FileRef: "m.mp4"}))
	store := NewMemoryStore()
	inv := &fakeInvalidator{}
	svc := NewService(Params{Catalog: cat, Store: store, Cache: inv, Publisher: pub})
	return svc, store, inv
}

func TestLogView(t *testing.T) {
	pub := &capturePublisher{}
	svc, store, inv := newService(t, pub)
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	entry, err := svc.LogView(context.Background(), View{MediaID: "M", SourceIP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, fixed, entry.Timestamp)
	assert.Equal(t, []string{"M"}, inv.ids)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "10.0.0.1", pub.events[0].SourceIP)

	explicit := time.Date(2023, 1, 1, 0, 0, 0, 0, time.FixedZone("x", 3600))
	entry, err = svc.LogView(context.Background(), View{MediaID: "M", SourceIP: "10.0.0.2", Timestamp: explicit})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, entry.Timestamp.Location())
	assert.True(t, explicit.Equal(entry.Timestamp))

	count := 0
	require.NoError(t, store.ForMedia(context.Background(), "M", func(Entry) error { count++; return nil }))
	assert.Equal(t, 2, count)
}

func TestLogView_UnknownMedia(t *testing.T) {
	svc, store, inv := newService(t, &capturePublisher{})

	_, err := svc.LogView(context.Background(), View{MediaID: "nope", SourceIP: "1.2.3.4"})
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	_, err = svc.LogView(context.Background(), View{MediaID: "../etc", SourceIP: "1.2.3.4"})
	assert.Equal(t, apperror.KindInvalidArgument, apperror.KindOf(err))

	assert.Empty(t, inv.ids)
	assert.Empty(t, store.entries)
}

func TestLogView_PublishFailureDoesNotFail(t *testing.T) {
	svc, _, inv := newService(t, &capturePublisher{err: errors.New("broker down")})
	_, err := svc.LogView(context.Background(), View{MediaID: "M", SourceIP: "1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"M"}, inv.ids)
}

func TestLogView_SideEffectsOutliveCancelledRequest(t *testing.T) {
	pub := &capturePublisher{}
	svc, _, inv := newService(t, pub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.LogView(ctx, View{MediaID: "M", SourceIP: "1.2.3.4"})
	require.NoError(t, err)

	assert.Equal(t, []string{"M"}, inv.ids)
	assert.NoError(t, inv.ctxErr)
	require.Len(t, pub.events, 1)
	assert.NoError(t, pub.ctxErr)
}

type blockingLogger struct {
	release chan struct{}
	mu      sync.Mutex
	views   []View
}

func (b *blockingLogger) LogView(ctx context.Context, v View) (Entry, error) {
	if b.release != nil {
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.views = append(b.views, v)
	if ctx.Err() != nil {
		return Entry{}, ctx.Err()
	}
	return Entry{MediaID: v.MediaID}, nil
}

func TestDispatcher_DeliversAndDrains(t *testing.T) {
	sink := &blockingLogger{}
	d := NewDispatcher(sink, DispatcherConfig{Workers: 2, QueueSize: 16, Timeout: time.Second})

	for i := 0; i < 10; i++ {
		d.Record("M", "10.0.0.1")
	}
	require.NoError(t, d.Close(context.Background()))
	assert.Len(t, sink.views, 10)
	for _, v := range sink.views {
		assert.False(t, v.Timestamp.IsZero())
	}

	d.Record("M", "10.0.0.1")
	assert.Len(t, sink.views, 10, "views after close are dropped")
	assert.ErrorIs(t, d.Close(context.Background()), ErrDispatcherClosed)
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	sink := &blockingLogger{release: make(chan struct{})}
	d := NewDispatcher(sink, DispatcherConfig{Workers: 1, QueueSize: 1, Timeout: time.Second})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			d.Record("M", "10.0.0.1")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(sink.release)
	require.NoError(t, d.Close(context.Background()))
	assert.Less(t, len(sink.views), 20)
	assert.GreaterOrEqual(t, len(sink.views), 1)
}
