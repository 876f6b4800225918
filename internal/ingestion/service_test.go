package ingestion

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mediastream/internal/apperror"
	"github.com/your-org/mediastream/internal/catalog"
	"github.com/your-org/mediastream/pkg/storage/objectstore"
)

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []MediaCreatedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, key, value []byte, headers map[string]string) error {
	var e MediaCreatedEvent
	if err := json.Unmarshal(value, &e); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if headers["event_type"] == EventMediaCreated {
		p.keys = append(p.keys, string(key))
		p.events = append(p.events, e)
	}
	return nil
}

func (p *recordingPublisher) Close(context.Context) error { return nil }

func newTestService(t *testing.T) (*Service, objectstore.Client, *catalog.MemoryStore, *recordingPublisher) {
	t.Helper()
	store, err := objectstore.New(objectstore.Config{Provider: "local", LocalRoot: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cat := catalog.NewMemoryStore()
	pub := &recordingPublisher{}
	svc := NewService(Params{Store: store, Catalog: cat, Publisher: pub})
	svc.now = func() time.Time { return time.Date(2024, 7, 9, 10, 0, 0, 0, time.UTC) }
	return svc, store, cat, pub
}

// mp3Payload starts with an ID3v2 tag header.
func mp3Payload() []byte {
	b := append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{0xAA}, 4000)...)
	return b
}

func TestProcessUpload_SniffsAudio(t *testing.T) {
	svc, store, cat, pub := newTestService(t)
	payload := mp3Payload()

	asset, err := svc.ProcessUpload(context.Background(), bytes.NewReader(payload), int64(len(payload)), UploadOptions{
		Title:    "  Episode 1 ",
		Filename: "episode.mp3",
		Owner:    "user-1",
	})
	require.NoError(t, err)

	assert.Equal(t, catalog.Audio, asset.Type)
	assert.Equal(t, "Episode 1", asset.Title)
	assert.Equal(t, int64(len(payload)), asset.SizeBytes)
	assert.True(t, strings.HasPrefix(asset.FileRef, "2024/07/09/"+asset.ID), asset.FileRef)
	assert.True(t, strings.HasSuffix(asset.FileRef, ".mp3"), asset.FileRef)

	stored, err := cat.Get(context.Background(), asset.ID)
	require.NoError(t, err)
	assert.Equal(t, asset, stored)

	obj, info, err := store.Open(context.Background(), asset.FileRef)
	require.NoError(t, err)
	defer obj.Close()
	got, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, int64(len(payload)), info.Size)

	require.Len(t, pub.events, 1)
	assert.Equal(t, asset.ID, pub.keys[0])
	assert.Equal(t, "audio", pub.events[0].Type)
	assert.Len(t, pub.events[0].Checksum, 64)
	assert.Equal(t, "user-1", pub.events[0].Owner)
}

func TestProcessUpload_ExplicitType(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	payload := []byte(strings.Repeat("plain text is not media ", 10))

	_, err := svc.ProcessUpload(context.Background(), bytes.NewReader(payload), int64(len(payload)), UploadOptions{Title: "x"})
	assert.Equal(t, apperror.KindInvalidArgument, apperror.KindOf(err))
	assert.ErrorIs(t, err, ErrUnsupportedMedia)

	asset, err := svc.ProcessUpload(context.Background(), bytes.NewReader(payload), int64(len(payload)), UploadOptions{
		Title: "x", Type: "VIDEO", Filename: "clip.MP4",
	})
	require.NoError(t, err)
	assert.Equal(t, catalog.Video, asset.Type)

	_, err = svc.ProcessUpload(context.Background(), bytes.NewReader(payload), int64(len(payload)), UploadOptions{Title: "x", Type: "image"})
	assert.Equal(t, apperror.KindInvalidArgument, apperror.KindOf(err))
}

func TestProcessUpload_Validation(t *testing.T) {
	svc, _, _, pub := newTestService(t)

	_, err := svc.ProcessUpload(context.Background(), bytes.NewReader(nil), 0, UploadOptions{Title: "x"})
	assert.Equal(t, apperror.KindInvalidArgument, apperror.KindOf(err))

	payload := mp3Payload()
	_, err = svc.ProcessUpload(context.Background(), bytes.NewReader(payload), int64(len(payload)), UploadOptions{Title: " "})
	assert.Equal(t, apperror.KindInvalidArgument, apperror.KindOf(err))

	_, err = svc.ProcessUpload(context.Background(), bytes.NewReader(payload), int64(len(payload))+10, UploadOptions{Title: "short"})
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))

	assert.Empty(t, pub.events)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".bin", extension("file.bin", nil))
	assert.Equal(t, "", extension("file.b?n", nil))
	assert.Equal(t, "", extension("noext", nil))
}
