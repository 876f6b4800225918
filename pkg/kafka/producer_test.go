package kafka

import (
	"context"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	keys    []string
	values  [][]byte
	headers []map[string]string
}

func (c *capturePublisher) Publish(_ context.Context, key, value []byte, headers map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, string(key))
	c.values = append(c.values, value)
	c.headers = append(c.headers, headers)
	return nil
}

func (c *capturePublisher) Close(context.Context) error { return nil }

func TestPublishEvent(t *testing.T) {
	pub := &capturePublisher{}
	err := PublishEvent(context.Background(), pub, "m1", "media.view.logged", map[string]any{"media_id": "m1"})
	require.NoError(t, err)

	require.Len(t, pub.keys, 1)
	assert.Equal(t, "m1", pub.keys[0])
	assert.Equal(t, "media.view.logged", pub.headers[0]["event_type"])

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(pub.values[0], &decoded))
	assert.Equal(t, "m1", decoded["media_id"])
}

func TestCompressionFromString(t *testing.T) {
	assert.Equal(t, kafkago.Gzip, CompressionFromString("GZIP"))
	assert.Equal(t, kafkago.Zstd, CompressionFromString("zstd"))
	assert.Equal(t, kafkago.Snappy, CompressionFromString("unknown"))
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), nil, nil, nil))
	assert.NoError(t, p.Close(context.Background()))
}
