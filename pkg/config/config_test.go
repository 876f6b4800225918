package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "testsecret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "testsecret", cfg.Stream.TokenSecret)
	assert.Equal(t, 600*time.Second, cfg.Stream.TokenTTL())
	assert.Equal(t, 60*time.Second, cfg.Analytics.CacheTTL())
	assert.Equal(t, time.Minute, cfg.RateLimit.Window())
	assert.Equal(t, 30, cfg.RateLimit.MaxRequests)
	assert.Equal(t, "bolt", cfg.Store.Driver)
	assert.Equal(t, "local", cfg.Storage.Provider)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Zero(t, cfg.HTTP.WriteTimeout)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "testsecret")
	t.Setenv("STREAM_TOKEN_SECRET", "streamsecret")
	t.Setenv("ANALYTICS_CACHE_TTL_SEC", "2")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "1500")
	t.Setenv("RATE_LIMIT_MAX", "5")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "streamsecret", cfg.Stream.TokenSecret)
	assert.Equal(t, 2*time.Second, cfg.Analytics.CacheTTL())
	assert.Equal(t, 1500*time.Millisecond, cfg.RateLimit.Window())
	assert.Equal(t, 5, cfg.RateLimit.MaxRequests)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_RejectsUnknownDrivers(t *testing.T) {
	t.Setenv("JWT_SECRET", "testsecret")
	t.Setenv("STORE_DRIVER", "mongo")

	_, err := Load()
	assert.ErrorContains(t, err, "STORE_DRIVER")
}
