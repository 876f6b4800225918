package database

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis builds a client for url without contacting the server, so the
// process can start while Redis is down. Commands are retried at most once
// and bounded by timeout.
func NewRedis(url string, timeout time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.MaxRetries = 1
	if timeout > 0 {
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}
	return redis.NewClient(opts), nil
}
