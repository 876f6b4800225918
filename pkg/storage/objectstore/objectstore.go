package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound reports that a key does not resolve to readable bytes.
var ErrNotFound = errors.New("object not found")

// Config contains the information required to talk to an object store.
type Config struct {
	Provider  string
	LocalRoot string
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Object is an open, seekable blob. Callers must Close it.
type Object interface {
	io.ReadSeeker
	io.Closer
}

// Info describes a stored object.
type Info struct {
	Key         string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Client represents the capabilities the streaming service expects.
type Client interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string, metadata map[string]string) error
	Open(ctx context.Context, key string) (Object, Info, error)
	Close() error
}

// New creates an object store client based on the given configuration.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "local":
		return newLocalClient(cfg)
	case "minio", "s3":
		return newMinioClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported object store provider: %s", cfg.Provider)
	}
}
