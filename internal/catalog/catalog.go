// Package catalog stores media asset metadata.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrNotFound is returned when no asset has the requested id.
var ErrNotFound = errors.New("media not found")

// MediaType is the coarse kind of a media asset.
type MediaType string

const (
	Video MediaType = "video"
	Audio MediaType = "audio"
)

// ParseMediaType validates s as a MediaType.
func ParseMediaType(s string) (MediaType, error) {
	switch MediaType(s) {
	case Video, Audio:
		return MediaType(s), nil
	default:
		return "", fmt.Errorf("unsupported media type %q", s)
	}
}

// ContentType is the response Content-Type for streams of this type.
// It does not inspect the actual encoding.
func (t MediaType) ContentType() string {
	if t == Video {
		return "video/mp4"
	}
	return "audio/mpeg"
}

// Asset is a media record. FileRef is an object store key.
type Asset struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Type             MediaType `json:"type"`
	FileRef          string    `json:"file_ref"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	SizeBytes        int64     `json:"size_bytes"`
	CreatedAt        time.Time `json:"created_at"`
}

// Reader resolves assets by id.
type Reader interface {
	Get(ctx context.Context, id string) (Asset, error)
}

// Store is a Reader that can also register new assets.
type Store interface {
	Reader
	Create(ctx context.Context, asset Asset) error
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidID reports whether id is well-formed. It does not check existence.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
