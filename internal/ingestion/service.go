// Package ingestion accepts uploaded media files, stores them in the object
// store and registers them in the catalog.
package ingestion

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/mediastream/internal/apperror"
	"github.com/your-org/mediastream/internal/catalog"
	"github.com/your-org/mediastream/pkg/kafka"
	"github.com/your-org/mediastream/pkg/logger"
	"github.com/your-org/mediastream/pkg/storage/objectstore"
)

// sniffLen is how much of the upload is inspected to detect its type.
const sniffLen = 3072

// ErrUnsupportedMedia means the upload is neither audio nor video.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// Service wires together storage, the catalog and Kafka for uploads.
type Service struct {
	store     objectstore.Client
	catalog   catalog.Store
	publisher kafka.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

type Params struct {
	Store     objectstore.Client
	Catalog   catalog.Store
	Publisher kafka.Publisher
	Logger    *zap.Logger
}

// UploadOptions captures metadata about the upload. An empty Type is
// inferred from the file contents.
type UploadOptions struct {
	Title    string
	Type     string
	Filename string
	Owner    string
}

func NewService(p Params) *Service {
	pub := p.Publisher
	if pub == nil {
		pub = kafka.NopPublisher{}
	}
	return &Service{
		store:     p.Store,
		catalog:   p.Catalog,
		publisher: pub,
		logger:    logger.OrNop(p.Logger),
		now:       time.Now,
	}
}

// ProcessUpload streams the file to the object store under a fresh
// <yyyy/mm/dd>/<uuid><ext> key, creates its catalog record and emits a
// media.created event.
func (s *Service) ProcessUpload(ctx context.Context, reader io.Reader, size int64, opts UploadOptions) (catalog.Asset, error) {
	if size <= 0 {
		return catalog.Asset{}, apperror.InvalidArgument("file is empty")
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return catalog.Asset{}, apperror.InvalidArgument("title is required")
	}

	hasher := sha256.New()
	buffered := bufio.NewReaderSize(io.TeeReader(reader, hasher), 64*1024)
	head, err := buffered.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return catalog.Asset{}, apperror.Wrap(apperror.KindInvalidArgument, "unreadable upload", err)
	}
	detected := mimetype.Detect(head)

	mediaType, err := resolveType(opts.Type, detected)
	if err != nil {
		return catalog.Asset{}, apperror.Wrap(apperror.KindInvalidArgument, err.Error(), err)
	}

	now := s.now().UTC()
	id := uuid.NewString()
	objectKey := fmt.Sprintf("%s/%s%s", now.Format("2006/01/02"), id, extension(opts.Filename, detected))

	metadata := map[string]string{
		"original_filename": opts.Filename,
		"media_id":          id,
	}
	if opts.Owner != "" {
		metadata["owner"] = opts.Owner
	}
	if err := s.store.Put(ctx, objectKey, buffered, size, detected.String(), metadata); err != nil {
		return catalog.Asset{}, apperror.Internal("store upload", err)
	}

	asset := catalog.Asset{
		ID:               id,
		Title:            title,
		Type:             mediaType,
		FileRef:          objectKey,
		OriginalFilename: opts.Filename,
		SizeBytes:        size,
		CreatedAt:        now,
	}
	if err := s.catalog.Create(ctx, asset); err != nil {
		s.logger.Error("upload stored but catalog insert failed",
			zap.String("object_key", objectKey), zap.Error(err))
		return catalog.Asset{}, apperror.Internal("create media", err)
	}

	event := MediaCreatedEvent{
		ID:          id,
		Title:       title,
		Type:        string(mediaType),
		ObjectKey:   objectKey,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes:   size,
		ContentType: detected.String(),
		Owner:       opts.Owner,
		CreatedAt:   now,
	}
	if err := kafka.PublishEvent(ctx, s.publisher, id, EventMediaCreated, event); err != nil {
		s.logger.Warn("publish media event failed", zap.String("media_id", id), zap.Error(err))
	}

	s.logger.Info("media uploaded",
		zap.String("media_id", id),
		zap.String("type", string(mediaType)),
		zap.Int64("size_bytes", size))
	return asset, nil
}

// resolveType validates an explicit type, or infers one from the sniffed
// MIME type and its ancestors.
func resolveType(explicit string, detected *mimetype.MIME) (catalog.MediaType, error) {
	if explicit != "" {
		return catalog.ParseMediaType(strings.ToLower(explicit))
	}
	for m := detected; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "video/"):
			return catalog.Video, nil
		case strings.HasPrefix(m.String(), "audio/"):
			return catalog.Audio, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, detected.String())
}

func extension(filename string, detected *mimetype.MIME) string {
	if detected != nil && detected.Extension() != "" {
		return detected.Extension()
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, r := range ext[min(1, len(ext)):] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
