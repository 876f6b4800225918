// Package streaming serves media bytes to holders of a stream token,
// honouring single-range HTTP requests.
package streaming

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/your-org/mediastream/internal/apperror"
	"github.com/your-org/mediastream/internal/catalog"
	"github.com/your-org/mediastream/internal/clientip"
	"github.com/your-org/mediastream/internal/streamtoken"
	"github.com/your-org/mediastream/pkg/logger"
	"github.com/your-org/mediastream/pkg/metrics"
	"github.com/your-org/mediastream/pkg/storage/objectstore"
	"github.com/your-org/mediastream/pkg/tracing"
)

const copyBufferSize = 64 * 1024

// TokenValidator checks a stream token against the requested media id.
type TokenValidator interface {
	Validate(token, mediaID string) (*streamtoken.Claims, error)
}

// BlobOpener resolves a file reference to readable bytes.
type BlobOpener interface {
	Open(ctx context.Context, key string) (objectstore.Object, objectstore.Info, error)
}

// ViewRecorder accepts a view for asynchronous logging. It must not block.
type ViewRecorder interface {
	Record(mediaID, sourceIP string)
}

// Streamer is the range-aware byte streamer.
type Streamer struct {
	tokens  TokenValidator
	catalog catalog.Reader
	blobs   BlobOpener
	views   ViewRecorder
	logger  *zap.Logger
	buffers sync.Pool
}

type Params struct {
	Tokens  TokenValidator
	Catalog catalog.Reader
	Blobs   BlobOpener
	Views   ViewRecorder
	Logger  *zap.Logger
}

func NewStreamer(p Params) *Streamer {
	return &Streamer{
		tokens:  p.Tokens,
		catalog: p.Catalog,
		blobs:   p.Blobs,
		views:   p.Views,
		logger:  logger.OrNop(p.Logger),
		buffers: sync.Pool{New: func() any {
			b := make([]byte, copyBufferSize)
			return &b
		}},
	}
}

// Stream validates the token, resolves the media file and writes it (or the
// requested byte window) to w. A non-nil error means nothing has been written
// yet and the caller should render it. A 416 response is written here.
func (s *Streamer) Stream(w http.ResponseWriter, r *http.Request, mediaID, token string) (err error) {
	ctx, span := tracing.Start(r.Context(), "streaming.Stream", tracing.MediaID(mediaID))
	defer func() { tracing.End(span, err) }()

	if _, err := s.tokens.Validate(token, mediaID); err != nil {
		return tokenError(err)
	}

	asset, err := s.catalog.Get(ctx, mediaID)
	if errors.Is(err, catalog.ErrNotFound) {
		return apperror.NotFound("media not found")
	}
	if err != nil {
		return apperror.Internal("lookup media", err)
	}

	obj, info, err := s.blobs.Open(ctx, asset.FileRef)
	if errors.Is(err, objectstore.ErrNotFound) {
		return apperror.Wrap(apperror.KindNotFound, "file missing on server", err)
	}
	if err != nil {
		return apperror.Internal("open media file", err)
	}
	defer obj.Close()

	size := info.Size
	h := w.Header()

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		h.Set("Content-Type", asset.Type.ContentType())
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		h.Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusOK)
		metrics.StreamResponses.WithLabelValues("200").Inc()
		s.views.Record(asset.ID, clientip.FromRequest(r))
		s.copy(ctx, w, obj, size, mediaID)
		return nil
	}

	br, err := ParseRange(rangeHeader, size)
	if errors.Is(err, ErrUnsatisfiable) {
		h.Set("Content-Range", "bytes */"+strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		metrics.StreamResponses.WithLabelValues("416").Inc()
		return nil
	}
	if err != nil {
		return apperror.Wrap(apperror.KindInvalidArgument, "malformed range header", err)
	}

	if _, err := obj.Seek(br.Start, io.SeekStart); err != nil {
		return apperror.Internal("seek media file", err)
	}

	h.Set("Content-Type", asset.Type.ContentType())
	h.Set("Content-Range", br.ContentRange(size))
	h.Set("Content-Length", strconv.FormatInt(br.Length(), 10))
	h.Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusPartialContent)
	metrics.StreamResponses.WithLabelValues("206").Inc()
	s.views.Record(asset.ID, clientip.FromRequest(r))
	s.copy(ctx, w, obj, br.Length(), mediaID)
	return nil
}

// copy writes exactly n bytes from src, stopping early if the client goes
// away. Headers are already sent, so failures are only logged.
func (s *Streamer) copy(ctx context.Context, w io.Writer, src io.Reader, n int64, mediaID string) {
	bufp := s.buffers.Get().(*[]byte)
	defer s.buffers.Put(bufp)

	written, err := io.CopyBuffer(w, io.LimitReader(ctxReader{ctx: ctx, r: src}, n), *bufp)
	metrics.StreamBytes.Add(float64(written))
	switch {
	case err != nil && ctx.Err() != nil:
		s.logger.Debug("stream aborted by client",
			zap.String("media_id", mediaID), zap.Int64("written", written), zap.Int64("expected", n))
	case err != nil:
		s.logger.Warn("stream interrupted",
			zap.String("media_id", mediaID), zap.Int64("written", written), zap.Error(err))
	case written < n:
		s.logger.Warn("media file shorter than advertised",
			zap.String("media_id", mediaID), zap.Int64("written", written), zap.Int64("expected", n))
	}
}

func tokenError(err error) error {
	msg := "invalid or expired token"
	switch {
	case errors.Is(err, streamtoken.ErrMissing):
		msg = "missing token"
	case errors.Is(err, streamtoken.ErrExpired):
		msg = "token expired"
	case errors.Is(err, streamtoken.ErrWrongPurpose):
		msg = "invalid token purpose"
	case errors.Is(err, streamtoken.ErrMediaMismatch):
		msg = "token media mismatch"
	}
	return apperror.Wrap(apperror.KindUnauthorized, msg, err)
}

// ctxReader fails reads once ctx is done so a disconnected client releases
// the file handle promptly.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
