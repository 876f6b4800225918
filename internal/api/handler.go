// Package api exposes the streaming service over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/your-org/mediastream/internal/analytics"
	"github.com/your-org/mediastream/internal/auth"
	"github.com/your-org/mediastream/internal/catalog"
	"github.com/your-org/mediastream/internal/clientip"
	"github.com/your-org/mediastream/internal/ingestion"
	"github.com/your-org/mediastream/internal/ratelimit"
	"github.com/your-org/mediastream/internal/streamtoken"
	"github.com/your-org/mediastream/internal/viewlog"
	"github.com/your-org/mediastream/pkg/logger"
	"github.com/your-org/mediastream/pkg/metrics"
)

// AuthService is the credential store behind /auth and session routes.
type AuthService interface {
	auth.Authenticator
	Signup(ctx context.Context, email, password string) (auth.User, error)
	Login(ctx context.Context, email, password string) (string, error)
}

type StreamIssuer interface {
	IssueStreamToken(ctx context.Context, mediaID string, who auth.Identity) (streamtoken.Grant, error)
}

type Streamer interface {
	Stream(w http.ResponseWriter, r *http.Request, mediaID, token string) error
}

type ViewLogger interface {
	LogView(ctx context.Context, v viewlog.View) (viewlog.Entry, error)
}

type AnalyticsReader interface {
	Get(ctx context.Context, mediaID string) (analytics.Snapshot, analytics.Status, error)
}

type Uploader interface {
	ProcessUpload(ctx context.Context, reader io.Reader, size int64, opts ingestion.UploadOptions) (catalog.Asset, error)
}

// HTTPHandler exposes REST endpoints for the streaming service.
type HTTPHandler struct {
	auth      AuthService
	issuer    StreamIssuer
	streamer  Streamer
	views     ViewLogger
	analytics AnalyticsReader
	uploader  Uploader
	catalog   catalog.Reader
	limiter   *ratelimit.Limiter
	validate  *validator.Validate
	logger    *zap.Logger

	maxSizeBytes   int64
	formMemBytes   int64
	authRateLimit  int
	authRateWindow time.Duration
	router         chi.Router
}

type Params struct {
	Auth      AuthService
	Issuer    StreamIssuer
	Streamer  Streamer
	Views     ViewLogger
	Analytics AnalyticsReader
	Uploader  Uploader
	Catalog   catalog.Reader
	Limiter   *ratelimit.Limiter
	Logger    *zap.Logger

	MaxUploadBytes int64
	FormMemBytes   int64
	// AuthRateLimit requests per AuthRateWindow are allowed on /auth per
	// client. Zero disables the limit.
	AuthRateLimit  int
	AuthRateWindow time.Duration
}

// NewHTTPHandler constructs the HTTP handler and wires routes.
func NewHTTPHandler(p Params) *HTTPHandler {
	h := &HTTPHandler{
		auth:           p.Auth,
		issuer:         p.Issuer,
		streamer:       p.Streamer,
		views:          p.Views,
		analytics:      p.Analytics,
		uploader:       p.Uploader,
		catalog:        p.Catalog,
		limiter:        p.Limiter,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		logger:         logger.OrNop(p.Logger),
		maxSizeBytes:   p.MaxUploadBytes,
		formMemBytes:   p.FormMemBytes,
		authRateLimit:  p.AuthRateLimit,
		authRateWindow: p.AuthRateWindow,
	}
	if h.formMemBytes <= 0 {
		h.formMemBytes = 32 << 20
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", h.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		if h.authRateLimit > 0 {
			r.Use(httprate.Limit(h.authRateLimit, h.authRateWindow,
				httprate.WithKeyFuncs(keyByClientIP),
				httprate.WithLimitHandler(h.writeTooManyRequests),
			))
		}
		r.Post("/signup", h.handleSignup)
		r.Post("/login", h.handleLogin)
	})

	r.Get("/stream/{id}", h.handleStream)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(h.auth, h.writeError))
		r.Post("/media", h.handleUpload)
		r.Get("/media/{id}", h.handleGetMedia)
		r.Get("/media/{id}/stream-url", h.handleStreamURL)
		r.With(ratelimit.Middleware(h.limiter, h.writeTooManyRequests)).Post("/media/{id}/view", h.handleLogView)
		r.Get("/media/{id}/analytics", h.handleAnalytics)
	})

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func keyByClientIP(r *http.Request) (string, error) {
	return clientip.FromRequest(r), nil
}
