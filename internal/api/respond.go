package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/your-org/mediastream/internal/apperror"
	"github.com/your-org/mediastream/internal/ratelimit"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}

// writeError renders err as {"error": msg}. Internal errors are logged and
// replaced with a generic message.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperror.KindOf(err)
	if kind == apperror.KindInternal {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeErrorMessage(w, kind.HTTPStatus(), apperror.PublicMessage(err))
}

func (h *HTTPHandler) writeTooManyRequests(w http.ResponseWriter, _ *http.Request) {
	writeErrorMessage(w, http.StatusTooManyRequests, ratelimit.TooManyRequestsMessage)
}

// decodeJSON reads a JSON body into dst and validates it. An empty body
// leaves dst at its zero value when allowEmpty is set.
func (h *HTTPHandler) decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody+1))
	if err != nil {
		return apperror.Wrap(apperror.KindInvalidArgument, "unreadable body", err)
	}
	if len(data) > maxJSONBody {
		return apperror.InvalidArgument("request body too large")
	}
	if len(bytes.TrimSpace(data)) > 0 || !allowEmpty {
		if err := json.Unmarshal(data, dst); err != nil {
			return apperror.Wrap(apperror.KindInvalidArgument, "invalid JSON body", err)
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperror.Wrap(apperror.KindInvalidArgument, validationMessage(verrs[0]), err)
		}
		return apperror.Wrap(apperror.KindInvalidArgument, "invalid request", err)
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	default:
		return field + " is invalid"
	}
}

// accessLog writes one line per request once the response is complete.
func (h *HTTPHandler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
