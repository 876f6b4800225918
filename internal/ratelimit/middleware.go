package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/your-org/mediastream/internal/clientip"
)

// TooManyRequestsMessage is the body of a refused request.
const TooManyRequestsMessage = "Too many requests, please try again later."

// Middleware refuses requests over the limit with 429. The identity is the
// client IP as resolved by clientip. onLimited renders the refusal; nil
// writes TooManyRequestsMessage as plain text.
func Middleware(l *Limiter, onLimited func(w http.ResponseWriter, r *http.Request)) func(http.Handler) http.Handler {
	if onLimited == nil {
		onLimited = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, TooManyRequestsMessage, http.StatusTooManyRequests)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Check(r.Context(), clientip.FromRequest(r))

			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("RateLimit-Reset", strconv.Itoa(l.RetryAfter(d)))

			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(l.RetryAfter(d)))
				onLimited(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
