package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/your-org/mediastream/internal/apperror"
)

type identityKey struct{}

// Authenticator validates session tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// ErrorWriter renders err to the client.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// RequireSession rejects requests without a valid "Authorization: Bearer"
// session token and stores the Identity on the request context.
func RequireSession(a Authenticator, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeErr(w, r, apperror.Unauthorized("missing token"))
				return
			}
			id, err := a.Authenticate(r.Context(), strings.TrimSpace(token))
			if err != nil {
				writeErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller set by RequireSession.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
