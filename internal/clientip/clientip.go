// Package clientip derives the client identity used for view logging and
// rate limiting.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Unknown is returned when neither a forwarded hop nor a peer address exists.
const Unknown = "unknown"

// FromRequest prefers the first hop of X-Forwarded-For and falls back to the
// transport peer address (port stripped).
func FromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if r.RemoteAddr == "" {
		return Unknown
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
