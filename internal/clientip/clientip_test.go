package clientip

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{"forwarded first hop", "203.0.113.7, 10.0.0.1", "10.0.0.1:5555", "203.0.113.7"},
		{"forwarded single", " 198.51.100.2 ", "10.0.0.1:5555", "198.51.100.2"},
		{"empty first hop falls back", ", 10.0.0.2", "192.0.2.9:80", "192.0.2.9"},
		{"peer only", "", "192.0.2.1:41234", "192.0.2.1"},
		{"ipv6 peer", "", "[2001:db8::1]:443", "2001:db8::1"},
		{"peer without port", "", "192.0.2.3", "192.0.2.3"},
		{"nothing", "", "", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, FromRequest(r))
		})
	}
}
