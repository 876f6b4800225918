package viewlog

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// ParseTimestamp decodes the optional timestamp field of a view request.
// Empty input and JSON null mean "not supplied" and return the zero time.
// Strings must be RFC 3339; numbers are unix milliseconds.
func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("decode timestamp: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		return t, nil
	}

	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return time.Time{}, fmt.Errorf("timestamp must be an RFC 3339 string or unix milliseconds")
	}
	if ms < 0 || ms > float64(math.MaxInt64/int64(time.Millisecond)) {
		return time.Time{}, fmt.Errorf("timestamp %s out of range", raw)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}
