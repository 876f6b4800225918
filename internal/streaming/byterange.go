package streaming

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedRange covers syntax errors, suffix ranges, start > end and
	// multi-range requests. All map to 400.
	ErrMalformedRange = errors.New("malformed range")
	// ErrUnsatisfiable means start or end lies beyond the end of the file.
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// ByteRange is an inclusive window [Start, End] into a file.
type ByteRange struct {
	Start int64
	End   int64
}

// Length is the number of bytes covered.
func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// ContentRange formats the Content-Range header value for a file of size.
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange parses a single "bytes=start-end" range against size. The end
// is optional and defaults to size-1. Only one range is accepted; a header
// listing several is rejected rather than partially served.
func ParseRange(header string, size int64) (ByteRange, error) {
	rangeSet, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return ByteRange{}, fmt.Errorf("%w: unsupported unit", ErrMalformedRange)
	}
	if strings.Contains(rangeSet, ",") {
		return ByteRange{}, fmt.Errorf("%w: multiple ranges are not supported", ErrMalformedRange)
	}
	startStr, endStr, found := strings.Cut(strings.TrimSpace(rangeSet), "-")
	if !found {
		return ByteRange{}, fmt.Errorf("%w: missing '-'", ErrMalformedRange)
	}
	startStr, endStr = strings.TrimSpace(startStr), strings.TrimSpace(endStr)
	if startStr == "" {
		return ByteRange{}, fmt.Errorf("%w: suffix ranges are not supported", ErrMalformedRange)
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, fmt.Errorf("%w: bad start %q", ErrMalformedRange, startStr)
	}
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return ByteRange{}, fmt.Errorf("%w: bad end %q", ErrMalformedRange, endStr)
		}
	}

	if start >= size || end >= size {
		return ByteRange{}, ErrUnsatisfiable
	}
	if start > end {
		return ByteRange{}, fmt.Errorf("%w: start after end", ErrMalformedRange)
	}
	return ByteRange{Start: start, End: end}, nil
}
