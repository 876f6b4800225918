package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("log view: %w", NotFound("media not found"))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "media not found", PublicMessage(err))
}

func TestKindOf_PlainErrorIsInternal(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal server error", PublicMessage(err))
}

func TestInternal_HidesMessage(t *testing.T) {
	err := Internal("query media_assets failed", errors.New("connection reset"))
	assert.Equal(t, "internal server error", PublicMessage(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindUnauthorized:        http.StatusUnauthorized,
		KindInvalidArgument:     http.StatusBadRequest,
		KindNotFound:            http.StatusNotFound,
		KindConflict:            http.StatusConflict,
		KindRangeNotSatisfiable: http.StatusRequestedRangeNotSatisfiable,
		KindRateLimited:         http.StatusTooManyRequests,
		KindUnavailable:         http.StatusServiceUnavailable,
		KindInternal:            http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.HTTPStatus(), kind.String())
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := Wrap(KindUnavailable, "cache unavailable", cause)
	assert.ErrorIs(t, err, cause)
}
