package streamtoken

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mediastream/internal/apperror"
	"github.com/your-org/mediastream/internal/auth"
	"github.com/your-org/mediastream/internal/catalog"
)

func newTestIssuer(t *testing.T) (*Issuer, *catalog.MemoryStore) {
	t.Helper()
	store := catalog.NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), catalog.Asset{ID: "mediaA", Type: catalog.Video, FileRef: "a.mp4"}))
	require.NoError(t, store.Create(context.Background(), catalog.Asset{ID: "mediaB", Type: catalog.Audio, FileRef: "b.mp3"}))
	iss, err := NewIssuer(Params{Secret: "testsecret", TTL: 600 * time.Second, BaseURL: "https://cdn.example.com/", Catalog: store})
	require.NoError(t, err)
	return iss, store
}

func TestIssueStreamToken(t *testing.T) {
	iss, _ := newTestIssuer(t)
	grant, err := iss.IssueStreamToken(context.Background(), "mediaA", auth.Identity{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, 600*time.Second, grant.ExpiresIn)
	assert.True(t, strings.HasPrefix(grant.URL, "https://cdn.example.com/stream/mediaA?token="))

	u, err := url.Parse(grant.URL)
	require.NoError(t, err)
	assert.Equal(t, grant.Token, u.Query().Get("token"))

	claims, err := iss.Validate(grant.Token, "mediaA")
	require.NoError(t, err)
	assert.Equal(t, Purpose, claims.Purpose)
}

func TestIssueStreamToken_UnknownMedia(t *testing.T) {
	iss, _ := newTestIssuer(t)
	_, err := iss.IssueStreamToken(context.Background(), "missing", auth.Identity{})
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	_, err = iss.IssueStreamToken(context.Background(), "bad id!", auth.Identity{})
	assert.Equal(t, apperror.KindInvalidArgument, apperror.KindOf(err))
}

func TestValidate_Scoping(t *testing.T) {
	iss, _ := newTestIssuer(t)
	token, _, err := iss.Mint("mediaA")
	require.NoError(t, err)

	_, err = iss.Validate(token, "mediaB")
	assert.ErrorIs(t, err, ErrMediaMismatch)
}

func TestValidate_Expiry(t *testing.T) {
	iss, _ := newTestIssuer(t)
	minted := time.Now()
	iss.now = func() time.Time { return minted }
	token, _, err := iss.Mint("mediaA")
	require.NoError(t, err)

	iss.now = func() time.Time { return minted.Add(599 * time.Second) }
	_, err = iss.Validate(token, "mediaA")
	assert.NoError(t, err)

	iss.now = func() time.Time { return minted.Add(601 * time.Second) }
	_, err = iss.Validate(token, "mediaA")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestValidate_WrongPurpose(t *testing.T) {
	iss, _ := newTestIssuer(t)
	claims := jwt.MapClaims{
		"media_id": "mediaA",
		"purpose":  "session",
		"exp":      time.Now().Add(time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("testsecret"))
	require.NoError(t, err)

	_, err = iss.Validate(token, "mediaA")
	assert.ErrorIs(t, err, ErrWrongPurpose)
}

func TestValidate_TamperedAndMissing(t *testing.T) {
	iss, _ := newTestIssuer(t)
	token, _, err := iss.Mint("mediaA")
	require.NoError(t, err)

	other, err := NewIssuer(Params{Secret: "another-secret", TTL: time.Minute})
	require.NoError(t, err)
	_, err = other.Validate(token, "mediaA")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = iss.Validate(token[:len(token)-2]+"xx", "mediaA")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = iss.Validate("", "mediaA")
	assert.ErrorIs(t, err, ErrMissing)
}

func TestValidate_RejectsNoneAlgorithm(t *testing.T) {
	iss, _ := newTestIssuer(t)
	claims := jwt.MapClaims{"media_id": "mediaA", "purpose": Purpose, "exp": time.Now().Add(time.Minute).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = iss.Validate(token, "mediaA")
	assert.ErrorIs(t, err, ErrInvalid)
}
