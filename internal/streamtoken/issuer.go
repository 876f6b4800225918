// Package streamtoken mints and validates short-lived HS256 tokens that
// grant streaming access to exactly one media asset.
//
// Tokens are not stored and cannot be revoked before they expire. The TTL
// (600s by default) bounds how long a leaked URL stays usable.
package streamtoken

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/your-org/mediastream/internal/apperror"
	"github.com/your-org/mediastream/internal/auth"
	"github.com/your-org/mediastream/internal/catalog"
	"github.com/your-org/mediastream/pkg/logger"
)

// Purpose is the only purpose claim accepted by Validate.
const Purpose = "stream"

var (
	ErrMissing       = errors.New("missing token")
	ErrInvalid       = errors.New("invalid token")
	ErrExpired       = errors.New("token expired")
	ErrWrongPurpose  = errors.New("invalid token purpose")
	ErrMediaMismatch = errors.New("token media mismatch")
)

// Claims are carried by stream tokens.
type Claims struct {
	MediaID string `json:"media_id"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Grant is the result of issuing a stream token.
type Grant struct {
	Token     string
	URL       string
	ExpiresIn time.Duration
	ExpiresAt time.Time
}

// Issuer holds the process-wide signing key. It is read-only after
// construction and safe for concurrent use.
type Issuer struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
	catalog catalog.Reader
	logger  *zap.Logger
	now     func() time.Time
}

type Params struct {
	Secret  string
	TTL     time.Duration
	BaseURL string
	Catalog catalog.Reader
	Logger  *zap.Logger
}

func NewIssuer(p Params) (*Issuer, error) {
	if p.Secret == "" {
		return nil, fmt.Errorf("stream token secret is required")
	}
	if p.TTL <= 0 {
		return nil, fmt.Errorf("stream token ttl must be positive")
	}
	return &Issuer{
		secret:  []byte(p.Secret),
		ttl:     p.TTL,
		baseURL: strings.TrimRight(p.BaseURL, "/"),
		catalog: p.Catalog,
		logger:  logger.OrNop(p.Logger),
		now:     time.Now,
	}, nil
}

// TTL is the lifetime of minted tokens.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// IssueStreamToken checks that mediaID exists and returns a signed URL for it.
// The caller is expected to hold a valid session already.
func (i *Issuer) IssueStreamToken(ctx context.Context, mediaID string, who auth.Identity) (Grant, error) {
	if !catalog.ValidID(mediaID) {
		return Grant{}, apperror.InvalidArgument("malformed media id")
	}
	if _, err := i.catalog.Get(ctx, mediaID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Grant{}, apperror.NotFound("media not found")
		}
		return Grant{}, apperror.Internal("lookup media", err)
	}

	token, expiresAt, err := i.Mint(mediaID)
	if err != nil {
		return Grant{}, apperror.Internal("mint stream token", err)
	}
	i.logger.Debug("stream token issued",
		zap.String("media_id", mediaID),
		zap.String("user_id", who.UserID),
		zap.Time("expires_at", expiresAt))

	return Grant{
		Token:     token,
		URL:       i.StreamURL(mediaID, token),
		ExpiresIn: i.ttl,
		ExpiresAt: expiresAt,
	}, nil
}

// Mint signs a token for mediaID without consulting the catalog.
func (i *Issuer) Mint(mediaID string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := &Claims{
		MediaID: mediaID,
		Purpose: Purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign stream token: %w", err)
	}
	return signed, expiresAt, nil
}

// StreamURL builds the public URL for a token.
func (i *Issuer) StreamURL(mediaID, token string) string {
	return fmt.Sprintf("%s/stream/%s?token=%s", i.baseURL, url.PathEscape(mediaID), url.QueryEscape(token))
}

// Validate accepts token only if the signature verifies, it has not expired,
// its purpose is "stream" and it was minted for mediaID.
func (i *Issuer) Validate(token, mediaID string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissing
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if claims.Purpose != Purpose {
		return nil, ErrWrongPurpose
	}
	if claims.MediaID != mediaID {
		return nil, ErrMediaMismatch
	}
	return claims, nil
}
