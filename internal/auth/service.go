// Package auth is the credential store: signup, login and session token
// validation for the management API.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/your-org/mediastream/internal/apperror"
	"github.com/your-org/mediastream/pkg/logger"
)

// Identity is the authenticated caller of a session-protected route.
type Identity struct {
	UserID string
	Email  string
}

// Service verifies credentials and issues session tokens.
type Service struct {
	users      UserStore
	tokens     *JWTManager
	bcryptCost int
	logger     *zap.Logger
}

type Params struct {
	Users  UserStore
	Tokens *JWTManager
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Logger     *zap.Logger
}

func NewService(p Params) *Service {
	cost := p.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		users:      p.Users,
		tokens:     p.Tokens,
		bcryptCost: cost,
		logger:     logger.OrNop(p.Logger),
	}
}

// Signup registers a new user.
func (s *Service) Signup(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return User{}, apperror.Internal("hash password", err)
	}
	u := User{
		ID:             uuid.NewString(),
		Email:          email,
		HashedPassword: string(hashed),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, apperror.Conflict("user already exists")
		}
		return User{}, apperror.Internal("create user", err)
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID))
	return u, nil
}

// Login verifies credentials and returns a session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return "", apperror.Unauthorized("invalid credentials")
	}
	if err != nil {
		return "", apperror.Internal("lookup user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password)); err != nil {
		return "", apperror.Unauthorized("invalid credentials")
	}
	token, err := s.tokens.GenerateToken(u.ID)
	if err != nil {
		return "", apperror.Internal("issue session token", err)
	}
	return token, nil
}

// Authenticate validates a session token and confirms the user still exists.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return Identity{}, apperror.Unauthorized("invalid or expired token")
	}
	u, err := s.users.UserByID(ctx, claims.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return Identity{}, apperror.Unauthorized("invalid token")
	}
	if err != nil {
		return Identity{}, apperror.Internal("lookup user", err)
	}
	return Identity{UserID: u.ID, Email: u.Email}, nil
}
