package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	bolt "go.etcd.io/bbolt"

	"github.com/your-org/mediastream/pkg/database"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// User is a stored credential. Email is lower-cased.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"hashed_password"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserStore persists credentials.
type UserStore interface {
	CreateUser(ctx context.Context, u User) error
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
}

type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{byID: map[string]User{}, byEmail: map[string]string{}}
}

func (s *MemoryUserStore) CreateUser(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[u.Email]; taken {
		return ErrEmailTaken
	}
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *MemoryUserStore) UserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryUserStore) UserByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// BoltUserStore keeps users by id plus an email → id index bucket.
type BoltUserStore struct {
	db *bolt.DB
}

func NewBoltUserStore(db *bolt.DB) *BoltUserStore {
	return &BoltUserStore{db: db}
}

func (s *BoltUserStore) CreateUser(_ context.Context, u User) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		emails := tx.Bucket(database.UserEmailsBucket)
		if emails.Get([]byte(u.Email)) != nil {
			return ErrEmailTaken
		}
		if err := emails.Put([]byte(u.Email), []byte(u.ID)); err != nil {
			return err
		}
		return tx.Bucket(database.UsersBucket).Put([]byte(u.ID), payload)
	})
}

func (s *BoltUserStore) UserByEmail(ctx context.Context, email string) (User, error) {
	var id []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(database.UserEmailsBucket).Get([]byte(email)); v != nil {
			id = append(id, v...)
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	if id == nil {
		return User{}, ErrUserNotFound
	}
	return s.UserByID(ctx, string(id))
}

func (s *BoltUserStore) UserByID(_ context.Context, id string) (User, error) {
	var u User
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(database.UsersBucket).Get([]byte(id))
		if raw == nil {
			return ErrUserNotFound
		}
		return json.Unmarshal(raw, &u)
	})
	return u, err
}

// PostgresUserStore reads and writes the users table.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

func (s *PostgresUserStore) CreateUser(ctx context.Context, u User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, hashed_password, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, u.HashedPassword, u.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanOne(ctx, `SELECT id, email, hashed_password, created_at FROM users WHERE email = $1`, email)
}

func (s *PostgresUserStore) UserByID(ctx context.Context, id string) (User, error) {
	return s.scanOne(ctx, `SELECT id, email, hashed_password, created_at FROM users WHERE id = $1`, id)
}

func (s *PostgresUserStore) scanOne(ctx context.Context, query string, arg string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Email, &u.HashedPassword, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}
