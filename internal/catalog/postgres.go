package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads and writes the media_assets table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Asset, error) {
	var a Asset
	var typ string
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, type, file_ref, original_filename, size_bytes, created_at
		 FROM media_assets WHERE id = $1`, id,
	).Scan(&a.ID, &a.Title, &typ, &a.FileRef, &a.OriginalFilename, &a.SizeBytes, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Asset{}, ErrNotFound
	}
	if err != nil {
		return Asset{}, fmt.Errorf("query media %s: %w", id, err)
	}
	a.Type = MediaType(typ)
	return a, nil
}

func (s *PostgresStore) Create(ctx context.Context, a Asset) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO media_assets (id, title, type, file_ref, original_filename, size_bytes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Title, string(a.Type), a.FileRef, a.OriginalFilename, a.SizeBytes, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert media %s: %w", a.ID, err)
	}
	return nil
}
