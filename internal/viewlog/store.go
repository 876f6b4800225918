package viewlog

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	bolt "go.etcd.io/bbolt"

	"github.com/your-org/mediastream/pkg/database"
)

// Entry is one recorded view. Entries are append-only.
type Entry struct {
	MediaID   string    `json:"media_id"`
	SourceIP  string    `json:"source_ip"`
	Timestamp time.Time `json:"timestamp"`
}

// Store appends entries and replays them per media id.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// ForMedia calls fn for every entry of mediaID. Iteration stops at the
	// first error returned by fn.
	ForMedia(ctx context.Context, mediaID string, fn func(Entry) error) error
}

type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]Entry)}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.MediaID] = append(s.entries[e.MediaID], e)
	return nil
}

func (s *MemoryStore) ForMedia(_ context.Context, mediaID string, fn func(Entry) error) error {
	s.mu.RLock()
	snapshot := s.entries[mediaID][:len(s.entries[mediaID]):len(s.entries[mediaID])]
	s.mu.RUnlock()

	for _, e := range snapshot {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// BoltStore keeps one nested bucket per media id under the views bucket,
// keyed by a big-endian sequence number.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(db *bolt.DB) *BoltStore {
	return &BoltStore{db: db}
}

func (s *BoltStore) Append(_ context.Context, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal view: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(database.ViewsBucket).CreateBucketIfNotExists([]byte(e.MediaID))
		if err != nil {
			return fmt.Errorf("views bucket for %s: %w", e.MediaID, err)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return b.Put(key[:], payload)
	})
}

func (s *BoltStore) ForMedia(_ context.Context, mediaID string, fn func(Entry) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(database.ViewsBucket).Bucket([]byte(mediaID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode view: %w", err)
			}
			return fn(e)
		})
	})
}

// PostgresStore reads and writes the media_view_logs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO media_view_logs (media_id, source_ip, viewed_at) VALUES ($1, $2, $3)`,
		e.MediaID, e.SourceIP, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert view for %s: %w", e.MediaID, err)
	}
	return nil
}

func (s *PostgresStore) ForMedia(ctx context.Context, mediaID string, fn func(Entry) error) error {
	rows, err := s.pool.Query(ctx,
		`SELECT source_ip, viewed_at FROM media_view_logs WHERE media_id = $1 ORDER BY id`, mediaID)
	if err != nil {
		return fmt.Errorf("query views for %s: %w", mediaID, err)
	}
	defer rows.Close()

	for rows.Next() {
		e := Entry{MediaID: mediaID}
		if err := rows.Scan(&e.SourceIP, &e.Timestamp); err != nil {
			return fmt.Errorf("scan view: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}
