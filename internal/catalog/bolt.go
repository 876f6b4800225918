package catalog

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"

	"github.com/your-org/mediastream/pkg/database"
)

// BoltStore persists assets as JSON values in the media bucket.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(db *bolt.DB) *BoltStore {
	return &BoltStore{db: db}
}

func (s *BoltStore) Get(_ context.Context, id string) (Asset, error) {
	var asset Asset
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(database.MediaBucket).Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &asset)
	})
	return asset, err
}

func (s *BoltStore) Create(_ context.Context, asset Asset) error {
	payload, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("marshal media: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(database.MediaBucket)
		if b.Get([]byte(asset.ID)) != nil {
			return fmt.Errorf("media %s already exists", asset.ID)
		}
		return b.Put([]byte(asset.ID), payload)
	})
}
