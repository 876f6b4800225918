package catalog

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps assets in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	assets map[string]Asset
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assets: make(map[string]Asset)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return Asset{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) Create(_ context.Context, asset Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.assets[asset.ID]; exists {
		return fmt.Errorf("media %s already exists", asset.ID)
	}
	s.assets[asset.ID] = asset
	return nil
}
