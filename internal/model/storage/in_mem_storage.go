package storage

import (
	"context"
	"sync"

	"max.ks1230/currency-rates/internal/model/customerr"
)

// BlobStorage is the contract every backend fulfils: whole values replaced
// atomically per key, customerr.ErrNotFound on a miss.
type BlobStorage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

type InMemStorage struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewInMemStorage() *InMemStorage {
	return &InMemStorage{blobs: make(map[string][]byte)}
}

func (s *InMemStorage) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[key]
	if !ok {
		return nil, customerr.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *InMemStorage) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[key] = append([]byte(nil), data...)
	return nil
}
