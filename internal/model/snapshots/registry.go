// Package snapshots is the durable per-source cache of rate snapshots.
package snapshots

import (
	"context"
	"sync"
)

type blobStorage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Registry hands out one Store per source code. It is created once at
// startup and shared by everything that touches the cache.
type Registry struct {
	storage blobStorage

	mu     sync.Mutex
	stores map[string]*Store
}

func NewRegistry(storage blobStorage) *Registry {
	return &Registry{
		storage: storage,
		stores:  make(map[string]*Store),
	}
}

// Store returns the store for sourceCode, creating it on first use.
// Concurrent first calls for the same code get the same *Store.
func (r *Registry) Store(sourceCode string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stores[sourceCode]
	if !ok {
		s = newStore(storeKey(sourceCode), r.storage)
		r.stores[sourceCode] = s
	}
	return s
}

func storeKey(sourceCode string) string {
	return "exchange_rate_" + sourceCode
}
