package snapshots

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"max.ks1230/currency-rates/internal/entity/currency"
	"max.ks1230/currency-rates/internal/logger"
	"max.ks1230/currency-rates/internal/model/customerr"
)

// Store holds the snapshot of a single source currency.
type Store struct {
	key     string
	storage blobStorage

	// writeMu serialises writers so the backend and the memo never disagree.
	writeMu sync.Mutex

	mu     sync.RWMutex
	loaded bool
	last   currency.Snapshot
}

func newStore(key string, storage blobStorage) *Store {
	return &Store{key: key, storage: storage}
}

// Read returns the last written snapshot. Missing, unreadable or corrupted
// data yields the empty snapshot, which the freshness policy treats as stale.
func (s *Store) Read(ctx context.Context) currency.Snapshot {
	s.mu.RLock()
	if s.loaded {
		snap := s.last
		s.mu.RUnlock()
		return snap
	}
	s.mu.RUnlock()

	span, ctx := opentracing.StartSpanFromContext(ctx, "readSnapshot")
	defer span.Finish()
	span.SetTag("key", s.key)

	snap, err := s.load(ctx)
	if err != nil {
		var corrupted *customerr.CorruptionError
		if errors.As(err, &corrupted) {
			logger.Warn("snapshot corrupted, falling back to default", zap.String("key", s.key), zap.Error(err))
		} else if !errors.Is(err, customerr.ErrNotFound) {
			ext.Error.Set(span, true)
			logger.Error("cannot read snapshot", zap.String("key", s.key), zap.Error(err))
			// backend hiccup: do not memoise, try again next time
			return currency.Snapshot{}
		}
		snap = currency.Snapshot{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.last, s.loaded = snap, true
	}
	return s.last
}

func (s *Store) load(ctx context.Context) (currency.Snapshot, error) {
	data, err := s.storage.Load(ctx, s.key)
	if err != nil {
		return currency.Snapshot{}, err
	}

	var snap currency.Snapshot
	if err = json.Unmarshal(data, &snap); err != nil {
		return currency.Snapshot{}, &customerr.CorruptionError{Key: s.key, Err: err}
	}
	return snap, nil
}

// Write durably replaces the stored snapshot.
func (s *Store) Write(ctx context.Context, snap currency.Snapshot) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "writeSnapshot")
	defer span.Finish()
	span.SetTag("key", s.key)

	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err = s.storage.Save(ctx, s.key, data); err != nil {
		ext.Error.Set(span, true)
		return errors.Wrap(err, "write snapshot")
	}

	s.mu.Lock()
	s.last, s.loaded = snap, true
	s.mu.Unlock()

	logger.Info("snapshot saved", zap.String("key", s.key), zap.Int("rates", len(snap.Rates)))
	return nil
}
