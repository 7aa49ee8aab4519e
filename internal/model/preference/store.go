// Package preference persists the user's (source, target) currency pair and
// notifies subscribers about every change.
package preference

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"max.ks1230/currency-rates/internal/entity/currency"
	"max.ks1230/currency-rates/internal/logger"
	"max.ks1230/currency-rates/internal/model/customerr"
)

const storageKey = "preference"

type blobStorage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

type config interface {
	DefaultSource() string
	DefaultTarget() string
}

type Store struct {
	storage  blobStorage
	defaults currency.Pair

	// mu orders writes and notifications: subscribers see pairs in write order.
	mu     sync.Mutex
	nextID int
	subs   map[int]chan currency.Pair
}

func NewStore(storage blobStorage, config config) *Store {
	return &Store{
		storage: storage,
		defaults: currency.Pair{
			Source: config.DefaultSource(),
			Target: config.DefaultTarget(),
		},
		subs: make(map[int]chan currency.Pair),
	}
}

// Read returns the persisted pair with unset fields filled from defaults.
func (s *Store) Read(ctx context.Context) (currency.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (currency.Pair, error) {
	data, err := s.storage.Load(ctx, storageKey)
	if errors.Is(err, customerr.ErrNotFound) {
		return s.defaults, nil
	}
	if err != nil {
		return currency.Pair{}, errors.Wrap(err, "load preference")
	}

	var p currency.Pair
	if err = json.Unmarshal(data, &p); err != nil {
		logger.Warn("preference corrupted, using defaults", zap.Error(err))
		return s.defaults, nil
	}
	if p.Source == "" {
		p.Source = s.defaults.Source
	}
	if p.Target == "" {
		p.Target = s.defaults.Target
	}
	return p, nil
}

func (s *Store) SetSource(ctx context.Context, code string) error {
	_, err := s.update(ctx, func(p currency.Pair) currency.Pair {
		p.Source = code
		return p
	})
	return errors.Wrap(err, "set source")
}

func (s *Store) SetTarget(ctx context.Context, code string) error {
	_, err := s.update(ctx, func(p currency.Pair) currency.Pair {
		p.Target = code
		return p
	})
	return errors.Wrap(err, "set target")
}

// Swap exchanges source and target in a single write and returns the new pair.
func (s *Store) Swap(ctx context.Context) (currency.Pair, error) {
	p, err := s.update(ctx, currency.Pair.Swapped)
	return p, errors.Wrap(err, "swap")
}

func (s *Store) update(ctx context.Context, mutate func(currency.Pair) currency.Pair) (currency.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.load(ctx)
	if err != nil {
		return currency.Pair{}, err
	}
	next := mutate(cur)
	if next == cur {
		return cur, nil
	}

	data, err := json.Marshal(next)
	if err != nil {
		return currency.Pair{}, errors.Wrap(err, "encode preference")
	}
	if err = s.storage.Save(ctx, storageKey, data); err != nil {
		return currency.Pair{}, errors.Wrap(err, "save preference")
	}

	logger.Info("preference changed", zap.Stringer("from", cur), zap.Stringer("to", next))
	s.notify(next)
	return next, nil
}

// notify hands the pair to every subscriber. A subscriber that has not drained
// its previous pair gets it replaced: only the latest one matters.
func (s *Store) notify(p currency.Pair) {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- p
	}
}

// Subscribe returns a channel receiving every committed pair and a function
// that detaches and closes it.
func (s *Store) Subscribe() (<-chan currency.Pair, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan currency.Pair, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}
