package cache

import (
	"context"

	"github.com/pkg/errors"

	"go.uber.org/zap"
	"max.ks1230/currency-rates/internal/logger"
	"max.ks1230/currency-rates/internal/model/customerr"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "currency-rates:"

// MemcacheStorage keeps blobs in memcached. An item Set replaces the whole
// value, so readers never see a partial payload. Entries may be evicted;
// callers fall back to their defaults on ErrNotFound.
type MemcacheStorage struct {
	client *memcache.Client
}

type config interface {
	Hosts() []string
}

func NewMemcache(config config) (*MemcacheStorage, error) {
	logger.Info("memcached hosts", zap.Strings("hosts", config.Hosts()))
	mc := memcache.New(config.Hosts()...)
	return &MemcacheStorage{mc}, mc.Ping()
}

func formatKey(key string) string {
	return keyPrefix + key
}

func (mc *MemcacheStorage) Load(_ context.Context, key string) ([]byte, error) {
	item, err := mc.client.Get(formatKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, customerr.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "memcache get")
	}
	return item.Value, nil
}

func (mc *MemcacheStorage) Save(_ context.Context, key string, data []byte) error {
	logger.Debug("memcache save", zap.String("key", key), zap.Int("bytes", len(data)))
	return errors.Wrap(mc.client.Set(&memcache.Item{
		Key:   formatKey(key),
		Value: data,
	}), "memcache set")
}
