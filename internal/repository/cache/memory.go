package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluele/gcache"
	"github.com/cyclemap/internal/domain/repository"
	"go.uber.org/zap"
)

type memoryRepository struct {
	cache  gcache.Cache
	logger *zap.Logger
}

// NewMemoryRepository - локальный LRU-кеш, когда Redis выключен
func NewMemoryRepository(size int, logger *zap.Logger) repository.CacheRepository {
	if size <= 0 {
		size = 1024
	}
	return &memoryRepository{
		cache:  gcache.New(size).LRU().Build(),
		logger: logger,
	}
}

func (r *memoryRepository) Get(_ context.Context, key string) ([]byte, error) {
	val, err := r.cache.Get(key)
	if errors.Is(err, gcache.KeyNotFoundError) {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get error: %w", err)
	}

	data, ok := val.([]byte)
	if !ok {
		return nil, fmt.Errorf("cache get error: unexpected value type %T", val)
	}

	r.logger.Debug("Cache hit", zap.String("key", key))
	return data, nil
}

func (r *memoryRepository) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var err error
	if ttl > 0 {
		err = r.cache.SetWithExpire(key, value, ttl)
	} else {
		err = r.cache.Set(key, value)
	}
	if err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}

	r.logger.Debug("Cache set", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, key string) error {
	r.cache.Remove(key)
	return nil
}

func (r *memoryRepository) Exists(_ context.Context, key string) (bool, error) {
	return r.cache.Has(key), nil
}
