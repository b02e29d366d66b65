package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cyclemap/internal/domain"
	"github.com/cyclemap/internal/domain/repository"
	"github.com/cyclemap/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	kindNetworks = "networks"
	kindNetwork  = "network"

	defaultRefreshTimeout = 30 * time.Second
)

// NetworkCacheOptions - параметры кеширования ответов апстрима
type NetworkCacheOptions struct {
	KeyPrefix string
	ListTTL   time.Duration
	DetailTTL time.Duration
	// MaxStale - сколько после TTL запись ещё отдаётся, пока идёт фоновое обновление.
	// После TTL+MaxStale запрос блокируется до свежего ответа.
	MaxStale       time.Duration
	RefreshTimeout time.Duration
}

type cacheEntry struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
}

// CachedNetworkRepository - stale-while-revalidate обёртка над клиентом апстрима
type CachedNetworkRepository struct {
	upstream repository.NetworkRepository
	cache    repository.CacheRepository
	opts     NetworkCacheOptions
	metrics  *metrics.Metrics
	logger   *zap.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewCachedNetworkRepository создает кеширующий репозиторий сетей
func NewCachedNetworkRepository(
	upstream repository.NetworkRepository,
	cacheRepo repository.CacheRepository,
	opts NetworkCacheOptions,
	m *metrics.Metrics,
	logger *zap.Logger,
) *CachedNetworkRepository {
	if opts.RefreshTimeout == 0 {
		opts.RefreshTimeout = defaultRefreshTimeout
	}
	return &CachedNetworkRepository{
		upstream: upstream,
		cache:    cacheRepo,
		opts:     opts,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// ListNetworks возвращает список сетей из кеша или апстрима
func (r *CachedNetworkRepository) ListNetworks(ctx context.Context) ([]domain.Network, error) {
	var networks []domain.Network
	err := r.load(ctx, kindNetworks, r.networksKey(), r.opts.ListTTL, r.fetchNetworks, &networks)
	if err != nil {
		return nil, err
	}
	return networks, nil
}

// GetNetwork возвращает сеть со станциями из кеша или апстрима
func (r *CachedNetworkRepository) GetNetwork(ctx context.Context, id string) (*domain.NetworkDetails, error) {
	var details domain.NetworkDetails
	fetch := func(ctx context.Context) (interface{}, error) {
		d, err := r.upstream.GetNetwork(ctx, id)
		r.metrics.ObserveUpstream(kindNetwork, err)
		return d, err
	}
	if err := r.load(ctx, kindNetwork, r.networkKey(id), r.opts.DetailTTL, fetch, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// RefreshNetworks принудительно обновляет список сетей в кеше
func (r *CachedNetworkRepository) RefreshNetworks(ctx context.Context) error {
	_, err := r.shared(ctx, r.networksKey(), r.opts.ListTTL, r.fetchNetworks)
	return err
}

func (r *CachedNetworkRepository) fetchNetworks(ctx context.Context) (interface{}, error) {
	networks, err := r.upstream.ListNetworks(ctx)
	r.metrics.ObserveUpstream(kindNetworks, err)
	return networks, err
}

func (r *CachedNetworkRepository) load(
	ctx context.Context,
	kind, key string,
	ttl time.Duration,
	fetch func(context.Context) (interface{}, error),
	out interface{},
) error {
	if entry := r.lookup(ctx, key); entry != nil {
		age := r.now().Sub(entry.FetchedAt)
		switch {
		case age <= ttl:
			if err := json.Unmarshal(entry.Payload, out); err == nil {
				r.metrics.ObserveCache(kind, "fresh")
				return nil
			}
		case age <= ttl+r.opts.MaxStale:
			if err := json.Unmarshal(entry.Payload, out); err == nil {
				r.metrics.ObserveCache(kind, "stale")
				r.logger.Debug("Serving stale entry, refreshing in background",
					zap.String("key", key),
					zap.Duration("age", age))
				r.refreshAsync(key, ttl, fetch)
				return nil
			}
		}
	}

	r.metrics.ObserveCache(kind, "miss")

	payload, err := r.shared(ctx, key, ttl, fetch)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", kind, err)
	}
	return nil
}

// shared - одна загрузка на ключ для всех ожидающих.
// Загрузка не наследует отмену ctx вызывающего, её ограничивает только RefreshTimeout.
func (r *CachedNetworkRepository) shared(
	ctx context.Context,
	key string,
	ttl time.Duration,
	fetch func(context.Context) (interface{}, error),
) ([]byte, error) {
	ch := r.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.RefreshTimeout)
		defer cancel()
		return r.fetchAndStore(fetchCtx, key, ttl, fetch)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *CachedNetworkRepository) lookup(ctx context.Context, key string) *cacheEntry {
	raw, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("Cache lookup failed, treating as miss", zap.String("key", key), zap.Error(err))
		return nil
	}
	if raw == nil {
		return nil
	}

	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		r.logger.Warn("Corrupted cache entry", zap.String("key", key), zap.Error(err))
		return nil
	}
	return &entry
}

// fetchAndStore идёт в апстрим и возвращает сериализованный payload
func (r *CachedNetworkRepository) fetchAndStore(
	ctx context.Context,
	key string,
	ttl time.Duration,
	fetch func(context.Context) (interface{}, error),
) ([]byte, error) {
	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	entry, err := json.Marshal(cacheEntry{FetchedAt: r.now(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := r.cache.Set(ctx, key, entry, ttl+r.opts.MaxStale); err != nil {
		r.logger.Warn("Failed to store cache entry", zap.String("key", key), zap.Error(err))
	}

	return payload, nil
}

func (r *CachedNetworkRepository) refreshAsync(key string, ttl time.Duration, fetch func(context.Context) (interface{}, error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.RefreshTimeout)
		defer cancel()

		_, err, _ := r.group.Do(key, func() (interface{}, error) {
			return r.fetchAndStore(ctx, key, ttl, fetch)
		})
		if err != nil {
			r.logger.Warn("Background refresh failed", zap.String("key", key), zap.Error(err))
		}
	}()
}

func (r *CachedNetworkRepository) networksKey() string {
	return r.opts.KeyPrefix + ":networks"
}

func (r *CachedNetworkRepository) networkKey(id string) string {
	return r.opts.KeyPrefix + ":network:" + id
}
