package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/radar-bff/internal/domain"
	"github.com/xela07ax/radar-bff/internal/infra"
	"go.uber.org/zap"
)

// OptionsCache: кэш опций фильтра по источнику.
type OptionsCache interface {
	Load(ctx context.Context, source string) (domain.FilterOptions, bool, error)
	Store(ctx context.Context, source string, opts domain.FilterOptions, ttl time.Duration) error
}

// RedisOptionsCache хранит опции JSON-строкой с TTL.
type RedisOptionsCache struct {
	rdb *redis.Client
}

func NewRedisOptionsCache(rdb *redis.Client) *RedisOptionsCache {
	return &RedisOptionsCache{rdb: rdb}
}

func (c *RedisOptionsCache) Load(ctx context.Context, source string) (domain.FilterOptions, bool, error) {
	raw, err := c.rdb.Get(ctx, infra.FilterOptionsCacheKey(source)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.FilterOptions{}, false, nil
	}
	if err != nil {
		return domain.FilterOptions{}, false, err
	}
	var opts domain.FilterOptions
	if err := json.Unmarshal(raw, &opts); err != nil {
		return domain.FilterOptions{}, false, fmt.Errorf("corrupted cache entry: %w", err)
	}
	return opts, true, nil
}

func (c *RedisOptionsCache) Store(ctx context.Context, source string, opts domain.FilterOptions, ttl time.Duration) error {
	raw, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, infra.FilterOptionsCacheKey(source), raw, ttl).Err()
}

// Lookup: одиночные справочные запросы к источнику (опции фильтра, km по трассе).
// Отказ источника дает пустой список, а не ошибку.
type Lookup struct {
	registry SourceRegistry
	client   SourceClient
	guard    *sourceGuard
	cache    OptionsCache
	ttl      time.Duration
	metrics  *Metrics
	logger   *zap.Logger
}

// NewLookup: cache может быть nil, тогда каждый запрос идет в источник.
func NewLookup(reg SourceRegistry, client SourceClient, breakers *BreakerRegistry, m *Metrics, cache OptionsCache, fanout infra.FanoutConfig, api infra.APIConfig, logger *zap.Logger) *Lookup {
	l := logger.Named("lookup")
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Lookup{
		registry: reg,
		client:   client,
		guard:    &sourceGuard{breakers: breakers, metrics: m, callTimeout: fanout.CallTimeout, logger: l},
		cache:    cache,
		ttl:      api.FilterOptionsTTL,
		metrics:  m,
		logger:   l,
	}
}

func (l *Lookup) FilterOptions(ctx context.Context, source string) (domain.FilterOptions, error) {
	ep, ok := l.registry.Resolve(source)
	if !ok {
		l.logger.Debug("filter options for unknown source", zap.String("source", source))
		return domain.EmptyFilterOptions(), nil
	}

	if l.cache != nil {
		opts, hit, err := l.cache.Load(ctx, ep.Name)
		switch {
		case err != nil:
			l.metrics.FilterCache.WithLabelValues("error").Inc()
			l.logger.Warn("filter options cache read failed", zap.String("source", ep.Name), zap.Error(err))
		case hit:
			l.metrics.FilterCache.WithLabelValues("hit").Inc()
			return opts, nil
		default:
			l.metrics.FilterCache.WithLabelValues("miss").Inc()
		}
	}

	opts, _, err := guarded(ctx, l.guard, ep.Name, "opcoes-filtro",
		func(ctx context.Context) (domain.FilterOptions, error) {
			return l.client.FetchFilterOptions(ctx, ep)
		})
	if err != nil {
		return domain.EmptyFilterOptions(), nil // фолбэк не кэшируем
	}

	if l.cache != nil && l.ttl > 0 {
		if err := l.cache.Store(ctx, ep.Name, opts, l.ttl); err != nil {
			l.logger.Warn("filter options cache write failed", zap.String("source", ep.Name), zap.Error(err))
		}
	}
	return opts, nil
}

func (l *Lookup) KMs(ctx context.Context, source, highway string) ([]string, error) {
	ep, ok := l.registry.Resolve(source)
	if !ok {
		l.logger.Debug("kms for unknown source", zap.String("source", source))
		return []string{}, nil
	}
	kms, _, err := guarded(ctx, l.guard, ep.Name, "kms-por-rodovia",
		func(ctx context.Context) ([]string, error) {
			return l.client.FetchKMs(ctx, ep, highway)
		})
	if err != nil || kms == nil {
		return []string{}, nil
	}
	return kms, nil
}
