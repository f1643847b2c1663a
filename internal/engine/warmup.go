package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker: распределенная блокировка, чтобы только один инстанс грел кэш.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, key, "processing", ttl).Result()
}

// WarmupFilterOptions прогревает кэш опций фильтра по всем источникам.
// Возвращает число источников, для которых был выполнен запрос.
func WarmupFilterOptions(ctx context.Context, locker Locker, lockKey string, l *Lookup, logger *zap.Logger) int {
	if l.cache == nil {
		return 0
	}

	ok, err := locker.TryLock(ctx, lockKey, l.ttl)
	if err != nil || !ok {
		// Либо ошибка сети, либо другой инстанс уже греет кэш
		logger.Debug("filter options warm-up skipped", zap.Bool("locked", !ok), zap.Error(err))
		return 0
	}

	sources := l.registry.Select(nil)
	for _, ep := range sources {
		if ctx.Err() != nil {
			break
		}
		if _, err := l.FilterOptions(ctx, ep.Name); err != nil {
			logger.Warn("filter options warm-up failed", zap.String("source", ep.Name), zap.Error(err))
		}
	}
	logger.Info("filter options cache warmed up", zap.Int("sources", len(sources)))
	return len(sources)
}
