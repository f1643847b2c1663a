package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/radar-bff/internal/domain"
	"github.com/xela07ax/radar-bff/internal/infra"
	"go.uber.org/zap"
)

// LatestMirror: L2 копия последних записей, переживающая рестарт.
type LatestMirror interface {
	Save(ctx context.Context, source string, rec domain.RadarRecord) error
	LoadAll(ctx context.Context) (map[string]domain.RadarRecord, error)
}

// LatestStore: последняя запись по каждому источнику (L1 в памяти).
// Писатель один (слушатель шины), читателей много; чтение не блокирует запись.
type LatestStore struct {
	m      sync.Map // SOURCE -> domain.RadarRecord
	mirror LatestMirror
	logger *zap.Logger
}

// NewLatestStore: mirror может быть nil.
func NewLatestStore(mirror LatestMirror, logger *zap.Logger) *LatestStore {
	return &LatestStore{mirror: mirror, logger: logger.Named("latest")}
}

// Put: last-write-wins по источнику.
func (s *LatestStore) Put(source string, rec domain.RadarRecord) {
	s.m.Store(source, rec)

	if s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.mirror.Save(ctx, source, rec); err != nil {
		s.logger.Warn("latest mirror write failed", zap.String("source", source), zap.Error(err))
	}
}

func (s *LatestStore) Get(source string) (domain.RadarRecord, bool) {
	v, ok := s.m.Load(source)
	if !ok {
		return domain.RadarRecord{}, false
	}
	return v.(domain.RadarRecord), true
}

// Snapshot: по одной записи на источник, новые первыми.
func (s *LatestStore) Snapshot() []domain.RadarRecord {
	out := []domain.RadarRecord{}
	s.m.Range(func(_, v any) bool {
		out = append(out, v.(domain.RadarRecord))
		return true
	})
	domain.SortNewestFirst(out)
	return out
}

// Warmup поднимает L1 из L2 при старте. Записи, уже пришедшие из шины, не затираются.
func (s *LatestStore) Warmup(ctx context.Context) error {
	if s.mirror == nil {
		return nil
	}
	recs, err := s.mirror.LoadAll(ctx)
	if err != nil {
		return err
	}
	for source, rec := range recs {
		s.m.LoadOrStore(source, rec)
	}
	s.logger.Info("latest state warmed up", zap.Int("sources", len(recs)))
	return nil
}

// RedisLatestMirror хранит записи в hash SOURCE -> JSON.
type RedisLatestMirror struct {
	rdb    *redis.Client
	key    string
	logger *zap.Logger
}

func NewRedisLatestMirror(rdb *redis.Client, logger *zap.Logger) *RedisLatestMirror {
	return &RedisLatestMirror{rdb: rdb, key: infra.RedisKeyLatestRadars, logger: logger}
}

func (m *RedisLatestMirror) Save(ctx context.Context, source string, rec domain.RadarRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return m.rdb.HSet(ctx, m.key, source, raw).Err()
}

func (m *RedisLatestMirror) LoadAll(ctx context.Context) (map[string]domain.RadarRecord, error) {
	entries, err := m.rdb.HGetAll(ctx, m.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.RadarRecord, len(entries))
	for source, raw := range entries {
		var rec domain.RadarRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			m.logger.Warn("skipping corrupted latest entry", zap.String("source", source), zap.Error(err))
			continue
		}
		out[source] = rec
	}
	return out, nil
}
