package audit

/*
Журнал запросов: неблокирующая запись из hot path, пачки по 100 событий
или по таймеру 500ms, полная вычитка буфера при остановке.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10000
	batchSize     = 100
	flushInterval = 500 * time.Millisecond
)

// Storage определяет, куда физически сохраняются события.
type Storage interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []QueryEvent) error
}

type Auditor interface {
	Log(event QueryEvent)
}

// NopStorage: журнал без базы (database.url пуст).
type NopStorage struct{}

func (NopStorage) WriteBatch(context.Context, []QueryEvent) error { return nil }

type Journal struct {
	ch     chan QueryEvent
	repo   Storage
	fill   prometheus.Gauge
	logger *zap.Logger
	wg     sync.WaitGroup

	mu     sync.RWMutex // закрытие канала vs. отправка
	closed bool
}

// NewJournal: fill может быть nil.
func NewJournal(repo Storage, fill prometheus.Gauge, logger *zap.Logger) *Journal {
	return &Journal{
		ch:     make(chan QueryEvent, bufferSize),
		repo:   repo,
		fill:   fill,
		logger: logger.With(zap.String("mod", "audit")),
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop запирает вход и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	j.logger.Info("stopping audit journal: flushing buffer...")
	j.wg.Wait()
	j.logger.Info("audit journal stopped gracefully")
}

func (j *Journal) Log(event QueryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.logger.Warn("audit event dropped: journal is stopping", zap.String("id", event.ID))
		return
	}

	// Load shedding: переполненный буфер не тормозит запрос
	select {
	case j.ch <- event:
	default:
		j.logger.Error("audit_buffer_overflow",
			zap.String("user_id", event.UserID),
			zap.String("trace_id", event.TraceID),
		)
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]QueryEvent, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if j.fill != nil {
			j.fill.Set(float64(len(j.ch)))
		}
		if len(batch) == 0 {
			return
		}
		// Background: контекст запроса к этому моменту давно закрыт
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := j.repo.WriteBatch(ctx, batch); err != nil {
			j.logger.Error("audit flush failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-j.ch:
			if !ok {
				flush() // финальный сброс
				return
			}
			batch = append(batch, event)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
