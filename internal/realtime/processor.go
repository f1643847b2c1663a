package realtime

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Publisher: рассылка в топик (реализуется Hub).
type Publisher interface {
	Publish(topic string, v any) int
}

// Processor: обработчик сообщений шины: декодирование, latest-state, рассылка.
// Никакая ошибка сообщения не останавливает потребление.
type Processor struct {
	store   *LatestStore
	pub     Publisher
	results *prometheus.CounterVec
	logger  *zap.Logger
}

// NewProcessor: results: счетчик с меткой result, может быть nil.
func NewProcessor(store *LatestStore, pub Publisher, results *prometheus.CounterVec, logger *zap.Logger) *Processor {
	return &Processor{store: store, pub: pub, results: results, logger: logger.Named("ingest")}
}

func (p *Processor) OnMessage(raw string) {
	rec, err := Decode(raw)
	if err != nil {
		p.count(resultOf(err))
		p.logger.Warn("ingestion message dropped", zap.String("payload", raw), zap.Error(err))
		return
	}

	p.store.Put(rec.SourceName, rec)
	n := p.pub.Publish(TopicLastRadar, rec)
	p.count("ok")

	p.logger.Debug("latest radar published",
		zap.String("source", rec.SourceName),
		zap.Int("subscribers", n))
}

func resultOf(err error) string {
	switch {
	case errors.Is(err, ErrUnknownSource):
		return "unknown_source"
	case errors.Is(err, ErrBadDateTime):
		return "bad_datetime"
	default:
		return "malformed"
	}
}

func (p *Processor) count(result string) {
	if p.results != nil {
		p.results.WithLabelValues(result).Inc()
	}
}
