package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: HTTP-запросы клиентов BFF
	RequestDuration *prometheus.HistogramVec

	// Latency и исходы вызовов источников (ok, failed, timeout, short_circuited)
	SourceCallDuration *prometheus.HistogramVec
	SourceCalls        *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - closed, 1 - open, 2 - half-open)
	CircuitBreakerState *prometheus.GaugeVec

	// Ingestion: результат разбора сообщений (ok, malformed, unknown_source, bad_datetime)
	IngestMessages *prometheus.CounterVec

	// Realtime: активные STOMP-сессии
	ActiveSessions prometheus.Gauge

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge

	// Кэш опций фильтра (hit, miss, error)
	FilterCache *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bff_request_duration_seconds",
			Help:    "Histogram of client request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"route", "status"}),

		SourceCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bff_source_call_duration_seconds",
			Help:    "Latency of calls to concessionaire backends.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"source", "operation"}),

		SourceCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bff_source_calls_total",
			Help: "Calls to concessionaire backends by outcome.",
		}, []string{"source", "operation", "outcome"}),

		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bff_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open, 2=half-open).",
		}, []string{"source"}),

		IngestMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bff_ingest_messages_total",
			Help: "Realtime ingestion messages by decode result.",
		}, []string{"result"}),

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "bff_realtime_sessions",
			Help: "Currently connected realtime sessions.",
		}),

		AuditBufferFill: f.NewGauge(prometheus.GaugeOpts{
			Name: "bff_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),

		FilterCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bff_filter_options_cache_total",
			Help: "Filter options cache lookups by result.",
		}, []string{"result"}),
	}
}
