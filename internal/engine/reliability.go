package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/radar-bff/internal/connectors"
	"github.com/xela07ax/radar-bff/internal/infra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrServiceUnavailable: вышестоящий сервис недоступен (CB открыт, сеть, 5xx).
var ErrServiceUnavailable = errors.New("upstream service unavailable")

// ReliabilityWrapper: путь записи/проксирования к одному сервису:
// лимитер -> предохранитель -> ретраи (только для идемпотентных операций).
// В отличие от fan-out, отказ здесь не глотается, а возвращается вызывающему.
type ReliabilityWrapper struct {
	name     string
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
	timeout  time.Duration
	logger   *zap.Logger
}

func NewReliabilityWrapper(name string, cfg infra.MonitoringConfig, m *Metrics, logger *zap.Logger) *ReliabilityWrapper {
	if m == nil {
		m = NewMetrics(nil)
	}
	l := logger.With(zap.String("upstream", name))

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			l.Warn("circuit state changed", zap.String("from", from.String()), zap.String("to", to.String()))
		},
		// 4xx: ошибка клиента, а не сигнал о здоровье сервиса
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err) || errors.Is(err, context.Canceled)
		},
	})

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	attempts := cfg.RetryAttempt
	if attempts == 0 {
		attempts = 1
	}

	return &ReliabilityWrapper{
		name:     name,
		cb:       cb,
		limiter:  rate.NewLimiter(limit, max(cfg.RateBurst, 1)),
		attempts: attempts,
		timeout:  cfg.Timeout,
		logger:   l,
	}
}

func isClientError(err error) bool {
	var se *connectors.StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
}

// Do выполняет fn. idempotent=true включает ретраи.
func (w *ReliabilityWrapper) Do(ctx context.Context, idempotent bool, fn func(ctx context.Context) error) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %v", ErrServiceUnavailable, err)
	}

	attempts := uint(1)
	if idempotent {
		attempts = w.attempts
	}

	// 2. Circuit Breaker
	_, err := w.cb.Execute(func() (any, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(attempts),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool { return !isClientError(err) }),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если сервис вернул ThrottleError (Retry-After)
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				// В остальных случаях (сетевой лаг, 500-ка): стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		return nil, r.Do(func() error {
			tCtx := ctx
			if w.timeout > 0 {
				var cancel context.CancelFunc
				tCtx, cancel = context.WithTimeout(ctx, w.timeout)
				defer cancel()
			}
			return fn(tCtx)
		})
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, w.name, ErrCircuitOpen)
	case isClientError(err), errors.Is(err, context.Canceled):
		return err
	default:
		w.logger.Warn("upstream call failed", zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, w.name, err)
	}
}
