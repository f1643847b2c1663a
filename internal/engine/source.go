package engine

import (
	"context"
	"errors"
	"time"

	"github.com/xela07ax/radar-bff/internal/domain"
	"go.uber.org/zap"
)

// SourceClient: транспорт к бэкенду концессионера.
type SourceClient interface {
	FetchPage(ctx context.Context, ep domain.SourceEndpoint, q domain.FilterQuery) (domain.PageResult, error)
	FetchFilterOptions(ctx context.Context, ep domain.SourceEndpoint) (domain.FilterOptions, error)
	FetchKMs(ctx context.Context, ep domain.SourceEndpoint, highway string) ([]string, error)
}

// SourceRegistry: чтение реестра источников.
type SourceRegistry interface {
	Resolve(name string) (domain.SourceEndpoint, bool)
	Select(names []string) []domain.SourceEndpoint
}

type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeFailed         Outcome = "failed"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeShortCircuited Outcome = "short_circuited"
)

// SourceOutcome: итог обращения к одному источнику в рамках запроса.
type SourceOutcome struct {
	Source        string        `json:"source"`
	Outcome       Outcome       `json:"outcome"`
	Duration      time.Duration `json:"duration"`
	TotalElements int64         `json:"totalElements"`
	Records       int           `json:"records"`
}

func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrCircuitOpen):
		return OutcomeShortCircuited
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeFailed
	}
}

// Failed: имена источников, ответивших не ok.
func Failed(outcomes []SourceOutcome) []string {
	var out []string
	for _, o := range outcomes {
		if o.Outcome != OutcomeOK {
			out = append(out, o.Source)
		}
	}
	return out
}

// sourceGuard: общий путь вызова источника: предохранитель, таймаут, метрики.
type sourceGuard struct {
	breakers    *BreakerRegistry
	metrics     *Metrics
	callTimeout time.Duration
	logger      *zap.Logger
}

func guarded[T any](ctx context.Context, g *sourceGuard, source, op string, fn func(context.Context) (T, error)) (T, Outcome, error) {
	start := time.Now()
	res, err := Call(ctx, g.breakers.For(source), func(ctx context.Context) (T, error) {
		if g.callTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.callTimeout)
			defer cancel()
		}
		return fn(ctx)
	})
	elapsed := time.Since(start)

	outcome := classify(err)
	g.metrics.SourceCalls.WithLabelValues(source, op, string(outcome)).Inc()
	if outcome != OutcomeShortCircuited {
		g.metrics.SourceCallDuration.WithLabelValues(source, op).Observe(elapsed.Seconds())
	}
	if err != nil {
		g.logger.Warn("source call degraded",
			zap.String("source", source),
			zap.String("op", op),
			zap.String("outcome", string(outcome)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	}
	return res, outcome, err
}
