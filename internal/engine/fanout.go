package engine

import (
	"context"
	"time"

	"github.com/xela07ax/radar-bff/internal/domain"
	"github.com/xela07ax/radar-bff/internal/infra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Executor рассылает один фильтрованный запрос всем выбранным источникам.
// Упавший, зависший или отсеченный предохранителем источник дает пустую страницу,
// а не ошибку всего запроса.
type Executor struct {
	registry SourceRegistry
	client   SourceClient
	guard    *sourceGuard
	cfg      infra.FanoutConfig
	logger   *zap.Logger
}

func NewExecutor(reg SourceRegistry, client SourceClient, breakers *BreakerRegistry, m *Metrics, cfg infra.FanoutConfig, logger *zap.Logger) *Executor {
	l := logger.Named("fanout")
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Executor{
		registry: reg,
		client:   client,
		guard:    &sourceGuard{breakers: breakers, metrics: m, callTimeout: cfg.CallTimeout, logger: l},
		cfg:      cfg,
		logger:   l,
	}
}

// plan выбирает стратегию склейки и окно, которое запрашивается у каждого источника.
func (e *Executor) plan(q domain.FilterQuery) (probe domain.FilterQuery, slice bool) {
	if e.cfg.MergeStrategy != MergeTopK {
		return q, false
	}
	k := (q.PageNumber + 1) * q.PageSize
	if e.cfg.MaxProbeSize > 0 && k > e.cfg.MaxProbeSize {
		e.logger.Warn("probe window too large, falling back to window merge",
			zap.Int("probe", k),
			zap.Int("max", e.cfg.MaxProbeSize))
		return q, false
	}
	return q.WithPage(0, k), true
}

// Query возвращает склеенную страницу и исходы по каждому источнику.
func (e *Executor) Query(ctx context.Context, q domain.FilterQuery) (domain.PageResult, []SourceOutcome) {
	sources := e.registry.Select(q.Sources)
	if len(sources) == 0 || q.PageSize <= 0 {
		return domain.EmptyPage(q.PageNumber, q.PageSize), nil
	}

	probe, slice := e.plan(q)

	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}

	pages := make([]domain.PageResult, len(sources))
	outcomes := make([]SourceOutcome, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism(e.cfg.Parallelism, len(sources)))

	for i, ep := range sources {
		g.Go(func() error {
			start := time.Now()
			page, outcome, err := guarded(gctx, e.guard, ep.Name, "filtros",
				func(ctx context.Context) (domain.PageResult, error) {
					return e.client.FetchPage(ctx, ep, probe)
				})
			if err != nil {
				page = domain.EmptyPage(probe.PageNumber, probe.PageSize)
			}
			pages[i] = page
			outcomes[i] = SourceOutcome{
				Source:        ep.Name,
				Outcome:       outcome,
				Duration:      time.Since(start),
				TotalElements: page.Page.TotalElements,
				Records:       len(page.Content),
			}
			return nil // отказ источника не отменяет остальных
		})
	}
	_ = g.Wait()

	return Aggregate(pages, q.PageNumber, q.PageSize, slice), outcomes
}

func parallelism(limit, tasks int) int {
	if limit <= 0 {
		limit = 10
	}
	return min(limit, max(tasks, 1))
}
