package engine

import (
	"context"
	"time"

	"github.com/xela07ax/radar-bff/internal/domain"
	"github.com/xela07ax/radar-bff/internal/infra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultExportPageSize = 1000

// Crawler выкачивает все страницы всех источников для выгрузки без пагинации.
// Верхней границы объема нет: лимиты памяти на стороне вызывающего.
// По истечении export.timeout возвращается то, что успели собрать.
type Crawler struct {
	registry    SourceRegistry
	client      SourceClient
	guard       *sourceGuard
	pageSize    int
	timeout     time.Duration
	parallelism int
	logger      *zap.Logger
}

func NewCrawler(reg SourceRegistry, client SourceClient, breakers *BreakerRegistry, m *Metrics, fanout infra.FanoutConfig, cfg infra.ExportConfig, logger *zap.Logger) *Crawler {
	l := logger.Named("export")
	if m == nil {
		m = NewMetrics(nil)
	}
	size := cfg.PageSize
	if size <= 0 {
		size = defaultExportPageSize
	}
	return &Crawler{
		registry:    reg,
		client:      client,
		guard:       &sourceGuard{breakers: breakers, metrics: m, callTimeout: fanout.CallTimeout, logger: l},
		pageSize:    size,
		timeout:     cfg.Timeout,
		parallelism: fanout.Parallelism,
		logger:      l,
	}
}

// ExportAll игнорирует пагинацию q и возвращает все записи, новые первыми.
func (c *Crawler) ExportAll(ctx context.Context, q domain.FilterQuery) ([]domain.RadarRecord, []SourceOutcome) {
	sources := c.registry.Select(q.Sources)
	if len(sources) == 0 {
		return []domain.RadarRecord{}, nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	collected := make([][]domain.RadarRecord, len(sources))
	outcomes := make([]SourceOutcome, len(sources))

	var g errgroup.Group
	g.SetLimit(parallelism(c.parallelism, len(sources)))

	for i, ep := range sources {
		g.Go(func() error {
			start := time.Now()
			recs, outcome, total := c.crawl(ctx, ep, q)
			collected[i] = recs
			outcomes[i] = SourceOutcome{
				Source:        ep.Name,
				Outcome:       outcome,
				Duration:      time.Since(start),
				TotalElements: total,
				Records:       len(recs),
			}
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, recs := range collected {
		n += len(recs)
	}
	all := make([]domain.RadarRecord, 0, n)
	for _, recs := range collected {
		all = append(all, recs...)
	}
	domain.SortNewestFirst(all)
	return all, outcomes
}

// crawl идет по страницам одного источника, пока не встретит пустую или неполную
// страницу либо не дойдет до totalPages. Отказ на первой странице: ноль записей,
// на последующих: то, что успели собрать.
func (c *Crawler) crawl(ctx context.Context, ep domain.SourceEndpoint, q domain.FilterQuery) ([]domain.RadarRecord, Outcome, int64) {
	var (
		out   []domain.RadarRecord
		total int64
	)
	for page := 0; ; page++ {
		res, outcome, err := guarded(ctx, c.guard, ep.Name, "exportar",
			func(ctx context.Context) (domain.PageResult, error) {
				return c.client.FetchPage(ctx, ep, q.WithPage(page, c.pageSize))
			})
		if err != nil {
			if page == 0 {
				return []domain.RadarRecord{}, outcome, 0
			}
			c.logger.Warn("export crawl stopped early",
				zap.String("source", ep.Name),
				zap.Int("page", page),
				zap.Int("collected", len(out)))
			return out, outcome, total
		}

		total = res.Page.TotalElements
		out = append(out, res.Content...)

		if len(res.Content) == 0 || len(res.Content) < c.pageSize {
			break
		}
		if res.Page.TotalPages > 0 && page+1 >= res.Page.TotalPages {
			break
		}
	}
	if out == nil {
		out = []domain.RadarRecord{}
	}
	return out, OutcomeOK, total
}
