package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/radar-bff/internal/audit"
	"github.com/xela07ax/radar-bff/internal/domain"
	"github.com/xela07ax/radar-bff/internal/engine"
	"github.com/xela07ax/radar-bff/internal/infra/auth"
	"go.uber.org/zap"
)

// Эндпоинты в журнале аудита
const (
	EndpointFilters = "filtros"
	EndpointPlate   = "placa"
	EndpointSource  = "concessionaria"
	EndpointExport  = "exportar"
)

type QueryExecutor interface {
	Query(ctx context.Context, q domain.FilterQuery) (domain.PageResult, []engine.SourceOutcome)
}

type Exporter interface {
	ExportAll(ctx context.Context, q domain.FilterQuery) ([]domain.RadarRecord, []engine.SourceOutcome)
}

type OptionsProvider interface {
	FilterOptions(ctx context.Context, source string) (domain.FilterOptions, error)
	KMs(ctx context.Context, source, highway string) ([]string, error)
}

type Snapshotter interface {
	Snapshot() []domain.RadarRecord
}

// RadarService: клиентские чтения поверх fan-out, экспорта и кэша последних записей.
type RadarService struct {
	exec    QueryExecutor
	export  Exporter
	lookup  OptionsProvider
	latest  Snapshotter
	auditor audit.Auditor
	logger  *zap.Logger
}

func NewRadarService(exec QueryExecutor, export Exporter, lookup OptionsProvider, latest Snapshotter, auditor audit.Auditor, logger *zap.Logger) *RadarService {
	return &RadarService{
		exec:    exec,
		export:  export,
		lookup:  lookup,
		latest:  latest,
		auditor: auditor,
		logger:  logger.Named("radar-service"),
	}
}

// Search: общий поиск по всем или выбранным концессионерам.
func (s *RadarService) Search(ctx context.Context, q domain.FilterQuery) domain.PageResult {
	return s.query(ctx, EndpointFilters, q)
}

// ByPlate: все проезды номера по всем источникам.
func (s *RadarService) ByPlate(ctx context.Context, plate string, page, size int) domain.PageResult {
	q := domain.FilterQuery{Plate: plate, PageNumber: page, PageSize: size}
	return s.query(ctx, EndpointPlate, q)
}

// BySource: поиск внутри одного концессионера. Неизвестное имя дает пустую страницу.
func (s *RadarService) BySource(ctx context.Context, source string, q domain.FilterQuery) domain.PageResult {
	q.Sources = []string{source}
	return s.query(ctx, EndpointSource, q)
}

func (s *RadarService) query(ctx context.Context, endpoint string, q domain.FilterQuery) domain.PageResult {
	started := time.Now()
	res, outcomes := s.exec.Query(ctx, q)
	s.record(ctx, endpoint, q, outcomes, res.Page.TotalElements, started)
	return res
}

// Export: все записи без пагинации.
func (s *RadarService) Export(ctx context.Context, q domain.FilterQuery) []domain.RadarRecord {
	started := time.Now()
	recs, outcomes := s.export.ExportAll(ctx, q)
	s.record(ctx, EndpointExport, q, outcomes, int64(len(recs)), started)
	if recs == nil {
		recs = []domain.RadarRecord{}
	}
	s.logger.Info("export finished", zap.Int("records", len(recs)), zap.Duration("took", time.Since(started)))
	return recs
}

// Latest: последняя запись каждого источника из потока.
func (s *RadarService) Latest() []domain.RadarRecord {
	recs := s.latest.Snapshot()
	if recs == nil {
		return []domain.RadarRecord{}
	}
	return recs
}

func (s *RadarService) FilterOptions(ctx context.Context, source string) (domain.FilterOptions, error) {
	return s.lookup.FilterOptions(ctx, source)
}

func (s *RadarService) KMs(ctx context.Context, source, highway string) ([]string, error) {
	return s.lookup.KMs(ctx, source, highway)
}

func (s *RadarService) record(ctx context.Context, endpoint string, q domain.FilterQuery, outcomes []engine.SourceOutcome, total int64, started time.Time) {
	if s.auditor == nil {
		return
	}
	ev := audit.QueryEvent{
		ID:            uuid.New().String(),
		TraceID:       engine.TraceIDFrom(ctx),
		Endpoint:      endpoint,
		Filters:       Describe(q),
		Sources:       make([]string, 0, len(outcomes)),
		FailedSources: engine.Failed(outcomes),
		TotalElements: total,
		DurationMs:    time.Since(started).Milliseconds(),
		Timestamp:     started,
	}
	if id := auth.IdentityFrom(ctx); id != nil {
		ev.UserID = id.Subject
	}
	for _, o := range outcomes {
		ev.Sources = append(ev.Sources, o.Source)
	}
	s.auditor.Log(ev)
}

// Describe: заданные фильтры запроса в виде плоской карты (для аудита).
func Describe(q domain.FilterQuery) map[string]string {
	out := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("concessionaria", strings.Join(q.Sources, ","))
	set("placa", q.Plate)
	set("praca", q.TollPlaza)
	set("rodovia", q.Highway)
	set("km", q.KilometerMarker)
	set("sentido", q.Direction)
	if q.Date != nil {
		out["data"] = q.Date.String()
	}
	if q.TimeFrom != nil {
		out["horaInicial"] = q.TimeFrom.String()
	}
	if q.TimeTo != nil {
		out["horaFinal"] = q.TimeTo.String()
	}
	return out
}
