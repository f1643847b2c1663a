package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/xela07ax/radar-bff/internal/connectors"
	"github.com/xela07ax/radar-bff/internal/domain"
	"github.com/xela07ax/radar-bff/internal/engine"
	"go.uber.org/zap"
)

var (
	ErrServiceUnavailable = engine.ErrServiceUnavailable
	ErrNotFound           = errors.New("monitored plate not found")
	ErrInvalid            = errors.New("invalid monitored plate")
)

// Executor: надежный путь вызова (engine.ReliabilityWrapper).
type Executor interface {
	Do(ctx context.Context, idempotent bool, fn func(ctx context.Context) error) error
}

// Service проксирует CRUD наблюдаемых номеров и историю алертов
// в сервис мониторинга. Отказы не глотаются: путь записи.
type Service struct {
	baseURL string
	client  *http.Client
	exec    Executor
	logger  *zap.Logger
}

func NewService(baseURL string, client *http.Client, exec Executor, logger *zap.Logger) *Service {
	return &Service{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/monitoramento",
		client:  client,
		exec:    exec,
		logger:  logger.Named("monitoring"),
	}
}

// PageRequest: пагинация и сортировка, как их понимает Spring Data.
type PageRequest struct {
	Page int
	Size int
	Sort []string // "campo,DIR"
}

func (p PageRequest) values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("size", strconv.Itoa(p.Size))
	for _, s := range p.Sort {
		v.Add("sort", s)
	}
	return v
}

func (s *Service) List(ctx context.Context, p PageRequest) (domain.Page[domain.MonitoredPlate], error) {
	var out domain.Page[domain.MonitoredPlate]
	err := s.call(ctx, true, http.MethodGet, s.baseURL+"?"+p.values().Encode(), nil, &out)
	if out.Content == nil {
		out.Content = []domain.MonitoredPlate{}
	}
	return out, err
}

func (s *Service) Get(ctx context.Context, id int64) (domain.MonitoredPlate, error) {
	var out domain.MonitoredPlate
	err := s.call(ctx, true, http.MethodGet, s.itemURL(id), nil, &out)
	return out, err
}

func (s *Service) Create(ctx context.Context, p domain.MonitoredPlate) (domain.MonitoredPlate, error) {
	if err := validate(p); err != nil {
		return domain.MonitoredPlate{}, err
	}
	p.ID = nil
	var out domain.MonitoredPlate
	err := s.call(ctx, false, http.MethodPost, s.baseURL, p, &out)
	return out, err
}

func (s *Service) Update(ctx context.Context, id int64, p domain.MonitoredPlate) (domain.MonitoredPlate, error) {
	if err := validate(p); err != nil {
		return domain.MonitoredPlate{}, err
	}
	var out domain.MonitoredPlate
	err := s.call(ctx, true, http.MethodPut, s.itemURL(id), p, &out)
	return out, err
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.call(ctx, true, http.MethodDelete, s.itemURL(id), nil, nil)
}

// Alerts: история подтвержденных проездов.
func (s *Service) Alerts(ctx context.Context, p PageRequest) (domain.Page[domain.PassageAlert], error) {
	var out domain.Page[domain.PassageAlert]
	err := s.call(ctx, true, http.MethodGet, s.baseURL+"/alertas?"+p.values().Encode(), nil, &out)
	if out.Content == nil {
		out.Content = []domain.PassageAlert{}
	}
	return out, err
}

func (s *Service) itemURL(id int64) string {
	return s.baseURL + "/" + strconv.FormatInt(id, 10)
}

func (s *Service) call(ctx context.Context, idempotent bool, method, u string, body, out any) error {
	err := s.exec.Do(ctx, idempotent, func(ctx context.Context) error {
		return connectors.DoJSON(ctx, s.client, method, u, body, out)
	})
	if err == nil {
		return nil
	}
	if connectors.IsStatus(err, http.StatusNotFound) {
		return ErrNotFound
	}
	var se *connectors.StatusError
	if errors.As(err, &se) && se.Code == http.StatusBadRequest {
		return fmt.Errorf("%w: %s", ErrInvalid, se.Body)
	}
	s.logger.Warn("monitoring call failed", zap.String("method", method), zap.Error(err))
	return err
}

func validate(p domain.MonitoredPlate) error {
	if strings.TrimSpace(p.Plate) == "" {
		return fmt.Errorf("%w: placa is required", ErrInvalid)
	}
	return nil
}
