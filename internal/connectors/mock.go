package connectors

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xela07ax/radar-bff/internal/domain"
)

// MockSource: источник в памяти для тестов и локального запуска без бэкендов.
// Данные каждого источника считаются уже отсортированными по data,hora desc.
type MockSource struct {
	mu      sync.Mutex
	data    map[string][]domain.RadarRecord
	failing map[string]error
	latency map[string]time.Duration
	calls   map[string]int
}

func NewMockSource() *MockSource {
	return &MockSource{
		data:    make(map[string][]domain.RadarRecord),
		failing: make(map[string]error),
		latency: make(map[string]time.Duration),
		calls:   make(map[string]int),
	}
}

func (m *MockSource) SetRecords(source string, recs []domain.RadarRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[source] = recs
}

// Fail заставляет источник отвечать ошибкой; nil снимает отказ.
func (m *MockSource) Fail(source string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failing, source)
		return
	}
	m.failing[source] = err
}

func (m *MockSource) SetLatency(source string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency[source] = d
}

// Calls: число сетевых вызовов, дошедших до источника.
func (m *MockSource) Calls(source string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[source]
}

func (m *MockSource) enter(ctx context.Context, source string) error {
	m.mu.Lock()
	m.calls[source]++
	delay := m.latency[source]
	failure := m.failing[source]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return failure
}

func (m *MockSource) FetchPage(ctx context.Context, ep domain.SourceEndpoint, q domain.FilterQuery) (domain.PageResult, error) {
	if err := m.enter(ctx, ep.Name); err != nil {
		return domain.PageResult{}, fmt.Errorf("source %s: %w", ep.Name, err)
	}

	m.mu.Lock()
	all := m.data[ep.Name]
	m.mu.Unlock()

	matched := make([]domain.RadarRecord, 0, len(all))
	for _, r := range all {
		if q.Plate != "" && !strings.EqualFold(r.Plate, q.Plate) {
			continue
		}
		if q.Highway != "" && r.Highway != q.Highway {
			continue
		}
		matched = append(matched, r)
	}

	res := domain.EmptyPage(q.PageNumber, q.PageSize)
	res.Page.TotalElements = int64(len(matched))
	res.Page.TotalPages = domain.TotalPages(res.Page.TotalElements, q.PageSize)
	if q.PageSize <= 0 {
		return res, nil
	}
	from := q.PageNumber * q.PageSize
	if from >= len(matched) {
		return res, nil
	}
	to := min(from+q.PageSize, len(matched))
	res.Content = append(res.Content, matched[from:to]...)
	return res, nil
}

func (m *MockSource) FetchFilterOptions(ctx context.Context, ep domain.SourceEndpoint) (domain.FilterOptions, error) {
	if err := m.enter(ctx, ep.Name); err != nil {
		return domain.FilterOptions{}, fmt.Errorf("source %s: %w", ep.Name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	opts := domain.EmptyFilterOptions()
	seen := map[string]bool{}
	for _, r := range m.data[ep.Name] {
		add := func(dst *[]string, kind, v string) {
			if v == "" || seen[kind+v] {
				return
			}
			seen[kind+v] = true
			*dst = append(*dst, v)
		}
		add(&opts.Highways, "h", r.Highway)
		add(&opts.TollPlazas, "p", r.TollPlaza)
		add(&opts.KilometerMarkers, "k", r.KilometerMarker)
		add(&opts.Directions, "d", r.Direction)
	}
	return opts, nil
}

func (m *MockSource) FetchKMs(ctx context.Context, ep domain.SourceEndpoint, highway string) ([]string, error) {
	if err := m.enter(ctx, ep.Name); err != nil {
		return nil, fmt.Errorf("source %s: %w", ep.Name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kms := []string{}
	seen := map[string]bool{}
	for _, r := range m.data[ep.Name] {
		if r.Highway == highway && !seen[r.KilometerMarker] {
			seen[r.KilometerMarker] = true
			kms = append(kms, r.KilometerMarker)
		}
	}
	return kms, nil
}
