package connectors

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/xela07ax/radar-bff/internal/domain"
)

// HTTPSource: клиент контракта бэкенда концессионера:
// /{resource}/filtros, /{resource}/opcoes-filtro, /{resource}/kms-por-rodovia.
type HTTPSource struct {
	client *http.Client
}

func NewHTTPSource(client *http.Client) *HTTPSource {
	return &HTTPSource{client: client}
}

// pageEnvelope принимает и {content, page:{...}}, и плоскую страницу Spring Data.
type pageEnvelope struct {
	Content       []domain.RadarRecord `json:"content"`
	Page          *domain.PageMetadata `json:"page"`
	Number        int                  `json:"number"`
	Size          int                  `json:"size"`
	TotalElements int64                `json:"totalElements"`
	TotalPages    int                  `json:"totalPages"`
}

func (e pageEnvelope) result(ep domain.SourceEndpoint, q domain.FilterQuery) domain.PageResult {
	meta := domain.PageMetadata{
		Number:        e.Number,
		Size:          e.Size,
		TotalElements: e.TotalElements,
		TotalPages:    e.TotalPages,
	}
	if e.Page != nil {
		meta = *e.Page
	}
	if meta.Size == 0 {
		meta.Size = q.PageSize
	}
	if meta.TotalPages == 0 && meta.TotalElements > 0 {
		meta.TotalPages = domain.TotalPages(meta.TotalElements, meta.Size)
	}

	content := e.Content
	if content == nil {
		content = []domain.RadarRecord{}
	}
	tag := strings.ToUpper(ep.Name)
	for i := range content {
		if content[i].SourceName == "" {
			content[i].SourceName = tag
		}
	}
	return domain.PageResult{Content: content, Page: meta}
}

// FetchPage запрашивает одну отфильтрованную страницу, отсортированную по data,hora desc.
func (s *HTTPSource) FetchPage(ctx context.Context, ep domain.SourceEndpoint, q domain.FilterQuery) (domain.PageResult, error) {
	var env pageEnvelope
	if err := DoJSON(ctx, s.client, http.MethodGet, FiltersURL(ep, q), nil, &env); err != nil {
		return domain.PageResult{}, fmt.Errorf("source %s: fetch page %d: %w", ep.Name, q.PageNumber, err)
	}
	return env.result(ep, q), nil
}

// FiltersURL собирает GET /{resource}/filtros с параметрами фильтра.
func FiltersURL(ep domain.SourceEndpoint, q domain.FilterQuery) string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.PageNumber))
	v.Set("size", strconv.Itoa(q.PageSize))
	v.Add("sort", "data,desc")
	v.Add("sort", "hora,desc")
	setIf(v, "placa", q.Plate)
	setIf(v, "praca", q.TollPlaza)
	setIf(v, "rodovia", q.Highway)
	setIf(v, "km", q.KilometerMarker)
	setIf(v, "sentido", q.Direction)
	if q.Date != nil {
		v.Set("data", q.Date.String())
	}
	if q.TimeFrom != nil {
		v.Set("horaInicial", q.TimeFrom.String())
	}
	if q.TimeTo != nil {
		v.Set("horaFinal", q.TimeTo.String())
	}
	return endpointURL(ep, "filtros") + "?" + v.Encode()
}

// optionsEnvelope: бэкенды отдают португальские ключи, часть: английские.
type optionsEnvelope struct {
	Rodovias   []string `json:"rodovias"`
	Pracas     []string `json:"pracas"`
	Kms        []string `json:"kms"`
	Sentidos   []string `json:"sentidos"`
	Highways   []string `json:"highways"`
	TollPlazas []string `json:"tollPlazas"`
	KMs        []string `json:"kilometerMarkers"`
	Directions []string `json:"directions"`
}

func firstNonNil(a, b []string) []string {
	if a != nil {
		return a
	}
	if b != nil {
		return b
	}
	return []string{}
}

func (s *HTTPSource) FetchFilterOptions(ctx context.Context, ep domain.SourceEndpoint) (domain.FilterOptions, error) {
	var env optionsEnvelope
	if err := DoJSON(ctx, s.client, http.MethodGet, endpointURL(ep, "opcoes-filtro"), nil, &env); err != nil {
		return domain.FilterOptions{}, fmt.Errorf("source %s: filter options: %w", ep.Name, err)
	}
	return domain.FilterOptions{
		Highways:         firstNonNil(env.Rodovias, env.Highways),
		TollPlazas:       firstNonNil(env.Pracas, env.TollPlazas),
		KilometerMarkers: firstNonNil(env.Kms, env.KMs),
		Directions:       firstNonNil(env.Sentidos, env.Directions),
	}, nil
}

func (s *HTTPSource) FetchKMs(ctx context.Context, ep domain.SourceEndpoint, highway string) ([]string, error) {
	u := endpointURL(ep, "kms-por-rodovia") + "?" + url.Values{"rodovia": {highway}}.Encode()
	var kms []string
	if err := DoJSON(ctx, s.client, http.MethodGet, u, nil, &kms); err != nil {
		return nil, fmt.Errorf("source %s: kms for %q: %w", ep.Name, highway, err)
	}
	if kms == nil {
		kms = []string{}
	}
	return kms, nil
}

func endpointURL(ep domain.SourceEndpoint, op string) string {
	return ep.BaseURL + "/" + ep.Resource + "/" + op
}

func setIf(v url.Values, key, val string) {
	if val = strings.TrimSpace(val); val != "" {
		v.Set(key, val)
	}
}
