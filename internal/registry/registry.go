package registry

import (
	"sort"
	"strings"

	"github.com/xela07ax/radar-bff/internal/domain"
	"github.com/xela07ax/radar-bff/internal/infra"
	"go.uber.org/zap"
)

// Registry: неизменяемый после старта реестр бэкендов концессионеров.
// Блокировки не нужны: после New только чтение.
type Registry struct {
	byName  map[string]domain.SourceEndpoint
	ordered []domain.SourceEndpoint
	logger  *zap.Logger
}

const defaultResource = "radares"

func New(sources map[string]infra.SourceConfig, logger *zap.Logger) *Registry {
	r := &Registry{
		byName: make(map[string]domain.SourceEndpoint, len(sources)),
		logger: logger.Named("registry"),
	}
	for name, cfg := range sources {
		key := normalize(name)
		if key == "" || cfg.URL == "" {
			continue
		}
		res := strings.Trim(cfg.Resource, "/")
		if res == "" {
			res = defaultResource
		}
		r.byName[key] = domain.SourceEndpoint{
			Name:     key,
			BaseURL:  strings.TrimRight(cfg.URL, "/"),
			Resource: res,
		}
	}
	for _, ep := range r.byName {
		r.ordered = append(r.ordered, ep)
	}
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].Name < r.ordered[j].Name })
	return r
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Resolve ищет источник без учета регистра.
func (r *Registry) Resolve(name string) (domain.SourceEndpoint, bool) {
	ep, ok := r.byName[normalize(name)]
	return ep, ok
}

// All возвращает копию списка, упорядоченного по имени.
func (r *Registry) All() []domain.SourceEndpoint {
	out := make([]domain.SourceEndpoint, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Select: пустой names: все источники, неизвестные имена молча отбрасываются.
func (r *Registry) Select(names []string) []domain.SourceEndpoint {
	if len(names) == 0 {
		return r.All()
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]domain.SourceEndpoint, 0, len(names))
	for _, n := range names {
		ep, ok := r.Resolve(n)
		if !ok {
			r.logger.Debug("unknown source dropped", zap.String("source", n))
			continue
		}
		if _, dup := seen[ep.Name]; dup {
			continue
		}
		seen[ep.Name] = struct{}{}
		out = append(out, ep)
	}
	return out
}
