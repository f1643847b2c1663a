package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/radar-bff/internal/bff/handler"
	"github.com/xela07ax/radar-bff/internal/domain"
	"github.com/xela07ax/radar-bff/internal/engine"
	"github.com/xela07ax/radar-bff/internal/infra/auth"
	"go.uber.org/zap"
)

// BreakerStates: состояние предохранителей для /health.
type BreakerStates interface {
	States() map[string]string
}

// Deps: всё, что нужно роутеру. Nil-обработчик отключает свою группу роутов.
type Deps struct {
	Validator auth.TokenValidator
	Metrics   *engine.Metrics
	Gatherer  prometheus.Gatherer
	Breakers  BreakerStates

	Radars     *handler.RadarHandler
	Monitoring *handler.MonitoringHandler
	Audit      *handler.AuditHandler
	Realtime   http.Handler // STOMP over WebSocket
}

type BFFServer struct {
	router *chi.Mux
	logger *zap.Logger
	deps   Deps
}

// NewBFFServer инициализирует роутер BFF со всеми зависимостями
func NewBFFServer(deps Deps, logger *zap.Logger) *BFFServer {
	s := &BFFServer{
		router: chi.NewRouter(),
		logger: logger.Named("bff-api"),
		deps:   deps,
	}
	s.routes()
	return s
}

func (s *BFFServer) routes() {
	r := s.router

	var hist *prometheus.HistogramVec
	if s.deps.Metrics != nil {
		hist = s.deps.Metrics.RequestDuration
	}

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(engine.TracingMiddleware)
	r.Use(accessLog(s.logger, hist))
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Get("/health", s.health)
	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	// Токен проверяется в handshake/CONNECT самим шлюзом
	if s.deps.Realtime != nil {
		r.Handle("/api/ws", s.deps.Realtime)
	}

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 токен внешнего IdP) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.deps.Validator, s.logger))
		r.Use(auth.RequireAnyRole(domain.RoleUser, domain.RoleAdmin))

		if h := s.deps.Radars; h != nil {
			r.Route("/api/radares", func(r chi.Router) {
				r.Get("/placa/{placa}", h.ByPlate)
				r.Get("/filtros", h.Search)
				r.Get("/ultimos-processados", h.Latest)
				r.Get("/exportar", h.Export)
				r.Route("/concessionaria/{nome}", func(r chi.Router) {
					r.Get("/filtros", h.BySource)
					r.Get("/opcoes-filtro", h.FilterOptions)
					r.Get("/kms-por-rodovia", h.KMs)
				})
			})
		}

		if h := s.deps.Monitoring; h != nil {
			r.Route("/api/monitoramento", func(r chi.Router) {
				r.Get("/", h.List)
				r.Post("/", h.Create)
				r.Get("/alertas", h.Alerts)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Get)
					r.Put("/", h.Update)
					r.With(auth.RequireAnyRole(domain.RoleAdmin)).Delete("/", h.Delete)
				})
			})
		}

		if h := s.deps.Audit; h != nil {
			r.With(auth.RequireAnyRole(domain.RoleAdmin)).Get("/api/auditoria", h.GetLogs)
		}
	})
}

func (s *BFFServer) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "UP"}
	if s.deps.Breakers != nil {
		body["breakers"] = s.deps.Breakers.States()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// ServeHTTP позволяет использовать BFFServer как стандартный http.Handler
func (s *BFFServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
