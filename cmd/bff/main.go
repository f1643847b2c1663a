package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/radar-bff/internal/audit"
	"github.com/xela07ax/radar-bff/internal/bff/handler"
	"github.com/xela07ax/radar-bff/internal/bff/server"
	"github.com/xela07ax/radar-bff/internal/bff/service"
	"github.com/xela07ax/radar-bff/internal/connectors"
	"github.com/xela07ax/radar-bff/internal/engine"
	"github.com/xela07ax/radar-bff/internal/infra"
	"github.com/xela07ax/radar-bff/internal/infra/auth"
	"github.com/xela07ax/radar-bff/internal/monitoring"
	"github.com/xela07ax/radar-bff/internal/realtime"
	"github.com/xela07ax/radar-bff/internal/registry"
	"github.com/xela07ax/radar-bff/internal/repository/postgres"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("radar-bff terminated", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	// Контекст для управления жизненным циклом фоновых горутин.
	// SIGTERM отменяет его и останавливает слушателей.
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Инфраструктура и ресурсы
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return fmt.Errorf("auth public key: %w", err)
	}
	validator := auth.NewBaseValidator(pubKey, cfg.Auth.Issuer)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(appCtx, 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// Кэш и поток не критичны для чтения: работаем без них и ждем Redis в listener
		logger.Warn("redis unreachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	cancel()

	// Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// Журнал аудита: без database.url события уходят в никуда
	var (
		auditStorage audit.Storage = audit.NopStorage{}
		auditRepo    *postgres.AuditRepo
	)
	if cfg.Database.URL != "" {
		pool, err := postgres.NewPool(appCtx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		auditRepo = postgres.NewAuditRepo(pool)
		if err := auditRepo.EnsureSchema(appCtx); err != nil {
			return err
		}
		auditStorage = auditRepo
	} else {
		logger.Info("database.url is empty, query audit is disabled")
	}
	journal := audit.NewJournal(auditStorage, metrics.AuditBufferFill, logger)
	journal.Start()
	defer journal.Stop()

	// 2. Fan-out ядро
	sources := registry.New(cfg.Sources, logger)
	client := connectors.NewHTTPSource(connectors.NewHTTPClient(cfg.Fanout.ConnectTimeout))
	breakers := engine.NewBreakerRegistry(cfg.Breaker, metrics, logger)

	executor := engine.NewExecutor(sources, client, breakers, metrics, cfg.Fanout, logger)
	crawler := engine.NewCrawler(sources, client, breakers, metrics, cfg.Fanout, cfg.Export, logger)
	lookup := engine.NewLookup(sources, client, breakers, metrics, engine.NewRedisOptionsCache(rdb), cfg.Fanout, cfg.API, logger)
	go engine.WarmupFilterOptions(appCtx, engine.NewRedisLocker(rdb), infra.RedisKeyLockWarmup, lookup, logger)

	// 3. Realtime: поток -> latest-state -> STOMP
	var mirror realtime.LatestMirror
	if cfg.Realtime.LatestMirror {
		mirror = realtime.NewRedisLatestMirror(rdb, logger)
	}
	latest := realtime.NewLatestStore(mirror, logger)
	hub := realtime.NewHub(logger)
	processor := realtime.NewProcessor(latest, hub, metrics.IngestMessages, logger)
	gate := realtime.NewGate(validator, logger)
	ws := realtime.NewServer(hub, gate, metrics.ActiveSessions, cfg.Realtime.SendBuffer, logger)

	go realtime.ListenResilient(appCtx, rdb, logger, cfg.Realtime.IngestChannel, latest.Warmup, processor.OnMessage)

	// 4. HTTP слой
	paging := handler.Paging{DefaultSize: cfg.API.DefaultPageSize, MaxSize: cfg.API.MaxPageSize}
	radarService := service.NewRadarService(executor, crawler, lookup, latest, journal, logger)

	deps := server.Deps{
		Validator: validator,
		Metrics:   metrics,
		Gatherer:  reg,
		Breakers:  breakers,
		Radars:    handler.NewRadarHandler(radarService, paging, logger),
		Realtime:  ws,
	}
	if cfg.Monitoring.URL != "" {
		wrapper := engine.NewReliabilityWrapper("monitoring", cfg.Monitoring, metrics, logger)
		mon := monitoring.NewService(cfg.Monitoring.URL, connectors.NewHTTPClient(cfg.Fanout.ConnectTimeout), wrapper, logger)
		deps.Monitoring = handler.NewMonitoringHandler(mon, paging, logger)
	}
	if auditRepo != nil {
		deps.Audit = handler.NewAuditHandler(service.NewAuditService(auditRepo, cfg.API.MaxPageSize))
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.NewBFFServer(deps, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 5. Graceful Shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("radar-bff started", zap.String("addr", srv.Addr), zap.Int("sources", len(sources.All())))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-appCtx.Done():
	}
	logger.Info("radar-bff stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("radar-bff exited properly")
	return nil
}
