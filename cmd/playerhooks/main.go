package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"playerhooks/internal/adapters"
	"playerhooks/internal/api"
	"playerhooks/internal/audit"
	"playerhooks/internal/config"
	"playerhooks/internal/database"
	"playerhooks/internal/diagnostics"
	"playerhooks/internal/endpoints"
	"playerhooks/internal/events"
	"playerhooks/internal/health"
	"playerhooks/internal/ingest"
	"playerhooks/internal/metrics"
	"playerhooks/internal/payload"
	"playerhooks/internal/platform"
	"playerhooks/internal/queue"
	"playerhooks/internal/webhook"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("PLAYERHOOKS_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(cfg, db, rdb, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid queue backend")
	}

	var (
		workerOpts []webhook.WorkerOption
		auditSvc   *audit.Service
	)
	if cfg.Audit.Enabled {
		workerOpts = append(workerOpts, webhook.WithRecorder(db))
		auditSvc = audit.NewService(db, cfg.AuditRetention(), logger)
		auditSvc.Start(ctx)
		defer auditSvc.Stop()
	}

	worker := webhook.NewWorker(webhook.WorkerConfig{
		Timeout:       cfg.DeliveryTimeout(),
		Retry:         webhook.NewRetryPolicy(cfg.Delivery.MaxAttempts, cfg.Backoff()),
		RatePerSecond: cfg.Delivery.RatePerSecond,
		RateBurst:     cfg.Delivery.RateBurst,
		UserAgent:     cfg.Delivery.UserAgent,
	}, backend, logger, workerOpts...)
	backend.Start(ctx, worker)
	defer backend.Stop()

	store := endpoints.NewStore(db, logger)
	emitter := webhook.NewEmitter(store, webhook.NewQueue(backend), logger)

	client := platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.APIKey)
	if rdb != nil && cfg.Platform.CacheTTLSeconds > 0 {
		client.UseRedisCache(rdb, cfg.PlatformCacheTTL())
	}
	builder := payload.NewBuilder(client, logger)

	bus := events.NewBus(logger)
	adapters.New(emitter, builder, db, logger).Register(bus)
	diagnostics.Run(bus, &logger)

	checker := health.NewChecker(db, rdb)
	go serveHTTP(ctx, "health", cfg.Monitoring.HealthCheckPort, checker.Handler(), &logger)
	if cfg.Monitoring.GRPCHealthPort > 0 {
		go serveGRPCHealth(ctx, cfg.Monitoring.GRPCHealthPort, checker, &logger)
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go serveHTTP(ctx, "metrics", cfg.Monitoring.PrometheusPort, mux, &logger)
	}

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)
	}

	if cfg.Kafka.Enabled {
		consumer := ingest.NewConsumer(ingest.NewReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID), bus, logger)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("kafka consumer stopped")
			}
		}()
	}

	deps := api.Deps{
		Endpoints:      store,
		Emitter:        emitter,
		Hooks:          bus,
		Diagnostics:    func() diagnostics.Report { return diagnostics.Inspect(bus) },
		Redis:          rdb,
		IdempotencyTTL: api.IdempotencyLockTTL(cfg.DeliveryTimeout()),
		APIKey:         cfg.Server.APIKey,
	}
	if auditSvc != nil {
		deps.Exporter = auditSvc
	}
	if cfg.Server.APIKey == "" {
		logger.Warn().Msg("server.api_key is empty, admin API is unauthenticated")
	}

	logger.Info().
		Str("queue", backend.Name()).
		Int("port", cfg.Server.Port).
		Msg("playerhooks started")
	serveHTTP(ctx, "api", cfg.Server.Port, api.NewServer(deps, logger).Router(), &logger)
	logger.Info().Msg("playerhooks stopped")
}

func newBackend(cfg *config.Config, db *database.DB, rdb *redis.Client, logger zerolog.Logger) (queue.Backend, error) {
	opts := queue.Options{
		PollInterval:  cfg.PollInterval(),
		BatchSize:     cfg.Queue.BatchSize,
		Concurrency:   cfg.Queue.Concurrency,
		JobTimeout:    cfg.DeliveryTimeout(),
		RatePerSecond: cfg.Delivery.RatePerSecond,
	}

	switch cfg.Queue.Backend {
	case config.QueueInline:
		return queue.NewInline(logger), nil
	case config.QueueSQLite:
		return queue.NewSQLite(db, opts, logger), nil
	case config.QueueRedis, config.QueueFailover:
		if rdb == nil {
			return nil, fmt.Errorf("queue backend %q requires redis.address", cfg.Queue.Backend)
		}
		r := queue.NewRedis(rdb, cfg.Queue.RedisKey, opts, logger)
		if cfg.Queue.Backend == config.QueueRedis {
			return r, nil
		}
		return queue.NewFailover(r, queue.NewSQLite(db, opts, logger), logger), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}

func serveHTTP(ctx context.Context, name string, port int, handler http.Handler, logger *zerolog.Logger) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("http server error")
	}
}

func serveGRPCHealth(ctx context.Context, port int, checker *health.Checker, logger *zerolog.Logger) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Error().Err(err).Msg("grpc health listen error")
		return
	}
	srv, hs := health.NewGRPCServer()
	go checker.Watch(ctx, hs, 10*time.Second)
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	if err := srv.Serve(lis); err != nil {
		logger.Error().Err(err).Msg("grpc health server error")
	}
}
