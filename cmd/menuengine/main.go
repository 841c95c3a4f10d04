package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"spoon/internal/api"
	"spoon/internal/audit"
	"spoon/internal/cleanup"
	"spoon/internal/clock"
	"spoon/internal/combination"
	"spoon/internal/config"
	"spoon/internal/database"
	"spoon/internal/lifecycle"
	"spoon/internal/metrics"
	"spoon/internal/runstore"
	"spoon/internal/slots"
	"spoon/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv(config.EnvConfigPath))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Logging.JSON {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && cfg.Logging.Level != "" {
		logger = logger.Level(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, tracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.TelemetryServiceName(),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry disabled")
	}
	if tracing {
		logger.Info().Str("endpoint", cfg.Telemetry.Endpoint).Msg("tracing enabled")
	}
	defer func() {
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = shutdownTracing(ctxShutdown)
	}()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	registry := config.NewRegistry(nil)
	zones := clock.NewResolver(registry, cfg.DisplayTimezone(), &logger)

	var runs runstore.Store = runstore.NewMemoryStore()
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		runs = runstore.NewFailoverStore(
			runstore.NewRedisStore(rdb, cfg.RedisKeyPrefix(), cfg.RunTTL()),
			runs,
			&logger,
		)
	}

	menus := lifecycle.NewManager(db, zones, &logger)
	cleanups := cleanup.NewService(menus, db, zones, runs, &logger)
	backups := database.NewBackupService(db, cfg.Backup, &logger)

	tasks := &taskRunner{cfg: cfg, cleanups: cleanups, backups: backups, logger: &logger}
	err = config.WatchRestaurants(ctx, cfg.Scheduling.RestaurantsPath, cfg.ReloadInterval(), &logger,
		func(rc *config.RestaurantsConfig) {
			registry.Update(rc)
			tasks.reschedule(ctx, registry.Active())
		})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load restaurants config")
	}
	defer tasks.stop()

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.HTTP.Port == 0 {
		logger.Info().Msg("http.port not set, operator API disabled")
		<-ctx.Done()
		return
	}

	rps, burst := cfg.RateLimit()
	server := api.NewHTTPServer(api.Options{
		Port:               cfg.HTTP.Port,
		APIKey:             cfg.HTTP.APIKey,
		RateLimitPerSecond: rps,
		RateLimitBurst:     burst,
	}, api.Services{
		Slots:        slots.NewService(db, zones, cfg.ConflictHorizonDays(), &logger),
		Menus:        menus,
		MenuReader:   db,
		Combinations: combination.NewAssembler(db, registry, &logger),
		Cleanup:      cleanups,
		Audit:        audit.NewExporter(db, &logger),
		Display:      zones,
	}, &logger)

	logger.Info().Msg("menu engine started")
	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
}

// taskRunner rebuilds the scheduler whenever the set of active restaurants
// changes, so new zones and cron overrides take effect without a restart.
type taskRunner struct {
	cfg      *config.Config
	cleanups *cleanup.Service
	backups  *database.BackupService
	logger   *zerolog.Logger

	mu        sync.Mutex
	scheduler *cleanup.Scheduler
}

func (t *taskRunner) tasks(restaurants []config.RestaurantConfig) map[string]cleanup.Task {
	tasks := make(map[string]cleanup.Task, len(restaurants)+1)
	if t.cfg.Backup.Enabled {
		tasks["backup"] = cleanup.Task{Spec: t.cfg.BackupSchedule(), Handler: t.backups.Run}
	}
	for _, rc := range restaurants {
		spec := rc.CleanupCron
		if spec == "" {
			spec = t.cfg.CleanupCron()
		}
		tasks[cleanup.TaskName(rc.ID)] = cleanup.DailyTask(t.cleanups, rc.ID, rc.Timezone, spec)
	}
	return tasks
}

func (t *taskRunner) reschedule(ctx context.Context, restaurants []config.RestaurantConfig) {
	next, err := cleanup.NewScheduler(t.tasks(restaurants), t.logger)
	if err != nil {
		t.logger.Error().Err(err).Msg("scheduler not rebuilt, keeping previous tasks")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.scheduler != nil {
		t.scheduler.Stop()
	}
	t.scheduler = next
	t.scheduler.Start(ctx)
}

func (t *taskRunner) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.scheduler != nil {
		t.scheduler.Stop()
	}
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
