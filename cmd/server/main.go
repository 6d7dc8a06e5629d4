// Command server runs the audit pipeline service: the batching buffer, the
// retention sweeper and the admin query API. Business logic lives in internal
// packages; main only wires dependencies and the process lifecycle.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"flowaudit/internal/audit"
	"flowaudit/internal/audit/cache"
	"flowaudit/internal/audit/export"
	"flowaudit/internal/audit/handler"
	"flowaudit/internal/audit/metrics"
	"flowaudit/internal/audit/report"
	"flowaudit/internal/audit/retention"
	"flowaudit/internal/audit/sink"
	auditpg "flowaudit/internal/audit/store/postgres"
	"flowaudit/internal/platform/config"
	"flowaudit/internal/platform/httpserver"
	"flowaudit/internal/platform/jwtauth"
	"flowaudit/internal/platform/logger"
	"flowaudit/internal/platform/middleware"
	platformredis "flowaudit/internal/platform/redis"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited with error", "error", err)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("FLOWAUDIT_DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}

	store := auditpg.New(db)
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	m := metrics.New()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	recent := cache.New(redisRaw(redisClient), log)

	sinks := []audit.Sink{recent}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := sink.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			return err
		}
		defer kafka.Close()
		sinks = append(sinks, kafka)
	}

	buffer := audit.NewBuffer(store, log,
		audit.WithBatchSize(cfg.BatchSize),
		audit.WithFlushInterval(cfg.FlushInterval),
		audit.WithCapacity(cfg.BufferCapacity),
		audit.WithSinks(sinks...),
		audit.WithMetrics(m),
	)
	recorder := audit.NewRecorder(buffer, log, m)

	sweeper := retention.New(store, recorder, retention.DefaultPolicies(), log,
		retention.WithInterval(cfg.SweepInterval),
		retention.WithMetrics(m),
	)

	generator := report.NewGenerator(store)
	exporter := export.New(store, recorder)
	auditHandler := handler.New(store, generator, exporter, recent, log)

	jwtService := jwtauth.New(cfg.JWTSigningKey, "flowaudit", "portal")

	router := chi.NewRouter()
	router.Use(middleware.RequestMetadata)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(jwtService, log))
		auditHandler.RegisterAdmin(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return buffer.Run(ctx)
	})
	group.Go(func() error {
		return sweeper.Run(ctx)
	})
	group.Go(func() error {
		log.Info("starting audit service", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// redisRaw unwraps the platform client; a nil client disables the recent cache.
func redisRaw(c *platformredis.Client) *goredis.Client {
	if c == nil {
		return nil
	}
	return c.Client
}
