package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"audittrail/internal/audit/consumer"
	"audittrail/internal/audit/dedup"
	"audittrail/internal/audit/dispatcher"
	"audittrail/internal/audit/handler"
	"audittrail/internal/audit/normalizer"
	"audittrail/internal/audit/service"
	"audittrail/internal/audit/store/postgres"
	"audittrail/internal/broker"
	"audittrail/internal/broker/kafka"
	"audittrail/internal/broker/nats"
	"audittrail/internal/platform/config"
	"audittrail/internal/platform/httpserver"
	"audittrail/internal/platform/logger"
	"audittrail/internal/platform/metrics"
	"audittrail/internal/platform/redis"
)

// dedupTTL bounds how long event IDs stay in the Redis fast path. The
// storage unique constraint covers anything older.
const dedupTTL = 7 * 24 * time.Hour

// retentionSweepInterval is how often expired entries are purged.
const retentionSweepInterval = 24 * time.Hour

// main wires configuration, storage, the broker, and the HTTP API, then
// supervises the lifecycle. Business logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	db, err := postgres.Open(cfg.Postgres.DSN)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	auditStore := postgres.New(db)

	var cache dedup.Cache = dedup.Noop{}
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache = dedup.NewRedis(redisClient, dedupTTL)
		log.Info("dedup cache enabled")
	}

	m := metrics.New()
	svc := service.New(auditStore, cache, log, cfg.Retention(), service.Limits{
		DefaultLimit: cfg.DefaultLimit,
		MaxLimit:     cfg.MaxLimit,
		ExportMax:    cfg.ExportMax,
	})

	norm := normalizer.New(svc, log)
	registry := dispatcher.New(log, norm.Default())
	norm.RegisterAll(registry)

	// The broker kind is consulted exactly once, here.
	var bus broker.Broker
	switch cfg.Broker.Kind {
	case config.BrokerKafka:
		bus = kafka.New(cfg.Broker, log)
	case config.BrokerNATS:
		bus = nats.New(cfg.Broker, log)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bus.Connect(ctx); err != nil {
		log.Error("broker connection failed", "kind", cfg.Broker.Kind, "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	cons := consumer.New(bus, registry, m, log)
	consumeDone := make(chan error, 1)
	go func() {
		consumeDone <- cons.Run(ctx)
	}()

	go retentionSweep(ctx, auditStore, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Handle("/metrics", promhttp.Handler())
	handler.New(svc, cons.State, log).Register(router)

	srv := httpserver.New(cfg.HTTPAddr, router)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			cancel()
		}
	}()

	log.Info("audit trail started",
		"http_addr", cfg.HTTPAddr,
		"broker", cfg.Broker.Kind,
		"topic", cfg.Broker.Topic,
		"retention_days", cfg.RetentionDays,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info("shutdown signal received")
	case err := <-consumeDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("consumption loop failed", "error", err)
		}
	case <-ctx.Done():
	}

	// Stop consuming first so in-flight deliveries settle, then drain HTTP.
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	log.Info("audit trail stopped")
}


// retentionSweep deletes entries past their retention date once a day.
func retentionSweep(ctx context.Context, st *postgres.Store, log *slog.Logger) {
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := st.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				log.Error("retention sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				log.Info("retention sweep completed", "deleted", deleted)
			}
		}
	}
}
