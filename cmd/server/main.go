// main wires high-level dependencies and owns the process lifecycle: HTTP
// server, outbox worker and audit consumer run under one errgroup and shut
// down together. Business logic lives in the internal service packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"custodia/internal/audit"
	auditHandler "custodia/internal/audit/handler"
	"custodia/internal/audit/outbox"
	"custodia/internal/consent"
	consentHandler "custodia/internal/consent/handler"
	consentService "custodia/internal/consent/service"
	"custodia/internal/export"
	exportHandler "custodia/internal/export/handler"
	exportService "custodia/internal/export/service"
	"custodia/internal/jwtauth"
	"custodia/internal/platform/config"
	"custodia/internal/platform/httpserver"
	"custodia/internal/platform/kafka"
	"custodia/internal/platform/logger"
	"custodia/internal/platform/metrics"
	platformredis "custodia/internal/platform/redis"
	httptransport "custodia/internal/transport/http"
	"custodia/pkg/platform/tx"
)

const (
	serviceName   = "custodia"
	consumerGroup = "custodia-audit-materializer"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("service exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	kafkaEnabled := len(cfg.KafkaBrokers) > 0

	// Stores: Postgres when a DSN is configured, in-memory otherwise. The
	// in-memory mode is for dev and has no outbox pipeline. Without brokers
	// the audit store materialises directly; staging entries in an outbox no
	// worker drains would make every audit query silently return nothing.
	var (
		db           *sql.DB
		auditStore   audit.Store
		consentStore consent.Store
		exportStore  export.Store
		runner       tx.Runner
	)
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		if kafkaEnabled {
			auditStore = audit.NewPostgres(db)
		} else {
			log.Warn("no kafka brokers configured, audit events bypass the outbox")
			auditStore = audit.NewPostgresDirect(db)
		}
		consentStore = consent.NewPostgres(db)
		exportStore = export.NewPostgres(db)
		runner = tx.SQLRunner{DB: db}
	} else {
		log.Warn("no postgres dsn configured, using in-memory stores")
		auditStore = audit.NewInMemoryStore()
		consentStore = consent.NewInMemoryStore()
		exportStore = export.NewInMemoryStore()
		runner = tx.NoopRunner{}
	}

	redisClient, err := platformredis.New(config.DefaultRedisConfig(cfg.RedisURL))
	if err != nil {
		return err
	}
	var cache *consent.ValidityCache
	if redisClient != nil {
		defer redisClient.Close()
		cache = consent.NewValidityCache(redisClient.Client, cfg.ConsentCacheTTL)
	}

	auditSvc := audit.NewService(auditStore, m)
	consentSvc := consentService.NewService(consentStore, auditSvc, runner, cache, m)
	exportSvc := exportService.NewService(exportStore, auditSvc, runner, m)

	jwtSvc := jwtauth.NewService(cfg.JWTSigningKey, serviceName, serviceName)

	health := map[string]httptransport.HealthChecker{}
	if redisClient != nil {
		health["redis"] = redisClient
	}
	if db != nil {
		health["postgres"] = pingChecker{db}
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Metrics:   m,
		Validator: jwtSvc,
		Handlers: []httptransport.Registrar{
			consentHandler.New(consentSvc, log),
			exportHandler.New(exportSvc, log),
			auditHandler.New(auditSvc, log),
		},
		Health: health,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	// The outbox pipeline only runs with both Postgres and Kafka configured.
	if db != nil && kafkaEnabled {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, serviceName)
		if err != nil {
			return err
		}
		defer producer.Close()
		if err := producer.EnsureTopic(ctx, cfg.AuditTopic, 3); err != nil {
			return err
		}

		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, consumerGroup, cfg.AuditTopic)
		if err != nil {
			return err
		}
		defer consumer.Close()

		pgAudit := audit.NewPostgres(db)
		worker := outbox.NewWorker(db, producer, cfg.AuditTopic, log, m)
		materializer := outbox.NewConsumer(consumer, pgAudit, log)

		g.Go(func() error { return worker.Run(ctx) })
		g.Go(func() error { return materializer.Run(ctx) })
	}

	g.Go(func() error {
		log.Info("starting custodia", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("custodia stopped")
	return nil
}

type pingChecker struct {
	db *sql.DB
}

func (p pingChecker) Health(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
