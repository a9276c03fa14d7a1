// Command server runs the customer sign-off service: the public token-gated
// review endpoints, the authenticated back-office API, and the operational
// endpoints.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"worksign/internal/attachment"
	"worksign/internal/audit"
	"worksign/internal/customer"
	"worksign/internal/jwtauth"
	"worksign/internal/notify"
	"worksign/internal/platform/config"
	"worksign/internal/platform/httpserver"
	"worksign/internal/platform/logger"
	"worksign/internal/platform/postgres"
	platformredis "worksign/internal/platform/redis"
	"worksign/internal/platform/router"
	"worksign/internal/review"
	"worksign/internal/review/handler"
	"worksign/internal/review/metrics"
	"worksign/internal/review/service"
	"worksign/internal/review/store"
	"worksign/internal/workitem"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var (
		reviewStore   review.Store
		workItems     workitem.Store
		customers     customer.Store
		auditStore    audit.Store
		attachStore   attachment.Store
		storageDriver string
	)
	if db != nil {
		reviewStore = store.NewPostgres(db)
		workItems = workitem.NewPostgresStore(db)
		customers = customer.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
		storageDriver = "postgres"
	} else {
		// In-memory stores for development. With Redis configured the token
		// lock still serializes across instances.
		if redisClient != nil {
			reviewStore = store.NewMemoryWithLocker(store.NewRedisLocker(redisClient.Client))
		} else {
			reviewStore = store.NewMemory()
		}
		workItems = workitem.NewInMemoryStore()
		customers = customer.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
		storageDriver = "memory"
	}

	if cfg.Minio.Endpoint != "" {
		attachStore, err = attachment.NewMinioStore(ctx, cfg.Minio)
		if err != nil {
			log.Error("object store connection failed", "error", err)
			os.Exit(1)
		}
	} else {
		attachStore = attachment.NewInMemoryStore()
	}

	var auditOpts []audit.Option
	if cfg.AuditBuffer > 0 {
		auditOpts = append(auditOpts, audit.WithAsyncBuffer(cfg.AuditBuffer))
	}
	publisher := audit.NewPublisher(auditStore, log, auditOpts...)

	m := metrics.New()
	issuer := service.NewIssuer(nil)
	recorder := service.NewRecorder(nil)
	gateway := service.NewGateway(reviewStore, workItems, attachStore, issuer, recorder, nil, m, publisher, log)
	admin := service.NewAdmin(reviewStore, workItems, customers, issuer, nil,
		notify.NewLogDeliverer(log), publisher, log, cfg.PublicBaseURL, cfg.TokenTTL)

	jwtService := jwtauth.New(cfg.JWTSigningKey)

	mux := router.New(router.Deps{
		Public:    handler.NewPublic(gateway, log),
		Admin:     handler.NewAdmin(admin, log, nil),
		Validator: jwtService,
		Observer:  publisher,
		Logger:    log,
	})
	srv := httpserver.New(cfg.Addr, mux)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return publisher.Run(gctx)
	})
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr, "storage", storageDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
