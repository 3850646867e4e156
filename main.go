package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"corruption-report-service/config"
	"corruption-report-service/internal/geocode"
	"corruption-report-service/internal/handler"
	"corruption-report-service/internal/live"
	"corruption-report-service/internal/messaging"
	"corruption-report-service/internal/repository"
	"corruption-report-service/internal/service"
	"corruption-report-service/internal/store"

	"github.com/apex/log"
	jsonhandler "github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.Store.Driver).Fatal("failed to open store")
	}
	defer docs.Close()
	log.WithField("driver", cfg.Store.Driver).Info("store: connected")

	// Repositories
	reportRepo := repository.NewReportRepository(docs)
	voteRepo := repository.NewVoteRepository(docs)
	commentRepo := repository.NewCommentRepository(docs)
	userRepo := repository.NewUserRepository(docs)
	outboxRepo := repository.NewOutboxRepository(docs)

	// RabbitMQ is optional; without it the outbox drops events.
	var publisher messaging.Publisher
	if cfg.RabbitMQ.Enabled() {
		rmq, err := messaging.NewRabbitMQ(cfg.RabbitMQ.URL())
		if err != nil {
			log.WithError(err).Fatal("failed to connect to rabbitmq")
		}
		defer rmq.Close()
		publisher = rmq
	} else {
		log.Warn("rabbitmq: not configured, events will be dropped")
	}

	worker := messaging.NewOutboxWorker(outboxRepo, publisher, messaging.WorkerConfig{
		Interval:        cfg.Outbox.Interval(),
		BatchSize:       cfg.Outbox.BatchSize,
		PublishAttempts: cfg.Outbox.PublishAttempts,
	})
	worker.Start(ctx)
	defer worker.Stop()

	var geocoder service.Geocoder
	if cfg.Geocode.Enabled {
		geocoder = geocode.NewClient(geocode.Config{
			BaseURL:   cfg.Geocode.BaseURL,
			Language:  cfg.Geocode.Language,
			UserAgent: cfg.Geocode.UserAgent,
			Timeout:   cfg.Geocode.Timeout(),
		})
	}

	// Services
	userService := service.NewUserService(userRepo)
	reportService := service.NewReportService(reportRepo, geocoder, outboxRepo)
	moderationService := service.NewModerationService(reportRepo, userRepo, outboxRepo)
	voteService := service.NewVoteService(voteRepo, reportRepo, outboxRepo)
	commentService := service.NewCommentService(commentRepo, reportRepo, outboxRepo)

	coordinator := live.NewCoordinator(docs)
	defer coordinator.Close()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	if !cfg.JWT.TrustHeaders {
		log.Info("identity: gateway headers ignored, bearer tokens only")
	}
	router := handler.NewRouter(userService, handler.IdentityConfig{
		JWTSecret:    cfg.JWT.Secret,
		TrustHeaders: cfg.JWT.TrustHeaders,
	}, handler.Handlers{
		Reports:  handler.NewReportHandler(reportService, moderationService),
		Votes:    handler.NewVoteHandler(voteService),
		Comments: handler.NewCommentHandler(commentService),
		Admin:    handler.NewAdminHandler(moderationService, commentService),
		Views:    handler.NewViewHandler(coordinator),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("report service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	// Open streams end with their views.
	coordinator.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.SetHandler(jsonhandler.New(os.Stderr))
	} else {
		log.SetHandler(text.New(os.Stderr))
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithError(err).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.DocumentStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return store.OpenPostgres(cfg.Postgres.DSN())
	case config.DriverMongo:
		return store.OpenMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	default:
		return store.NewMemoryStore(), nil
	}
}
