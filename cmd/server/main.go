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

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"transit/internal/app"
	"transit/internal/config"
	"transit/internal/handler"
	"transit/internal/middleware"
	"transit/internal/rabbitmq"
	internalRedis "transit/internal/redis"
	"transit/internal/repository/postgres"
	"transit/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// New Relic goes first so the database driver can be instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", zap.Error(err))
		} else {
			logger.Info("New Relic enabled", zap.String("app", cfg.NewRelic.AppName))
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	var publisher service.EventPublisher
	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmq.Connect(cfg.RabbitMQ)
		if err != nil {
			logger.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer conn.Close()

		p, err := rabbitmq.NewPublisher(conn, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			logger.Fatal("failed to open rabbitmq channel", zap.Error(err))
		}
		defer p.Close()
		publisher = p
		logger.Info("publishing trip events", zap.String("exchange", cfg.RabbitMQ.Exchange))
	}

	server := wireServer(db, redisClient, publisher, nrApp, cfg, logger)

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	publisher service.EventPublisher,
	nrApp *newrelic.Application,
	cfg *config.Config,
	logger *zap.Logger,
) *http.Server {
	store := postgres.NewStore(db)
	auditRepo := postgres.NewAuditRepository(db)
	cacheStore := internalRedis.NewCacheStore(redisClient, cfg.Redis.CapacityTTL)

	retry := service.DefaultRetryPolicy()
	capacity := service.NewCapacityCalculator(store, cacheStore, retry, logger)
	stateMachine := service.NewTripStateMachine(store, logger)
	reservations := service.NewReservationManager(store, cfg.Reservation.AllowPendingJoin, retry, logger)
	audit := service.NewAuditRecorder(auditRepo, logger)
	notifications := service.NewNotificationService(publisher, logger)
	tripService := service.NewTripService(store, stateMachine, reservations, capacity, audit, notifications, retry, logger)

	router := app.NewRouter(app.RouterDeps{
		TripHandler: handler.NewTripHandler(tripService, logger),
		Auth:        middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Issuer, logger),
		RedisClient: redisClient,
		NewRelicApp: nrApp,
		Logger:      logger,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
