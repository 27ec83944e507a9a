package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/reelforge/clip-engine/internal/config"
	"github.com/reelforge/clip-engine/internal/events"
	"github.com/reelforge/clip-engine/internal/generator"
	"github.com/reelforge/clip-engine/internal/handler"
	"github.com/reelforge/clip-engine/internal/infra/postgresql"
	"github.com/reelforge/clip-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/reelforge/clip-engine/internal/infra/redis"
	"github.com/reelforge/clip-engine/internal/observability"
	"github.com/reelforge/clip-engine/internal/repository"
	"github.com/reelforge/clip-engine/internal/service"
	"github.com/reelforge/clip-engine/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	limiter, err := infraredis.NewRateLimiter(rdb, cfg.GenRateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	publisher, err := events.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer publisher.Close()

	collaborator, err := generator.NewHTTPCollaborator(cfg.GatewayURL)
	if err != nil {
		logger.Fatal("generation gateway client initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	batchRepo := repository.NewGormBatchRepo(db)
	unitRepo := repository.NewGormUnitRepo(db)

	critic, err := service.NewCriticScorer(collaborator, cfg.RetryThreshold, logger)
	if err != nil {
		logger.Fatal("critic scorer initialization failed", zap.Error(err))
	}

	pipeline, err := service.NewPipeline(service.PipelineDeps{
		Content:      collaborator,
		Critic:       critic,
		Audio:        collaborator,
		Video:        collaborator,
		Stitcher:     collaborator,
		Units:        unitRepo,
		Limiter:      limiter,
		Metrics:      metrics,
		Logger:       logger,
		AssetWorkers: cfg.AssetWorkers,
	})
	if err != nil {
		logger.Fatal("pipeline initialization failed", zap.Error(err))
	}

	runner, err := service.NewBatchRunner(
		batchRepo,
		unitRepo,
		pipeline,
		time.Duration(cfg.UnitTimeoutSec)*time.Second,
		cfg.MaxRetries,
		logger,
	)
	if err != nil {
		logger.Fatal("batch runner initialization failed", zap.Error(err))
	}
	runner.SetMetrics(metrics)

	batchService, err := service.NewBatchService(batchRepo, runner, publisher, logger)
	if err != nil {
		logger.Fatal("batch service initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      "clip-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterBatchRoutes(app, batchService); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			logger.Fatal("api server stopped", zap.Error(err))
		}
	}()
	logger.Info("clip-engine api started", zap.Int("port", cfg.APIPort))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	if err := app.Shutdown(); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
