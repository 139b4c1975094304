package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/config"
	"github.com/audit-trail/backend/internal/db"
	"github.com/audit-trail/backend/internal/events"
	apphttp "github.com/audit-trail/backend/internal/http"
	"github.com/audit-trail/backend/internal/http/dto"
	"github.com/audit-trail/backend/internal/http/handlers"
	"github.com/audit-trail/backend/internal/logger"
	"github.com/audit-trail/backend/internal/repositories"
	"github.com/audit-trail/backend/internal/services"
	"github.com/audit-trail/backend/internal/storage"
)

func main() {
	cfg := config.Load()
	log := logger.Must(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	repo, closeStorage, err := storage.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	defer closeStorage()

	// Redis is optional: without it there is no cache, no stats, no live tail
	// and no rate limit.
	var (
		rdb        *redis.Client
		stats      services.StatsStore
		subscriber events.Subscriber
		publishers events.MultiPublisher
	)
	if cfg.RedisURL != "" {
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()

		repo = repositories.NewCachedAuditRepo(repo, rdb, cfg.CacheTTL, log)
		stats = repositories.NewStatsCache(rdb)
		subscriber = events.NewRedisSubscriber(rdb, log)
		publishers = append(publishers, events.NewRedisPublisher(rdb, log))
	}

	if cfg.KafkaEnabled() {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaEventsTopic, log)
		if err != nil {
			log.Fatal("failed to create kafka producer", zap.Error(err))
		}
		defer kp.Close()
		publishers = append(publishers, kp)
	}

	var publisher events.Publisher
	if len(publishers) > 0 {
		publisher = publishers
	}

	// Services
	auditService := services.NewAuditService(repo, stats, publisher, log)
	validator := dto.NewValidator()

	// Handlers
	h := apphttp.Handlers{
		Audit:  handlers.NewAuditHandler(auditService, validator, log),
		Auth:   handlers.NewAuthHandler(cfg, validator, log),
		Health: handlers.NewHealthHandler(auditService, log),
		Meta:   handlers.NewMetaHandler(),
	}
	if subscriber != nil {
		h.WS = handlers.NewWSHub(subscriber, log)
		if err := h.WS.Start(ctx); err != nil {
			log.Fatal("failed to start ws hub", zap.Error(err))
		}
	}

	app := apphttp.NewApp()
	apphttp.SetupRouter(app, cfg, log, rdb, h)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr), zap.String("storage", cfg.StorageDriver))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
