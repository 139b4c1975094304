package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/config"
	"github.com/audit-trail/backend/internal/db"
	"github.com/audit-trail/backend/internal/events"
	"github.com/audit-trail/backend/internal/logger"
	"github.com/audit-trail/backend/internal/services"
)

// Webhook bridge subscribes to audit events in redis and forwards each one
// to WEBHOOK_URL.

func main() {
	cfg := config.Load()
	log := logger.Must(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	if cfg.WebhookURL == "" {
		log.Fatal("WEBHOOK_URL is empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)
	webhook := services.NewWebhookClient(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout, cfg.WebhookMaxRetries, log)

	dispatcher := services.NewWebhookDispatcher(webhook, cfg.WebhookWorkers, cfg.WebhookQueueSize, log)
	dispatcher.Start(ctx)

	// The subscriber callback only enqueues, so a slow webhook cannot back
	// up the redis pub/sub channel.
	err = subscriber.Subscribe(ctx, events.StreamAudit, func(event events.Event) {
		dispatcher.Enqueue(event)
	})
	if err != nil {
		log.Fatal("failed to subscribe", zap.String("stream", events.StreamAudit), zap.Error(err))
	}

	if cfg.WebhookSecret == "" {
		log.Warn("WEBHOOK_SECRET is empty, deliveries are unsigned")
	}
	log.Info("webhook-bridge started",
		zap.String("url", cfg.WebhookURL),
		zap.Int("workers", cfg.WebhookWorkers),
		zap.Int("queue_size", cfg.WebhookQueueSize),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down webhook-bridge")
	cancel()
	dispatcher.Wait()
}
