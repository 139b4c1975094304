package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/config"
	"github.com/audit-trail/backend/internal/db"
	"github.com/audit-trail/backend/internal/logger"
	"github.com/audit-trail/backend/internal/repositories"
	"github.com/audit-trail/backend/internal/services"
	"github.com/audit-trail/backend/internal/storage"
)

func main() {
	cfg := config.Load()
	log := logger.Must(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeStorage, err := storage.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.Error(err))
	}
	defer closeStorage()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	svc := services.NewAuditService(repo, repositories.NewStatsCache(rdb), nil, log)

	// Keep the summary alive across one missed run.
	ttl := 2 * cfg.StatsRefreshInterval

	log.Info("stats job started",
		zap.Duration("interval", cfg.StatsRefreshInterval),
		zap.Duration("window", cfg.StatsWindow),
	)

	// Initial run
	runStatsRefresh(ctx, svc, cfg.StatsWindow, ttl, log)

	ticker := time.NewTicker(cfg.StatsRefreshInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runStatsRefresh(ctx, svc, cfg.StatsWindow, ttl, log)
		case <-sigCh:
			log.Info("shutting down stats job")
			cancel()
			return
		}
	}
}

func runStatsRefresh(ctx context.Context, svc *services.AuditService, window, ttl time.Duration, log *zap.Logger) {
	start := time.Now()
	stats, err := svc.RefreshStats(ctx, window, ttl)
	if err != nil {
		log.Error("stats refresh failed", zap.Error(err))
		return
	}
	log.Info("stats refreshed",
		zap.Int64("total", stats.Total),
		zap.Int("groups", len(stats.Counts)),
		zap.Duration("took", time.Since(start)),
	)
}
