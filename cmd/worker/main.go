package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/config"
	"github.com/audit-trail/backend/internal/db"
	"github.com/audit-trail/backend/internal/events"
	"github.com/audit-trail/backend/internal/http/dto"
	"github.com/audit-trail/backend/internal/ingest"
	"github.com/audit-trail/backend/internal/logger"
	"github.com/audit-trail/backend/internal/services"
	"github.com/audit-trail/backend/internal/storage"
)

func main() {
	cfg := config.Load()
	log := logger.Must(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	cfg.Validate(log)
	if !cfg.KafkaEnabled() {
		log.Fatal("KAFKA_BROKERS is empty, worker has nothing to consume")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeStorage, err := storage.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.Error(err))
	}
	defer closeStorage()

	// Ingested entries are announced the same way as API-created ones.
	var publishers events.MultiPublisher
	if cfg.RedisURL != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		publishers = append(publishers, events.NewRedisPublisher(rdb, log))
	}
	kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaEventsTopic, log)
	if err != nil {
		log.Fatal("failed to create kafka producer", zap.Error(err))
	}
	defer kp.Close()
	publishers = append(publishers, kp)

	auditService := services.NewAuditService(repo, nil, publishers, log)

	sc := sarama.NewConfig()
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	group, err := sarama.NewConsumerGroup(cfg.KafkaBrokers, cfg.KafkaGroupID, sc)
	if err != nil {
		log.Fatal("failed to create consumer group", zap.Error(err))
	}
	defer group.Close()

	handler := ingest.NewHandler(auditService, dto.NewValidator(), cfg.WorkerMaxRetries, log)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down worker")
		cancel()
	}()

	log.Info("worker started",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaIngestTopic),
		zap.String("group", cfg.KafkaGroupID),
	)
	if err := ingest.Run(ctx, group, []string{cfg.KafkaIngestTopic}, handler, log); err != nil {
		log.Error("consumer stopped", zap.Error(err))
	}
}
