// Package ingest turns Kafka messages into audit entries.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/diff"
	"github.com/audit-trail/backend/internal/http/dto"
	"github.com/audit-trail/backend/internal/models"
	"github.com/audit-trail/backend/internal/services"
)

const (
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

var messagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "audit_ingest_messages_total",
		Help: "Ingest messages by outcome: stored, poison, dropped.",
	},
	[]string{"outcome"},
)

// Creator stores one audit entry.
type Creator interface {
	CreateEntry(ctx context.Context, in services.CreateEntryInput) (*models.AuditEntry, error)
}

// Handler implements sarama.ConsumerGroupHandler. Messages are handled one
// at a time per claim and marked once stored or given up on.
type Handler struct {
	creator    Creator
	validator  *dto.Validator
	maxRetries int
	log        *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewHandler(creator Creator, validator *dto.Validator, maxRetries int, log *zap.Logger) *Handler {
	return &Handler{
		creator:    creator,
		validator:  validator,
		maxRetries: maxRetries,
		log:        log,
		sleep:      sleepCtx,
	}
}

func (h *Handler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *Handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *Handler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.Process(session.Context(), msg); err != nil {
				// context cancelled mid-retry: leave unmarked for the next owner
				return nil
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// Process handles one message. It returns an error only when ctx ends
// before the message could be settled.
func (h *Handler) Process(ctx context.Context, msg *sarama.ConsumerMessage) error {
	log := h.log.With(
		zap.String("topic", msg.Topic),
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	var req dto.CreateAuditRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		log.Warn("poison message: invalid json", zap.Error(err))
		messagesTotal.WithLabelValues("poison").Inc()
		return nil
	}
	if msgs := h.validator.Struct(req); len(msgs) > 0 {
		log.Warn("poison message: validation failed", zap.Strings("details", msgs))
		messagesTotal.WithLabelValues("poison").Inc()
		return nil
	}

	input := req.Input()
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		entry, err := h.creator.CreateEntry(ctx, input)
		if err == nil {
			log.Debug("ingested", zap.Int64("audit_id", entry.ID))
			messagesTotal.WithLabelValues("stored").Inc()
			return nil
		}
		if isPermanent(err) {
			log.Warn("poison message: rejected", zap.Error(err))
			messagesTotal.WithLabelValues("poison").Inc()
			return nil
		}
		if attempt > h.maxRetries {
			log.Error("dropping message after retries", zap.Int("attempts", attempt), zap.Error(err))
			messagesTotal.WithLabelValues("dropped").Inc()
			return nil
		}

		log.Warn("store failed, retrying", zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))
		if err := h.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff)
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, services.ErrValidation) || errors.Is(err, diff.ErrInvalidSnapshotFormat)
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run joins the consumer group and consumes until ctx is cancelled.
// Consume returns on every rebalance, so it is called in a loop.
func Run(ctx context.Context, group sarama.ConsumerGroup, topics []string, h *Handler, log *zap.Logger) error {
	go func() {
		for err := range group.Errors() {
			log.Error("consumer group error", zap.Error(err))
		}
	}()

	for {
		if err := group.Consume(ctx, topics, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
