package services

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/events"
)

var webhookDeliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "audit_webhook_deliveries_total",
		Help: "Webhook deliveries by outcome: delivered, failed, dropped.",
	},
	[]string{"outcome"},
)

// Deliverer sends one event to its destination.
type Deliverer interface {
	Deliver(ctx context.Context, event events.Event) error
}

// WebhookDispatcher decouples the pub/sub callback from delivery. Enqueue
// never blocks; when the queue is full the event is dropped and counted.
type WebhookDispatcher struct {
	deliverer Deliverer
	queue     chan events.Event
	workers   int
	log       *zap.Logger
	wg        sync.WaitGroup
}

func NewWebhookDispatcher(deliverer Deliverer, workers, queueSize int, log *zap.Logger) *WebhookDispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &WebhookDispatcher{
		deliverer: deliverer,
		queue:     make(chan events.Event, queueSize),
		workers:   workers,
		log:       log,
	}
}

// Start launches the workers. They stop when ctx is done; Wait blocks
// until they have returned.
func (d *WebhookDispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case event := <-d.queue:
					d.deliver(ctx, event)
				}
			}
		}()
	}
}

func (d *WebhookDispatcher) Wait() {
	d.wg.Wait()
}

func (d *WebhookDispatcher) Enqueue(event events.Event) bool {
	select {
	case d.queue <- event:
		return true
	default:
		webhookDeliveriesTotal.WithLabelValues("dropped").Inc()
		d.log.Warn("webhook queue full, dropping event",
			zap.String("event_id", event.ID),
			zap.Int("queue_size", cap(d.queue)),
		)
		return false
	}
}

func (d *WebhookDispatcher) deliver(ctx context.Context, event events.Event) {
	if err := d.deliverer.Deliver(ctx, event); err != nil {
		webhookDeliveriesTotal.WithLabelValues("failed").Inc()
		d.log.Warn("webhook delivery failed",
			zap.String("event_id", event.ID),
			zap.String("type", event.Type),
			zap.Error(err),
		)
		return
	}
	webhookDeliveriesTotal.WithLabelValues("delivered").Inc()
}
