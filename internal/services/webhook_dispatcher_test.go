package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/events"
)

type gatedDeliverer struct {
	gate chan struct{}
	mu   sync.Mutex
	got  []string
	err  error
}

func (g *gatedDeliverer) Deliver(ctx context.Context, e events.Event) error {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.mu.Lock()
	g.got = append(g.got, e.ID)
	g.mu.Unlock()
	return g.err
}

func (g *gatedDeliverer) delivered() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.got...)
}

func TestWebhookDispatcherDelivers(t *testing.T) {
	g := &gatedDeliverer{gate: make(chan struct{})}
	close(g.gate)

	d := NewWebhookDispatcher(g, 2, 8, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, d.Enqueue(events.Event{ID: id}))
	}
	assert.Eventually(t, func() bool { return len(g.delivered()) == 3 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, g.delivered())

	cancel()
	d.Wait()
}

func TestWebhookDispatcherEnqueueNeverBlocks(t *testing.T) {
	g := &gatedDeliverer{gate: make(chan struct{})}
	d := NewWebhookDispatcher(g, 1, 1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	dropped := testutil.ToFloat64(webhookDeliveriesTotal.WithLabelValues("dropped"))

	// first event occupies the stuck worker, second fills the queue
	require.True(t, d.Enqueue(events.Event{ID: "busy"}))
	assert.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, 5*time.Millisecond)
	require.True(t, d.Enqueue(events.Event{ID: "queued"}))

	done := make(chan bool)
	go func() { done <- d.Enqueue(events.Event{ID: "overflow"}) }()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	assert.Equal(t, dropped+1, testutil.ToFloat64(webhookDeliveriesTotal.WithLabelValues("dropped")))

	close(g.gate)
	assert.Eventually(t, func() bool { return len(g.delivered()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	d.Wait()
}

func TestWebhookDispatcherCountsFailures(t *testing.T) {
	g := &gatedDeliverer{gate: make(chan struct{}), err: errors.New("webhook returned 500")}
	close(g.gate)

	failed := testutil.ToFloat64(webhookDeliveriesTotal.WithLabelValues("failed"))

	d := NewWebhookDispatcher(g, 1, 4, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	require.True(t, d.Enqueue(events.Event{ID: "x"}))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(webhookDeliveriesTotal.WithLabelValues("failed")) == failed+1
	}, time.Second, 5*time.Millisecond)

	cancel()
	d.Wait()
}
