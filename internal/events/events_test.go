package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/models"
)

type recordingPublisher struct {
	got []Event
	err error
}

func (r *recordingPublisher) Publish(_ context.Context, _ string, e Event) error {
	r.got = append(r.got, e)
	return r.err
}

func TestNewAuditCreated(t *testing.T) {
	e := &models.AuditEntry{
		ID:         12,
		EntityName: "Order",
		EntityID:   "7",
		Action:     models.ActionUpdated,
		UserID:     "u",
		Timestamp:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Changes:    []models.FieldChange{{FieldName: "a"}, {FieldName: "b"}},
	}

	ev := NewAuditCreated(e)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, EventAuditCreated, ev.Type)
	assert.Equal(t, int64(12), ev.Payload["audit_id"])
	assert.Equal(t, "Updated", ev.Payload["action"])
	assert.Equal(t, 2, ev.Payload["change_count"])
	assert.Equal(t, "2024-01-02T03:04:05Z", ev.Payload["timestamp"])
}

func TestMultiPublisher(t *testing.T) {
	ok := &recordingPublisher{}
	bad := &recordingPublisher{err: errors.New("down")}
	also := &recordingPublisher{}

	err := MultiPublisher{ok, bad, also}.Publish(context.Background(), StreamAudit, Event{Type: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Len(t, ok.got, 1)
	assert.Len(t, also.got, 1, "publishers after a failure still run")

	assert.NoError(t, MultiPublisher{}.Publish(context.Background(), StreamAudit, Event{}))
}

func TestKafkaPublisher(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, nil)
	producer.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Type != EventAuditCreated {
			return fmt.Errorf("unexpected type %q", ev.Type)
		}
		return nil
	})

	pub := NewKafkaPublisherWithProducer(producer, "audit.events", zap.NewNop())
	ev := NewAuditCreated(&models.AuditEntry{ID: 1, Action: models.ActionCreated})
	require.NoError(t, pub.Publish(context.Background(), StreamAudit, ev))
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherCancelled(t *testing.T) {
	blocked := &KafkaPublisher{producer: stuckProducer{mocks.NewAsyncProducer(t, nil)}, topic: "t", log: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := blocked.Publish(ctx, StreamAudit, Event{ID: "1"})
	assert.ErrorIs(t, err, context.Canceled)
	_ = blocked.producer.Close()
}

// stuckProducer never accepts input.
type stuckProducer struct {
	*mocks.AsyncProducer
}

func (stuckProducer) Input() chan<- *sarama.ProducerMessage { return nil }
