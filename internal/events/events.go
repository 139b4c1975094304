package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/audit-trail/backend/internal/models"
)

// Streams
const (
	StreamAudit = "events:audit"
)

// Event types
const (
	EventAuditCreated = "audit.created"
)

type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NewAuditCreated builds the event announced after an entry is stored.
func NewAuditCreated(e *models.AuditEntry) Event {
	return Event{
		ID:   uuid.NewString(),
		Type: EventAuditCreated,
		Payload: map[string]any{
			"audit_id":     e.ID,
			"entity_name":  e.EntityName,
			"entity_id":    e.EntityID,
			"action":       string(e.Action),
			"user_id":      e.UserID,
			"timestamp":    e.Timestamp.UTC().Format(time.RFC3339Nano),
			"change_count": len(e.Changes),
		},
	}
}

// MultiPublisher fans an event out to every publisher. All publishers are
// tried; their errors are joined.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, stream string, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, stream, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
