package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/audit-trail/backend/internal/models"
)

var ErrNotFound = errors.New("not found")

// AuditRepository stores immutable audit entries together with their
// ordered field changes.
type AuditRepository interface {
	// Save persists the entry and its changes atomically and sets e.ID.
	Save(ctx context.Context, e *models.AuditEntry) error
	FindByID(ctx context.Context, id int64) (*models.AuditEntry, error)
	// Query returns one page of matching entries, newest first, and the
	// total number of matches.
	Query(ctx context.Context, q models.AuditQuery) ([]models.AuditEntry, int, error)
	FindHistory(ctx context.Context, entityName, entityID string) ([]models.AuditEntry, error)
	CountByEntityAction(ctx context.Context, since time.Time) ([]models.ActionCount, error)
	Ping(ctx context.Context) error
}

const entryColumns = `id, entity_name, entity_id, action, user_id, timestamp, metadata`

// auditFilter builds the WHERE clause shared by the SQL backends.
// placeholder renders the n-th bind marker; stamp converts time bounds to
// the backend's column representation.
func auditFilter(q models.AuditQuery, placeholder func(n int) string, stamp func(time.Time) any) (string, []any) {
	args := []any{}
	argIdx := 1
	where := []string{}

	add := func(expr string, v any) {
		where = append(where, fmt.Sprintf(expr, placeholder(argIdx)))
		args = append(args, v)
		argIdx++
	}

	if q.EntityName != "" {
		add("entity_name = %s", q.EntityName)
	}
	if q.EntityID != "" {
		add("entity_id = %s", q.EntityID)
	}
	if q.UserID != "" {
		add("user_id = %s", q.UserID)
	}
	if q.Action != nil {
		add("action = %s", string(*q.Action))
	}
	if q.From != nil {
		add("timestamp >= %s", stamp(q.From.UTC()))
	}
	if q.To != nil {
		add("timestamp <= %s", stamp(q.To.UTC()))
	}

	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

func question(int) string { return "?" }

func passTime(t time.Time) any { return t }

func encodeMetadata(m map[string]json.RawMessage) (*string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	s := string(b)
	return &s, nil
}

func decodeMetadata(s *string) (map[string]json.RawMessage, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(*s), &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

// attachChanges distributes loaded change rows to their entries. Rows must
// be ordered by position within an entry.
func attachChanges(entries []models.AuditEntry, byEntry map[int64][]models.FieldChange) {
	for i := range entries {
		if ch, ok := byEntry[entries[i].ID]; ok {
			entries[i].Changes = ch
		} else {
			entries[i].Changes = []models.FieldChange{}
		}
	}
}

func entryIDs(entries []models.AuditEntry) []int64 {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}
