package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/diff"
	"github.com/audit-trail/backend/internal/events"
	"github.com/audit-trail/backend/internal/models"
	"github.com/audit-trail/backend/internal/repositories"
)

// ErrValidation marks input the caller must fix.
var ErrValidation = errors.New("validation failed")

var diffDegradedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "audit_diff_degraded_total",
		Help: "Audit entries stored without field changes because the diff could not be computed.",
	},
	[]string{"reason"},
)

// StatsStore keeps the latest aggregation between stats job runs.
type StatsStore interface {
	Get(ctx context.Context) (*models.AuditStats, error)
	Put(ctx context.Context, s *models.AuditStats, ttl time.Duration) error
}

type CreateEntryInput struct {
	EntityName   string
	EntityID     string
	Action       models.Action
	UserID       string
	ObjectBefore json.RawMessage
	ObjectAfter  json.RawMessage
	Metadata     map[string]json.RawMessage
}

type AuditService struct {
	repo      repositories.AuditRepository
	stats     StatsStore
	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewAuditService(repo repositories.AuditRepository, stats StatsStore, publisher events.Publisher, log *zap.Logger) *AuditService {
	return &AuditService{
		repo:      repo,
		stats:     stats,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// CreateEntry diffs the snapshots and stores the resulting entry.
//
// Malformed snapshot text aborts with diff.ErrInvalidSnapshotFormat and
// nothing is stored. Any other diff failure is logged and the entry is
// stored with an empty change list.
func (s *AuditService) CreateEntry(ctx context.Context, in CreateEntryInput) (*models.AuditEntry, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	before, err := diff.Snapshot(in.ObjectBefore)
	if err != nil {
		return nil, fmt.Errorf("objectBefore: %w", err)
	}
	after, err := diff.Snapshot(in.ObjectAfter)
	if err != nil {
		return nil, fmt.Errorf("objectAfter: %w", err)
	}

	changes, err := diff.ComputeChanges(before, after, in.Action)
	if err != nil {
		reason := degradeReason(err)
		diffDegradedTotal.WithLabelValues(reason).Inc()
		s.log.Warn("field diff skipped, storing entry without changes",
			zap.String("entity_name", in.EntityName),
			zap.String("entity_id", in.EntityID),
			zap.String("action", string(in.Action)),
			zap.String("reason", reason),
			zap.Error(err),
		)
		changes = []models.FieldChange{}
	}

	entry := &models.AuditEntry{
		EntityName: in.EntityName,
		EntityID:   in.EntityID,
		Action:     in.Action,
		UserID:     in.UserID,
		Timestamp:  s.now().UTC(),
		Changes:    changes,
		Metadata:   in.Metadata,
	}

	if err := s.repo.Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("save audit entry: %w", err)
	}

	s.log.Info("audit entry created",
		zap.Int64("audit_id", entry.ID),
		zap.String("entity_name", entry.EntityName),
		zap.String("entity_id", entry.EntityID),
		zap.String("action", string(entry.Action)),
		zap.Int("changes", len(entry.Changes)),
	)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.StreamAudit, events.NewAuditCreated(entry)); err != nil {
			s.log.Warn("failed to publish audit event", zap.Int64("audit_id", entry.ID), zap.Error(err))
		}
	}

	return entry, nil
}

func (s *AuditService) GetEntries(ctx context.Context, q models.AuditQuery) (*models.Page[models.AuditEntry], error) {
	q.Normalize()
	if q.Action != nil && !q.Action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, *q.Action)
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return nil, fmt.Errorf("%w: fromDate is after toDate", ErrValidation)
	}

	items, total, err := s.repo.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return models.NewPage(items, total, q.PageNumber, q.PageSize), nil
}

func (s *AuditService) GetEntry(ctx context.Context, id int64) (*models.AuditEntry, error) {
	return s.repo.FindByID(ctx, id)
}

// GetEntityHistory returns every entry for one entity, newest first.
func (s *AuditService) GetEntityHistory(ctx context.Context, entityName, entityID string) ([]models.AuditEntry, error) {
	if strings.TrimSpace(entityName) == "" || strings.TrimSpace(entityID) == "" {
		return nil, fmt.Errorf("%w: entityName and entityId are required", ErrValidation)
	}
	return s.repo.FindHistory(ctx, entityName, entityID)
}

// GetStats returns the cached aggregation, repositories.ErrNotFound until
// the stats job has run once.
func (s *AuditService) GetStats(ctx context.Context) (*models.AuditStats, error) {
	if s.stats == nil {
		return nil, repositories.ErrNotFound
	}
	return s.stats.Get(ctx)
}

// RefreshStats aggregates entries of the last window and stores the result
// for ttl.
func (s *AuditService) RefreshStats(ctx context.Context, window, ttl time.Duration) (*models.AuditStats, error) {
	now := s.now().UTC()
	since := now.Add(-window)

	counts, err := s.repo.CountByEntityAction(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}

	stats := &models.AuditStats{Since: since, GeneratedAt: now, Counts: counts}
	for _, c := range counts {
		stats.Total += c.Count
	}

	if s.stats != nil {
		if err := s.stats.Put(ctx, stats, ttl); err != nil {
			return nil, fmt.Errorf("store stats: %w", err)
		}
	}
	return stats, nil
}

// Ping reports whether storage is reachable.
func (s *AuditService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func validateInput(in CreateEntryInput) error {
	var missing []string
	if strings.TrimSpace(in.EntityName) == "" {
		missing = append(missing, "entityName")
	}
	if strings.TrimSpace(in.EntityID) == "" {
		missing = append(missing, "entityId")
	}
	if strings.TrimSpace(in.UserID) == "" {
		missing = append(missing, "userId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	if !in.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrValidation, in.Action)
	}
	return nil
}

func degradeReason(err error) string {
	switch {
	case errors.Is(err, diff.ErrInvalidSnapshotShape):
		return "invalid_shape"
	case errors.Is(err, diff.ErrDuplicateField):
		return "duplicate_field"
	case errors.Is(err, diff.ErrUnsupportedAction):
		return "unsupported_action"
	}
	return "unknown"
}
