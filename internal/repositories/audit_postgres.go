package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/audit-trail/backend/internal/models"
)

type PostgresAuditRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresAuditRepo(pool *pgxpool.Pool) *PostgresAuditRepo {
	return &PostgresAuditRepo{pool: pool}
}

func (r *PostgresAuditRepo) Save(ctx context.Context, e *models.AuditEntry) error {
	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO audit_entries (entity_name, entity_id, action, user_id, timestamp, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, e.EntityName, e.EntityID, string(e.Action), e.UserID, e.Timestamp, meta).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	if len(e.Changes) > 0 {
		batch := &pgx.Batch{}
		for i, ch := range e.Changes {
			batch.Queue(`
				INSERT INTO audit_field_changes (audit_entry_id, position, field_name, old_value, new_value, field_type)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, e.ID, i, ch.FieldName, ch.OldValue, ch.NewValue, ch.FieldType)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert field changes: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresAuditRepo) FindByID(ctx context.Context, id int64) (*models.AuditEntry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM audit_entries WHERE id = $1`, id)
	e, err := scanPgEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	entries := []models.AuditEntry{*e}
	if err := r.loadChanges(ctx, entries); err != nil {
		return nil, err
	}
	return &entries[0], nil
}

func (r *PostgresAuditRepo) Query(ctx context.Context, q models.AuditQuery) ([]models.AuditEntry, int, error) {
	q.Normalize()
	where, args := auditFilter(q, dollar, passTime)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.AuditEntry{}, 0, nil
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM audit_entries%s ORDER BY timestamp DESC, id DESC LIMIT $%d OFFSET $%d`,
		entryColumns, where, n+1, n+2)
	args = append(args, q.PageSize, q.Offset())

	entries, err := r.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *PostgresAuditRepo) FindHistory(ctx context.Context, entityName, entityID string) ([]models.AuditEntry, error) {
	return r.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM audit_entries
		WHERE entity_name = $1 AND entity_id = $2
		ORDER BY timestamp DESC, id DESC
	`, entityName, entityID)
}

func (r *PostgresAuditRepo) CountByEntityAction(ctx context.Context, since time.Time) ([]models.ActionCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT entity_name, action, COUNT(*)
		FROM audit_entries WHERE timestamp >= $1
		GROUP BY entity_name, action
		ORDER BY entity_name, action
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []models.ActionCount{}
	for rows.Next() {
		var c models.ActionCount
		var action string
		if err := rows.Scan(&c.EntityName, &action, &c.Count); err != nil {
			return nil, err
		}
		c.Action = models.Action(action)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *PostgresAuditRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresAuditRepo) queryEntries(ctx context.Context, query string, args ...any) ([]models.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		e, err := scanPgEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.loadChanges(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *PostgresAuditRepo) loadChanges(ctx context.Context, entries []models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT audit_entry_id, field_name, old_value, new_value, field_type
		FROM audit_field_changes WHERE audit_entry_id = ANY($1)
		ORDER BY audit_entry_id, position
	`, entryIDs(entries))
	if err != nil {
		return err
	}
	defer rows.Close()

	byEntry := make(map[int64][]models.FieldChange, len(entries))
	for rows.Next() {
		var id int64
		var ch models.FieldChange
		if err := rows.Scan(&id, &ch.FieldName, &ch.OldValue, &ch.NewValue, &ch.FieldType); err != nil {
			return err
		}
		byEntry[id] = append(byEntry[id], ch)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	attachChanges(entries, byEntry)
	return nil
}

func scanPgEntry(row pgx.Row) (*models.AuditEntry, error) {
	var e models.AuditEntry
	var action string
	var meta *string
	if err := row.Scan(&e.ID, &e.EntityName, &e.EntityID, &action, &e.UserID, &e.Timestamp, &meta); err != nil {
		return nil, err
	}
	e.Action = models.Action(action)
	e.Timestamp = e.Timestamp.UTC()

	m, err := decodeMetadata(meta)
	if err != nil {
		return nil, err
	}
	e.Metadata = m
	return &e, nil
}
