package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/audit-trail/backend/internal/models"
)

// sqliteTime is fixed width so that text comparison orders like time.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteAuditRepo is the local/dev storage driver. It expects a *sql.DB
// opened on the "sqlite" driver with a single connection.
type SQLiteAuditRepo struct {
	db *sql.DB
}

func NewSQLiteAuditRepo(db *sql.DB) *SQLiteAuditRepo {
	return &SQLiteAuditRepo{db: db}
}

// EnsureSchema creates the audit tables if they don't exist.
func (r *SQLiteAuditRepo) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_name TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		user_id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_entity ON audit_entries(entity_name, entity_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_user ON audit_entries(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_entries(timestamp);

	CREATE TABLE IF NOT EXISTS audit_field_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		audit_entry_id INTEGER NOT NULL REFERENCES audit_entries(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		field_name TEXT NOT NULL,
		old_value TEXT,
		new_value TEXT,
		field_type TEXT NOT NULL,
		UNIQUE(audit_entry_id, position)
	);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (r *SQLiteAuditRepo) Save(ctx context.Context, e *models.AuditEntry) error {
	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO audit_entries (entity_name, entity_id, action, user_id, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.EntityName, e.EntityID, string(e.Action), e.UserID, sqliteStamp(e.Timestamp), meta)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for i, ch := range e.Changes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO audit_field_changes (audit_entry_id, position, field_name, old_value, new_value, field_type)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, i, ch.FieldName, ch.OldValue, ch.NewValue, ch.FieldType)
		if err != nil {
			return fmt.Errorf("insert field change %q: %w", ch.FieldName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	e.ID = id
	return nil
}

func (r *SQLiteAuditRepo) FindByID(ctx context.Context, id int64) (*models.AuditEntry, error) {
	entries, err := r.queryEntries(ctx, `SELECT `+entryColumns+` FROM audit_entries WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return &entries[0], nil
}

func (r *SQLiteAuditRepo) Query(ctx context.Context, q models.AuditQuery) ([]models.AuditEntry, int, error) {
	q.Normalize()
	where, args := auditFilter(q, question, sqliteStamp)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.AuditEntry{}, 0, nil
	}

	query := `SELECT ` + entryColumns + ` FROM audit_entries` + where + ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, q.PageSize, q.Offset())

	entries, err := r.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *SQLiteAuditRepo) FindHistory(ctx context.Context, entityName, entityID string) ([]models.AuditEntry, error) {
	return r.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM audit_entries
		WHERE entity_name = ? AND entity_id = ?
		ORDER BY timestamp DESC, id DESC
	`, entityName, entityID)
}

func (r *SQLiteAuditRepo) CountByEntityAction(ctx context.Context, since time.Time) ([]models.ActionCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_name, action, COUNT(*)
		FROM audit_entries WHERE timestamp >= ?
		GROUP BY entity_name, action
		ORDER BY entity_name, action
	`, sqliteStamp(since))
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

func (r *SQLiteAuditRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// queryEntries reads all entry rows before loading changes: the pool has a
// single connection, so rows must be closed first.
func (r *SQLiteAuditRepo) queryEntries(ctx context.Context, query string, args ...any) ([]models.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		var action, stamp string
		var meta sql.NullString
		if err := rows.Scan(&e.ID, &e.EntityName, &e.EntityID, &action, &e.UserID, &stamp, &meta); err != nil {
			rows.Close()
			return nil, err
		}
		e.Action = models.Action(action)
		if e.Timestamp, err = time.Parse(sqliteTime, stamp); err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse timestamp %q: %w", stamp, err)
		}
		if meta.Valid {
			if e.Metadata, err = decodeMetadata(&meta.String); err != nil {
				rows.Close()
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return nil, err
	}

	if err := r.loadChanges(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *SQLiteAuditRepo) loadChanges(ctx context.Context, entries []models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := entryIDs(entries)
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT audit_entry_id, field_name, old_value, new_value, field_type
		FROM audit_field_changes WHERE audit_entry_id IN (`+marks+`)
		ORDER BY audit_entry_id, position
	`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	byEntry := make(map[int64][]models.FieldChange, len(entries))
	for rows.Next() {
		var id int64
		var ch models.FieldChange
		var oldV, newV sql.NullString
		if err := rows.Scan(&id, &ch.FieldName, &oldV, &newV, &ch.FieldType); err != nil {
			return err
		}
		if oldV.Valid {
			ch.OldValue = &oldV.String
		}
		if newV.Valid {
			ch.NewValue = &newV.String
		}
		byEntry[id] = append(byEntry[id], ch)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	attachChanges(entries, byEntry)
	return nil
}

func sqliteStamp(t time.Time) any {
	return t.UTC().Format(sqliteTime)
}
