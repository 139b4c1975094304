package models

import (
	"encoding/json"
	"time"
)

// AuditEntry is one persisted, immutable audit record.
type AuditEntry struct {
	ID         int64                      `json:"auditId"`
	EntityName string                     `json:"entityName"`
	EntityID   string                     `json:"entityId"`
	Action     Action                     `json:"action"`
	UserID     string                     `json:"userId"`
	Timestamp  time.Time                  `json:"timestamp"`
	Changes    []FieldChange              `json:"changes"`
	Metadata   map[string]json.RawMessage `json:"additionalMetadata,omitempty"`
}

// FieldChange is one field's before/after pair. A nil side means the value
// was absent or JSON null.
type FieldChange struct {
	FieldName string  `json:"fieldName"`
	OldValue  *string `json:"oldValue"`
	NewValue  *string `json:"newValue"`
	FieldType string  `json:"fieldType"`
}

// AuditQuery filters audit entries. Zero values mean "no filter".
type AuditQuery struct {
	EntityName string
	EntityID   string
	UserID     string
	Action     *Action
	From       *time.Time
	To         *time.Time
	PageNumber int
	PageSize   int
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	// MaxPageNumber keeps (page-1)*size well inside int range.
	MaxPageNumber = 10_000_000
)

// Normalize applies paging defaults and bounds.
func (q *AuditQuery) Normalize() {
	if q.PageNumber < 1 {
		q.PageNumber = 1
	}
	if q.PageNumber > MaxPageNumber {
		q.PageNumber = MaxPageNumber
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
}

// Offset is the number of rows to skip for the current page.
func (q AuditQuery) Offset() int {
	if q.PageNumber < 1 || q.PageSize <= 0 {
		return 0
	}
	return (min(q.PageNumber, MaxPageNumber) - 1) * min(q.PageSize, MaxPageSize)
}

type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

func NewPage[T any](items []T, total, pageNumber, pageSize int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return &Page[T]{
		Items:      items,
		TotalCount: total,
		PageNumber: pageNumber,
		PageSize:   pageSize,
		TotalPages: pages,
	}
}

// ActionCount is one row of the per-entity action aggregation.
type ActionCount struct {
	EntityName string `json:"entityName"`
	Action     Action `json:"action"`
	Count      int64  `json:"count"`
}

// AuditStats is the cached summary written by the stats job.
type AuditStats struct {
	Since       time.Time     `json:"since"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Total       int64         `json:"total"`
	Counts      []ActionCount `json:"counts"`
}
