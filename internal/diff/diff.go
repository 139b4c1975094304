// Package diff computes field-level changes between two flat JSON snapshots.
//
// Only top-level members are compared. Values are compared by their
// normalized string form, so 1 and 1.0 differ while 1 and "1" do not.
package diff

import (
	"fmt"

	"github.com/audit-trail/backend/internal/models"
)

// ComputeChanges returns the ordered field changes for an action.
//
// Created lists every member of after as an addition and ignores before.
// Deleted lists every member of before as a removal and ignores after.
// Updated needs both sides and lists modified and added members in after's
// order, then removed members in before's order. A missing required side
// yields no changes and no error.
func ComputeChanges(before, after *Value, action models.Action) ([]models.FieldChange, error) {
	changes := []models.FieldChange{}

	switch action {
	case models.ActionCreated:
		if after == nil {
			return changes, nil
		}
		if after.Kind() != KindObject {
			return changes, shapeError("after", after)
		}
		for _, f := range after.fields {
			changes = append(changes, added(f))
		}

	case models.ActionDeleted:
		if before == nil {
			return changes, nil
		}
		if before.Kind() != KindObject {
			return changes, shapeError("before", before)
		}
		for _, f := range before.fields {
			changes = append(changes, removed(f))
		}

	case models.ActionUpdated:
		if before == nil || after == nil {
			return changes, nil
		}
		if before.Kind() != KindObject {
			return changes, shapeError("before", before)
		}
		if after.Kind() != KindObject {
			return changes, shapeError("after", after)
		}
		beforeIdx, err := index("before", before)
		if err != nil {
			return []models.FieldChange{}, err
		}
		afterIdx, err := index("after", after)
		if err != nil {
			return []models.FieldChange{}, err
		}

		for _, f := range after.fields {
			old, ok := beforeIdx[f.Name]
			if !ok {
				changes = append(changes, added(f))
				continue
			}
			oldStr, newStr := old.Stringify(), f.Value.Stringify()
			if equal(oldStr, newStr) {
				continue
			}
			changes = append(changes, models.FieldChange{
				FieldName: f.Name,
				OldValue:  oldStr,
				NewValue:  newStr,
				FieldType: f.Value.Kind().String(),
			})
		}
		for _, f := range before.fields {
			if _, ok := afterIdx[f.Name]; !ok {
				changes = append(changes, removed(f))
			}
		}

	default:
		return changes, &Error{Op: "diff", Err: ErrUnsupportedAction, Detail: fmt.Sprintf("%q", string(action))}
	}

	return changes, nil
}

func added(f Field) models.FieldChange {
	return models.FieldChange{
		FieldName: f.Name,
		NewValue:  f.Value.Stringify(),
		FieldType: f.Value.Kind().String(),
	}
}

func removed(f Field) models.FieldChange {
	return models.FieldChange{
		FieldName: f.Name,
		OldValue:  f.Value.Stringify(),
		FieldType: f.Value.Kind().String(),
	}
}

func index(side string, obj *Value) (map[string]*Value, error) {
	idx := make(map[string]*Value, len(obj.fields))
	for _, f := range obj.fields {
		if _, dup := idx[f.Name]; dup {
			return nil, &Error{Op: "diff", Side: side, Err: ErrDuplicateField, Detail: f.Name}
		}
		idx[f.Name] = f.Value
	}
	return idx, nil
}

func equal(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func shapeError(side string, v *Value) error {
	return &Error{Op: "diff", Side: side, Err: ErrInvalidSnapshotShape, Detail: "got " + v.Kind().String()}
}
