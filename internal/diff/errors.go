package diff

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSnapshotFormat means snapshot text is not valid JSON. It
	// aborts audit creation.
	ErrInvalidSnapshotFormat = errors.New("invalid snapshot format")
	// ErrInvalidSnapshotShape means a snapshot whose fields must be
	// enumerated is not a JSON object.
	ErrInvalidSnapshotShape = errors.New("invalid snapshot shape")
	// ErrDuplicateField means an object repeats a member name, so the two
	// sides of an update cannot be matched by name.
	ErrDuplicateField    = errors.New("duplicate field")
	ErrUnsupportedAction = errors.New("unsupported action")
)

// Error describes where a diff or parse failed.
type Error struct {
	Op     string // parse, unwrap, diff
	Side   string // before, after
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := "diff: " + e.Op
	if e.Side != "" {
		msg += " " + e.Side
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += fmt.Sprintf(" (%s)", e.Detail)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func asDiffError(err error, target **Error) bool {
	return errors.As(err, target)
}
