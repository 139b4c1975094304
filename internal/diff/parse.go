package diff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Parse decodes a JSON document into a Value, keeping object members in
// source order. Malformed input fails with ErrInvalidSnapshotFormat.
func Parse(data []byte) (*Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, &Error{Op: "parse", Err: ErrInvalidSnapshotFormat, Detail: "empty document"}
	}
	if !json.Valid(data) {
		return nil, &Error{Op: "parse", Err: ErrInvalidSnapshotFormat, Detail: "malformed json"}
	}
	v, err := parseValue(append([]byte(nil), data...))
	if err != nil {
		return nil, &Error{Op: "parse", Err: ErrInvalidSnapshotFormat, Detail: err.Error()}
	}
	return v, nil
}

// Snapshot turns a raw request field into a snapshot. Missing input and JSON
// null mean "absent" and yield nil. A JSON string is treated as a
// double-encoded document and parsed once more; there is no further
// unwrapping.
func Snapshot(raw []byte) (*Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	v, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return Unwrap(v)
}

// Unwrap parses the content of a string value as JSON. Values of any other
// kind are returned unchanged.
func Unwrap(v *Value) (*Value, error) {
	if v.Kind() != KindString {
		if v.Kind() == KindNull {
			return nil, nil
		}
		return v, nil
	}
	inner, err := Parse([]byte(v.text))
	if err != nil {
		var de *Error
		if asDiffError(err, &de) {
			de.Op = "unwrap"
		}
		return nil, err
	}
	if inner.Kind() == KindNull {
		return nil, nil
	}
	return inner, nil
}

func parseValue(data []byte) (*Value, error) {
	switch data[0] {
	case '{':
		return parseObject(data)
	case '[':
		return parseArray(data)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case 't':
		return Bool(true), nil
	case 'f':
		return Bool(false), nil
	case 'n':
		return Null(), nil
	default:
		return Number(string(data)), nil
	}
}

func parseObject(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	obj := &Value{kind: KindObject, raw: data, fields: []Field{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var member json.RawMessage
		if err := dec.Decode(&member); err != nil {
			return nil, err
		}
		child, err := parseValue(bytes.TrimSpace(member))
		if err != nil {
			return nil, err
		}
		obj.fields = append(obj.fields, Field{Name: name, Value: child})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return obj, nil
}

func parseArray(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	arr := &Value{kind: KindArray, raw: data, items: []*Value{}}
	for dec.More() {
		var item json.RawMessage
		if err := dec.Decode(&item); err != nil {
			return nil, err
		}
		child, err := parseValue(bytes.TrimSpace(item))
		if err != nil {
			return nil, err
		}
		arr.items = append(arr.items, child)
	}
	return arr, nil
}
