package diff

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Kind is the JSON type tag of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	}
	return "unknown"
}

// Field is one member of an object, in source order.
type Field struct {
	Name  string
	Value *Value
}

// Value is a parsed JSON value. Numbers keep their source text and objects
// and arrays keep their raw serialized form, so Stringify never reformats.
type Value struct {
	kind   Kind
	text   string // string content or number literal
	b      bool
	fields []Field
	items  []*Value
	raw    []byte
}

func Null() *Value             { return &Value{kind: KindNull} }
func String(s string) *Value   { return &Value{kind: KindString, text: s} }
func Bool(b bool) *Value       { return &Value{kind: KindBool, b: b} }
func Number(lit string) *Value { return &Value{kind: KindNumber, text: lit} }

func Object(fields ...Field) *Value {
	return &Value{kind: KindObject, fields: fields}
}

func Array(items ...*Value) *Value {
	return &Value{kind: KindArray, items: items}
}

// F is shorthand for building object fields.
func F(name string, v *Value) Field { return Field{Name: name, Value: v} }

func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// Fields returns object members in source order, nil for non-objects.
func (v *Value) Fields() []Field {
	if v == nil || v.kind != KindObject {
		return nil
	}
	return v.fields
}

func (v *Value) Items() []*Value {
	if v == nil || v.kind != KindArray {
		return nil
	}
	return v.items
}

// Stringify renders the value the way it is stored in a FieldChange.
// Null yields nil.
func (v *Value) Stringify() *string {
	var s string
	switch v.Kind() {
	case KindNull:
		return nil
	case KindString:
		s = v.text
	case KindNumber:
		s = v.text
	case KindBool:
		s = strconv.FormatBool(v.b)
	case KindObject, KindArray:
		s = string(v.Raw())
	}
	return &s
}

// Raw returns the serialized form: the source bytes when parsed, a compact
// encoding when built in code.
func (v *Value) Raw() []byte {
	if v == nil {
		return []byte("null")
	}
	if v.raw != nil {
		return v.raw
	}
	var buf bytes.Buffer
	v.encode(&buf)
	return buf.Bytes()
}

func (v *Value) MarshalJSON() ([]byte, error) {
	return v.Raw(), nil
}

func (v *Value) encode(buf *bytes.Buffer) {
	switch v.Kind() {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		b, _ := json.Marshal(v.text)
		buf.Write(b)
	case KindNumber:
		buf.WriteString(v.text)
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindObject:
		if v.raw != nil {
			buf.Write(v.raw)
			return
		}
		buf.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, _ := json.Marshal(f.Name)
			buf.Write(k)
			buf.WriteByte(':')
			f.Value.encode(buf)
		}
		buf.WriteByte('}')
	case KindArray:
		if v.raw != nil {
			buf.Write(v.raw)
			return
		}
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			item.encode(buf)
		}
		buf.WriteByte(']')
	}
}
