// Package bson implements the dynamic document value type the storage
// core is built around: a small BSON-like sum type with a fixed total
// ordering across kinds, plus the deterministic codec that turns it into
// bytes a Page can hold.
package bson

import "fmt"

// Kind identifies which variant a Value holds.
type Kind byte

const (
	KindMinKey Kind = iota
	KindNull
	KindInt32
	KindInt64
	KindDouble
	KindString
	KindDocument
	KindArray
	KindBinary
	KindObjectID
	KindBool
	KindDateTime
	KindTimestamp
	KindRegex
	KindMaxKey
)

func (k Kind) String() string {
	switch k {
	case KindMinKey:
		return "minKey"
	case KindNull:
		return "null"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindDocument:
		return "document"
	case KindArray:
		return "array"
	case KindBinary:
		return "binary"
	case KindObjectID:
		return "objectId"
	case KindBool:
		return "bool"
	case KindDateTime:
		return "dateTime"
	case KindTimestamp:
		return "timestamp"
	case KindRegex:
		return "regex"
	case KindMaxKey:
		return "maxKey"
	default:
		return "unknown"
	}
}

// Timestamp is a BSON-style replication timestamp: whole seconds plus an
// ordinal that disambiguates multiple timestamps within the same second.
type Timestamp struct {
	Seconds uint32
	Ordinal uint32
}

// Regex is a pattern plus its option flags, stored but never compiled by
// this package.
type Regex struct {
	Pattern string
	Options string
}

// Value is the dynamic document value. The zero value has kind MinKey;
// use Null() for a null.
type Value struct {
	kind Kind

	b    bool
	i32  int32
	i64  int64
	f64  float64
	str  string
	bin  []byte
	oid  ObjectID
	dt   int64 // milliseconds since Unix epoch
	ts   Timestamp
	re   Regex
	doc  *Document
	arr  []Value
}

func (v Value) Kind() Kind { return v.kind }

func Null() Value                { return Value{kind: KindNull} }
func MinKey() Value              { return Value{kind: KindMinKey} }
func MaxKey() Value              { return Value{kind: KindMaxKey} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Int32(n int32) Value        { return Value{kind: KindInt32, i32: n} }
func Int64(n int64) Value        { return Value{kind: KindInt64, i64: n} }
func Double(f float64) Value     { return Value{kind: KindDouble, f64: f} }
func String(s string) Value      { return Value{kind: KindString, str: s} }
func Binary(b []byte) Value      { return Value{kind: KindBinary, bin: append([]byte(nil), b...)} }
func ObjectIDValue(id ObjectID) Value { return Value{kind: KindObjectID, oid: id} }
func DateTimeMS(ms int64) Value  { return Value{kind: KindDateTime, dt: ms} }
func TimestampValue(ts Timestamp) Value { return Value{kind: KindTimestamp, ts: ts} }
func RegexValue(pattern, options string) Value {
	return Value{kind: KindRegex, re: Regex{Pattern: pattern, Options: options}}
}
func DocumentValue(doc *Document) Value { return Value{kind: KindDocument, doc: doc} }
func ArrayValue(items []Value) Value    { return Value{kind: KindArray, arr: items} }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool)           { return v.b, v.kind == KindBool }
func (v Value) AsInt32() (int32, bool)         { return v.i32, v.kind == KindInt32 }
func (v Value) AsInt64() (int64, bool)         { return v.i64, v.kind == KindInt64 }
func (v Value) AsDouble() (float64, bool)      { return v.f64, v.kind == KindDouble }
func (v Value) AsString() (string, bool)       { return v.str, v.kind == KindString }
func (v Value) AsBinary() ([]byte, bool)       { return v.bin, v.kind == KindBinary }
func (v Value) AsObjectID() (ObjectID, bool)   { return v.oid, v.kind == KindObjectID }
func (v Value) AsDateTimeMS() (int64, bool)    { return v.dt, v.kind == KindDateTime }
func (v Value) AsTimestamp() (Timestamp, bool) { return v.ts, v.kind == KindTimestamp }
func (v Value) AsRegex() (Regex, bool)         { return v.re, v.kind == KindRegex }
func (v Value) AsDocument() (*Document, bool)  { return v.doc, v.kind == KindDocument }
func (v Value) AsArray() ([]Value, bool)       { return v.arr, v.kind == KindArray }

// AsFloat64 widens any numeric kind to float64 for cross-subtype
// arithmetic comparison. The second return is false for non-numeric kinds.
func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindInt32:
		return float64(v.i32), true
	case KindInt64:
		return float64(v.i64), true
	case KindDouble:
		return v.f64, true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt32:
		return fmt.Sprintf("%d", v.i32)
	case KindInt64:
		return fmt.Sprintf("%d", v.i64)
	case KindDouble:
		return fmt.Sprintf("%g", v.f64)
	case KindString:
		return v.str
	case KindObjectID:
		return v.oid.Hex()
	default:
		return v.kind.String()
	}
}

// field is one named entry in a Document, in insertion order.
type field struct {
	key   string
	value Value
}

// Document is an ordered map from string keys to Values. Key order is
// preserved across Set and round-trips through the codec — it is not
// alphabetized.
type Document struct {
	fields []field
}

// NewDocument creates an empty document.
func NewDocument() *Document { return &Document{} }

// Set adds a new field or overwrites an existing one in place, keeping
// its original position.
func (d *Document) Set(key string, v Value) *Document {
	for i := range d.fields {
		if d.fields[i].key == key {
			d.fields[i].value = v
			return d
		}
	}
	d.fields = append(d.fields, field{key: key, value: v})
	return d
}

// Get returns a top-level field's value.
func (d *Document) Get(key string) (Value, bool) {
	for _, f := range d.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return Value{}, false
}

// Delete removes a field if present.
func (d *Document) Delete(key string) {
	for i := range d.fields {
		if d.fields[i].key == key {
			d.fields = append(d.fields[:i], d.fields[i+1:]...)
			return
		}
	}
}

// Keys returns the field names in insertion order.
func (d *Document) Keys() []string {
	keys := make([]string, len(d.fields))
	for i, f := range d.fields {
		keys[i] = f.key
	}
	return keys
}

// Len returns the number of top-level fields.
func (d *Document) Len() int { return len(d.fields) }

// GetPath resolves a dotted field path (e.g. "address.city") through
// nested documents, stopping at the first missing segment or the first
// non-document value on the path.
func (d *Document) GetPath(path []string) (Value, bool) {
	if len(path) == 0 {
		return Value{}, false
	}
	v, ok := d.Get(path[0])
	if !ok {
		return Value{}, false
	}
	if len(path) == 1 {
		return v, true
	}
	sub, ok := v.AsDocument()
	if !ok {
		return Value{}, false
	}
	return sub.GetPath(path[1:])
}

// SetPath sets a dotted field path, creating intermediate documents as
// needed.
func (d *Document) SetPath(path []string, v Value) {
	if len(path) == 0 {
		return
	}
	if len(path) == 1 {
		d.Set(path[0], v)
		return
	}
	existing, ok := d.Get(path[0])
	var sub *Document
	if ok {
		sub, ok = existing.AsDocument()
	}
	if !ok {
		sub = NewDocument()
		d.Set(path[0], DocumentValue(sub))
	}
	sub.SetPath(path[1:], v)
}
