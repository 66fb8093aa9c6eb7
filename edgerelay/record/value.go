package record

import (
	"encoding/base64"
	"math"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindBytes
	KindMap
	KindSeq
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	case KindMap:
		return "map"
	case KindSeq:
		return "seq"
	default:
		return "unknown"
	}
}

// NullText is the canonical text of a null or missing value.
const NullText = "<null>"

// Entry is one key of an ordered map.
type Entry struct {
	Key   string
	Value Value
}

// Value is a tagged variant over the shapes a device can report. The zero
// Value is Null. Maps keep insertion order.
type Value struct {
	kind    Kind
	str     string
	i       int64
	f       float64
	b       bool
	bytes   []byte
	entries []Entry
	items   []Value
}

func Null() Value { return Value{} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Bytes(b []byte) Value { return Value{kind: KindBytes, bytes: b} }
func Seq(items ...Value) Value { return Value{kind: KindSeq, items: items} }

// Map builds an ordered map from entries. Duplicate keys keep the position
// of the first occurrence and the value of the last.
func Map(entries ...Entry) Value {
	return mapOf(entries)
}

func mapOf(entries []Entry) Value {
	out := make([]Entry, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, e := range entries {
		if i, ok := index[e.Key]; ok {
			out[i].Value = e.Value
			continue
		}
		index[e.Key] = len(out)
		out = append(out, e)
	}
	return Value{kind: KindMap, entries: out}
}

// E is shorthand for building map entries.
func E(key string, v Value) Entry { return Entry{Key: key, Value: v} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) IsScalar() bool { return v.kind != KindMap && v.kind != KindSeq }
func (v Value) Str() string { return v.str }
func (v Value) IntVal() int64 { return v.i }
func (v Value) FloatVal() float64 { return v.f }
func (v Value) BoolVal() bool { return v.b }
func (v Value) BytesVal() []byte { return v.bytes }

// Entries returns the map entries in insertion order. Callers must not
// modify the returned slice.
func (v Value) Entries() []Entry { return v.entries }

// Items returns the sequence elements.
func (v Value) Items() []Value { return v.items }

func (v Value) Len() int {
	switch v.kind {
	case KindMap:
		return len(v.entries)
	case KindSeq:
		return len(v.items)
	}
	return 0
}

// Get looks up a map key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	for _, e := range v.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Set returns a copy of the map with key bound to val. An existing key is
// replaced in place; a new key is appended.
func (v Value) Set(key string, val Value) Value {
	if v.kind != KindMap {
		v = Value{kind: KindMap}
	}
	out := make([]Entry, len(v.entries), len(v.entries)+1)
	copy(out, v.entries)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = val
			return Value{kind: KindMap, entries: out}
		}
	}
	out = append(out, Entry{Key: key, Value: val})
	return Value{kind: KindMap, entries: out}
}

// Merge overlays the keys of patch onto v. Both must be maps.
func (v Value) Merge(patch Value) Value {
	out := v
	for _, e := range patch.entries {
		out = out.Set(e.Key, e.Value)
	}
	return out
}

// Finite reports whether the value holds no NaN or infinite floats.
func (v Value) Finite() bool {
	switch v.kind {
	case KindFloat:
		return !math.IsNaN(v.f) && !math.IsInf(v.f, 0)
	case KindMap:
		for _, e := range v.entries {
			if !e.Value.Finite() {
				return false
			}
		}
	case KindSeq:
		for _, it := range v.items {
			if !it.Finite() {
				return false
			}
		}
	}
	return true
}

// Canonical returns the text used to persist and compare a scalar.
// Composite values have no canonical text and return "".
func (v Value) Canonical() string {
	switch v.kind {
	case KindNull:
		return NullText
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindBytes:
		return base64.StdEncoding.EncodeToString(v.bytes)
	}
	return ""
}

// Native converts the value into plain Go types for the wire codecs.
func (v Value) Native() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindBytes:
		return v.bytes
	case KindMap:
		m := make(map[string]any, len(v.entries))
		for _, e := range v.entries {
			m[e.Key] = e.Value.Native()
		}
		return m
	case KindSeq:
		out := make([]any, len(v.items))
		for i, it := range v.items {
			out[i] = it.Native()
		}
		return out
	}
	return nil
}
