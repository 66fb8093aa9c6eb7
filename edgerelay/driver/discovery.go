package driver

import "github.com/nonibytes/edgerelay/edgerelay/record"

// PointKey identifies a point within one device.
type PointKey struct {
	NodeType string
	Node     string
	Mod      string
	Point    string
}

// KeyOf reads the point identity from a record body.
func KeyOf(body record.Value) PointKey {
	get := func(field string) string {
		v, ok := body.Get(field)
		if !ok || v.IsNull() || !v.IsScalar() {
			return record.Missing
		}
		return v.Canonical()
	}
	return PointKey{
		NodeType: get(record.FieldNodeType),
		Node:     get(record.FieldNode),
		Mod:      get(record.FieldMod),
		Point:    get(record.FieldPoint),
	}
}

// Table is the discovery state of a device: every known point and its
// latest body, in discovery order. Points are addressed by key; there are
// no links between entries.
type Table struct {
	index  map[PointKey]int
	keys   []PointKey
	bodies []record.Value
}

func NewTable() *Table {
	return &Table{index: make(map[PointKey]int)}
}

// Put stores body under its key, replacing a known point in place.
func (t *Table) Put(body record.Value) PointKey {
	k := KeyOf(body)
	if i, ok := t.index[k]; ok {
		t.bodies[i] = body
		return k
	}
	t.index[k] = len(t.keys)
	t.keys = append(t.keys, k)
	t.bodies = append(t.bodies, body)
	return k
}

// Merge overlays patch onto the known point with the same key. It reports
// false when the point was never discovered.
func (t *Table) Merge(patch record.Value) bool {
	i, ok := t.index[KeyOf(patch)]
	if !ok {
		return false
	}
	t.bodies[i] = t.bodies[i].Merge(patch)
	return true
}

func (t *Table) Len() int { return len(t.keys) }

// Records returns every point as a raw record of device.
func (t *Table) Records(device string) []record.RawRecord {
	out := make([]record.RawRecord, len(t.bodies))
	for i, b := range t.bodies {
		out[i] = record.RawRecord{Device: device, Body: b}
	}
	return out
}

func (t *Table) Reset() {
	t.index = make(map[PointKey]int)
	t.keys = nil
	t.bodies = nil
}
