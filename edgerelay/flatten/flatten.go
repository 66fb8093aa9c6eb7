// Package flatten collapses nested device records into ordered key/value
// pairs with composite keys.
package flatten

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
	"github.com/nonibytes/edgerelay/edgerelay/record"
)

// KeySeparator joins nested map keys.
const KeySeparator = "__"

var identityFields = map[string]bool{
	record.FieldNodeType: true,
	record.FieldNode:     true,
	record.FieldMod:      true,
	record.FieldPoint:    true,
	record.FieldIP:       true,
}

// Flatten walks a raw record depth-first. Map keys become prefix__key,
// sequence indices become prefix[i] and scalars terminate the walk. The
// identity fields are lifted out before the walk and never appear as keys.
func Flatten(raw record.RawRecord) (record.FlatRecord, error) {
	body := raw.Body
	if body.Kind() != record.KindMap {
		return record.FlatRecord{}, rerrors.FlattenError(fmt.Sprintf("record body is %s, want map", body.Kind()))
	}
	if !body.Finite() {
		return record.FlatRecord{}, rerrors.FlattenError("record holds a non-finite number")
	}

	id, err := identity(body, raw.Device)
	if err != nil {
		return record.FlatRecord{}, err
	}

	w := walker{}
	for _, e := range body.Entries() {
		if identityFields[e.Key] {
			continue
		}
		w.walk(e.Key, e.Value)
	}
	return record.FlatRecord{Identity: id, Keys: w.keys, Values: w.values}, nil
}

func identity(body record.Value, device string) (record.Identity, error) {
	id := record.Identity{
		NodeType: record.Missing,
		Node:     record.Missing,
		Mod:      record.Missing,
		Point:    record.Missing,
		IP:       device,
	}
	if id.IP == "" {
		id.IP = record.Missing
	}
	parts := []struct {
		field string
		dst   *string
	}{
		{record.FieldNodeType, &id.NodeType},
		{record.FieldNode, &id.Node},
		{record.FieldMod, &id.Mod},
		{record.FieldPoint, &id.Point},
		{record.FieldIP, &id.IP},
	}
	for _, p := range parts {
		v, ok := body.Get(p.field)
		if !ok || v.IsNull() {
			continue
		}
		if !v.IsScalar() {
			return id, rerrors.FlattenError(fmt.Sprintf("identity field %s is a %s", p.field, v.Kind()))
		}
		*p.dst = v.Canonical()
	}
	return id, nil
}

type walker struct {
	keys   []string
	values []record.Value
}

func (w *walker) walk(prefix string, v record.Value) {
	switch v.Kind() {
	case record.KindMap:
		for _, e := range v.Entries() {
			w.walk(prefix+KeySeparator+e.Key, e.Value)
		}
	case record.KindSeq:
		for i, it := range v.Items() {
			w.walk(prefix+"["+strconv.Itoa(i)+"]", it)
		}
	default:
		w.keys = append(w.keys, prefix)
		w.values = append(w.values, v)
	}
}

// All flattens a batch. Records that fail are logged and dropped; the
// rest are expanded into rows in input order.
func All(records []record.RawRecord, logger *logrus.Logger) ([]record.Row, int) {
	var rows []record.Row
	dropped := 0
	for _, r := range records {
		fr, err := Flatten(r)
		if err != nil {
			dropped++
			if logger != nil {
				logger.WithError(err).WithField("device", r.Device).Warn("dropping record")
			}
			continue
		}
		rows = append(rows, fr.Rows()...)
	}
	return rows, dropped
}
