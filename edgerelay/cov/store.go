// Package cov keeps the last value seen for every point and reports which
// incoming rows changed.
package cov

import (
	"context"
	"database/sql"
	"sync"
	"time"

	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
	"github.com/nonibytes/edgerelay/edgerelay/record"
	"github.com/nonibytes/edgerelay/edgerelay/storage"
	"github.com/nonibytes/edgerelay/edgerelay/storage/sqlbuilder"
)

// DefaultInsertBatch keeps staged inserts well under the bound-variable
// limits of both backends.
const DefaultInsertBatch = 400

// Options configures a Store.
type Options struct {
	Now         func() time.Time
	InsertBatch int
}

func DefaultOptions() Options {
	return Options{Now: time.Now, InsertBatch: DefaultInsertBatch}
}

// Store is the persisted CoV state. It serializes its own writers.
type Store struct {
	mu      sync.Mutex
	adapter storage.Adapter
	db      *sql.DB
	opts    Options
}

// Open connects through the adapter and installs the schema if it is not
// there yet.
func Open(ctx context.Context, adapter storage.Adapter, opts Options) (*Store, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.InsertBatch <= 0 {
		opts.InsertBatch = DefaultInsertBatch
	}

	db, err := adapter.Connect(ctx)
	if err != nil {
		return nil, rerrors.StoreError("connect to database", err)
	}
	if err := adapter.CreateStore(ctx, db); err != nil {
		db.Close()
		return nil, rerrors.StoreError("create store", err)
	}
	if err := adapter.OpenStore(ctx, db); err != nil {
		db.Close()
		return nil, rerrors.StoreError("open store", err)
	}
	return &Store{adapter: adapter, db: db, opts: opts}, nil
}

// Close closes the store
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return rerrors.StoreError("close database", err)
		}
	}
	return s.adapter.Close()
}

// ID names the backing database.
func (s *Store) ID() string {
	return s.adapter.StoreID()
}

// DiffAndPersist returns the rows that are new or whose value changed since
// the last call, grouped per device, and records every incoming row as the
// new baseline. With fullFrame the baseline is wiped first, so every row is
// reported.
func (s *Store) DiffAndPersist(ctx context.Context, rows []record.Row, fullFrame bool) ([]record.DeviceChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := dedupe(rows)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, rerrors.StoreError("begin transaction", err)
	}
	defer tx.Rollback()

	sqlt := s.adapter.SQL()
	if fullFrame {
		if _, err := tx.ExecContext(ctx, sqlt.ClearState); err != nil {
			return nil, rerrors.StoreError("clear state", err)
		}
	}
	if err := s.adapter.PrepareStaging(ctx, tx); err != nil {
		return nil, rerrors.StoreError("prepare staging", err)
	}
	if err := s.stage(ctx, tx, staged); err != nil {
		return nil, rerrors.StoreError("stage rows", err)
	}

	changed, err := selectChanged(ctx, tx, sqlt.SelectChanged)
	if err != nil {
		return nil, rerrors.StoreError("select changed", err)
	}

	if _, err := tx.ExecContext(ctx, sqlt.UpsertFromStaging, s.nowMS()); err != nil {
		return nil, rerrors.StoreError("upsert state", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, rerrors.StoreError("commit", err)
	}

	out := make([]record.Row, 0, len(changed))
	for _, seq := range changed {
		out = append(out, staged[seq])
	}
	return Group(out), nil
}

func (s *Store) stage(ctx context.Context, tx *sql.Tx, rows []record.Row) error {
	table := s.adapter.SQL().StagingTable
	style := s.adapter.PlaceholderStyle()
	for lo := 0; lo < len(rows); lo += s.opts.InsertBatch {
		hi := min(lo+s.opts.InsertBatch, len(rows))
		vals := make([][]any, 0, hi-lo)
		for i := lo; i < hi; i++ {
			r := rows[i]
			vals = append(vals, []any{i, r.NodeType, r.Node, r.Mod, r.Point, r.IP, r.Key, r.Value.Canonical()})
		}
		q, args := sqlbuilder.InsertValues(style, table, storage.StateColumns, vals)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func selectChanged(ctx context.Context, tx *sql.Tx, q string) ([]int, error) {
	rs, err := tx.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var out []int
	for rs.Next() {
		var seq int
		if err := rs.Scan(&seq); err != nil {
			return nil, err
		}
		out = append(out, seq)
	}
	return out, rs.Err()
}

// dedupe keeps one row per primary key: the last value wins, at the
// position of the first occurrence.
func dedupe(rows []record.Row) []record.Row {
	pos := make(map[record.RowKey]int, len(rows))
	out := make([]record.Row, 0, len(rows))
	for _, r := range rows {
		k := r.RowKey()
		if i, ok := pos[k]; ok {
			out[i] = r
			continue
		}
		pos[k] = len(out)
		out = append(out, r)
	}
	return out
}

// Group folds rows into one chunk per ip, in order of first appearance.
func Group(rows []record.Row) []record.DeviceChunk {
	idx := map[string]int{}
	var out []record.DeviceChunk
	for _, r := range rows {
		i, ok := idx[r.IP]
		if !ok {
			i = len(out)
			idx[r.IP] = i
			out = append(out, record.DeviceChunk{DeviceID: r.IP, Schema: record.RowSchema})
		}
		out[i].Records = append(out[i].Records, r.Positional())
	}
	return out
}

// Clear wipes the baseline. The next diff reports everything.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, s.adapter.SQL().ClearState); err != nil {
		return rerrors.StoreError("clear state", err)
	}
	return nil
}

// Optimize runs backend maintenance.
func (s *Store) Optimize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.adapter.Optimize(ctx, s.db); err != nil {
		return rerrors.StoreError("optimize", err)
	}
	return nil
}

func (s *Store) nowMS() int64 {
	return s.opts.Now().UnixMilli()
}
