package cov

import (
	"context"
	"database/sql"
	"time"

	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
	"github.com/nonibytes/edgerelay/edgerelay/record"
)

// StateRow is one persisted baseline row.
type StateRow struct {
	record.Identity
	Key    string    `json:"key"`
	Value  string    `json:"value"`
	SeenAt time.Time `json:"seen_at"`
}

// Rows lists the persisted baseline, optionally for one ip only.
func (s *Store) Rows(ctx context.Context, ip string) ([]StateRow, error) {
	sqlt := s.adapter.SQL()
	var (
		rs  *sql.Rows
		err error
	)
	if ip == "" {
		rs, err = s.db.QueryContext(ctx, sqlt.SelectState)
	} else {
		rs, err = s.db.QueryContext(ctx, sqlt.SelectStateByIP, ip)
	}
	if err != nil {
		return nil, rerrors.StoreError("select state", err)
	}
	defer rs.Close()

	var out []StateRow
	for rs.Next() {
		var (
			r    StateRow
			seen int64
		)
		if err := rs.Scan(&r.NodeType, &r.Node, &r.Mod, &r.Point, &r.IP, &r.Key, &r.Value, &seen); err != nil {
			return nil, rerrors.StoreError("scan state", err)
		}
		r.SeenAt = time.UnixMilli(seen).UTC()
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, rerrors.StoreError("select state", err)
	}
	return out, nil
}

// Count returns the number of persisted rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.adapter.SQL().CountState).Scan(&n); err != nil {
		return 0, rerrors.StoreError("count state", err)
	}
	return n, nil
}
