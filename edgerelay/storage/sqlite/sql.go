package sqlite

import "github.com/nonibytes/edgerelay/edgerelay/storage"

const ddlBase = `
CREATE TABLE IF NOT EXISTS meta (
  key   TEXT PRIMARY KEY,
  value TEXT
);

CREATE TABLE IF NOT EXISTS cov_state (
  nodetype TEXT NOT NULL,
  node     TEXT NOT NULL,
  mod      TEXT NOT NULL,
  point    TEXT NOT NULL,
  ip       TEXT NOT NULL,
  key      TEXT NOT NULL,
  value    TEXT NOT NULL,
  seen_at  INTEGER NOT NULL,
  PRIMARY KEY (nodetype, node, mod, point, ip, key)
);
CREATE INDEX IF NOT EXISTS idx_cov_state_ip ON cov_state(ip);
`

const ddlStaging = `
CREATE TEMP TABLE IF NOT EXISTS cov_incoming (
  seq      INTEGER NOT NULL,
  nodetype TEXT NOT NULL,
  node     TEXT NOT NULL,
  mod      TEXT NOT NULL,
  point    TEXT NOT NULL,
  ip       TEXT NOT NULL,
  key      TEXT NOT NULL,
  value    TEXT NOT NULL
)`

var SQLTemplates = storage.SQL{
	GetMeta:      "SELECT value FROM meta WHERE key = ?1",
	InitMeta:     "INSERT INTO meta(key,value) VALUES(?1,?2) ON CONFLICT(key) DO NOTHING",
	StagingTable: "temp.cov_incoming",
	SelectChanged: `SELECT i.seq FROM temp.cov_incoming i
		LEFT JOIN cov_state s
		  ON s.nodetype = i.nodetype AND s.node = i.node AND s.mod = i.mod
		 AND s.point = i.point AND s.ip = i.ip AND s.key = i.key
		WHERE s.value IS NULL OR s.value <> i.value
		ORDER BY i.seq`,
	UpsertFromStaging: `INSERT INTO cov_state(nodetype, node, mod, point, ip, key, value, seen_at)
		SELECT nodetype, node, mod, point, ip, key, value, ?1 FROM temp.cov_incoming WHERE true
		ON CONFLICT(nodetype, node, mod, point, ip, key) DO UPDATE SET value=excluded.value, seen_at=excluded.seen_at`,
	ClearState:      "DELETE FROM cov_state",
	CountState:      "SELECT COUNT(*) FROM cov_state",
	SelectState:     "SELECT nodetype, node, mod, point, ip, key, value, seen_at FROM cov_state ORDER BY ip, nodetype, node, mod, point, key",
	SelectStateByIP: "SELECT nodetype, node, mod, point, ip, key, value, seen_at FROM cov_state WHERE ip = ?1 ORDER BY nodetype, node, mod, point, key",
}
