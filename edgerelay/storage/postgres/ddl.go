package postgres

const ddlBase = `
CREATE TABLE IF NOT EXISTS meta (
  key   TEXT PRIMARY KEY,
  value TEXT
);

CREATE TABLE IF NOT EXISTS cov_state (
  nodetype TEXT   NOT NULL,
  node     TEXT   NOT NULL,
  mod      TEXT   NOT NULL,
  point    TEXT   NOT NULL,
  ip       TEXT   NOT NULL,
  key      TEXT   NOT NULL,
  value    TEXT   NOT NULL,
  seen_at  BIGINT NOT NULL,
  PRIMARY KEY (nodetype, node, mod, point, ip, key)
);
CREATE INDEX IF NOT EXISTS idx_cov_state_ip ON cov_state(ip);
`

const ddlStaging = `
CREATE TEMP TABLE IF NOT EXISTS cov_incoming (
  seq      BIGINT NOT NULL,
  nodetype TEXT   NOT NULL,
  node     TEXT   NOT NULL,
  mod      TEXT   NOT NULL,
  point    TEXT   NOT NULL,
  ip       TEXT   NOT NULL,
  key      TEXT   NOT NULL,
  value    TEXT   NOT NULL
) ON COMMIT DELETE ROWS`
