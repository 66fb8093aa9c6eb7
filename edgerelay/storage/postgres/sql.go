package postgres

import "github.com/nonibytes/edgerelay/edgerelay/storage"

var SQLTemplates = storage.SQL{
	GetMeta:      "SELECT value FROM meta WHERE key = $1",
	InitMeta:     "INSERT INTO meta(key,value) VALUES($1,$2) ON CONFLICT(key) DO NOTHING",
	StagingTable: "cov_incoming",
	SelectChanged: `SELECT i.seq FROM cov_incoming i
	        LEFT JOIN cov_state s
	          ON s.nodetype = i.nodetype AND s.node = i.node AND s.mod = i.mod
	         AND s.point = i.point AND s.ip = i.ip AND s.key = i.key
	        WHERE s.value IS NULL OR s.value <> i.value
	        ORDER BY i.seq`,
	UpsertFromStaging: `INSERT INTO cov_state(nodetype, node, mod, point, ip, key, value, seen_at)
	        SELECT nodetype, node, mod, point, ip, key, value, $1 FROM cov_incoming
	        ON CONFLICT(nodetype, node, mod, point, ip, key) DO UPDATE
	          SET value=EXCLUDED.value,
	              seen_at=EXCLUDED.seen_at`,
	ClearState:      "DELETE FROM cov_state",
	CountState:      "SELECT COUNT(*) FROM cov_state",
	SelectState:     "SELECT nodetype, node, mod, point, ip, key, value, seen_at FROM cov_state ORDER BY ip, nodetype, node, mod, point, key",
	SelectStateByIP: "SELECT nodetype, node, mod, point, ip, key, value, seen_at FROM cov_state WHERE ip = $1 ORDER BY nodetype, node, mod, point, key",
}
