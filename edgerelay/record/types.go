package record

// Identity field names as devices report them.
const (
	FieldNodeType = "@nodetype"
	FieldNode     = "@node"
	FieldMod      = "@mod"
	FieldPoint    = "@point"
	FieldIP       = "ip"
)

// Missing stands in for an identity part the device did not report.
const Missing = "null"

// RowSchema is the column layout of every CoV device chunk.
var RowSchema = []string{"nodetype", "node", "mod", "point", "key", "value"}

// Identity locates a point on a device.
type Identity struct {
	NodeType string `json:"nodetype"`
	Node     string `json:"node"`
	Mod      string `json:"mod"`
	Point    string `json:"point"`
	IP       string `json:"ip"`
}

// RawRecord is one nested record returned by a driver. Body is a map that
// carries the identity fields alongside arbitrarily nested data. Device is
// used as the ip when the body has none.
type RawRecord struct {
	Device string
	Body   Value
}

// FlatRecord is a record with its nesting collapsed into composite keys.
// Keys and Values are parallel.
type FlatRecord struct {
	Identity
	Keys   []string
	Values []Value
}

// Rows expands the record into one row per key.
func (f FlatRecord) Rows() []Row {
	out := make([]Row, len(f.Keys))
	for i, k := range f.Keys {
		out[i] = Row{Identity: f.Identity, Key: k, Value: f.Values[i]}
	}
	return out
}

// Row is the unit of change detection. The identity plus key is unique in
// the store.
type Row struct {
	Identity
	Key   string
	Value Value
}

// RowKey is the comparable form of a row's primary key.
type RowKey struct {
	NodeType, Node, Mod, Point, IP, Key string
}

func (r Row) RowKey() RowKey {
	return RowKey{r.NodeType, r.Node, r.Mod, r.Point, r.IP, r.Key}
}

// Positional returns the row in RowSchema order.
func (r Row) Positional() []any {
	return []any{r.NodeType, r.Node, r.Mod, r.Point, r.Key, r.Value.Native()}
}

// DeviceChunk is the unit of transmission: all changed rows of one device.
type DeviceChunk struct {
	DeviceID string   `json:"device_id"`
	Schema   []string `json:"schema"`
	Records  [][]any  `json:"records"`
}

// Slice returns a chunk over records[lo:hi] that shares the schema.
func (c DeviceChunk) Slice(lo, hi int) DeviceChunk {
	return DeviceChunk{DeviceID: c.DeviceID, Schema: c.Schema, Records: c.Records[lo:hi]}
}
