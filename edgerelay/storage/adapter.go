package storage

import (
	"context"
	"database/sql"

	"github.com/nonibytes/edgerelay/edgerelay/storage/sqlbuilder"
)

type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Meta keys written when a store is created.
const (
	MetaMagic   = "edgerelay_magic"
	MetaVersion = "edgerelay_version"
	Magic       = "edgerelay"
	Version     = "1"
)

// Columns of the staging and state tables, in insert order.
var StateColumns = []string{"seq", "nodetype", "node", "mod", "point", "ip", "key", "value"}

// Adapter abstracts database-specific operations
type Adapter interface {
	Backend() Backend
	PlaceholderStyle() sqlbuilder.PlaceholderStyle
	StoreID() string

	Connect(ctx context.Context) (*sql.DB, error)
	Close() error

	// CreateStore installs the schema. It is idempotent.
	CreateStore(ctx context.Context, db *sql.DB) error
	// OpenStore verifies the schema was written by this program.
	OpenStore(ctx context.Context, db *sql.DB) error
	// PrepareStaging makes an empty staging table visible to tx.
	PrepareStaging(ctx context.Context, tx *sql.Tx) error
	Optimize(ctx context.Context, db *sql.DB) error

	SQL() SQL
}

// SQL holds prepared SQL templates for common operations
type SQL struct {
	GetMeta  string
	// InitMeta inserts a meta key only when it is absent.
	InitMeta string

	// StagingTable is the name rows are staged into before diffing.
	StagingTable string

	// SelectChanged yields seq of staged rows that are new or differ.
	SelectChanged string
	// UpsertFromStaging takes the seen-at timestamp as its only argument.
	UpsertFromStaging string

	ClearState      string
	CountState      string
	SelectState     string
	SelectStateByIP string
}
