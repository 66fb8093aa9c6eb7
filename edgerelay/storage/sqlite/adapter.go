package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nonibytes/edgerelay/edgerelay/storage"
	"github.com/nonibytes/edgerelay/edgerelay/storage/sqlbuilder"
)

const (
	// DriverModernc is the pure-Go driver and the default.
	DriverModernc = "sqlite"
	// DriverCGO is mattn/go-sqlite3; it needs a cgo build.
	DriverCGO = "sqlite3"
)

type Adapter struct {
	Path       string
	DriverName string
}

func New(path string) *Adapter {
	return &Adapter{Path: path, DriverName: DriverModernc}
}

func NewWithDriver(path, driver string) *Adapter {
	return &Adapter{Path: path, DriverName: driver}
}

func (a *Adapter) Backend() storage.Backend {
	return storage.BackendSQLite
}

func (a *Adapter) PlaceholderStyle() sqlbuilder.PlaceholderStyle {
	return sqlbuilder.PlaceholderQuestion
}

func (a *Adapter) StoreID() string {
	return a.Path
}

// dsn adds busy timeout and WAL settings in the dialect of the driver.
func (a *Adapter) dsn() string {
	var params string
	switch a.DriverName {
	case DriverCGO:
		params = "_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"
	default:
		params = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	dsn := a.Path
	if !strings.Contains(dsn, "?") {
		return dsn + "?" + params
	}
	return dsn + "&" + params
}

func (a *Adapter) Connect(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open(a.DriverName, a.dsn())
	if err != nil {
		return nil, err
	}
	// one writer; the staging table is per connection
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (a *Adapter) Close() error {
	return nil
}

func (a *Adapter) SQL() storage.SQL {
	return SQLTemplates
}

func (a *Adapter) CreateStore(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, ddlBase); err != nil {
		return err
	}
	sqlt := a.SQL()
	if _, err := db.ExecContext(ctx, sqlt.InitMeta, storage.MetaMagic, storage.Magic); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, sqlt.InitMeta, storage.MetaVersion, storage.Version)
	return err
}

func (a *Adapter) OpenStore(ctx context.Context, db *sql.DB) error {
	var magic string
	if err := db.QueryRowContext(ctx, a.SQL().GetMeta, storage.MetaMagic).Scan(&magic); err != nil {
		return err
	}
	if magic != storage.Magic {
		return fmt.Errorf("not an edgerelay db")
	}
	return nil
}

func (a *Adapter) PrepareStaging(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, ddlStaging); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, "DELETE FROM temp.cov_incoming")
	return err
}

func (a *Adapter) Optimize(ctx context.Context, db *sql.DB) error {
	_, _ = db.ExecContext(ctx, "PRAGMA optimize")
	_, err := db.ExecContext(ctx, "VACUUM")
	return err
}
