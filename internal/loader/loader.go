// Package loader defines the database-abstracted capability interface
// every backend implements: schema creation, delta-hash bookkeeping, and
// end-to-end per-file load under one transaction.
package loader

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/nishad/eudravigilance/internal/config"
	"github.com/nishad/eudravigilance/internal/icsrerrors"
	"github.com/nishad/eudravigilance/internal/transform"
)

// HistoryStatus is the lifecycle state of one etl_file_history row.
type HistoryStatus string

const (
	HistoryPending   HistoryStatus = "pending"
	HistoryCompleted HistoryStatus = "completed"
	HistoryFailed    HistoryStatus = "failed"
)

// FileOutcome is what one end-to-end load call reports back to the
// orchestrator.
type FileOutcome struct {
	RowsProcessed int
	RecordErrors  int
	RowsByTable   map[string]int
}

// Loader is the capability interface realized per database. Every method
// operates on one file at a time; LoadNormalizedData/LoadAuditData each
// run under a single transaction per spec's atomicity requirement.
type Loader interface {
	// CreateAllTables issues idempotent DDL for every target table plus
	// etl_file_history.
	CreateAllTables(ctx context.Context) error

	// ValidateSchema compares the existing catalog against the expected
	// table/column shape.
	ValidateSchema(ctx context.Context) (bool, error)

	// GetCompletedFileHashes returns every file_hash with status
	// HistoryCompleted, for delta-mode filtering.
	GetCompletedFileHashes(ctx context.Context) (map[string]bool, error)

	// LoadNormalizedData loads one file's per-table CSV buffers under a
	// single transaction: pending history row, per-table
	// prepare+bulk-load+upsert, completed history row, commit. On any
	// error the transaction rolls back and a failed history row is
	// recorded in a separate transaction.
	LoadNormalizedData(ctx context.Context, batch *transform.NormalizedBatch, mode config.LoadMode, path, hash string) (FileOutcome, error)

	// LoadAuditData is the audit-schema equivalent of LoadNormalizedData.
	LoadAuditData(ctx context.Context, batch *transform.AuditBatch, mode config.LoadMode, path, hash string) (FileOutcome, error)

	// Close releases the backend's connection pool.
	Close() error
}

// Factory constructs a Loader bound to one database URI.
type Factory func(ctx context.Context, dsn string) (Loader, error)

var registry = make(map[string]Factory)

// Register adds a backend factory under a dialect name. Called from a
// backend package's init(); registration is open, so additional dialects
// can be contributed without modifying this package.
func Register(dialect string, f Factory) {
	registry[dialect] = f
}

// Open selects a backend by the DSN's scheme and constructs a Loader.
// The default backend, selected by the "postgres"/"postgresql" scheme,
// targets PostgreSQL.
func Open(ctx context.Context, dsn string) (Loader, error) {
	dialect, err := dialectOf(dsn)
	if err != nil {
		return nil, err
	}
	factory, ok := registry[dialect]
	if !ok {
		return nil, icsrerrors.WrapMsg("loader.Open", icsrerrors.KindConfigInvalid,
			fmt.Sprintf("no loader backend registered for dialect %q", dialect), errUnregisteredDialect)
	}
	ldr, err := factory(ctx, dsn)
	if err != nil {
		return nil, icsrerrors.Wrap("loader.Open", icsrerrors.KindDbTransient, err)
	}
	return ldr, nil
}

var errUnregisteredDialect = fmt.Errorf("unregistered loader dialect")

func dialectOf(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "", icsrerrors.WrapMsg("loader.dialectOf", icsrerrors.KindConfigInvalid,
			fmt.Sprintf("database.dsn %q has no scheme", dsn), errUnregisteredDialect)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return "postgres", nil
	case "sqlite", "sqlite3":
		return "sqlite", nil
	default:
		return strings.ToLower(u.Scheme), nil
	}
}
