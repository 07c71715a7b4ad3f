// Package sqlite implements the loader.Loader capability interface
// against SQLite, using WAL mode for concurrent readers and batched
// multi-row INSERT...ON CONFLICT statements in place of Postgres's
// native COPY protocol.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nishad/eudravigilance/internal/icsrerrors"
	"github.com/nishad/eudravigilance/internal/loader"
)

// Backend is the SQLite loader.Loader implementation. A single
// *sql.DB is shared across files; SQLite serializes writers internally,
// so the mutex here only protects the truncatedTables bookkeeping, not
// query execution itself.
type Backend struct {
	db *sql.DB

	mu              sync.Mutex
	truncatedTables map[string]bool
}

// New opens path (a filesystem path, not a URL) with WAL journaling and
// a busy timeout, mirroring the teacher's Initialize pragma set.
// Registered under the "sqlite" dialect, selected by a sqlite:// or
// sqlite3:// DSN scheme.
func New(ctx context.Context, dsn string) (loader.Loader, error) {
	path, err := pathFromDSN(dsn)
	if err != nil {
		return nil, icsrerrors.Wrap("sqlite.New", icsrerrors.KindConfigInvalid, err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000&_sync=NORMAL&_fk=1")
	if err != nil {
		return nil, icsrerrors.Wrap("sqlite.New", icsrerrors.KindDbTransient, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, icsrerrors.Wrap("sqlite.New", icsrerrors.KindDbTransient, err)
		}
	}

	db.SetMaxOpenConns(1) // SQLite allows one writer; serialize through a single conn

	return &Backend{db: db, truncatedTables: make(map[string]bool)}, nil
}

func init() {
	loader.Register("sqlite", New)
}

func pathFromDSN(dsn string) (string, error) {
	const (
		schemeA = "sqlite://"
		schemeB = "sqlite3://"
	)
	switch {
	case len(dsn) > len(schemeA) && dsn[:len(schemeA)] == schemeA:
		return dsn[len(schemeA):], nil
	case len(dsn) > len(schemeB) && dsn[:len(schemeB)] == schemeB:
		return dsn[len(schemeB):], nil
	case dsn == "":
		return "", fmt.Errorf("empty sqlite DSN")
	default:
		return dsn, nil
	}
}

// Close closes the underlying *sql.DB.
func (b *Backend) Close() error {
	return b.db.Close()
}

// CreateAllTables issues idempotent DDL for every normalized table, the
// audit table, and etl_file_history.
func (b *Backend) CreateAllTables(ctx context.Context) error {
	stmts := make([]string, 0, len(loader.NormalizedTables())+2)
	for _, spec := range loader.NormalizedTables() {
		stmts = append(stmts, createTableSQL(spec))
	}
	stmts = append(stmts, createTableSQL(loader.AuditTableSpec()))
	stmts = append(stmts, createHistoryTableSQL())

	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return icsrerrors.Wrap("sqlite.CreateAllTables", icsrerrors.KindDbSchemaMismatch, err)
		}
	}
	return nil
}

// ValidateSchema compares pragma table_info against the expected shape
// for every table this backend knows about.
func (b *Backend) ValidateSchema(ctx context.Context) (bool, error) {
	specs := append(loader.NormalizedTables(), loader.AuditTableSpec())
	for _, spec := range specs {
		ok, err := b.tableMatches(ctx, spec.Name, spec.Columns)
		if err != nil {
			return false, icsrerrors.Wrap("sqlite.ValidateSchema", icsrerrors.KindDbSchemaMismatch, err)
		}
		if !ok {
			return false, nil
		}
	}
	ok, err := b.tableMatches(ctx, loader.HistoryTable, loader.HistoryColumns)
	if err != nil {
		return false, icsrerrors.Wrap("sqlite.ValidateSchema", icsrerrors.KindDbSchemaMismatch, err)
	}
	return ok, nil
}

func (b *Backend) tableMatches(ctx context.Context, table string, columns []string) (bool, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	if len(existing) == 0 {
		return false, nil
	}
	for _, col := range columns {
		if !existing[col] {
			return false, nil
		}
	}
	return true, nil
}

// GetCompletedFileHashes returns every file_hash recorded as completed.
func (b *Backend) GetCompletedFileHashes(ctx context.Context) (map[string]bool, error) {
	rows, err := b.db.QueryContext(ctx,
		fmt.Sprintf("SELECT file_hash FROM %s WHERE status = ?", loader.HistoryTable),
		string(loader.HistoryCompleted))
	if err != nil {
		return nil, icsrerrors.Wrap("sqlite.GetCompletedFileHashes", icsrerrors.KindDbTransient, err)
	}
	defer rows.Close()

	hashes := make(map[string]bool)
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, icsrerrors.Wrap("sqlite.GetCompletedFileHashes", icsrerrors.KindDbTransient, err)
		}
		hashes[hash] = true
	}
	return hashes, rows.Err()
}
