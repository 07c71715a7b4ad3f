package sqlite

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nishad/eudravigilance/internal/config"
	"github.com/nishad/eudravigilance/internal/icsrerrors"
	"github.com/nishad/eudravigilance/internal/loader"
	"github.com/nishad/eudravigilance/internal/transform"
)

// batchSize caps how many rows go into a single multi-row INSERT,
// keeping SQLite's bound-parameter count (default limit 999) well
// within range even for the widest table.
const batchSize = 100

// LoadNormalizedData loads every non-empty table buffer for one file
// under a single transaction.
func (b *Backend) LoadNormalizedData(ctx context.Context, batch *transform.NormalizedBatch, mode config.LoadMode, path, hash string) (loader.FileOutcome, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return loader.FileOutcome{}, b.fail(ctx, path, hash, icsrerrors.Wrap("sqlite.LoadNormalizedData", icsrerrors.KindDbTransient, err))
	}

	outcome, loadErr := func() (loader.FileOutcome, error) {
		if err := writeHistory(ctx, tx, path, hash, loader.HistoryPending, nil); err != nil {
			return loader.FileOutcome{}, err
		}

		total := 0
		byTable := make(map[string]int)
		for _, spec := range loader.NormalizedTables() {
			count := batch.RowCounts[spec.Name]
			if count == 0 {
				continue
			}
			if err := b.loadOneTable(ctx, tx, spec, batch.Buffers[spec.Name].Reader(), mode); err != nil {
				return loader.FileOutcome{}, err
			}
			total += count
			byTable[spec.Name] = count
		}

		if err := writeHistory(ctx, tx, path, hash, loader.HistoryCompleted, &total); err != nil {
			return loader.FileOutcome{}, err
		}
		return loader.FileOutcome{RowsProcessed: total, RecordErrors: len(batch.RecordErrors), RowsByTable: byTable}, nil
	}()

	if loadErr != nil {
		tx.Rollback()
		return loader.FileOutcome{}, b.fail(ctx, path, hash, loadErr)
	}
	if err := tx.Commit(); err != nil {
		return loader.FileOutcome{}, b.fail(ctx, path, hash, icsrerrors.Wrap("sqlite.LoadNormalizedData", classifySqliteError(err), err))
	}
	return outcome, nil
}

// LoadAuditData is the audit-schema equivalent of LoadNormalizedData.
func (b *Backend) LoadAuditData(ctx context.Context, batch *transform.AuditBatch, mode config.LoadMode, path, hash string) (loader.FileOutcome, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return loader.FileOutcome{}, b.fail(ctx, path, hash, icsrerrors.Wrap("sqlite.LoadAuditData", icsrerrors.KindDbTransient, err))
	}

	outcome, loadErr := func() (loader.FileOutcome, error) {
		if err := writeHistory(ctx, tx, path, hash, loader.HistoryPending, nil); err != nil {
			return loader.FileOutcome{}, err
		}
		if batch.RowCount > 0 {
			if err := b.loadOneTable(ctx, tx, loader.AuditTableSpec(), batch.Buffer.Reader(), mode); err != nil {
				return loader.FileOutcome{}, err
			}
		}
		if err := writeHistory(ctx, tx, path, hash, loader.HistoryCompleted, &batch.RowCount); err != nil {
			return loader.FileOutcome{}, err
		}
		byTable := map[string]int{}
		if batch.RowCount > 0 {
			byTable[loader.AuditTableSpec().Name] = batch.RowCount
		}
		return loader.FileOutcome{RowsProcessed: batch.RowCount, RecordErrors: len(batch.RecordErrors), RowsByTable: byTable}, nil
	}()

	if loadErr != nil {
		tx.Rollback()
		return loader.FileOutcome{}, b.fail(ctx, path, hash, loadErr)
	}
	if err := tx.Commit(); err != nil {
		return loader.FileOutcome{}, b.fail(ctx, path, hash, icsrerrors.Wrap("sqlite.LoadAuditData", classifySqliteError(err), err))
	}
	return outcome, nil
}

// loadOneTable runs prepare_load -> bulk_load -> handle_upsert for one
// table, mirroring the postgres backend's three-step shape even though
// SQLite has no native COPY and uses a real (not TEMP) staging table.
func (b *Backend) loadOneTable(ctx context.Context, tx *sql.Tx, spec loader.TableSpec, rows io.Reader, mode config.LoadMode) error {
	target, cleanup, err := b.prepareLoad(ctx, tx, spec, mode)
	if err != nil {
		return icsrerrors.Wrap("sqlite.prepareLoad", classifySqliteError(err), err)
	}
	defer cleanup()

	if err := bulkLoadBatched(ctx, tx, target, spec.Columns, rows); err != nil {
		return icsrerrors.Wrap("sqlite.bulkLoad", classifySqliteError(err), err)
	}
	if mode == config.ModeDelta {
		if _, err := tx.ExecContext(ctx, upsertSQL(spec, target)); err != nil {
			return icsrerrors.Wrap("sqlite.handleUpsert", classifySqliteError(err), err)
		}
	}
	return nil
}

// prepareLoad returns the table to bulk-load into and a cleanup func
// the caller must defer. Full mode truncates the target once per run
// (guarded by Backend.truncatedTables) and loads directly into it;
// delta mode creates (or empties) a staging table and drops it once
// the file's upsert has consumed it.
func (b *Backend) prepareLoad(ctx context.Context, tx *sql.Tx, spec loader.TableSpec, mode config.LoadMode) (string, func(), error) {
	noop := func() {}

	if mode == config.ModeFull {
		b.mu.Lock()
		truncated := b.truncatedTables[spec.Name]
		if !truncated {
			b.truncatedTables[spec.Name] = true
		}
		b.mu.Unlock()
		if !truncated {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", spec.Name)); err != nil {
				return "", noop, err
			}
		}
		return spec.Name, noop, nil
	}

	staging := stagingTableName(spec.Name)
	if _, err := tx.ExecContext(ctx, createStagingSQL(spec, staging)); err != nil {
		return "", noop, err
	}
	if _, err := tx.ExecContext(ctx, deleteStagingRowsSQL(staging)); err != nil {
		return "", noop, err
	}
	cleanup := func() {
		tx.ExecContext(ctx, dropStagingSQL(staging))
	}
	return staging, cleanup, nil
}

// bulkLoadBatched reads CSV rows from r and inserts them into table in
// fixed-size multi-row INSERT statements, in place of a native COPY
// protocol SQLite does not have.
func bulkLoadBatched(ctx context.Context, tx *sql.Tx, table string, columns []string, r io.Reader) error {
	reader := csv.NewReader(r)
	if _, err := reader.Read(); err != nil { // header row
		if err == io.EOF {
			return nil
		}
		return err
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	colList := strings.Join(columns, ", ")

	batch := make([][]string, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		placeholders := make([]string, len(batch))
		args := make([]any, 0, len(batch)*len(columns))
		for i, row := range batch {
			placeholders[i] = placeholder
			for _, v := range row {
				args = append(args, v)
			}
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, colList, strings.Join(placeholders, ", "))
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		batch = append(batch, row)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func writeHistory(ctx context.Context, tx *sql.Tx, path, hash string, status loader.HistoryStatus, rowsProcessed *int) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (filename, file_hash, status, rows_processed, load_timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (file_hash) DO UPDATE SET
			status = excluded.status,
			rows_processed = excluded.rows_processed,
			load_timestamp = excluded.load_timestamp
	`, loader.HistoryTable), path, hash, string(status), rowsProcessed, time.Now().UTC().Format(time.RFC3339))
	return err
}

// fail durably records a failed history row on the shared connection
// outside of the aborted transaction, so the failure survives a
// rollback, and returns the original error for the caller to propagate.
func (b *Backend) fail(ctx context.Context, path, hash string, loadErr error) error {
	bgCtx := context.WithoutCancel(ctx)
	_, err := b.db.ExecContext(bgCtx, fmt.Sprintf(`
		INSERT INTO %s (filename, file_hash, status, rows_processed, load_timestamp)
		VALUES (?, ?, ?, NULL, ?)
		ON CONFLICT (file_hash) DO UPDATE SET
			status = excluded.status,
			load_timestamp = excluded.load_timestamp
	`, loader.HistoryTable), path, hash, string(loader.HistoryFailed), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording failed history for %s: %w (original error: %v)", path, err, loadErr)
	}
	return loadErr
}

// classifySqliteError maps a SQLite driver error to the closest
// icsrerrors.Kind by inspecting its message, since go-sqlite3 wraps
// SQLITE_CONSTRAINT errors in a typed sqlite3.Error the caller can
// match on message substring without importing the driver's cgo types
// into this file's error-handling path.
func classifySqliteError(err error) icsrerrors.Kind {
	if err == nil {
		return icsrerrors.KindUnknown
	}
	if strings.Contains(err.Error(), "constraint") {
		return icsrerrors.KindDbConstraintViolated
	}
	if strings.Contains(err.Error(), "locked") || strings.Contains(err.Error(), "busy") {
		return icsrerrors.KindDbTransient
	}
	return icsrerrors.KindDbTransient
}
