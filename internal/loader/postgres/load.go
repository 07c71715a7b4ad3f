package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nishad/eudravigilance/internal/config"
	"github.com/nishad/eudravigilance/internal/icsrerrors"
	"github.com/nishad/eudravigilance/internal/loader"
	"github.com/nishad/eudravigilance/internal/transform"
)

// LoadNormalizedData loads every non-empty table buffer for one file
// under a single transaction, per spec.md §4.4's atomicity contract.
func (b *Backend) LoadNormalizedData(ctx context.Context, batch *transform.NormalizedBatch, mode config.LoadMode, path, hash string) (loader.FileOutcome, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return loader.FileOutcome{}, b.fail(ctx, path, hash, icsrerrors.Wrap("postgres.LoadNormalizedData", icsrerrors.KindDbTransient, err))
	}

	outcome, loadErr := func() (loader.FileOutcome, error) {
		if err := b.writeHistory(ctx, tx, path, hash, loader.HistoryPending, nil); err != nil {
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

		if err := b.writeHistory(ctx, tx, path, hash, loader.HistoryCompleted, &total); err != nil {
			return loader.FileOutcome{}, err
		}
		return loader.FileOutcome{RowsProcessed: total, RecordErrors: len(batch.RecordErrors), RowsByTable: byTable}, nil
	}()

	if loadErr != nil {
		tx.Rollback(ctx)
		return loader.FileOutcome{}, b.fail(ctx, path, hash, loadErr)
	}
	if err := tx.Commit(ctx); err != nil {
		return loader.FileOutcome{}, b.fail(ctx, path, hash, icsrerrors.Wrap("postgres.LoadNormalizedData", classifyPgError(err), err))
	}
	return outcome, nil
}

// LoadAuditData is the audit-schema equivalent of LoadNormalizedData.
func (b *Backend) LoadAuditData(ctx context.Context, batch *transform.AuditBatch, mode config.LoadMode, path, hash string) (loader.FileOutcome, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return loader.FileOutcome{}, b.fail(ctx, path, hash, icsrerrors.Wrap("postgres.LoadAuditData", icsrerrors.KindDbTransient, err))
	}

	outcome, loadErr := func() (loader.FileOutcome, error) {
		if err := b.writeHistory(ctx, tx, path, hash, loader.HistoryPending, nil); err != nil {
			return loader.FileOutcome{}, err
		}
		if batch.RowCount > 0 {
			if err := b.loadOneTable(ctx, tx, loader.AuditTableSpec(), batch.Buffer.Reader(), mode); err != nil {
				return loader.FileOutcome{}, err
			}
		}
		if err := b.writeHistory(ctx, tx, path, hash, loader.HistoryCompleted, &batch.RowCount); err != nil {
			return loader.FileOutcome{}, err
		}
		byTable := map[string]int{}
		if batch.RowCount > 0 {
			byTable[loader.AuditTableSpec().Name] = batch.RowCount
		}
		return loader.FileOutcome{RowsProcessed: batch.RowCount, RecordErrors: len(batch.RecordErrors), RowsByTable: byTable}, nil
	}()

	if loadErr != nil {
		tx.Rollback(ctx)
		return loader.FileOutcome{}, b.fail(ctx, path, hash, loadErr)
	}
	if err := tx.Commit(ctx); err != nil {
		return loader.FileOutcome{}, b.fail(ctx, path, hash, icsrerrors.Wrap("postgres.LoadAuditData", classifyPgError(err), err))
	}
	return outcome, nil
}

// loadOneTable runs prepare_load -> bulk_load_native -> handle_upsert for
// one table. In full mode the target is truncated (once per run, the
// first time this table is touched) and loaded directly; in delta mode
// rows land in a transaction-scoped staging table first.
func (b *Backend) loadOneTable(ctx context.Context, tx pgx.Tx, spec loader.TableSpec, rows io.Reader, mode config.LoadMode) error {
	target, err := b.prepareLoad(ctx, tx, spec, mode)
	if err != nil {
		return icsrerrors.Wrap("postgres.prepareLoad", classifyPgError(err), err)
	}
	if err := b.bulkLoadNative(ctx, tx, target, spec.Columns, rows); err != nil {
		return icsrerrors.Wrap("postgres.bulkLoadNative", classifyPgError(err), err)
	}
	if mode == config.ModeDelta {
		if _, err := tx.Exec(ctx, upsertSQL(spec, target)); err != nil {
			return icsrerrors.Wrap("postgres.handleUpsert", classifyPgError(err), err)
		}
	}
	return nil
}

// prepareLoad returns the name to bulk-load into: the target itself for
// full mode (truncated once per run) or a fresh staging table for delta.
func (b *Backend) prepareLoad(ctx context.Context, tx pgx.Tx, spec loader.TableSpec, mode config.LoadMode) (string, error) {
	if mode == config.ModeFull {
		b.mu.Lock()
		truncated := b.truncatedTables[spec.Name]
		if !truncated {
			b.truncatedTables[spec.Name] = true
		}
		b.mu.Unlock()
		if !truncated {
			if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE %s CASCADE", spec.Name)); err != nil {
				return "", err
			}
		}
		return spec.Name, nil
	}

	staging := stagingTableName(spec.Name)
	if _, err := tx.Exec(ctx, createStagingSQL(spec, staging)); err != nil {
		return "", err
	}
	return staging, nil
}

// bulkLoadNative ingests rows into table using Postgres's native COPY
// protocol on the raw driver connection. Row-by-row inserts are never
// used for this step.
func (b *Backend) bulkLoadNative(ctx context.Context, tx pgx.Tx, table string, columns []string, rows io.Reader) error {
	copySQL := fmt.Sprintf("COPY %s(%s) FROM STDIN WITH (FORMAT csv, HEADER true)", table, joinColumns(columns))
	_, err := tx.Conn().PgConn().CopyFrom(ctx, rows, copySQL)
	return err
}

func joinColumns(columns []string) string {
	out := ""
	for i, c := range columns {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func (b *Backend) writeHistory(ctx context.Context, tx pgx.Tx, path, hash string, status loader.HistoryStatus, rowsProcessed *int) error {
	_, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (filename, file_hash, status, rows_processed, load_timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (file_hash) DO UPDATE SET
			status = EXCLUDED.status,
			rows_processed = EXCLUDED.rows_processed,
			load_timestamp = EXCLUDED.load_timestamp
	`, loader.HistoryTable), path, hash, string(status), rowsProcessed, time.Now())
	return err
}

// fail durably records a failed history row in a fresh transaction, so
// the failure survives even though the file's own transaction rolled
// back, and returns the original error for the caller to propagate.
func (b *Backend) fail(ctx context.Context, path, hash string, loadErr error) error {
	bgCtx := context.WithoutCancel(ctx)
	if _, err := b.pool.Exec(bgCtx, fmt.Sprintf(`
		INSERT INTO %s (filename, file_hash, status, rows_processed, load_timestamp)
		VALUES ($1, $2, $3, NULL, $4)
		ON CONFLICT (file_hash) DO UPDATE SET
			status = EXCLUDED.status,
			load_timestamp = EXCLUDED.load_timestamp
	`, loader.HistoryTable), path, hash, string(loader.HistoryFailed), time.Now()); err != nil {
		return fmt.Errorf("recording failed history for %s: %w (original error: %v)", path, err, loadErr)
	}
	return loadErr
}

// classifyPgError maps a Postgres error to the closest icsrerrors.Kind.
func classifyPgError(err error) icsrerrors.Kind {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code[:2] == "23": // integrity_constraint_violation class
			return icsrerrors.KindDbConstraintViolated
		case pgErr.Code[:2] == "08": // connection_exception class
			return icsrerrors.KindDbTransient
		case pgErr.Code == "40P01": // deadlock_detected
			return icsrerrors.KindDbTransient
		}
	}
	return icsrerrors.KindDbTransient
}
