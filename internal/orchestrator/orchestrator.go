// Package orchestrator ties the File Source, XML Extractor, Transformer,
// and Loader together: it discovers files, hashes and filters them,
// fans work out to a bounded worker pool, quarantines failures, and
// reports a run-level summary.
package orchestrator

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nishad/eudravigilance/internal/config"
	"github.com/nishad/eudravigilance/internal/icsrerrors"
	"github.com/nishad/eudravigilance/internal/loader"
	"github.com/nishad/eudravigilance/internal/logging"
	"github.com/nishad/eudravigilance/internal/metrics"
	"github.com/nishad/eudravigilance/internal/source"
	"github.com/nishad/eudravigilance/internal/transform"
	"github.com/nishad/eudravigilance/internal/xmlextract"
)

// Orchestrator drives one end-to-end run over every file a source URI
// resolves to.
type Orchestrator struct {
	cfg     *config.Config
	ldr     loader.Loader
	schema  *xmlextract.Schema
	metrics *metrics.Registry
}

// New constructs an Orchestrator. schema is optional (nil skips the
// independent XSD-validation pass spec.md §4.2 describes as a separate
// capability from extraction). reg is optional (nil disables metrics
// reporting).
func New(cfg *config.Config, ldr loader.Loader, schema *xmlextract.Schema, reg *metrics.Registry) *Orchestrator {
	return &Orchestrator{cfg: cfg, ldr: ldr, schema: schema, metrics: reg}
}

// Run executes spec.md §4.5's pipeline: list, hash, filter, dispatch to
// a worker pool, quarantine failures, summarize.
func (o *Orchestrator) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := logging.WithRun(runID).With().Str("component", "orchestrator").Logger()

	openers, err := source.List(ctx, o.cfg.SourceURI)
	if err != nil {
		return nil, err
	}
	log.Info().Int("file_count", len(openers)).Str("mode", string(o.cfg.Mode)).Msg("discovered files")

	var completed map[string]bool
	if o.cfg.Mode == config.ModeDelta {
		completed, err = o.ldr.GetCompletedFileHashes(ctx)
		if err != nil {
			return nil, icsrerrors.Wrap("orchestrator.Run", icsrerrors.KindDbTransient, err)
		}
	}

	workers := o.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	results := make(chan FileOutcome, len(openers))
	for _, op := range openers {
		op := op
		g.Go(func() error {
			// Worker failures are reported through results, never
			// returned here: spec.md §4.5 step 5 requires remaining
			// files to keep processing after one worker fails.
			results <- o.processFile(gctx, op, completed)
			return nil
		})
	}

	go func() {
		g.Wait()
		close(results)
	}()

	summary := &RunSummary{}
	for outcome := range results {
		summary.record(outcome)
		if o.metrics != nil {
			o.metrics.ObserveFile(string(outcome.Status), outcome.Duration)
			for table, n := range outcome.RowsByTable {
				o.metrics.AddRows(table, n)
			}
		}
		fileLog := logging.WithFile(outcome.Path, outcome.Hash)
		switch outcome.Status {
		case StatusSucceeded:
			fileLog.Info().Int("rows", outcome.RowsProcessed).Dur("duration", outcome.Duration).Msg("file loaded")
		case StatusSkipped:
			fileLog.Info().Msg("file already completed, skipped")
		case StatusFailed:
			fileLog.Error().Err(outcome.Err).Msg("file failed")
		}
	}
	summary.Duration = time.Since(start)

	log.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Int("rows_processed", summary.RowsProcessed).
		Dur("duration", summary.Duration).
		Msg("run complete")

	return summary, nil
}

// processFile runs one file through hash → (optional validate) →
// extract → transform → load, in complete isolation from every other
// worker: no shared mutable state besides the read-only config and
// registries, per spec.md §5.
func (o *Orchestrator) processFile(ctx context.Context, op source.Opener, completed map[string]bool) FileOutcome {
	start := time.Now()
	outcome := FileOutcome{Path: op.Name()}

	hash, err := hashOpener(ctx, op)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		outcome.Duration = time.Since(start)
		return outcome
	}
	outcome.Hash = hash

	if o.cfg.Mode == config.ModeDelta && completed[hash] {
		outcome.Status = StatusSkipped
		outcome.Duration = time.Since(start)
		return outcome
	}

	if o.cfg.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(o.cfg.FileTimeout)*time.Second)
		defer cancel()
	}

	if o.schema != nil {
		if err := o.validate(ctx, op); err != nil {
			o.handleFailure(ctx, op, &outcome, err, start)
			return outcome
		}
	}

	fileOutcome, err := o.loadFile(ctx, op, hash)
	if err != nil {
		o.handleFailure(ctx, op, &outcome, err, start)
		return outcome
	}

	outcome.Status = StatusSucceeded
	outcome.RowsProcessed = fileOutcome.RowsProcessed
	outcome.RecordErrors = fileOutcome.RecordErrors
	outcome.RowsByTable = fileOutcome.RowsByTable
	outcome.Duration = time.Since(start)
	return outcome
}

// validate runs the independent XSD-validation pass over a dedicated
// stream, per spec.md §4.2's "validation and extraction are not
// composed in a single pass" requirement.
func (o *Orchestrator) validate(ctx context.Context, op source.Opener) error {
	rc, err := op.Open(ctx)
	if err != nil {
		return icsrerrors.Wrap("orchestrator.validate", icsrerrors.KindFileOpenFailed, err)
	}
	defer rc.Close()

	ok, messages, err := o.schema.Validate(rc)
	if err != nil {
		return icsrerrors.Wrap("orchestrator.validate", icsrerrors.KindXSDValidationFailed, err)
	}
	if !ok {
		reason := "schema validation failed"
		if len(messages) > 0 {
			reason = messages[0]
		}
		return icsrerrors.WrapMsg("orchestrator.validate", icsrerrors.KindXSDValidationFailed, reason, errXSDValidation)
	}
	return nil
}

// loadFile opens the extraction stream, runs the extractor and
// transformer, and invokes the loader, returning the backend's outcome.
func (o *Orchestrator) loadFile(ctx context.Context, op source.Opener, hash string) (loader.FileOutcome, error) {
	rc, err := op.Open(ctx)
	if err != nil {
		return loader.FileOutcome{}, icsrerrors.Wrap("orchestrator.loadFile", icsrerrors.KindFileOpenFailed, err)
	}
	defer rc.Close()

	mode := xmlextract.ModeNormalized
	if o.cfg.SchemaType == config.SchemaAudit {
		mode = xmlextract.ModeAudit
	}

	resultsCh, fatalCh := xmlextract.Extract(ctx, rc, mode)

	var fileOutcome loader.FileOutcome
	if o.cfg.SchemaType == config.SchemaAudit {
		batch, err := transform.Audit(resultsCh, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return loader.FileOutcome{}, icsrerrors.Wrap("orchestrator.loadFile", icsrerrors.KindInvalidICSR, err)
		}
		if err := <-fatalCh; err != nil {
			return loader.FileOutcome{}, err
		}
		fileOutcome, err = o.ldr.LoadAuditData(ctx, batch, o.cfg.Mode, op.Name(), hash)
		if err != nil {
			return loader.FileOutcome{}, err
		}
	} else {
		batch, err := transform.Normalized(resultsCh)
		if err != nil {
			return loader.FileOutcome{}, icsrerrors.Wrap("orchestrator.loadFile", icsrerrors.KindInvalidICSR, err)
		}
		if err := <-fatalCh; err != nil {
			return loader.FileOutcome{}, err
		}
		fileOutcome, err = o.ldr.LoadNormalizedData(ctx, batch, o.cfg.Mode, op.Name(), hash)
		if err != nil {
			return loader.FileOutcome{}, err
		}
	}

	return fileOutcome, nil
}

func (o *Orchestrator) handleFailure(ctx context.Context, op source.Opener, outcome *FileOutcome, err error, start time.Time) {
	outcome.Status = StatusFailed
	outcome.Err = err
	outcome.Duration = time.Since(start)

	// A file that failed because ctx itself expired (timeout) must still
	// be quarantined, so this runs detached from ctx's cancellation.
	if qErr := quarantine(context.WithoutCancel(ctx), op, o.cfg.QuarantineURI); qErr != nil {
		logging.WithFile(op.Name(), outcome.Hash).Warn().Err(qErr).Msg("failed to quarantine file")
	}
}

var errXSDValidation = icsrerrors.E(icsrerrors.Op("orchestrator.validate"), icsrerrors.KindXSDValidationFailed, "XSD validation failed")
