package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nishad/eudravigilance/internal/config"
	"github.com/nishad/eudravigilance/internal/loader"
	"github.com/nishad/eudravigilance/internal/logging"
	"github.com/nishad/eudravigilance/internal/metrics"
	"github.com/nishad/eudravigilance/internal/orchestrator"
	"github.com/nishad/eudravigilance/internal/xmlextract"
)

var (
	runMode     string
	runWorkers  int
	runValidate bool
	runDSN      string
	runSchema   string
	runXSD      string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [source_uri]",
		Short: "Run one ingestion pass over a source of ICSR files",
		Long: `Discovers ICSR XML files at source_uri, hashes and delta-filters them,
and loads each one into the configured database under the configured
schema (normalized or audit).`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRun,
	}

	cmd.Flags().StringVar(&runMode, "mode", "", "Load mode: full or delta (overrides config)")
	cmd.Flags().IntVar(&runWorkers, "workers", 0, "Number of concurrent file workers (0 = CPU count)")
	cmd.Flags().BoolVar(&runValidate, "validate", false, "Run an independent XSD validation pass per file")
	cmd.Flags().StringVar(&runDSN, "dsn", "", "Database connection string (overrides config database.dsn)")
	cmd.Flags().StringVar(&runSchema, "schema-type", "", "Target schema: normalized or audit (overrides config)")
	cmd.Flags().StringVar(&runXSD, "xsd", "", "Path to the E2B(R3) XSD, required with --validate")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(args) == 1 {
		cfg.SourceURI = args[0]
	}
	if runMode != "" {
		cfg.Mode = config.LoadMode(runMode)
	}
	if runWorkers != 0 {
		cfg.Workers = runWorkers
	}
	if runDSN != "" {
		cfg.Database.DSN = runDSN
	}
	if runSchema != "" {
		cfg.SchemaType = config.SchemaType(runSchema)
	}
	if runXSD != "" {
		cfg.XSDPath = runXSD
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	initLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Warn("interrupt received, waiting for in-flight files to finish")
		cancel()
	}()

	ldr, err := loader.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer ldr.Close()

	var schema *xmlextract.Schema
	if runValidate {
		if cfg.XSDPath == "" {
			return fmt.Errorf("--validate requires --xsd or config xsd_path")
		}
		schema, err = xmlextract.LoadSchema(cfg.XSDPath)
		if err != nil {
			return fmt.Errorf("loading XSD: %w", err)
		}
		defer schema.Close()
	}

	reg := metrics.New()
	if cfg.MetricsAddr != "" {
		metricsCtx, stopMetrics := context.WithCancel(context.Background())
		defer stopMetrics()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.MetricsAddr, reg); err != nil {
				logging.Errorf("metrics server stopped", err)
			}
		}()
	}

	o := orchestrator.New(cfg, ldr, schema, reg)
	summary, err := o.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Printf("succeeded=%d failed=%d skipped=%d rows_processed=%d duration=%s\n",
		summary.Succeeded, summary.Failed, summary.Skipped, summary.RowsProcessed, summary.Duration)

	if summary.Failed > 0 {
		return fmt.Errorf("%d file(s) failed", summary.Failed)
	}
	return nil
}
