package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nishad/eudravigilance/internal/loader"
)

var initDBDSN string

func newInitDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the target tables (and etl_file_history) if they don't exist",
		Long: `Issues idempotent DDL for every normalized/audit table plus the
etl_file_history bookkeeping table. Safe to run repeatedly; existing
tables are left untouched.`,
		RunE: runInitDB,
	}

	cmd.Flags().StringVar(&initDBDSN, "dsn", "", "Database connection string (overrides config database.dsn)")

	return cmd
}

func runInitDB(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if initDBDSN != "" {
		cfg.Database.DSN = initDBDSN
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	initLogging(cfg)

	ctx := context.Background()
	ldr, err := loader.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer ldr.Close()

	if err := ldr.CreateAllTables(ctx); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}

	fmt.Println("schema initialized")
	return nil
}
