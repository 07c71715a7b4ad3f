package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nishad/eudravigilance/internal/loader"
)

var validateDBSchemaDSN string

func newValidateDBSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-db-schema",
		Short: "Check that the target database's catalog matches the expected tables and columns",
		RunE:  runValidateDBSchema,
	}

	cmd.Flags().StringVar(&validateDBSchemaDSN, "dsn", "", "Database connection string (overrides config database.dsn)")

	return cmd
}

func runValidateDBSchema(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if validateDBSchemaDSN != "" {
		cfg.Database.DSN = validateDBSchemaDSN
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

	ok, err := ldr.ValidateSchema(ctx)
	if err != nil {
		return fmt.Errorf("validating schema: %w", err)
	}
	if !ok {
		return fmt.Errorf("database schema does not match the expected tables/columns; run init-db")
	}

	fmt.Println("schema OK")
	return nil
}
