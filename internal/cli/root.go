// Package cli implements the evload command-line surface: run, init-db,
// validate, and validate-db-schema, each wired against internal/config,
// internal/orchestrator, and internal/loader.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nishad/eudravigilance/internal/config"
	"github.com/nishad/eudravigilance/internal/logging"

	// Backend registration: importing a backend package for its side
	// effect registers it with internal/loader's dialect registry.
	_ "github.com/nishad/eudravigilance/internal/loader/postgres"
	_ "github.com/nishad/eudravigilance/internal/loader/sqlite"
)

var configFile string

// NewRootCmd builds the evload root command and its subcommands.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "evload",
		Short: "Bulk ICSR ETL engine for E2B(R3) pharmacovigilance reports",
		Long: `evload ingests ICH E2B(R3) ICSR XML reports from a local directory or
object-storage prefix and loads them into a normalized relational
schema or a provenance-preserving audit schema, with idempotent
delta re-runs.`,
		Version: version,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newInitDBCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newValidateDBSchemaCmd())

	return root
}

// loadConfig binds flags already registered on fs into a fresh
// config.Loader's viper instance (so flag > env > file > default holds)
// and returns the merged configuration.
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	loader := config.NewLoader()
	if fs != nil {
		if err := loader.Viper().BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}
	cfg, err := loader.Load(configFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogging configures the global logger from the merged config.
func initLogging(cfg *config.Config) {
	level := logging.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		level = logging.DebugLevel
	case "warn":
		level = logging.WarnLevel
	case "error":
		level = logging.ErrorLevel
	}
	logging.Init(logging.Config{Level: level, JSONOutput: cfg.LogJSON})
}
