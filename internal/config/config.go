// Package config loads pipeline configuration from a YAML file overlaid
// with environment variables and CLI flags, in that precedence order
// (flag > env > file > default).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the single recognized environment-variable prefix.
// Nested keys are separated with "__", e.g.
// PY_LOAD_EUDRAVIGILANCE_DATABASE__DSN overrides database.dsn.
const EnvPrefix = "PY_LOAD_EUDRAVIGILANCE"

// SchemaType selects the target schema shape.
type SchemaType string

const (
	SchemaNormalized SchemaType = "normalized"
	SchemaAudit      SchemaType = "audit"
)

// LoadMode selects full-truncate vs. delta ingestion.
type LoadMode string

const (
	ModeFull  LoadMode = "full"
	ModeDelta LoadMode = "delta"
)

// DatabaseConfig holds the target database connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// Config is the root configuration object.
type Config struct {
	Database      DatabaseConfig `yaml:"database" mapstructure:"database"`
	SourceURI     string         `yaml:"source_uri" mapstructure:"source_uri"`
	SchemaType    SchemaType     `yaml:"schema_type" mapstructure:"schema_type"`
	Mode          LoadMode       `yaml:"mode" mapstructure:"mode"`
	QuarantineURI string         `yaml:"quarantine_uri" mapstructure:"quarantine_uri"`
	Workers       int            `yaml:"workers" mapstructure:"workers"`
	XSDPath       string         `yaml:"xsd_path" mapstructure:"xsd_path"`
	FileTimeout   int            `yaml:"file_timeout_seconds" mapstructure:"file_timeout_seconds"`
	LogLevel      string         `yaml:"log_level" mapstructure:"log_level"`
	LogJSON       bool           `yaml:"log_json" mapstructure:"log_json"`
	MetricsAddr   string         `yaml:"metrics_addr" mapstructure:"metrics_addr"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		SchemaType:  SchemaNormalized,
		Mode:        ModeDelta,
		Workers:     0, // 0 means "use host CPU count", resolved by the caller
		FileTimeout: 0, // 0 means "no per-file timeout"
		LogLevel:    "info",
		LogJSON:     true,
		MetricsAddr: "",
	}
}

// Validate checks that the configuration is internally consistent,
// returning a plain error that describes the first problem found.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.SourceURI == "" {
		return fmt.Errorf("source_uri is required")
	}
	switch c.SchemaType {
	case SchemaNormalized, SchemaAudit:
	default:
		return fmt.Errorf("schema_type must be %q or %q, got %q", SchemaNormalized, SchemaAudit, c.SchemaType)
	}
	switch c.Mode {
	case ModeFull, ModeDelta:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeFull, ModeDelta, c.Mode)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	return nil
}

// Loader reads a YAML config file, overlays environment variables under
// EnvPrefix, and exposes the merged result. CLI commands bind pflag sets
// into the same viper instance so flags win over everything else.
type Loader struct {
	v *viper.Viper
}

// NewLoader constructs a Loader seeded with DefaultConfig's values.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	defaults := DefaultConfig()
	// viper's AutomaticEnv only checks the environment for keys it
	// already knows about (via a default, a bound flag, or a config
	// file) - these have none of those, so register empty defaults
	// purely so their env vars are picked up.
	v.SetDefault("database.dsn", "")
	v.SetDefault("source_uri", "")
	v.SetDefault("quarantine_uri", "")
	v.SetDefault("xsd_path", "")
	v.SetDefault("schema_type", string(defaults.SchemaType))
	v.SetDefault("mode", string(defaults.Mode))
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("file_timeout_seconds", defaults.FileTimeout)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_json", defaults.LogJSON)
	v.SetDefault("metrics_addr", defaults.MetricsAddr)

	return &Loader{v: v}
}

// Viper exposes the underlying viper instance so cobra commands can
// BindPFlag their own flags into it before Load is called.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads configFile (if it exists; a missing file is not an error,
// matching the teacher's Load semantics of falling back to defaults) and
// returns the fully merged Config. It does not call Validate.
func (l *Loader) Load(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			l.v.SetConfigFile(configFile)
			if err := l.v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file %s: %w", configFile, err)
		}
	}

	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating the parent directory if needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
