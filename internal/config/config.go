// Package config loads relq configuration from files, environment
// variables, and command-line flags via koanf. Precedence from highest to
// lowest: flags > env vars > config file > defaults.
package config

import (
	"github.com/relstack-labs/relq/pkg/query"
)

// Defaults applied before any other configuration layer.
const (
	DefaultDialect           = "ansi"
	DefaultConformance       = "default"
	DefaultMaxStatementBytes = 1 << 20
	DefaultStateFile         = ".relq/state.db"
	DefaultHistoryLimit      = 20
	DefaultOutput            = "table"
)

// SourceConfig describes one source provider to open at startup.
type SourceConfig struct {
	// Type selects the provider: duckdb, sqlite, postgres, or memory.
	Type string `koanf:"type"`
	// Path is the database file for duckdb and sqlite. Empty or
	// ":memory:" opens an in-memory database.
	Path string `koanf:"path"`

	// Postgres connection settings.
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	SSLMode  string `koanf:"sslmode"`
}

// Config holds all relq configuration options.
type Config struct {
	// Dialect and Conformance select the parse profile.
	Dialect     string `koanf:"dialect"`
	Conformance string `koanf:"conformance"`
	// MaxStatementBytes bounds the accepted statement length.
	MaxStatementBytes int `koanf:"max_statement_bytes"`

	// DefaultSource names the provider unqualified tables scan from.
	// Empty means the first registered source.
	DefaultSource string `koanf:"default_source"`
	// Sources maps provider names to their connection settings.
	Sources map[string]SourceConfig `koanf:"sources"`

	// Properties are opaque optimizer hints passed through verbatim.
	Properties map[string]string `koanf:"properties"`
	// PropertiesScript is an optional Starlark file whose exported
	// properties dict is merged over Properties at startup.
	PropertiesScript string `koanf:"properties_script"`

	// StatePath locates the query-history database.
	StatePath string `koanf:"state_path"`
	// HistoryLimit is the default number of history entries shown.
	HistoryLimit int `koanf:"history_limit"`

	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`

	// ProjectRoot is the directory relative paths resolve against.
	// Set during loading, never read from a file.
	ProjectRoot string `koanf:"-"`
}

// Validate checks the configuration for values no command could accept.
func (c *Config) Validate() error {
	if c.Dialect == "" {
		return query.NewError(query.KindConfiguration, "dialect must not be empty")
	}
	if c.MaxStatementBytes <= 0 {
		return query.NewError(query.KindConfiguration, "max_statement_bytes must be positive, got %d", c.MaxStatementBytes)
	}
	if c.HistoryLimit < 0 {
		return query.NewError(query.KindConfiguration, "history_limit must not be negative, got %d", c.HistoryLimit)
	}
	for name, src := range c.Sources {
		switch src.Type {
		case "duckdb", "sqlite", "postgres", "memory":
		case "":
			return query.NewError(query.KindConfiguration, "source %q has no type", name)
		default:
			return query.NewError(query.KindConfiguration, "source %q has unknown type %q", name, src.Type)
		}
		if src.Type == "postgres" && src.Database == "" {
			return query.NewError(query.KindConfiguration, "postgres source %q requires a database", name)
		}
	}
	if c.DefaultSource != "" {
		if _, ok := c.Sources[c.DefaultSource]; !ok {
			return query.NewError(query.KindConfiguration, "default_source %q is not a configured source", c.DefaultSource)
		}
	}
	return nil
}
