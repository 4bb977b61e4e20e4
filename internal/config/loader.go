package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/relstack-labs/relq/pkg/query"
	"github.com/spf13/pflag"
)

// maxUpwardSearchLevels limits how far up the directory tree to search for
// a config file.
const maxUpwardSearchLevels = 10

var configNames = []string{"relq.yaml", "relq.yml"}

// configIn returns the config file in dir, or "" if none exists.
func configIn(dir string) string {
	for _, name := range configNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectRoot searches upward from startDir for a relq config file.
// Returns startDir if none is found within maxUpwardSearchLevels.
func findProjectRoot(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configIn(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return startDir
}

// resolvePathRelativeTo resolves path against baseDir unless it is empty
// or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Load reads configuration from the given file (or a discovered
// relq.yaml), RELQ_-prefixed environment variables, and the given flag
// set. A nil flag set skips the flag layer.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// Project root anchors relative paths: the explicit config file's
	// directory wins, otherwise walk up from the working directory.
	var projectRoot string
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	}
	if projectRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		projectRoot = findProjectRoot(cwd)
	}

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"dialect":             DefaultDialect,
		"conformance":         DefaultConformance,
		"max_statement_bytes": DefaultMaxStatementBytes,
		"state_path":          DefaultStateFile,
		"history_limit":       DefaultHistoryLimit,
		"verbose":             false,
		"output":              DefaultOutput,
	}, "."), nil); err != nil {
		return nil, query.WrapError(query.KindConfiguration, err, "load defaults")
	}

	if cfgFile == "" {
		cfgFile = configIn(projectRoot)
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, query.WrapError(query.KindConfiguration, err, "read config file %s", cfgFile)
		}
	}

	// RELQ_MAX_STATEMENT_BYTES -> max_statement_bytes
	if err := k.Load(env.Provider("RELQ_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "RELQ_"))
	}), nil); err != nil {
		return nil, query.WrapError(query.KindConfiguration, err, "load env vars")
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			// Kebab-case flags map to snake_case config keys.
			key := strings.ReplaceAll(f.Name, "-", "_")
			if key == "state" {
				return "state_path", posflag.FlagVal(flags, f)
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, query.WrapError(query.KindConfiguration, err, "load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, query.WrapError(query.KindConfiguration, err, "decode config")
	}

	cfg.ProjectRoot = projectRoot
	cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)
	cfg.PropertiesScript = resolvePathRelativeTo(cfg.PropertiesScript, projectRoot)
	for name, src := range cfg.Sources {
		if src.Path != "" && src.Path != ":memory:" {
			src.Path = resolvePathRelativeTo(src.Path, projectRoot)
			cfg.Sources[name] = src
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
