package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/relstack-labs/relq/internal/config"
	"github.com/relstack-labs/relq/internal/starlark"
	"github.com/relstack-labs/relq/internal/state"
	"github.com/relstack-labs/relq/pkg/dialect"
	"github.com/relstack-labs/relq/pkg/parser"
	"github.com/relstack-labs/relq/pkg/query"
	"github.com/relstack-labs/relq/pkg/source"
	"golang.org/x/sync/errgroup"
)

// FromConfig assembles a full engine from loaded configuration: parse
// profile, source providers (opened and pinged concurrently), optimizer
// properties, and the history store. The returned engine owns everything
// it opened; Close releases it all.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	profile, err := BuildProfile(cfg)
	if err != nil {
		return nil, err
	}

	registry, err := openSources(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.DefaultSource != "" {
		if err := registry.SetDefault(cfg.DefaultSource); err != nil {
			_ = registry.Close()
			return nil, query.WrapError(query.KindConfiguration, err, "set default source")
		}
	}

	props, err := buildProperties(cfg, registry)
	if err != nil {
		_ = registry.Close()
		return nil, err
	}

	history := state.New(logger)
	if err := history.Open(cfg.StatePath); err != nil {
		_ = registry.Close()
		return nil, query.WrapError(query.KindConfiguration, err, "open history store")
	}
	if err := history.Migrate(); err != nil {
		_ = history.Close()
		_ = registry.Close()
		return nil, query.WrapError(query.KindConfiguration, err, "migrate history store")
	}

	eng, err := New(Config{
		Profile:       profile,
		Registry:      registry,
		DefaultSource: cfg.DefaultSource,
		Properties:    props,
		History:       history,
		Logger:        logger,
	})
	if err != nil {
		_ = history.Close()
		_ = registry.Close()
		return nil, err
	}
	eng.ownsHistory = true
	return eng, nil
}

// BuildProfile maps configuration onto a parse profile.
func BuildProfile(cfg *config.Config) (*parser.Profile, error) {
	conf, err := dialect.ParseConformance(cfg.Conformance)
	if err != nil {
		return nil, query.WrapError(query.KindConfiguration, err, "conformance")
	}
	return parser.NewProfile(cfg.Dialect,
		parser.WithConformance(conf),
		parser.WithMaxStatementBytes(cfg.MaxStatementBytes))
}

// openSources opens every configured provider concurrently and pings it,
// so a dead connection fails startup instead of the first query.
func openSources(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*source.Registry, error) {
	registry := source.NewRegistry()
	if len(cfg.Sources) == 0 {
		registry.Register("memory", source.NewMemory())
		return registry, nil
	}

	var mu sync.Mutex
	opened := make(map[string]source.Source, len(cfg.Sources))

	g, gctx := errgroup.WithContext(ctx)
	for name, sc := range cfg.Sources {
		g.Go(func() error {
			src, err := openSource(gctx, sc, logger)
			if err != nil {
				return query.WrapError(query.KindConfiguration, err, "open source %q", name)
			}
			mu.Lock()
			opened[name] = src
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, src := range opened {
			_ = src.Close()
		}
		return nil, err
	}

	// Registration order is deterministic so the implicit default (the
	// first registered source) does not depend on map iteration.
	names := make([]string, 0, len(opened))
	for name := range opened {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		registry.Register(name, opened[name])
	}
	return registry, nil
}

func openSource(ctx context.Context, sc config.SourceConfig, logger *slog.Logger) (source.Source, error) {
	switch sc.Type {
	case "memory":
		return source.NewMemory(), nil
	case "duckdb":
		return source.OpenDuckDB(ctx, sc.Path, logger)
	case "sqlite":
		return source.OpenSQLite(ctx, sc.Path, logger)
	case "postgres":
		return source.OpenPostgres(ctx, source.PostgresConfig{
			Host:     sc.Host,
			Port:     sc.Port,
			Database: sc.Database,
			Username: sc.Username,
			Password: sc.Password,
			SSLMode:  sc.SSLMode,
		}, logger)
	default:
		return nil, query.NewError(query.KindConfiguration, "unknown source type %q", sc.Type)
	}
}

func buildProperties(cfg *config.Config, registry *source.Registry) (map[string]string, error) {
	if cfg.PropertiesScript == "" {
		return cfg.Properties, nil
	}
	props, err := starlark.EvalFile(cfg.PropertiesScript, starlark.Inputs{
		Dialect:       cfg.Dialect,
		DefaultSource: cfg.DefaultSource,
		Sources:       registry.Names(),
		Base:          cfg.Properties,
	})
	if err != nil {
		return nil, query.WrapError(query.KindConfiguration, err, "evaluate properties script")
	}
	return props, nil
}
