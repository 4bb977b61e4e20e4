// Package commands implements the relq subcommands.
package commands

import (
	"context"
	"log/slog"

	"github.com/relstack-labs/relq/internal/config"
	"github.com/relstack-labs/relq/internal/engine"
	"github.com/relstack-labs/relq/pkg/query"
	"github.com/spf13/cobra"
)

type configKey struct{}
type loggerKey struct{}

// WithConfig stores the loaded configuration on the context. Called by
// the root command's PersistentPreRunE.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// WithLogger stores the logger on the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// configFrom retrieves the loaded configuration.
func configFrom(ctx context.Context) (*config.Config, error) {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg, nil
	}
	return nil, query.NewError(query.KindConfiguration, "configuration was not loaded")
}

// loggerFrom retrieves the logger, falling back to discard.
func loggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// openEngine builds a full engine from the command's configuration. The
// caller closes it.
func openEngine(cmd *cobra.Command) (*engine.Engine, error) {
	ctx := cmd.Context()
	cfg, err := configFrom(ctx)
	if err != nil {
		return nil, err
	}
	return engine.FromConfig(ctx, cfg, loggerFrom(ctx))
}
