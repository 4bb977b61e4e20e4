package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/relstack-labs/relq/pkg/query"
	"github.com/spf13/cobra"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
	Watch  bool
	Params []string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Execute a SQL query against the configured sources",
		Long: `Parse, plan, and execute a SQL query against the configured source
providers, streaming the result to stdout.

When invoked without arguments on a terminal, enters interactive REPL
mode. With --input and --watch, the query file is re-executed whenever
it changes.`,
		Example: `  # Execute SQL directly
  relq query "SELECT a, b FROM t WHERE a > 1"

  # Positional parameters
  relq query "SELECT * FROM t WHERE a > ?" -p 10

  # Read from a file and re-run on change
  relq query -i report.sql --watch

  # Output as JSON
  relq query "SELECT * FROM t" --format json

  # Interactive mode
  relq query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, json, csv, md")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-execute when the input file changes (requires --input)")
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "Positional parameter value (repeatable)")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	params, err := parseParams(opts.Params)
	if err != nil {
		return err
	}

	if opts.Watch {
		if opts.Input == "" {
			return fmt.Errorf("--watch requires --input")
		}
		return watchQueryFile(cmd, opts, params)
	}

	var sqlText string
	switch {
	case len(args) > 0:
		sqlText = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("read query file: %w", err)
		}
		sqlText = string(content)
	case !isTerminal(os.Stdin):
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		sqlText = string(content)
	default:
		return runQueryREPL(cmd, opts)
	}

	eng, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	res, err := eng.Run(cmd.Context(), query.SQL(sqlText, params...))
	if err != nil {
		return err
	}
	return renderResult(cmd.OutOrStdout(), res, opts.Format)
}

// parseParams converts flag values to typed parameter values. Integers
// and floats bind as numbers, true/false as booleans, everything else as
// strings.
func parseParams(raw []string) ([]plan.Value, error) {
	params := make([]plan.Value, len(raw))
	for i, s := range raw {
		switch {
		case s == "null":
			params[i] = nil
		case s == "true" || s == "false":
			params[i] = s == "true"
		default:
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				params[i] = n
			} else if f, err := strconv.ParseFloat(s, 64); err == nil {
				params[i] = f
			} else {
				params[i] = s
			}
		}
	}
	return params, nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
