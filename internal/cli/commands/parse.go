package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/relstack-labs/relq/internal/engine"
	"github.com/relstack-labs/relq/pkg/parser"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewParseCommand creates the parse command, which stops the pipeline
// after the parse stage and dumps the syntax tree.
func NewParseCommand() *cobra.Command {
	var placeholders bool

	cmd := &cobra.Command{
		Use:   "parse [SQL]",
		Short: "Parse a SQL statement and print its syntax tree",
		Example: `  relq parse "SELECT a FROM t WHERE a > 1"
  echo "SELECT 1" | relq parse`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			profile, err := engine.BuildProfile(cfg)
			if err != nil {
				return err
			}

			sqlText, err := sqlFromArgsOrStdin(args)
			if err != nil {
				return err
			}

			p := parser.New(sqlText, profile)
			tree, err := p.Parse()
			if err != nil {
				return err
			}

			if placeholders {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "placeholders: %d\n", p.Placeholders())
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer func() { _ = enc.Close() }()
			return enc.Encode(tree)
		},
	}

	cmd.Flags().BoolVar(&placeholders, "placeholders", false, "Also print the number of ? parameters")
	return cmd
}

func sqlFromArgsOrStdin(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if isTerminal(os.Stdin) {
		return "", fmt.Errorf("no SQL given (pass it as an argument or pipe it in)")
	}
	content, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(content), nil
}
