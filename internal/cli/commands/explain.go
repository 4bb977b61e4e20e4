package commands

import (
	"fmt"

	"github.com/relstack-labs/relq/pkg/query"
	"github.com/spf13/cobra"
)

// NewExplainCommand creates the explain command, which runs the pipeline
// through the optimize stage and prints the plan.
func NewExplainCommand() *cobra.Command {
	var showSchema bool

	cmd := &cobra.Command{
		Use:     "explain [SQL]",
		Short:   "Show the physical plan for a query without executing it",
		Example: `  relq explain "SELECT a FROM t WHERE a > 1 ORDER BY a"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlText, err := sqlFromArgsOrStdin(args)
			if err != nil {
				return err
			}

			eng, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			p, err := eng.Plan(cmd.Context(), query.SQL(sqlText))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprint(out, p.Explain())
			if showSchema {
				_, _ = fmt.Fprintf(out, "output: %s\n", p.OutputSchema())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSchema, "schema", false, "Also print the output schema")
	return cmd
}
