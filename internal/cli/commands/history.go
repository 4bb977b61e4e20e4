package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/relstack-labs/relq/internal/state"
	"github.com/spf13/cobra"
)

// maxHistorySQLWidth truncates long statements in the listing.
const maxHistorySQLWidth = 60

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [ID]",
		Short: "Show previously executed queries",
		Long: `List the most recent queries recorded in the history database, or
show one entry in full by ID.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFrom(ctx)
			if err != nil {
				return err
			}

			if _, err := os.Stat(cfg.StatePath); os.IsNotExist(err) {
				return fmt.Errorf("no history database at %s (run a query first)", cfg.StatePath)
			}

			store := state.New(loggerFrom(ctx))
			if err := store.Open(cfg.StatePath); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if len(args) == 1 {
				return showHistoryEntry(cmd, store, args[0])
			}

			if limit <= 0 {
				limit = cfg.HistoryLimit
			}
			recs, err := store.List(ctx, limit)
			if err != nil {
				return err
			}
			renderHistory(cmd, recs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of entries to show (default from config)")
	return cmd
}

func showHistoryEntry(cmd *cobra.Command, store *state.Store, id string) error {
	rec, err := store.Get(cmd.Context(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "id:       %s\n", rec.ID)
	_, _ = fmt.Fprintf(out, "dialect:  %s\n", rec.Dialect)
	_, _ = fmt.Fprintf(out, "status:   %s\n", rec.Status)
	_, _ = fmt.Fprintf(out, "rows:     %d\n", rec.Rows)
	_, _ = fmt.Fprintf(out, "duration: %s\n", rec.Duration)
	_, _ = fmt.Fprintf(out, "started:  %s\n", rec.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if rec.Error != "" {
		_, _ = fmt.Fprintf(out, "error:    %s\n", rec.Error)
	}
	_, _ = fmt.Fprintf(out, "\n%s\n", rec.SQL)
	return nil
}

func renderHistory(cmd *cobra.Command, recs []*state.Record) {
	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		_, _ = fmt.Fprintln(out, "(no history)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "STARTED", "STATUS", "ROWS", "DURATION", "SQL"})

	for _, rec := range recs {
		sqlText := strings.Join(strings.Fields(rec.SQL), " ")
		if len(sqlText) > maxHistorySQLWidth {
			sqlText = sqlText[:maxHistorySQLWidth-3] + "..."
		}
		t.AppendRow(table.Row{
			shortID(rec.ID),
			rec.StartedAt.Format("2006-01-02 15:04:05"),
			rec.Status,
			rec.Rows,
			rec.Duration,
			sqlText,
		})
	}
	t.Render()
}

// shortID keeps the first UUID group; enough to disambiguate a listing.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
