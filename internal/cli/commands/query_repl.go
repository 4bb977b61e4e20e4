package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/relstack-labs/relq/internal/engine"
	"github.com/relstack-labs/relq/pkg/query"
	"github.com/spf13/cobra"
)

func runQueryREPL(cmd *cobra.Command, opts *QueryOptions) error {
	ctx := cmd.Context()

	cfg, err := configFrom(ctx)
	if err != nil {
		return err
	}
	eng, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	historyFile := filepath.Join(filepath.Dir(cfg.StatePath), "repl_history")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "relq> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "relq REPL (dialect: %s)\n", eng.Dialect())
	_, _ = fmt.Fprintln(out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(out)

	format := opts.Format
	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt("relq> ")
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			quit, newFormat := handleDotCommand(cmd, eng, line, format)
			format = newFormat
			if quit {
				break
			}
			continue
		}

		// Accumulate multi-line SQL until a terminating semicolon.
		buf.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buf.WriteString(" ")
			rl.SetPrompt("  ...> ")
			continue
		}
		rl.SetPrompt("relq> ")

		sqlText := strings.TrimSuffix(buf.String(), ";")
		buf.Reset()

		res, err := eng.Run(ctx, query.SQL(sqlText))
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			continue
		}
		if err := renderResult(out, res, format); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(out)
	}

	return nil
}

// handleDotCommand processes REPL meta commands. Returns whether to quit
// and the (possibly updated) output format.
func handleDotCommand(cmd *cobra.Command, eng *engine.Engine, line, format string) (bool, string) {
	out := cmd.OutOrStdout()
	fields := strings.Fields(line)

	switch fields[0] {
	case ".quit", ".exit":
		return true, format

	case ".help":
		_, _ = fmt.Fprintln(out, "Commands:")
		_, _ = fmt.Fprintln(out, "  .sources          List configured source providers")
		_, _ = fmt.Fprintln(out, "  .format <fmt>     Set output format (table, json, csv, md)")
		_, _ = fmt.Fprintln(out, "  .explain <sql>    Show the plan without executing")
		_, _ = fmt.Fprintln(out, "  .quit             Exit the REPL")
		_, _ = fmt.Fprintln(out, "Terminate SQL statements with a semicolon.")

	case ".sources":
		for _, name := range eng.Sources() {
			_, _ = fmt.Fprintln(out, name)
		}

	case ".format":
		if len(fields) != 2 {
			_, _ = fmt.Fprintln(out, "usage: .format table|json|csv|md")
			return false, format
		}
		return false, fields[1]

	case ".explain":
		sqlText := strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(line, ".explain")), ";")
		if sqlText == "" {
			_, _ = fmt.Fprintln(out, "usage: .explain SELECT ...")
			return false, format
		}
		p, err := eng.Plan(cmd.Context(), query.SQL(sqlText))
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			return false, format
		}
		_, _ = fmt.Fprint(out, p.Explain())

	default:
		_, _ = fmt.Fprintf(out, "unknown command %s (try .help)\n", fields[0])
	}
	return false, format
}
