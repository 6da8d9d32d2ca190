package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/state"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Limit int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show link run history",
		Long: `List recent link runs recorded in the state store, newest first.

Every "weft build" records one run with its outcome and call statistics.
Failed runs keep the error that rejected the batch.`,
		Example: `  # Show the last 20 runs
  weft runs

  # Show more history
  weft runs --limit 100

  # JSON for scripting
  weft runs --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "Maximum number of runs to show")

	return cmd
}

type runInfo struct {
	ID            string `json:"id"`
	Environment   string `json:"environment"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	ScriptsTotal  int    `json:"scripts_total"`
	StaticCalls   int    `json:"static_calls"`
	DynamicCalls  int    `json:"dynamic_calls"`
	CyclicScripts int    `json:"cyclic_scripts"`
	StartedAt     string `json:"started_at"`
	CompletedAt   string `json:"completed_at,omitempty"`
	DurationMS    int64  `json:"duration_ms,omitempty"`
}

func runRuns(cmd *cobra.Command, opts *RunsOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	runs, err := cmdCtx.Engine.StateStore().ListLinkRuns(opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if wantJSON(cmdCtx.Cfg) {
		infos := make([]runInfo, 0, len(runs))
		for _, r := range runs {
			info := runInfo{
				ID:            r.ID,
				Environment:   r.Environment,
				Status:        string(r.Status),
				Error:         r.Error,
				ScriptsTotal:  r.ScriptsTotal,
				StaticCalls:   r.StaticCalls,
				DynamicCalls:  r.DynamicCalls,
				CyclicScripts: r.CyclicScripts,
				StartedAt:     r.StartedAt.UTC().Format(time.RFC3339),
			}
			if r.CompletedAt != nil {
				info.CompletedAt = r.CompletedAt.UTC().Format(time.RFC3339)
				info.DurationMS = r.CompletedAt.Sub(r.StartedAt).Milliseconds()
			}
			infos = append(infos, info)
		}
		return renderJSON(cmd.OutOrStdout(), infos)
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded. Run 'weft build' first.")
		return nil
	}

	t := newTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"ID", "Env", "Status", "Scripts", "Static", "Dynamic", "Cyclic", "Started", "Duration"})
	for _, r := range runs {
		duration := "-"
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{
			shortID(r.ID),
			r.Environment,
			string(r.Status),
			r.ScriptsTotal,
			r.StaticCalls,
			r.DynamicCalls,
			r.CyclicScripts,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
		})
	}
	t.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "(%d runs)\n", len(runs))

	for _, r := range runs {
		if r.Status == state.RunStatusFailed && r.Error != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s failed: %s\n", shortID(r.ID), r.Error)
		}
	}

	return nil
}

// shortID trims a run ID for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
