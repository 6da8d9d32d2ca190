package commands

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewRegistryCommand creates the registry command.
func NewRegistryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Show the published name-to-hash registry",
		Long: `List the name-to-hash entries in the configured registry backend.

The registry is the dispatch table the runtime consults for dynamic calls:
"weft build" publishes every linked script's final content hash under its
name, and this command reads the entries back without modification.

The in-memory backend is per-process, so a fresh process sees an empty
registry. Use the sqlite or postgres backend to share entries across
commands.`,
		Example: `  # Show the registry
  weft registry

  # Against a shared sqlite registry
  weft registry --registry-backend sqlite --registry-path /srv/weft/registry.db

  # JSON for scripting
  weft registry --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegistry(cmd)
		},
	}

	return cmd
}

func runRegistry(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := cmdCtx.Engine.Registry().Snapshot(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read registry: %w", err)
	}

	if wantJSON(cmdCtx.Cfg) {
		return renderJSON(cmd.OutOrStdout(), snap)
	}

	if len(snap) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Registry is empty. Run 'weft build' to publish scripts.")
		return nil
	}

	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	t := newTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Name", "Hash"})
	for _, name := range names {
		t.AppendRow(table.Row{name, snap[name]})
	}
	t.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "(%d entries)\n", len(names))

	return nil
}
