package commands

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/engine"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all scripts and their call sites",
		Long: `List all discovered scripts with their call sites and link status.

Link status comes from the state store: a script shows a linked hash only
after a build, and an edited script shows none until the next build.`,
		Example: `  # List all scripts
  weft list

  # List scripts as JSON
  weft list --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd)
		},
	}

	return cmd
}

// scriptInfo is the JSON shape of one listed script.
type scriptInfo struct {
	Name       string   `json:"name"`
	FilePath   string   `json:"file_path"`
	RawHash    string   `json:"raw_hash"`
	LinkedHash string   `json:"linked_hash,omitempty"`
	Cyclic     bool     `json:"cyclic"`
	Calls      []string `json:"calls,omitempty"`
	Owner      string   `json:"owner,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

func runList(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	eng := cmdCtx.Engine
	if _, err := eng.Discover(engine.DiscoveryOptions{}); err != nil {
		return fmt.Errorf("failed to discover scripts: %w", err)
	}

	scripts := eng.Scripts()
	names := make([]string, 0, len(scripts))
	for name := range scripts {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]scriptInfo, 0, len(names))
	for _, name := range names {
		s := scripts[name]
		info := scriptInfo{
			Name:     s.Name,
			FilePath: s.FilePath,
			RawHash:  s.RawHash,
			Owner:    s.Meta.Owner,
			Tags:     s.Meta.Tags,
		}
		for i := range s.CallSites {
			info.Calls = append(info.Calls, s.CallSites[i].Target)
		}
		// Link status survives in the state store between invocations
		if rec, err := eng.StateStore().GetScript(name); err == nil && rec != nil {
			info.LinkedHash = rec.LinkedHash
			info.Cyclic = rec.Cyclic
		}
		infos = append(infos, info)
	}

	out := cmd.OutOrStdout()
	if wantJSON(cmdCtx.Cfg) {
		return renderJSON(out, infos)
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"Name", "Calls", "Cyclic", "Linked", "File"})
	for _, info := range infos {
		linked := "-"
		if info.LinkedHash != "" {
			linked = shortHash(info.LinkedHash)
		}
		cyclic := ""
		if info.Cyclic {
			cyclic = "yes"
		}
		t.AppendRow(table.Row{info.Name, len(info.Calls), cyclic, linked, info.FilePath})
	}
	t.Render()
	fmt.Fprintf(out, "(%d scripts)\n", len(infos))

	return nil
}
