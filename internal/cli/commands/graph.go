package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/engine"
	"github.com/weftlabs/weft/internal/linker"
	"github.com/weftlabs/weft/internal/script"
)

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the call graph and its components",
		Long: `Show the condensed call graph: strongly connected components grouped
into finalization levels, sinks first.

Calls between components bind to content hashes at link time; calls inside a
cyclic component always resolve through the registry at run time. The command
links in memory only and records nothing.`,
		Example: `  # Show the graph
  weft graph

  # Graph as JSON (nodes, edges, components)
  weft graph --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGraph(cmd)
		},
	}

	return cmd
}

// graphOutput is the JSON shape of the call graph.
type graphOutput struct {
	Nodes      []string          `json:"nodes"`
	Edges      []graphEdge       `json:"edges"`
	Components []graphComponent  `json:"components"`
	Levels     [][]int           `json:"levels"`
	Modes      map[string]string `json:"modes"`
}

type graphEdge struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
	Mode   string `json:"mode"`
}

type graphComponent struct {
	ID      int      `json:"id"`
	Members []string `json:"members"`
	Cyclic  bool     `json:"cyclic"`
}

func runGraph(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	eng := cmdCtx.Engine
	if _, err := eng.Discover(engine.DiscoveryOptions{}); err != nil {
		return fmt.Errorf("failed to discover scripts: %w", err)
	}

	scripts := sortedScripts(eng.Scripts())
	if len(scripts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No scripts found")
		return nil
	}

	// Link in memory for the mode classification; nothing is persisted or
	// published here.
	res, err := linker.Link(cmd.Context(), scripts, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("failed to link scripts: %w", err)
	}

	out := cmd.OutOrStdout()
	if wantJSON(cmdCtx.Cfg) {
		jsonOut := graphOutput{
			Nodes:  res.Graph.Nodes(),
			Levels: res.Cond.Levels,
			Modes:  map[string]string{},
		}
		for _, s := range res.Scripts {
			for i := range s.CallSites {
				cs := &s.CallSites[i]
				jsonOut.Edges = append(jsonOut.Edges, graphEdge{
					Caller: s.Name,
					Callee: cs.Target,
					Mode:   cs.Mode.String(),
				})
				jsonOut.Modes[s.Name+" -> "+cs.Target] = cs.Mode.String()
			}
		}
		for _, comp := range res.Cond.Components {
			jsonOut.Components = append(jsonOut.Components, graphComponent{
				ID:      comp.ID,
				Members: comp.Members,
				Cyclic:  comp.Cyclic,
			})
		}
		return renderJSON(out, jsonOut)
	}

	fmt.Fprintln(out, "Call graph (finalization levels, sinks first):")
	fmt.Fprintln(out)

	for i, level := range res.Cond.Levels {
		fmt.Fprintf(out, "Level %d:\n", i)
		for _, compID := range level {
			comp := res.Cond.Components[compID]
			if comp.Cyclic {
				fmt.Fprintf(out, "  [cycle] %s\n", strings.Join(comp.Members, " <-> "))
			}
			for _, name := range comp.Members {
				fmt.Fprintf(out, "  %s\n", name)
				s := res.ByName[name]
				for j := range s.CallSites {
					cs := &s.CallSites[j]
					fmt.Fprintf(out, "    calls %s [%s]\n", cs.Target, cs.Mode)
				}
				if callers := res.Graph.Callers(name); len(callers) > 0 {
					fmt.Fprintf(out, "    called by: %s\n", strings.Join(callers, ", "))
				}
			}
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "Total: %d scripts, %d calls, %d components (%d cyclic scripts)\n",
		res.Graph.NodeCount(), res.Graph.EdgeCount(), len(res.Cond.Components), res.Stats.CyclicScripts)

	return nil
}

// sortedScripts flattens the discovered map into a name-sorted slice.
func sortedScripts(m map[string]*script.Script) []*script.Script {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	scripts := make([]*script.Script, 0, len(names))
	for _, name := range names {
		scripts = append(scripts, m[name])
	}
	return scripts
}
