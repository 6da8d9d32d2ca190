package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/engine"
)

// BuildOptions holds options for the build command.
type BuildOptions struct {
	Force bool
}

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	opts := &BuildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Discover, link, and publish all scripts",
		Long: `Run the full pipeline: discover scripts, link the call graph, and
publish the finalized batch to the registry.

Discovery skips files whose content hash is unchanged since the last pass;
use --force to re-parse everything. Linking rejects the whole batch when any
file fails to parse or any call site names an unknown script — a broken file
could be a call target, so nothing from the batch reaches the registry.
Publication registers every finalized script, so a reader observing the
registry at any moment can resolve each entry it has already seen.`,
		Example: `  # Build the project
  weft build

  # Re-parse every script even if unchanged
  weft build --force

  # Build and export transformed sources
  weft build --out-dir build/

  # Machine-readable summary
  weft build --output json`,
		Aliases: []string{"link"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Re-parse all scripts, ignoring stored content hashes")

	return cmd
}

// buildOutput is the JSON shape of a build summary.
type buildOutput struct {
	ScriptsTotal   int   `json:"scripts_total"`
	ScriptsChanged int   `json:"scripts_changed"`
	ScriptsSkipped int   `json:"scripts_skipped"`
	StaticCalls    int   `json:"static_calls"`
	DynamicCalls   int   `json:"dynamic_calls"`
	CyclicScripts  int   `json:"cyclic_scripts"`
	Exported       int   `json:"exported,omitempty"`
	DurationMS     int64 `json:"duration_ms"`
}

func runBuild(cmd *cobra.Command, opts *BuildOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := cmdCtx.Cfg.ValidateDirectories(); err != nil {
		return err
	}

	start := time.Now()
	res, err := cmdCtx.Engine.Build(cmd.Context(), engine.DiscoveryOptions{ForceFullRefresh: opts.Force})
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if wantJSON(cmdCtx.Cfg) {
		jsonOut := buildOutput{
			ScriptsTotal:   res.Discovery.ScriptsTotal,
			ScriptsChanged: res.Discovery.ScriptsChanged,
			ScriptsSkipped: res.Discovery.ScriptsSkipped,
			StaticCalls:    res.Stats.StaticCalls,
			DynamicCalls:   res.Stats.DynamicCalls,
			CyclicScripts:  res.Stats.CyclicScripts,
			Exported:       res.Exported,
			DurationMS:     time.Since(start).Milliseconds(),
		}
		return renderJSON(out, jsonOut)
	}

	fmt.Fprintln(out, res.Discovery.Summary())
	fmt.Fprintf(out, "Linked %d scripts: %d static calls, %d dynamic calls, %d cyclic\n",
		res.Stats.Scripts, res.Stats.StaticCalls, res.Stats.DynamicCalls, res.Stats.CyclicScripts)
	if res.Exported > 0 {
		fmt.Fprintf(out, "Exported %d transformed sources to %s\n", res.Exported, cmdCtx.Cfg.OutDir)
	}
	fmt.Fprintf(out, "Completed in %s\n", time.Since(start).Round(time.Millisecond))

	return nil
}
