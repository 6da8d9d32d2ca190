package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/engine"
	"github.com/weftlabs/weft/internal/linker"
)

// RenderOptions holds options for the render command.
type RenderOptions struct {
	Raw bool
}

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	opts := &RenderOptions{}

	cmd := &cobra.Command{
		Use:   "render <script>",
		Short: "Print the transformed source of a script",
		Long: `Link the project in memory and print one script's transformed source:
the injected preamble, renamed argument globals, and rewritten call sites.

Transformation is whole-batch: a script's static call sites embed the final
hashes of its callees, so rendering a single script still links everything
it can reach. Nothing is persisted or published.`,
		Example: `  # Show the transformed source
  weft render billing.invoice

  # Show the raw source as discovered
  weft render billing.invoice --raw`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "Print the raw source instead of the transformed source")

	return cmd
}

func runRender(cmd *cobra.Command, name string, opts *RenderOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	eng := cmdCtx.Engine
	if _, err := eng.Discover(engine.DiscoveryOptions{}); err != nil {
		return fmt.Errorf("failed to discover scripts: %w", err)
	}

	s, ok := eng.Scripts()[name]
	if !ok {
		return fmt.Errorf("script %q not found in %s", name, cmdCtx.Cfg.ScriptsDir)
	}

	if opts.Raw {
		fmt.Fprint(cmd.OutOrStdout(), s.RawSource)
		return nil
	}

	res, err := linker.Link(cmd.Context(), sortedScripts(eng.Scripts()), cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("failed to link scripts: %w", err)
	}

	linked := res.ByName[name]
	if cmdCtx.Cfg.Verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "# %s %s\n", linked.Name, linked.Hash)
	}
	fmt.Fprint(cmd.OutOrStdout(), linked.Transformed)

	return nil
}
