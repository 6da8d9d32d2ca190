package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/engine"
	"github.com/weftlabs/weft/internal/webapi"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Port  int
	Watch bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the project state over HTTP",
		Long: `Start a local HTTP server exposing the linked project as JSON.

Endpoints:
  GET  /healthz                    liveness probe
  GET  /api/scripts                all script rows
  GET  /api/scripts/{name}         one script with calls and callers
  GET  /api/scripts/{name}/source  transformed source (?raw=1 for the file)
  GET  /api/graph                  condensed call graph
  GET  /api/registry               published registry snapshot
  GET  /api/runs                   link run history
  POST /api/build                  trigger a pipeline pass (?force=1)

The server builds the batch on startup and, unless --watch=false, rebuilds
whenever a script file changes.`,
		Example: `  # Serve on the default port
  weft serve

  # Custom port, no file watching
  weft serve --port 3000 --watch=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "Port to serve on (default: 8707)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", true, "Rebuild on script changes")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cmdCtx.Cfg
	if _, err := os.Stat(cfg.ScriptsDir); os.IsNotExist(err) {
		return fmt.Errorf("scripts directory does not exist: %s", cfg.ScriptsDir)
	}

	// CLI flags override config file
	serveCfg := cfg.GetServeConfig()
	port := serveCfg.Port
	if opts.Port != 0 {
		port = opts.Port
	}
	watch := serveCfg.Watch
	if cmd.Flags().Changed("watch") {
		watch = opts.Watch
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	// Initial build; a broken tree still serves the persisted state.
	if _, err := cmdCtx.Engine.Build(ctx, engine.DiscoveryOptions{}); err != nil {
		fmt.Fprintf(out, "warning: initial build failed: %v\n", err)
	}

	fmt.Fprintf(out, "Serving %s on http://localhost:%d\n", cfg.ScriptsDir, port)
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	server := webapi.NewServer(webapi.Config{
		Engine:     cmdCtx.Engine,
		Port:       port,
		Watch:      watch,
		ScriptsDir: cfg.ScriptsDir,
		Logger:     cmdCtx.Logger,
	})

	return server.Serve(ctx)
}
