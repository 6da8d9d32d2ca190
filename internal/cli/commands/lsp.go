package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/cli/config"
	"github.com/weftlabs/weft/internal/lsp"
)

// NewLSPCommand creates the lsp command.
func NewLSPCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Start the Language Server Protocol server",
		Long: `Start the LSP server for editor integration.

The server speaks JSON-RPC over stdin/stdout. The project root, scripts
directory, and link state are taken from the client's initialization
request (rootUri) and the project's weft.yaml.`,
		Example: `  # Usually started by an editor, not by hand
  weft lsp`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLSP(cmd)
		},
	}

	return cmd
}

func runLSP(cmd *cobra.Command) error {
	logger := config.GetLogger(cmd.Context())
	server := lsp.NewServerWithLogger(os.Stdin, os.Stdout, logger)
	return server.Run()
}
