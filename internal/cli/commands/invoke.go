package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/engine"
)

// InvokeOptions holds options for the invoke command.
type InvokeOptions struct {
	Force bool
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand() *cobra.Command {
	opts := &InvokeOptions{}

	cmd := &cobra.Command{
		Use:   "invoke <script> [keys...] -- [args...]",
		Short: "Build the project and execute a script",
		Long: `Build the project (discover, link, publish) and execute one script by
registry name. Positionals before "--" become the key list, positionals
after it become the argument list; both reach the script through its
renamed argument globals.

Command-line keys and args are always strings. The calling convention
consumes a trailing non-string argument as an internal call frame, so
string-only invocation from the shell is never misread.`,
		Example: `  # Invoke with no arguments
  weft invoke billing.invoice

  # Two keys, two args
  weft invoke billing.invoice cust:1 cust:2 -- 2026-01 full

  # JSON result for scripting
  weft invoke billing.invoice --output json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, scriptArgs := splitAtDash(args[1:], cmd.ArgsLenAtDash())
			return runInvoke(cmd, args[0], keys, scriptArgs, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Re-extract all scripts even if unchanged")

	return cmd
}

// splitAtDash splits the positionals that follow the script name at the "--"
// marker. Without a marker everything is a key.
func splitAtDash(rest []string, lenAtDash int) (keys, args []string) {
	if lenAtDash < 0 {
		return rest, nil
	}
	// lenAtDash indexes the full positional list, which includes the
	// script name at position 0.
	i := lenAtDash - 1
	if i < 0 {
		i = 0
	}
	return rest[:i], rest[i:]
}

type invokeOutput struct {
	Script     string   `json:"script"`
	Keys       []string `json:"keys,omitempty"`
	Args       []string `json:"args,omitempty"`
	Result     any      `json:"result"`
	DurationMS int64    `json:"duration_ms"`
}

func runInvoke(cmd *cobra.Command, name string, keys, args []string, opts *InvokeOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := cmdCtx.Cfg.ValidateDirectories(); err != nil {
		return err
	}

	eng := cmdCtx.Engine
	start := time.Now()

	res, err := eng.Build(cmd.Context(), engine.DiscoveryOptions{ForceFullRefresh: opts.Force})
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	if cmdCtx.Cfg.Verbose && !wantJSON(cmdCtx.Cfg) {
		fmt.Fprintln(cmd.ErrOrStderr(), res.Discovery.Summary())
	}

	result, err := eng.Invoke(cmd.Context(), name, keys, args)
	if err != nil {
		return fmt.Errorf("failed to invoke %s: %w", name, err)
	}

	out := cmd.OutOrStdout()
	if wantJSON(cmdCtx.Cfg) {
		return renderJSON(out, invokeOutput{
			Script:     name,
			Keys:       keys,
			Args:       args,
			Result:     result,
			DurationMS: time.Since(start).Milliseconds(),
		})
	}

	printValue(out, result)
	return nil
}
