package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/engine"
)

// NewConsoleCommand creates the console command.
func NewConsoleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive console for invoking scripts",
		Long: `Build the project and start an interactive console. Each line invokes a
script by registry name:

  <script> [keys...] -- [args...]

Positionals before "--" are keys, positionals after it are arguments. Dot
commands inspect and rebuild the project without leaving the session.`,
		Example: `  # Start a console for the current project
  weft console

  # Console against the prod environment
  weft console --env prod`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd)
		},
	}

	return cmd
}

func runConsole(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := cmdCtx.Cfg.ValidateDirectories(); err != nil {
		return err
	}

	ctx := cmd.Context()
	eng := cmdCtx.Engine

	if _, err := eng.Build(ctx, engine.DiscoveryOptions{}); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	// History is project-local, next to the state database.
	historyFile := ""
	if sp := cmdCtx.Cfg.StatePath; sp != "" && sp != ":memory:" {
		historyFile = filepath.Join(filepath.Dir(sp), "console_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "weft> ",
		HistoryFile:     historyFile,
		AutoComplete:    newScriptCompleter(ctx, eng),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize console: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Weft console (%d scripts, env: %s)\n", len(eng.Scripts()), cmdCtx.Cfg.Environment)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if line == ".quit" || line == ".exit" {
				break
			}
			handleConsoleCommand(ctx, cmd, eng, line)
			continue
		}

		if err := invokeLine(ctx, cmd, eng, line); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
	}

	return nil
}

// invokeLine parses `<script> [keys...] -- [args...]` and invokes the script.
func invokeLine(ctx context.Context, cmd *cobra.Command, eng *engine.Engine, line string) error {
	fields := strings.Fields(line)
	name := fields[0]

	keys := fields[1:]
	var args []string
	for i, f := range keys {
		if f == "--" {
			keys, args = keys[:i], keys[i+1:]
			break
		}
	}

	result, err := eng.Invoke(ctx, name, keys, args)
	if err != nil {
		return err
	}

	printValue(cmd.OutOrStdout(), result)
	return nil
}

func handleConsoleCommand(ctx context.Context, cmd *cobra.Command, eng *engine.Engine, line string) {
	parts := strings.Fields(line)

	switch strings.ToLower(parts[0]) {
	case ".help":
		printConsoleHelp(cmd.OutOrStdout())

	case ".list":
		snap, err := eng.Registry().Snapshot(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			return
		}
		names := make([]string, 0, len(snap))
		for name := range snap {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", shortHash(snap[name]), name)
		}

	case ".render":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Usage: .render <script>")
			return
		}
		res := eng.Result()
		if res == nil {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Error: no linked scripts")
			return
		}
		s, ok := res.ByName[parts[1]]
		if !ok {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Unknown script: %s\n", parts[1])
			return
		}
		_, _ = fmt.Fprint(cmd.OutOrStdout(), s.Transformed)

	case ".reload":
		res, err := eng.Build(ctx, engine.DiscoveryOptions{})
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			return
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Discovery.Summary())

	case ".clear":
		fmt.Print("\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Unknown command: %s (type .help for commands)\n", parts[0])
	}
}

func printConsoleHelp(w io.Writer) {
	help := `
Commands:
  .help             Show this help message
  .list             List registered scripts with their hashes
  .render <script>  Show a script's transformed source
  .reload           Re-discover, link, and publish
  .clear            Clear the screen
  .quit / .exit     Exit the console

Tips:
  - Invoke a script with: <script> [keys...] -- [args...]
  - Use arrow keys to navigate history
  - Tab completion works for script names
`
	_, _ = fmt.Fprintln(w, help)
}

// newScriptCompleter creates a readline completer for script names.
func newScriptCompleter(ctx context.Context, eng *engine.Engine) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface

	snap, err := eng.Registry().Snapshot(ctx)
	if err == nil {
		names := make([]string, 0, len(snap))
		for name := range snap {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			items = append(items, readline.PcItem(name))
		}
	}

	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".list"),
		readline.PcItem(".render"),
		readline.PcItem(".reload"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)

	return readline.NewPrefixCompleter(items...)
}
