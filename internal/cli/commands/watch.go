package commands

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/engine"
	"github.com/weftlabs/weft/internal/parser"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild on script changes",
		Long: `Build the project, then watch the scripts directory and rebuild whenever
a script is saved, created, or removed. Unchanged scripts are skipped by
content hash, so a save that does not alter the source stays cheap.

Interrupt with Ctrl-C to stop.`,
		Example: `  # Watch the current project
  weft watch

  # Watch against the staging environment
  weft watch --env staging`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd)
		},
	}

	return cmd
}

func runWatch(cmd *cobra.Command) error {
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
	out := cmd.OutOrStdout()

	rebuild(ctx, out, eng)

	fmt.Fprintf(out, "Watching %s for changes (Ctrl-C to stop)\n", cmdCtx.Cfg.ScriptsDir)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watchDirRecursive(watcher, cmdCtx.Cfg.ScriptsDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cmdCtx.Cfg.ScriptsDir, err)
	}

	// Debounce timer
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != parser.Ext {
				continue
			}

			// Debounce
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				rebuild(ctx, out, eng)
			})

		case err := <-watcher.Errors:
			cmdCtx.Logger.Error("watcher error", "error", err)
		}
	}
}

// rebuild runs one full pipeline pass and reports the outcome. Errors are
// printed, not returned: the watcher outlives a bad save.
func rebuild(ctx context.Context, w io.Writer, eng *engine.Engine) {
	start := time.Now()
	res, err := eng.Build(ctx, engine.DiscoveryOptions{})
	stamp := time.Now().Format("15:04:05")
	if err != nil {
		fmt.Fprintf(w, "%s build failed: %v\n", stamp, err)
		return
	}

	fmt.Fprintf(w, "%s linked %d scripts: %d static, %d dynamic, %d cyclic (%s)\n",
		stamp, res.Stats.Scripts, res.Stats.StaticCalls, res.Stats.DynamicCalls, res.Stats.CyclicScripts,
		time.Since(start).Round(time.Millisecond))
}

// watchDirRecursive adds a directory and all subdirectories to the watcher.
func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
