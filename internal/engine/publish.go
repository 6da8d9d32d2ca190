package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/weftlabs/weft/internal/linker"
	"github.com/weftlabs/weft/internal/parser"
)

// Publish stores every finalized script in the embedded host and registers
// its name in the shared store. Sources are stored first so every hash a
// registry entry points at resolves the moment the entry appears; the
// entries themselves carry no ordering constraint and register concurrently.
func (e *Engine) Publish(ctx context.Context) error {
	if e.result == nil {
		return fmt.Errorf("no linked scripts; run link first")
	}

	for _, s := range e.result.Scripts {
		if _, err := e.host.Put(s.Name, s.Transformed); err != nil {
			return fmt.Errorf("failed to store %s: %w", s.Name, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range e.result.Scripts {
		g.Go(func() error {
			if err := e.registry.Register(gctx, s.Name, s.Hash); err != nil {
				return fmt.Errorf("failed to register %s: %w", s.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Retire entries for scripts whose files vanished, unless the name came
	// back under a new file. A leftover entry is not a correctness problem
	// (linking never reads the registry), so a failure here does not fail
	// the publish.
	for _, name := range e.deletedNames {
		if _, live := e.result.ByName[name]; live {
			continue
		}
		if err := e.registry.Unregister(ctx, name); err != nil {
			e.logger.Warn("failed to unregister deleted script",
				"script", name, "error", err)
		}
	}
	e.deletedNames = nil

	e.logger.Info("published scripts",
		"count", len(e.result.Scripts),
		"registry_key", e.registry.Key())
	return nil
}

// Invoke resolves a published name and executes it in the embedded host.
func (e *Engine) Invoke(ctx context.Context, name string, keys, args []string) (any, error) {
	return e.host.InvokeName(ctx, name, keys, args)
}

// BuildResult aggregates the outcome of a full pipeline pass.
type BuildResult struct {
	Discovery *DiscoveryResult
	Stats     linker.Stats
	Exported  int
}

// Build runs the full pipeline: discover, link, publish, and, when an
// output directory is configured, export the transformed sources.
func (e *Engine) Build(ctx context.Context, opts DiscoveryOptions) (*BuildResult, error) {
	disc, err := e.Discover(opts)
	if err != nil {
		return nil, err
	}

	res, err := e.Link(ctx)
	if err != nil {
		return &BuildResult{Discovery: disc}, err
	}

	if err := e.Publish(ctx); err != nil {
		return &BuildResult{Discovery: disc, Stats: res.Stats}, err
	}

	out := &BuildResult{Discovery: disc, Stats: res.Stats}
	if e.outDir != "" {
		n, err := e.ExportTransformed(e.outDir)
		if err != nil {
			return out, err
		}
		out.Exported = n
	}
	return out, nil
}

// ExportTransformed writes the transformed source of every linked script
// under dir, one file per script, dotted name segments as directories.
func (e *Engine) ExportTransformed(dir string) (int, error) {
	if e.result == nil {
		return 0, fmt.Errorf("no linked scripts; run link first")
	}

	n := 0
	for _, s := range e.result.Scripts {
		rel := strings.ReplaceAll(s.Name, ".", string(filepath.Separator)) + parser.Ext
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return n, fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(s.Transformed), 0o644); err != nil { //nolint:gosec // G306: transformed sources are not secrets
			return n, fmt.Errorf("failed to write %s: %w", path, err)
		}
		n++
	}

	e.logger.Info("exported transformed sources", "dir", dir, "count", n)
	return n, nil
}
