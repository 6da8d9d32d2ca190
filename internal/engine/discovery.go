package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/weftlabs/weft/internal/parser"
	"github.com/weftlabs/weft/internal/script"
	"github.com/weftlabs/weft/internal/state"
)

// DiscoveryOptions configures the discovery process.
type DiscoveryOptions struct {
	ForceFullRefresh bool   // Ignore content hashes, treat everything as changed
	ScriptsDir       string // Override the configured scripts directory
}

// DiscoveryResult contains statistics about the discovery run.
type DiscoveryResult struct {
	ScriptsTotal   int
	ScriptsChanged int
	ScriptsSkipped int
	ScriptsDeleted int

	// Errors (non-fatal, per file)
	Errors []DiscoveryError

	Duration time.Duration
}

// DiscoveryError represents a non-fatal error during discovery. A file that
// produces one is left out of the discovered set.
type DiscoveryError struct {
	Path    string
	Type    string // "read", "frontmatter", "name", "extract", "save"
	Message string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Type, e.Message)
}

// HasErrors returns true if any errors occurred.
func (r *DiscoveryResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Summary returns a human-readable summary.
func (r *DiscoveryResult) Summary() string {
	return fmt.Sprintf(
		"Scripts: %d total (%d changed, %d skipped, %d deleted, %d errors) | Duration: %s",
		r.ScriptsTotal, r.ScriptsChanged, r.ScriptsSkipped, r.ScriptsDeleted,
		len(r.Errors), r.Duration.Round(time.Millisecond),
	)
}

// Discover walks the scripts directory, parses every script file, and
// records content hashes for change detection. Files that fail to parse are
// reported in the result and skipped so inspection commands keep working;
// the next Link refuses the batch while any such error stands. Discovery
// itself only fails on filesystem-level problems.
func (e *Engine) Discover(opts DiscoveryOptions) (*DiscoveryResult, error) {
	start := time.Now()
	result := &DiscoveryResult{}

	scriptsDir := e.scriptsDir
	if opts.ScriptsDir != "" {
		scriptsDir = opts.ScriptsDir
	}
	if scriptsDir == "" {
		return nil, fmt.Errorf("scripts directory not configured")
	}

	absDir, err := filepath.Abs(scriptsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scripts directory: %w", err)
	}

	e.logger.Info("starting discovery", "scripts_dir", absDir)

	// Clear in-memory state for a fresh build
	e.scripts = make(map[string]*script.Script)
	e.result = nil
	e.discErrors = nil

	// Track which files we've seen (for deletion detection)
	seenFiles := make(map[string]bool)

	err = filepath.Walk(absDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil || info.IsDir() || !strings.HasSuffix(info.Name(), parser.Ext) {
			return nil //nolint:nilerr // Skip directories and non-script files
		}

		absPath, _ := filepath.Abs(path)
		seenFiles[absPath] = true
		result.ScriptsTotal++

		s, derr := e.parseScriptFile(absDir, absPath)
		if derr != nil {
			e.logger.Debug("script rejected", "path", absPath, "error", derr.Message)
			result.Errors = append(result.Errors, *derr)
			return nil // Continue with other files (graceful degradation)
		}

		if prev, ok := e.scripts[s.Name]; ok {
			result.Errors = append(result.Errors, DiscoveryError{
				Path: absPath, Type: "name",
				Message: fmt.Sprintf("script name %q already defined by %s", s.Name, prev.FilePath),
			})
			return nil
		}
		e.scripts[s.Name] = s

		e.logger.Debug("parsed script",
			"path", absPath,
			"name", s.Name,
			"call_sites", len(s.CallSites))

		// Content-hash change tracking
		if !opts.ForceFullRefresh {
			existing, herr := e.store.GetContentHash(absPath)
			if herr == nil && existing == s.RawHash {
				result.ScriptsSkipped++
				return nil
			}
		}
		if serr := e.saveScriptToStore(s); serr != nil {
			result.Errors = append(result.Errors, DiscoveryError{
				Path: absPath, Type: "save", Message: serr.Error(),
			})
			return nil //nolint:nilerr // Continue with other files
		}
		result.ScriptsChanged++
		return nil
	})

	if err != nil {
		return result, fmt.Errorf("script discovery failed: %w", err)
	}

	// Remove state rows for files that no longer exist
	deleted := e.cleanupDeletedScripts(seenFiles)
	e.deletedNames = append(e.deletedNames, deleted...)
	result.ScriptsDeleted = len(deleted)

	result.Duration = time.Since(start)
	e.discErrors = result.Errors

	e.logger.Info("discovery completed",
		"scripts_total", result.ScriptsTotal,
		"scripts_changed", result.ScriptsChanged,
		"scripts_skipped", result.ScriptsSkipped,
		"errors", len(result.Errors),
		"duration_ms", result.Duration.Milliseconds())

	return result, nil
}

// parseScriptFile reads one script file and builds its in-memory unit:
// registry name, frontmatter, and extracted call sites.
func (e *Engine) parseScriptFile(absDir, absPath string) (*script.Script, *DiscoveryError) {
	content, err := os.ReadFile(absPath) //nolint:gosec // G304: absPath comes from filepath.Walk within the scripts directory
	if err != nil {
		return nil, &DiscoveryError{Path: absPath, Type: "read", Message: err.Error()}
	}
	raw := string(content)

	fm, err := parser.ExtractFrontmatter(raw)
	if err != nil {
		return nil, &DiscoveryError{Path: absPath, Type: "frontmatter", Message: err.Error()}
	}

	// The registry name comes from the path relative to the scripts root;
	// frontmatter may override it.
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		rel = filepath.Base(absPath)
	}
	name := fm.Meta.Name
	if name == "" {
		name, err = parser.NameFromPath(rel)
		if err != nil {
			return nil, &DiscoveryError{Path: absPath, Type: "name", Message: err.Error()}
		}
	}

	ex, err := parser.Extract(name, raw)
	if err != nil {
		return nil, &DiscoveryError{Path: absPath, Type: "extract", Message: err.Error()}
	}

	return &script.Script{
		Name:      name,
		FilePath:  absPath,
		RawSource: raw,
		RawHash:   script.HashSource(raw),
		Meta:      fm.Meta,
		CallSites: ex.Sites,
		IdentRefs: ex.Idents,
	}, nil
}

// saveScriptToStore persists the raw view of a changed script. The linked
// hash is left empty on purpose: a raw change invalidates the previous link
// until the next Link fills it again.
func (e *Engine) saveScriptToStore(s *script.Script) error {
	rec := &state.ScriptRecord{
		Name:        s.Name,
		FilePath:    s.FilePath,
		RawHash:     s.RawHash,
		Description: s.Meta.Description,
		Owner:       s.Meta.Owner,
	}
	if err := e.store.UpsertScript(rec); err != nil {
		return err
	}
	return e.store.SetContentHash(s.FilePath, s.RawHash, "script")
}

// cleanupDeletedScripts removes script entries for files that no longer
// exist and returns the affected names so Publish can retire their registry
// entries.
func (e *Engine) cleanupDeletedScripts(seenFiles map[string]bool) []string {
	recs, err := e.store.ListScripts()
	if err != nil {
		return nil
	}

	var deleted []string
	for _, rec := range recs {
		if !seenFiles[rec.FilePath] {
			_ = e.store.DeleteScript(rec.Name)
			_ = e.store.DeleteContentHash(rec.FilePath)
			deleted = append(deleted, rec.Name)
		}
	}

	return deleted
}
