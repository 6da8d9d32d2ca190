// Package engine orchestrates the toolchain end to end: it discovers script
// sources, links them into transformed form, and publishes the linked batch
// to the shared store and the embedded host.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/weftlabs/weft/internal/host"
	"github.com/weftlabs/weft/internal/kv"
	"github.com/weftlabs/weft/internal/linker"
	"github.com/weftlabs/weft/internal/registry"
	"github.com/weftlabs/weft/internal/script"
	"github.com/weftlabs/weft/internal/state"
)

// Engine ties the pipeline stages together over shared infrastructure.
type Engine struct {
	logger   *slog.Logger
	store    state.Store
	kvStore  kv.Store
	registry *registry.Manager
	host     *host.Host

	scriptsDir  string
	environment string
	outDir      string

	// scripts holds the outcome of the last Discover, result the outcome of
	// the last Link. discErrors carries the per-file failures of the last
	// Discover; a non-empty slice rejects the next Link. deletedNames holds
	// scripts whose files vanished since the previous run; their registry
	// entries are removed on the next successful Publish.
	scripts      map[string]*script.Script
	result       *linker.Result
	discErrors   []DiscoveryError
	deletedNames []string
}

// Config holds engine configuration.
type Config struct {
	// ScriptsDir is the path to the script source directory
	ScriptsDir string
	// StatePath is the path to the SQLite state database (":memory:" if empty)
	StatePath string
	// Environment is the current environment (dev, staging, prod)
	Environment string
	// OutDir receives transformed sources on Build when set
	OutDir string
	// Registry selects and configures the shared store backend
	Registry kv.Config
	// MaxDepth bounds cross-script call nesting in the embedded host
	MaxDepth int
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates an engine: it opens the state store, runs its migrations, and
// connects the shared registry store.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initializing engine",
		"scripts_dir", cfg.ScriptsDir,
		"environment", cfg.Environment)

	statePath := cfg.StatePath
	if statePath == "" {
		statePath = ":memory:"
	}

	store := state.NewSQLiteStore()
	if err := store.Open(statePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate state store: %w", err)
	}

	regCfg := cfg.Registry
	if regCfg.Backend == "" {
		regCfg.Backend = "memory"
	}
	kvStore, err := kv.Open(regCfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open registry store: %w", err)
	}

	env := cfg.Environment
	if env == "" {
		env = "dev"
	}

	reg := registry.NewManager(kvStore, regCfg.Key, logger)

	return &Engine{
		logger:      logger,
		store:       store,
		kvStore:     kvStore,
		registry:    reg,
		host:        host.New(reg, cfg.MaxDepth, logger),
		scriptsDir:  cfg.ScriptsDir,
		environment: env,
		outDir:      cfg.OutDir,
		scripts:     make(map[string]*script.Script),
	}, nil
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if e.kvStore != nil {
		if err := e.kvStore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing engine: %v", errs)
	}
	return nil
}

// --- Getters (public accessors) ---

// Scripts returns the scripts of the last Discover, keyed by name.
func (e *Engine) Scripts() map[string]*script.Script {
	return e.scripts
}

// Result returns the outcome of the last Link, or nil before the first.
func (e *Engine) Result() *linker.Result {
	return e.result
}

// Host returns the embedded execution host.
func (e *Engine) Host() *host.Host {
	return e.host
}

// Registry returns the registry manager.
func (e *Engine) Registry() *registry.Manager {
	return e.registry
}

// StateStore returns the state store.
func (e *Engine) StateStore() state.Store {
	return e.store
}

// Environment returns the configured environment name.
func (e *Engine) Environment() string {
	return e.environment
}
