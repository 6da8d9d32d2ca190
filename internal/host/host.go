// Package host embeds the reference execution environment for transformed
// scripts. Scripts are stored content-addressed by the hash of their
// transformed source and invoked through the shared-list calling convention:
// callers push a frame onto the argument list, callees pop it in their
// generated preamble.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.starlark.net/starlark"

	"github.com/weftlabs/weft/internal/registry"
	"github.com/weftlabs/weft/internal/script"
)

// DefaultMaxDepth bounds cross-script call nesting. Cyclic script groups
// terminate on data, not structure, so a runaway chain must be cut off.
const DefaultMaxDepth = 64

// UnknownScriptError reports an invocation of a content hash that has no
// stored script.
type UnknownScriptError struct {
	Hash string
}

func (e *UnknownScriptError) Error() string {
	return fmt.Sprintf("no script stored for hash: %s", e.Hash)
}

// compiled is one stored script: its compiled program plus the hash-qualified
// symbols its source references, checked before execution so a missing static
// callee fails with a domain error instead of a resolver one.
type compiled struct {
	name    string
	source  string
	prog    *starlark.Program
	statics []string
}

// Host stores transformed scripts and executes them. Safe for concurrent use;
// each invocation gets its own argument lists and call-depth budget.
type Host struct {
	mu       sync.RWMutex
	programs map[string]*compiled
	registry *registry.Manager
	logger   *slog.Logger
	maxDepth int
}

// New creates a host backed by the given registry for dynamic dispatch.
// maxDepth <= 0 selects DefaultMaxDepth.
func New(reg *registry.Manager, maxDepth int, logger *slog.Logger) *Host {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Host{
		programs: make(map[string]*compiled),
		registry: reg,
		logger:   logger,
		maxDepth: maxDepth,
	}
}

// Put compiles a transformed source and stores it under its content hash.
// name is used for diagnostics only. Storing the same source twice is a
// no-op returning the same hash.
func (h *Host) Put(name, source string) (string, error) {
	hash := script.HashSource(source)

	h.mu.RLock()
	_, ok := h.programs[hash]
	h.mu.RUnlock()
	if ok {
		return hash, nil
	}

	_, prog, err := starlark.SourceProgramOptions(fileOptions, name, source, isPredeclared)
	if err != nil {
		return "", fmt.Errorf("failed to compile script %s: %w", name, err)
	}

	h.mu.Lock()
	h.programs[hash] = &compiled{
		name:    name,
		source:  source,
		prog:    prog,
		statics: staticSymbols(source),
	}
	h.mu.Unlock()

	h.logger.Debug("stored script",
		slog.String("name", name),
		slog.String("hash", shortHash(hash)))
	return hash, nil
}

// Has reports whether a script is stored under the given hash.
func (h *Host) Has(hash string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.programs[hash]
	return ok
}

// Len returns the number of stored scripts.
func (h *Host) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.programs)
}

// Source returns the stored transformed source for a hash.
func (h *Host) Source(hash string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.programs[hash]
	if !ok {
		return "", false
	}
	return p.source, true
}

// Invoke executes the script stored under hash with string key and argument
// lists and returns its result value converted to a Go value. String
// arguments never collide with the internal frame encoding; callers passing
// other value kinds must use InvokeValues and accept its caveat.
func (h *Host) Invoke(ctx context.Context, hash string, keys, args []string) (any, error) {
	return h.InvokeValues(ctx, hash, toAnySlice(keys), toAnySlice(args))
}

// InvokeName resolves a registry name to its current content hash and
// invokes it.
func (h *Host) InvokeName(ctx context.Context, name string, keys, args []string) (any, error) {
	hash, err := h.registry.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return h.Invoke(ctx, hash, keys, args)
}

// InvokeValues executes a stored script with arbitrary key and argument
// values. A trailing non-string argument is indistinguishable from a pushed
// call frame and will be consumed by the callee's preamble; this is part of
// the wire contract, not a defect of this host.
func (h *Host) InvokeValues(ctx context.Context, hash string, keys, args []any) (any, error) {
	keyVals, err := toStarlarkSlice(keys)
	if err != nil {
		return nil, fmt.Errorf("invalid keys: %w", err)
	}
	argVals, err := toStarlarkSlice(args)
	if err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}

	env := h.newEnv(ctx, keyVals, argVals)
	result, err := env.exec(hash)
	if err != nil {
		return nil, err
	}
	return toGo(result)
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
