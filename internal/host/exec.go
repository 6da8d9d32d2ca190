package host

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/weftlabs/weft/internal/script"
)

// fileOptions enables the dialect features transformed sources rely on:
// top-level control flow and global reassignment for the preamble, loops and
// recursion for script bodies.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// isPredeclared admits the calling-convention names at compile time. The
// hash-qualified symbols are matched by prefix so a program can be compiled
// before its static callees are stored.
func isPredeclared(name string) bool {
	switch name {
	case script.ImplicitKeys, script.ImplicitArgs, script.RegistryGetBuiltin, script.ScriptBuiltin:
		return true
	}
	return strings.HasPrefix(name, script.SymbolPrefix)
}

var staticSymbolPattern = regexp.MustCompile(script.SymbolPrefix + `[0-9a-f]{64}`)

// staticSymbols extracts the distinct hash-qualified symbols a transformed
// source references.
func staticSymbols(source string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, sym := range staticSymbolPattern.FindAllString(source, -1) {
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	return out
}

// execEnv is the state of one top-level invocation: the shared key and
// argument lists every script in the call chain sees, the predeclared
// environment built over them, and the remaining call-depth budget.
//
// The argument list must stay mutable across the whole chain, so scripts are
// executed through Program.Init, which does not freeze the module globals the
// way ExecFile does.
type execEnv struct {
	ctx         context.Context
	host        *Host
	predeclared starlark.StringDict
	depth       int
}

func (h *Host) newEnv(ctx context.Context, keys, args []starlark.Value) *execEnv {
	env := &execEnv{ctx: ctx, host: h}

	predeclared := starlark.StringDict{
		script.ImplicitKeys: starlark.NewList(keys),
		script.ImplicitArgs: starlark.NewList(args),
	}
	predeclared[script.RegistryGetBuiltin] = starlark.NewBuiltin(script.RegistryGetBuiltin, env.registryGet)
	predeclared[script.ScriptBuiltin] = starlark.NewBuiltin(script.ScriptBuiltin, env.scriptLookup)

	h.mu.RLock()
	for hash := range h.programs {
		predeclared[script.Symbol(hash)] = env.callable(hash)
	}
	h.mu.RUnlock()

	env.predeclared = predeclared
	return env
}

// registryGet resolves a script name to its current content hash through the
// shared registry. Dynamic dispatch sites call it at run time.
func (env *execEnv) registryGet(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	hash, err := env.host.registry.Lookup(env.ctx, name)
	if err != nil {
		return nil, err
	}
	return starlark.String(hash), nil
}

// scriptLookup returns a callable for the script stored under a content hash.
func (env *execEnv) scriptLookup(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var hash string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &hash); err != nil {
		return nil, err
	}
	return env.callable(hash), nil
}

// callable wraps a stored script as a zero-argument builtin. Arguments travel
// through the shared lists, not the call itself.
func (env *execEnv) callable(hash string) *starlark.Builtin {
	return starlark.NewBuiltin(script.Symbol(hash), func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}
		return env.exec(hash)
	})
}

// exec runs one stored script to completion and returns its result global,
// or None if the script does not set one.
func (env *execEnv) exec(hash string) (starlark.Value, error) {
	if err := env.ctx.Err(); err != nil {
		return nil, err
	}

	env.host.mu.RLock()
	p, ok := env.host.programs[hash]
	env.host.mu.RUnlock()
	if !ok {
		return nil, &UnknownScriptError{Hash: hash}
	}

	for _, sym := range p.statics {
		if _, ok := env.predeclared[sym]; !ok {
			return nil, &UnknownScriptError{Hash: strings.TrimPrefix(sym, script.SymbolPrefix)}
		}
	}

	if env.depth >= env.host.maxDepth {
		return nil, fmt.Errorf("call depth exceeded %d frames invoking %s", env.host.maxDepth, p.name)
	}
	env.depth++
	defer func() { env.depth-- }()

	thread := &starlark.Thread{
		Name: p.name,
		Print: func(_ *starlark.Thread, msg string) {
			env.host.logger.Debug("script print",
				slog.String("script", p.name),
				slog.String("msg", msg))
		},
	}

	globals, err := p.prog.Init(thread, env.predeclared)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", p.name, err)
	}

	result, ok := globals[script.ResultGlobal]
	if !ok {
		return starlark.None, nil
	}
	return result, nil
}
