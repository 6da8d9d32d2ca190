package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/weftlabs/weft/internal/rewrite"
	"github.com/weftlabs/weft/internal/script"
)

// Stats summarizes one link pass.
type Stats struct {
	Scripts       int
	Components    int
	StaticCalls   int
	DynamicCalls  int
	CyclicScripts int
}

// Result is the outcome of linking one batch. Scripts are the input structs,
// finalized in place; Graph and Cond describe the call structure for
// inspection surfaces.
type Result struct {
	Scripts []*script.Script
	ByName  map[string]*script.Script
	Graph   *Graph
	Cond    *Condensation
	Stats   Stats
}

// Link classifies every call site and rewrites every script exactly once,
// callees first. Cross-component calls are hash-bound; calls inside a cyclic
// component stay dynamic forever, so member hashes are well defined. One
// unknown target rejects the whole batch before anything is rewritten. The
// registry is never consulted.
func Link(ctx context.Context, scripts []*script.Script, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	known := make(map[string]bool, len(scripts))
	byName := make(map[string]*script.Script, len(scripts))
	for _, s := range scripts {
		if byName[s.Name] != nil {
			return nil, fmt.Errorf("duplicate script name %q", s.Name)
		}
		known[s.Name] = true
		byName[s.Name] = s
	}

	// Validate targets up front; nothing is rewritten for a batch with a
	// dangling call.
	var unknown []error
	for _, s := range scripts {
		for i := range s.CallSites {
			cs := &s.CallSites[i]
			if !known[cs.Target] {
				unknown = append(unknown, &script.UnknownTargetError{
					Script: s.Name,
					Target: cs.Target,
					Line:   cs.Span.Line,
					Column: cs.Span.Column,
				})
			}
		}
	}
	if len(unknown) > 0 {
		return nil, errors.Join(unknown...)
	}

	g := NewGraph()
	for _, s := range scripts {
		g.AddNode(s.Name)
	}
	for _, s := range scripts {
		for _, target := range s.Targets() {
			if err := g.AddEdge(s.Name, target); err != nil {
				return nil, err
			}
		}
	}

	cond := g.Condense()

	// A call inside one component participates in a cycle by definition and
	// must resolve through the registry at run time. Everything else binds
	// to the callee's final hash.
	for _, s := range scripts {
		for i := range s.CallSites {
			if cond.SameComponent(s.Name, s.CallSites[i].Target) {
				s.CallSites[i].Mode = script.ModeDynamic
			} else {
				s.CallSites[i].Mode = script.ModeStatic
			}
		}
	}

	hashes := make(map[string]string, len(scripts))
	resolve := func(target string) (string, error) {
		h, ok := hashes[target]
		if !ok {
			return "", fmt.Errorf("target %q is not finalized", target)
		}
		return h, nil
	}

	// Finalize level by level, sinks first. Components within one level
	// share no edges, so they link in parallel; their results merge before
	// the next level starts.
	for _, level := range cond.Levels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results := make([]map[string]string, len(level))
		var eg errgroup.Group
		for i, compID := range level {
			i, comp := i, cond.Components[compID]
			eg.Go(func() error {
				out := make(map[string]string, len(comp.Members))
				for _, name := range comp.Members {
					s := byName[name]
					transformed, err := rewrite.Transform(rewrite.Input{
						Name:    s.Name,
						Raw:     s.RawSource,
						Sites:   s.CallSites,
						Idents:  s.IdentRefs,
						Known:   known,
						Resolve: resolve,
					})
					if err != nil {
						return err
					}
					s.Transformed = transformed
					s.Hash = script.HashSource(transformed)
					s.Finalized = true
					out[name] = s.Hash
				}
				logger.Debug("linked component",
					slog.Int("component", comp.ID),
					slog.Bool("cyclic", comp.Cyclic),
					slog.Any("members", comp.Members))
				results[i] = out
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
		for _, r := range results {
			for name, h := range r {
				hashes[name] = h
			}
		}
	}

	res := &Result{
		Scripts: scripts,
		ByName:  byName,
		Graph:   g,
		Cond:    cond,
		Stats:   Stats{Scripts: len(scripts), Components: len(cond.Components)},
	}
	for _, s := range scripts {
		if cond.Cyclic(s.Name) {
			res.Stats.CyclicScripts++
		}
		for i := range s.CallSites {
			if s.CallSites[i].Mode == script.ModeStatic {
				res.Stats.StaticCalls++
			} else {
				res.Stats.DynamicCalls++
			}
		}
	}
	return res, nil
}
