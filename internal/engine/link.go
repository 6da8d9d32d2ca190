package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/weftlabs/weft/internal/linker"
	"github.com/weftlabs/weft/internal/script"
	"github.com/weftlabs/weft/internal/state"
)

// Link runs the linker over the scripts of the last Discover and persists
// the outcome: script rows, call rows, and a link run record. A failed link
// leaves no script finalized and records the failure.
//
// A discovery pass that reported errors rejects the whole batch: a file that
// failed to parse could be a call target or a name collision, so nothing
// from the batch may reach the registry.
func (e *Engine) Link(ctx context.Context) (*linker.Result, error) {
	if len(e.discErrors) > 0 {
		errs := make([]error, 0, len(e.discErrors))
		for i := range e.discErrors {
			errs = append(errs, &e.discErrors[i])
		}
		err := fmt.Errorf("batch rejected, %d script(s) failed discovery: %w",
			len(e.discErrors), errors.Join(errs...))
		if run, rerr := e.store.CreateLinkRun(e.environment); rerr == nil {
			e.failRun(run.ID, err)
		}
		return nil, err
	}
	if len(e.scripts) == 0 {
		return nil, fmt.Errorf("no scripts discovered; run discovery first")
	}

	run, err := e.store.CreateLinkRun(e.environment)
	if err != nil {
		return nil, fmt.Errorf("failed to create link run: %w", err)
	}

	scripts := make([]*script.Script, 0, len(e.scripts))
	for _, s := range e.scripts {
		scripts = append(scripts, s)
	}
	// The outcome is order-independent; sorting keeps logs and persistence
	// order stable.
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Name < scripts[j].Name })

	res, err := linker.Link(ctx, scripts, e.logger)
	if err != nil {
		e.failRun(run.ID, err)
		return nil, err
	}

	for _, s := range res.Scripts {
		rec := &state.ScriptRecord{
			Name:        s.Name,
			FilePath:    s.FilePath,
			RawHash:     s.RawHash,
			LinkedHash:  s.Hash,
			Description: s.Meta.Description,
			Owner:       s.Meta.Owner,
			Cyclic:      res.Cond.Cyclic(s.Name),
		}
		if err := e.store.UpsertScript(rec); err != nil {
			e.failRun(run.ID, err)
			return nil, fmt.Errorf("failed to persist script %s: %w", s.Name, err)
		}

		calls := make([]state.CallRecord, len(s.CallSites))
		for i, cs := range s.CallSites {
			calls[i] = state.CallRecord{
				ScriptName: s.Name,
				Ordinal:    i,
				Target:     cs.Target,
				Mode:       cs.Mode,
			}
		}
		if err := e.store.ReplaceCalls(s.Name, calls); err != nil {
			e.failRun(run.ID, err)
			return nil, fmt.Errorf("failed to persist calls of %s: %w", s.Name, err)
		}
	}

	stats := state.RunStats{
		ScriptsTotal:  res.Stats.Scripts,
		StaticCalls:   res.Stats.StaticCalls,
		DynamicCalls:  res.Stats.DynamicCalls,
		CyclicScripts: res.Stats.CyclicScripts,
	}
	if err := e.store.CompleteLinkRun(run.ID, state.RunStatusCompleted, "", stats); err != nil {
		return nil, fmt.Errorf("failed to complete link run: %w", err)
	}

	e.result = res

	e.logger.Info("link completed",
		"run_id", run.ID,
		"scripts", res.Stats.Scripts,
		"components", res.Stats.Components,
		"static_calls", res.Stats.StaticCalls,
		"dynamic_calls", res.Stats.DynamicCalls,
		"cyclic_scripts", res.Stats.CyclicScripts)

	return res, nil
}

// failRun records a failed link run; the original error takes precedence
// over bookkeeping problems.
func (e *Engine) failRun(runID string, cause error) {
	if err := e.store.CompleteLinkRun(runID, state.RunStatusFailed, cause.Error(), state.RunStats{}); err != nil {
		e.logger.Warn("failed to record link failure", "run_id", runID, "error", err)
	}
}
