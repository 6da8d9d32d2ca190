package lsp

import (
	"encoding/json"
	"sync"
)

// targetFix is a stored rename for an unresolved call target.
type targetFix struct {
	Range   Range
	NewText string
	Title   string
}

// fixCache keeps the fixes behind published diagnostics, keyed by URI. It is
// rebuilt on every analysis pass so entries never outlive their diagnostics.
type fixCache struct {
	mu    sync.RWMutex
	fixes map[string][]targetFix
}

func newFixCache() *fixCache {
	return &fixCache{fixes: make(map[string][]targetFix)}
}

// add stores a fix for a URI.
func (c *fixCache) add(uri string, fix targetFix) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fixes[uri] = append(c.fixes[uri], fix)
}

// get retrieves the fixes for a URI.
func (c *fixCache) get(uri string) []targetFix {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.fixes[uri]
}

// clear removes all cached fixes for a URI.
func (c *fixCache) clear(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.fixes, uri)
}

// handleCodeAction handles the textDocument/codeAction request.
func (s *Server) handleCodeAction(msg *JSONRPCMessage) error {
	var params CodeActionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.sendResponse(msg.ID, nil, &JSONRPCError{Code: -32602, Message: err.Error()})
		return err
	}

	actions := s.getCodeActions(params)
	s.sendResponse(msg.ID, actions, nil)
	return nil
}

// getCodeActions offers the cached target renames for the diagnostics the
// client is asking about. Fixes are matched to diagnostics by range.
func (s *Server) getCodeActions(params CodeActionParams) []CodeAction {
	fixes := s.fixes.get(params.TextDocument.URI)
	if len(fixes) == 0 {
		return nil
	}

	var actions []CodeAction
	for _, diag := range params.Context.Diagnostics {
		if diag.Code != codeUnknownTarget {
			continue
		}
		for _, fix := range fixes {
			if fix.Range != diag.Range {
				continue
			}
			actions = append(actions, CodeAction{
				Title:       fix.Title,
				Kind:        CodeActionKindQuickFix,
				Diagnostics: []Diagnostic{diag},
				IsPreferred: true,
				Edit: &WorkspaceEdit{
					Changes: map[string][]TextEdit{
						params.TextDocument.URI: {{Range: fix.Range, NewText: fix.NewText}},
					},
				},
			})
		}
	}
	return actions
}
