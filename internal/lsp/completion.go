package lsp

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/weftlabs/weft/internal/parser"
	"github.com/weftlabs/weft/internal/script"
)

// hostGlobals are the identifiers the embedded host predeclares for every
// script, offered at the top level with documentation.
var hostGlobals = []CompletionItem{
	{
		Label:         script.ImplicitKeys,
		Kind:          CompletionItemKindVariable,
		Detail:        "list",
		Documentation: "Key list of the current invocation. Linking rewrites references to the per-call value derived in the preamble.",
	},
	{
		Label:         script.ImplicitArgs,
		Kind:          CompletionItemKindVariable,
		Detail:        "list",
		Documentation: "Argument list of the current invocation. Linking rewrites references to the per-call value derived in the preamble.",
	},
	{
		Label:         script.ResultGlobal,
		Kind:          CompletionItemKindVariable,
		Detail:        "any",
		Documentation: "Assign the script's result to this global. The caller receives its value.",
	},
}

// getCompletions returns completion items for the given position. After
// "call." it offers every known script name; elsewhere it offers the host
// globals.
func (s *Server) getCompletions(params CompletionParams) []CompletionItem {
	doc := s.documents.Get(params.TextDocument.URI)
	if doc == nil {
		return nil
	}

	prefix, inCall := callPrefixAt(doc, params.Position)
	if inCall {
		return s.targetCompletions(prefix)
	}
	return hostGlobalCompletions(prefix)
}

// callPrefixAt inspects the text before the cursor. Inside a call target
// (after "call.") it returns the partial dotted name typed so far and true;
// otherwise it returns the current identifier prefix and false.
func callPrefixAt(doc *Document, pos Position) (string, bool) {
	before := doc.GetTextBefore(pos)

	start := len(before)
	for start > 0 && (isWordChar(before[start-1]) || before[start-1] == '.') {
		start--
	}
	run := before[start:]

	// The run reaches back through dots, so attribute access like
	// `rows.call.` keeps its receiver and fails the cut below. The
	// extractor skips those markers the same way.
	if rest, ok := strings.CutPrefix(run, script.DispatchKeyword+"."); ok {
		return rest, true
	}
	return run, false
}

// targetCompletions lists known script names matching the partial dotted
// prefix. Once the prefix crosses a dot boundary the insert text is the
// remainder, so accepting an item never duplicates typed segments.
func (s *Server) targetCompletions(prefix string) []CompletionItem {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	names := make([]string, 0, len(s.scriptPaths)+len(s.scriptRecs))
	seen := make(map[string]bool, len(s.scriptPaths))
	for name := range s.scriptPaths {
		names = append(names, name)
		seen[name] = true
	}
	for name := range s.scriptRecs {
		if !seen[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	lastDot := strings.LastIndex(prefix, ".")

	var items []CompletionItem
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		item := CompletionItem{
			Label:      name,
			Kind:       CompletionItemKindFunction,
			FilterText: name,
		}
		if lastDot >= 0 {
			item.InsertText = name[lastDot+1:]
		}
		if rec := s.scriptRecs[name]; rec != nil && rec.Description != "" {
			item.Detail = rec.Description
		} else if path := s.scriptPaths[name]; path != "" {
			item.Detail = path
		}
		items = append(items, item)
	}
	return items
}

// hostGlobalCompletions filters the predeclared identifiers by prefix.
func hostGlobalCompletions(prefix string) []CompletionItem {
	var items []CompletionItem
	for _, g := range hostGlobals {
		if strings.HasPrefix(g.Label, prefix) {
			items = append(items, g)
		}
	}
	return items
}

// getHover resolves the call target or host global under the cursor.
func (s *Server) getHover(params HoverParams) *Hover {
	doc := s.documents.Get(params.TextDocument.URI)
	if doc == nil {
		return nil
	}

	if site := s.siteAt(doc, params.Position); site != nil {
		return s.targetHover(site.Target)
	}

	word, _ := doc.GetWordAtPosition(params.Position)
	for _, g := range hostGlobals {
		if g.Label == word {
			return &Hover{
				Contents: MarkupContent{
					Kind:  MarkupKindMarkdown,
					Value: fmt.Sprintf("**%s** (%s)\n\n%s", g.Label, g.Detail, g.Documentation),
				},
			}
		}
	}

	return nil
}

// targetHover renders what is known about a call target: its file, metadata
// from the last discovery, and link status.
func (s *Server) targetHover(name string) *Hover {
	path, rec := s.lookupScript(name)
	if path == "" && rec == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**", name)
	if rec != nil && rec.Description != "" {
		b.WriteString("\n\n" + rec.Description)
	}
	if path != "" {
		fmt.Fprintf(&b, "\n\n`%s`", path)
	}
	if rec != nil {
		if rec.Cyclic {
			b.WriteString("\n\nPart of a call cycle; calls to it dispatch through the registry.")
		}
		if rec.LinkedHash != "" {
			fmt.Fprintf(&b, "\n\nLinked as `%s`.", shortHash(rec.LinkedHash))
		} else {
			b.WriteString("\n\nNot yet linked.")
		}
	}

	return &Hover{
		Contents: MarkupContent{
			Kind:  MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// getDefinition jumps from a call target to the script file that defines it.
func (s *Server) getDefinition(params DefinitionParams) *Location {
	doc := s.documents.Get(params.TextDocument.URI)
	if doc == nil {
		return nil
	}

	site := s.siteAt(doc, params.Position)
	if site == nil {
		return nil
	}

	path, _ := s.lookupScript(site.Target)
	if path == "" {
		return nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.projectRoot, path)
	}

	return &Location{URI: PathToURI(path)}
}

// siteAt returns the call site whose marker head (the keyword and target,
// before the argument lists) contains the cursor. Heads never nest, so at
// most one site matches.
func (s *Server) siteAt(doc *Document, pos Position) *script.CallSite {
	ex, err := parser.Extract(s.documentName(doc), doc.Content)
	if err != nil {
		return nil
	}

	offset := doc.PositionToOffset(pos)
	for i := range ex.Sites {
		site := &ex.Sites[i]
		if offset >= site.Span.Start && offset < site.KeysSpan.Start {
			return site
		}
	}
	return nil
}

// shortHash trims a content hash for hover display.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
