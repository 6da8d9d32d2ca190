package lsp

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/weftlabs/weft/internal/parser"
	"github.com/weftlabs/weft/internal/script"
)

// Diagnostic codes published by the server.
const (
	codeFrontmatter   = "E001"
	codeCallSite      = "E002"
	codeUnknownTarget = "E003"
)

const diagnosticSource = "weft"

// publishDiagnostics analyzes the document and pushes the results to the
// client. Only script files are analyzed; other files get an empty set so
// stale squiggles clear.
func (s *Server) publishDiagnostics(uri string) {
	doc := s.documents.Get(uri)
	if doc == nil {
		return
	}

	var diagnostics []Diagnostic
	if strings.HasSuffix(uri, parser.Ext) {
		diagnostics = s.analyzeDocument(doc)
	}

	s.sendNotification("textDocument/publishDiagnostics", &PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// analyzeDocument runs the same checks a build would: frontmatter, call
// markers, and target resolution. Unknown targets carry a rename fix when a
// close name exists.
func (s *Server) analyzeDocument(doc *Document) []Diagnostic {
	var diagnostics []Diagnostic
	s.fixes.clear(doc.URI)

	name := s.documentName(doc)

	if _, err := parser.ExtractFrontmatter(doc.Content); err != nil {
		diagnostics = append(diagnostics, frontmatterDiagnostic(err))
	}

	ex, err := parser.Extract(name, doc.Content)
	if err != nil {
		// Extraction stops at the first malformed marker; the rest of the
		// document is unreliable past that point.
		return append(diagnostics, callSiteDiagnostic(err))
	}

	known := s.knownTargets()
	known[name] = true // a script may call itself before its first save

	for _, site := range ex.Sites {
		if known[site.Target] {
			continue
		}
		diagnostics = append(diagnostics, s.unknownTargetDiagnostic(doc, site, known))
	}

	return diagnostics
}

// documentName derives the dotted name the linker would assign this
// document: the frontmatter name when set, otherwise the path relative to
// the scripts tree.
func (s *Server) documentName(doc *Document) string {
	if fm, err := parser.ExtractFrontmatter(doc.Content); err == nil && fm.Found && fm.Meta.Name != "" {
		return fm.Meta.Name
	}

	path := URIToPath(doc.URI)
	rel, err := filepath.Rel(s.scriptsDir, path)
	if s.scriptsDir == "" || err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	if name, err := parser.NameFromPath(rel); err == nil {
		return name
	}
	return strings.TrimSuffix(filepath.Base(path), parser.Ext)
}

// frontmatterDiagnostic converts a frontmatter error to an LSP diagnostic.
func frontmatterDiagnostic(err error) Diagnostic {
	var pos Position

	var parseErr *parser.FrontmatterParseError
	if errors.As(err, &parseErr) && parseErr.Line > 0 {
		pos = Position{Line: uint32(parseErr.Line - 1)} //nolint:gosec // G115: line is positive here
	}

	return Diagnostic{
		Range: Range{
			Start: pos,
			End:   Position{Line: pos.Line, Character: 1000},
		},
		Severity: DiagnosticSeverityError,
		Code:     codeFrontmatter,
		Source:   diagnosticSource,
		Message:  err.Error(),
	}
}

// callSiteDiagnostic converts a marker parse error to an LSP diagnostic.
func callSiteDiagnostic(err error) Diagnostic {
	var mal *script.MalformedCallSiteError
	if errors.As(err, &mal) {
		start := Position{
			Line:      uint32(max(0, mal.Line-1)),   //nolint:gosec // G115: line is always non-negative
			Character: uint32(max(0, mal.Column-1)), //nolint:gosec // G115: column is always non-negative
		}
		return Diagnostic{
			Range: Range{
				Start: start,
				End:   Position{Line: start.Line, Character: start.Character + uint32(len(script.DispatchKeyword))},
			},
			Severity: DiagnosticSeverityError,
			Code:     codeCallSite,
			Source:   diagnosticSource,
			Message:  "malformed call site: " + mal.Reason,
		}
	}

	return Diagnostic{
		Range: Range{
			End: Position{Character: 10},
		},
		Severity: DiagnosticSeverityError,
		Code:     codeCallSite,
		Source:   diagnosticSource,
		Message:  err.Error(),
	}
}

// unknownTargetDiagnostic flags a call target the linker would reject and,
// when a similar name exists, caches a rename fix for codeAction.
func (s *Server) unknownTargetDiagnostic(doc *Document, site script.CallSite, known map[string]bool) Diagnostic {
	targetStart := site.Span.Start + len(script.DispatchKeyword) + 1
	r := Range{
		Start: doc.OffsetToPosition(targetStart),
		End:   doc.OffsetToPosition(targetStart + len(site.Target)),
	}

	msg := fmt.Sprintf("unknown call target %q", site.Target)

	candidates := make([]string, 0, len(known))
	for name := range known {
		candidates = append(candidates, name)
	}
	sort.Strings(candidates)

	if best := closestName(site.Target, candidates, 2); best != "" {
		msg += fmt.Sprintf(". Did you mean %q?", best)
		s.fixes.add(doc.URI, targetFix{
			Range:   r,
			NewText: best,
			Title:   fmt.Sprintf("Change target to %q", best),
		})
	}

	return Diagnostic{
		Range:    r,
		Severity: DiagnosticSeverityError,
		Code:     codeUnknownTarget,
		Source:   diagnosticSource,
		Message:  msg,
	}
}

// closestName returns the candidate within maxDistance edits of input,
// preferring the smallest distance and then lexical order. Exact matches are
// excluded; the caller already knows the input resolves nowhere.
func closestName(input string, candidates []string, maxDistance int) string {
	best := ""
	bestDist := maxDistance + 1

	inputLower := strings.ToLower(input)
	for _, candidate := range candidates {
		dist := levenshtein(inputLower, strings.ToLower(candidate))
		if dist == 0 {
			continue
		}
		if dist < bestDist || (dist == bestDist && (best == "" || candidate < best)) {
			best = candidate
			bestDist = dist
		}
	}

	return best
}

// levenshtein calculates the Levenshtein distance between two strings.
func levenshtein(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(s1)][len(s2)]
}
