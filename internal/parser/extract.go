package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/weftlabs/weft/internal/script"
)

// Extraction is the lexical analysis of one script source: every call marker
// in document order (nested markers included) and every raw implicit-argument
// identifier reference outside the generated preamble.
type Extraction struct {
	Sites  []script.CallSite
	Idents []script.IdentRef
}

// HasCalls reports whether any call marker was found.
func (e *Extraction) HasCalls() bool {
	return len(e.Sites) > 0
}

// Extract scans src for call markers and implicit-argument references. name
// is used in error positions only. A marker that begins with the dispatch
// keyword followed by a dot is committed: any parse failure after that point
// is a MalformedCallSiteError, which rejects the whole script. Unterminated
// literals outside a marker are left for the host to reject.
func Extract(name, src string) (*Extraction, error) {
	e := &extractor{
		s:    newScanner(src),
		name: name,
		src:  src,
	}
	if err := e.run(); err != nil {
		return nil, err
	}
	sort.Slice(e.sites, func(i, j int) bool {
		return e.sites[i].Span.Start < e.sites[j].Span.Start
	})
	return &Extraction{Sites: e.sites, Idents: e.idents}, nil
}

type extractor struct {
	s      *scanner
	name   string
	src    string
	sites  []script.CallSite
	idents []script.IdentRef
	prev   byte // last significant byte, 0 at start of input
}

func (e *extractor) run() error {
	for e.s.ch != 0 {
		switch {
		case e.s.ch == ' ' || e.s.ch == '\t' || e.s.ch == '\n' || e.s.ch == '\r':
			e.s.readChar()
		case e.s.ch == '#':
			comment := strings.TrimRight(e.s.lineComment(), " \t\r")
			if strings.TrimSpace(comment) == script.PreambleStartMarker {
				e.skipPreamble()
			}
		case e.s.ch == '"' || e.s.ch == '\'':
			e.s.skipString()
			e.prev = '"'
		case isIdentStart(e.s.ch):
			if err := e.ident(); err != nil {
				return err
			}
		default:
			e.prev = e.s.ch
			e.s.readChar()
		}
	}
	return nil
}

// ident handles an identifier at the cursor: a call marker, an implicit
// argument reference, or anything else.
func (e *extractor) ident() error {
	start := e.s.currentPos()
	word := e.s.readIdentifier()
	prev := e.prev
	e.prev = word[len(word)-1]

	if prev == '.' {
		// Attribute access, never a marker or an implicit reference.
		return nil
	}
	if word == script.DispatchKeyword && e.s.ch == '.' {
		return e.marker(start)
	}
	if word == script.ImplicitKeys || word == script.ImplicitArgs {
		e.idents = append(e.idents, script.IdentRef{
			Span: script.Span{Start: start.Start, End: e.s.pos, Line: start.Line, Column: start.Column},
			Name: word,
		})
	}
	return nil
}

// marker parses a committed call marker. The cursor sits on the dot after
// the dispatch keyword; start is the keyword's position.
func (e *extractor) marker(start script.Span) error {
	e.s.readChar() // consume '.'
	var segs []string
	for {
		if !isIdentStart(e.s.ch) {
			return e.malformed(start, "expected identifier segment in call target")
		}
		segs = append(segs, e.s.readIdentifier())
		if e.s.ch == '.' {
			e.s.readChar()
			continue
		}
		break
	}
	target := strings.Join(segs, ".")
	if err := script.ValidateName(target); err != nil {
		return e.malformed(start, fmt.Sprintf("invalid call target %q", target))
	}

	for e.s.ch == ' ' || e.s.ch == '\t' {
		e.s.readChar()
	}
	if e.s.ch != '(' {
		return e.malformed(start, fmt.Sprintf("expected '(' after call target %q", target))
	}
	e.s.readChar() // consume '('
	e.prev = '('

	items, err := e.captureArgs(start)
	if err != nil {
		return err
	}
	if len(items) != 2 {
		return e.malformed(start, fmt.Sprintf("call marker takes exactly two argument lists, got %d", len(items)))
	}

	end := e.s.pos // just past the closing ')'
	e.sites = append(e.sites, script.CallSite{
		Span:     script.Span{Start: start.Start, End: end, Line: start.Line, Column: start.Column},
		Target:   target,
		KeysSpan: items[0],
		ArgsSpan: items[1],
		KeysExpr: e.src[items[0].Start:items[0].End],
		ArgsExpr: e.src[items[1].Start:items[1].End],
	})
	return nil
}

// captureArgs consumes the argument list of a marker up to its closing
// parenthesis, which it also consumes. It returns the trimmed spans of the
// top-level comma-separated items. Nested markers and implicit references
// inside the arguments are recorded as they are encountered.
func (e *extractor) captureArgs(start script.Span) ([]script.Span, error) {
	closers := []byte{')'}
	var items []script.Span
	item := script.Span{Start: -1}

	flush := func() error {
		if item.Start < 0 {
			return e.malformed(start, "empty argument in call marker")
		}
		items = append(items, item)
		item = script.Span{Start: -1}
		return nil
	}
	mark := func(endPos int) {
		if item.Start < 0 {
			p := e.s.currentPos()
			item = script.Span{Start: p.Start, Line: p.Line, Column: p.Column}
		}
		item.End = endPos
	}

	for {
		switch {
		case e.s.ch == 0:
			return nil, e.malformed(start, "unbalanced brackets in call arguments")
		case e.s.ch == ' ' || e.s.ch == '\t' || e.s.ch == '\n' || e.s.ch == '\r':
			e.s.readChar()
		case e.s.ch == '#':
			e.s.skipLineComment()
		case e.s.ch == '"' || e.s.ch == '\'':
			mark(0)
			if !e.s.skipString() {
				return nil, e.malformed(start, "unterminated string in call arguments")
			}
			item.End = e.s.pos
			e.prev = '"'
		case e.s.ch == '(' || e.s.ch == '[' || e.s.ch == '{':
			mark(e.s.pos + 1)
			closers = append(closers, closerFor(e.s.ch))
			e.prev = e.s.ch
			e.s.readChar()
		case e.s.ch == ')' || e.s.ch == ']' || e.s.ch == '}':
			if e.s.ch != closers[len(closers)-1] {
				return nil, e.malformed(start, fmt.Sprintf("mismatched %q in call arguments", string(e.s.ch)))
			}
			closers = closers[:len(closers)-1]
			if len(closers) == 0 {
				// The marker's own closing parenthesis.
				e.prev = ')'
				e.s.readChar()
				if item.Start < 0 && len(items) == 0 {
					return items, nil // no arguments at all; arity check reports it
				}
				if err := flush(); err != nil {
					return nil, err
				}
				return items, nil
			}
			mark(e.s.pos + 1)
			e.prev = e.s.ch
			e.s.readChar()
		case e.s.ch == ',' && len(closers) == 1:
			e.prev = ','
			e.s.readChar()
			if err := flush(); err != nil {
				return nil, err
			}
		case isIdentStart(e.s.ch):
			mark(0)
			if err := e.ident(); err != nil {
				return nil, err
			}
			item.End = e.s.pos
		default:
			mark(e.s.pos + 1)
			e.prev = e.s.ch
			e.s.readChar()
		}
	}
}

func closerFor(open byte) byte {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	default:
		return '}'
	}
}

// skipPreamble advances past the generated preamble fence. The cursor sits
// at the end of the start-marker comment.
func (e *extractor) skipPreamble() {
	for e.s.ch != 0 {
		if e.s.ch == '\n' {
			e.s.readChar()
		}
		start := e.s.pos
		for e.s.ch != '\n' && e.s.ch != 0 {
			e.s.readChar()
		}
		if strings.TrimSpace(e.s.input[start:e.s.pos]) == script.PreambleEndMarker {
			return
		}
	}
}

func (e *extractor) malformed(start script.Span, reason string) error {
	return &script.MalformedCallSiteError{
		Script: e.name,
		Line:   start.Line,
		Column: start.Column,
		Reason: reason,
	}
}
