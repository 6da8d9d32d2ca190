// Package parser extracts call markers, implicit-argument references, and
// frontmatter metadata from raw script source. Extraction is purely lexical:
// argument expressions are captured by bracket balance and never evaluated.
package parser

import "github.com/weftlabs/weft/internal/script"

// scanner walks script source byte by byte, tracking line and column.
type scanner struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
	col     int  // current column number (1-based)
}

func newScanner(input string) *scanner {
	s := &scanner{
		input: input,
		line:  1,
		col:   0,
	}
	s.readChar()
	return s
}

// readChar advances to the next character.
func (s *scanner) readChar() {
	if s.readPos >= len(s.input) {
		s.ch = 0 // ASCII NUL = EOF
	} else {
		s.ch = s.input[s.readPos]
	}
	s.pos = s.readPos
	s.readPos++

	if s.ch == '\n' {
		s.line++
		s.col = 0
	} else {
		s.col++
	}
}

// peekChar returns the next character without advancing.
func (s *scanner) peekChar() byte {
	if s.readPos >= len(s.input) {
		return 0
	}
	return s.input[s.readPos]
}

// currentPos returns the current position as a span start.
func (s *scanner) currentPos() script.Span {
	return script.Span{
		Start:  s.pos,
		End:    s.pos,
		Line:   s.line,
		Column: s.col,
	}
}

// skipLineComment consumes a # comment up to but not including the newline.
func (s *scanner) skipLineComment() {
	for s.ch != '\n' && s.ch != 0 {
		s.readChar()
	}
}

// lineComment returns the text of the # comment at the cursor, then skips it.
func (s *scanner) lineComment() string {
	start := s.pos
	s.skipLineComment()
	return s.input[start:s.pos]
}

// skipString consumes a string literal starting at the cursor. Handles
// single- and double-quoted strings, triple-quoted blocks, raw strings
// (r-prefix handled by the caller via identifier scanning), and backslash
// escapes. Returns false on an unterminated literal.
func (s *scanner) skipString() bool {
	quote := s.ch
	if s.peekChar() == quote && s.posAfter(2) == quote {
		return s.skipTripleString(quote)
	}
	s.readChar() // opening quote
	for {
		switch s.ch {
		case 0, '\n':
			// Single-quoted strings do not span lines.
			return false
		case '\\':
			s.readChar()
			s.readChar()
		case quote:
			s.readChar() // closing quote
			return true
		default:
			s.readChar()
		}
	}
}

// skipTripleString consumes a triple-quoted block starting at the cursor.
func (s *scanner) skipTripleString(quote byte) bool {
	s.readChar()
	s.readChar()
	s.readChar() // the three opening quotes
	for {
		if s.ch == 0 {
			return false
		}
		if s.ch == '\\' {
			s.readChar()
			s.readChar()
			continue
		}
		if s.ch == quote && s.peekChar() == quote && s.posAfter(2) == quote {
			s.readChar()
			s.readChar()
			s.readChar()
			return true
		}
		s.readChar()
	}
}

// posAfter returns the byte n positions past the current one, or 0 at EOF.
func (s *scanner) posAfter(n int) byte {
	idx := s.pos + n
	if idx >= len(s.input) {
		return 0
	}
	return s.input[idx]
}

// readIdentifier reads an identifier starting at the cursor.
func (s *scanner) readIdentifier() string {
	start := s.pos
	for isIdentChar(s.ch) {
		s.readChar()
	}
	return s.input[start:s.pos]
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}
