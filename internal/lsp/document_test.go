package lsp

import (
	"testing"
)

func TestDocumentStore_OpenGetClose(t *testing.T) {
	store := NewDocumentStore()

	uri := "file:///test/scripts/greet.star"
	content := "RESULT = \"hello\""

	// Open document
	store.Open(uri, content, 1)

	// Get document
	doc := store.Get(uri)
	if doc == nil {
		t.Fatal("expected document to exist")
	}
	if doc.URI != uri {
		t.Errorf("expected URI %s, got %s", uri, doc.URI)
	}
	if doc.Content != content {
		t.Errorf("expected content %q, got %q", content, doc.Content)
	}
	if doc.Version != 1 {
		t.Errorf("expected version 1, got %d", doc.Version)
	}

	// Close document
	store.Close(uri)
	doc = store.Get(uri)
	if doc != nil {
		t.Error("expected document to be nil after close")
	}
}

func TestDocumentStore_Update(t *testing.T) {
	store := NewDocumentStore()

	uri := "file:///test/scripts/greet.star"
	store.Open(uri, "RESULT = 1", 1)

	// Update
	store.Update(uri, "RESULT = 2", 2)

	doc := store.Get(uri)
	if doc.Content != "RESULT = 2" {
		t.Errorf("expected content 'RESULT = 2', got %q", doc.Content)
	}
	if doc.Version != 2 {
		t.Errorf("expected version 2, got %d", doc.Version)
	}
}

func TestDocumentStore_List(t *testing.T) {
	store := NewDocumentStore()

	store.Open("file:///a.star", "RESULT = 1", 1)
	store.Open("file:///b.star", "RESULT = 2", 1)
	store.Open("file:///c.star", "RESULT = 3", 1)

	uris := store.List()
	if len(uris) != 3 {
		t.Errorf("expected 3 URIs, got %d", len(uris))
	}
}

func TestComputeLineOffsets(t *testing.T) {
	tests := []struct {
		content  string
		expected []int
	}{
		{"", []int{0}},
		{"abc", []int{0}},
		{"a\nb", []int{0, 2}},
		{"a\nb\nc", []int{0, 2, 4}},
		{"\n\n\n", []int{0, 1, 2, 3}},
		{"line1\nline2\nline3", []int{0, 6, 12}},
	}

	for _, tt := range tests {
		offsets := computeLineOffsets(tt.content)
		if len(offsets) != len(tt.expected) {
			t.Errorf("content %q: expected %d offsets, got %d", tt.content, len(tt.expected), len(offsets))
			continue
		}
		for i, exp := range tt.expected {
			if offsets[i] != exp {
				t.Errorf("content %q: offset[%d] expected %d, got %d", tt.content, i, exp, offsets[i])
			}
		}
	}
}

func TestDocument_PositionToOffset(t *testing.T) {
	content := "line0\nline1\nline2"
	doc := &Document{
		Content: content,
		Lines:   computeLineOffsets(content),
	}

	tests := []struct {
		pos      Position
		expected int
	}{
		{Position{Line: 0, Character: 0}, 0},
		{Position{Line: 0, Character: 3}, 3},
		{Position{Line: 0, Character: 5}, 5},
		{Position{Line: 1, Character: 0}, 6},
		{Position{Line: 1, Character: 4}, 10},
		{Position{Line: 2, Character: 0}, 12},
		{Position{Line: 2, Character: 5}, 17},
		// Edge cases
		{Position{Line: 100, Character: 0}, len(content)}, // Line beyond document
		{Position{Line: 0, Character: 100}, len(content)}, // Character beyond line
	}

	for _, tt := range tests {
		offset := doc.PositionToOffset(tt.pos)
		if offset != tt.expected {
			t.Errorf("PositionToOffset(%v): expected %d, got %d", tt.pos, tt.expected, offset)
		}
	}
}

func TestDocument_OffsetToPosition(t *testing.T) {
	content := "line0\nline1\nline2"
	doc := &Document{
		Content: content,
		Lines:   computeLineOffsets(content),
	}

	tests := []struct {
		offset   int
		expected Position
	}{
		{0, Position{Line: 0, Character: 0}},
		{3, Position{Line: 0, Character: 3}},
		{5, Position{Line: 0, Character: 5}},
		{6, Position{Line: 1, Character: 0}},
		{10, Position{Line: 1, Character: 4}},
		{12, Position{Line: 2, Character: 0}},
		{17, Position{Line: 2, Character: 5}},
		// Edge cases
		{-1, Position{Line: 0, Character: 0}},  // Negative offset
		{100, Position{Line: 2, Character: 5}}, // Beyond end
	}

	for _, tt := range tests {
		pos := doc.OffsetToPosition(tt.offset)
		if pos.Line != tt.expected.Line || pos.Character != tt.expected.Character {
			t.Errorf("OffsetToPosition(%d): expected %v, got %v", tt.offset, tt.expected, pos)
		}
	}
}

func TestDocument_GetWordAtPosition(t *testing.T) {
	content := "greeting = call.greet(_KEYS, _ARGV)"
	doc := &Document{
		Content: content,
		Lines:   computeLineOffsets(content),
	}

	tests := []struct {
		pos          Position
		expectedWord string
	}{
		{Position{Line: 0, Character: 0}, "greeting"},
		{Position{Line: 0, Character: 4}, "greeting"},
		{Position{Line: 0, Character: 11}, "call"},
		{Position{Line: 0, Character: 17}, "greet"},
		{Position{Line: 0, Character: 23}, "_KEYS"},
		{Position{Line: 0, Character: 30}, "_ARGV"},
	}

	for _, tt := range tests {
		word, _ := doc.GetWordAtPosition(tt.pos)
		if word != tt.expectedWord {
			t.Errorf("GetWordAtPosition(%v): expected %q, got %q", tt.pos, tt.expectedWord, word)
		}
	}
}

func TestDocument_GetTextBefore(t *testing.T) {
	content := "x = call.greet([], [])"
	doc := &Document{
		Content: content,
		Lines:   computeLineOffsets(content),
	}

	tests := []struct {
		pos      Position
		expected string
	}{
		{Position{Line: 0, Character: 0}, ""},
		{Position{Line: 0, Character: 1}, "x"},
		{Position{Line: 0, Character: 9}, "x = call."},
	}

	for _, tt := range tests {
		text := doc.GetTextBefore(tt.pos)
		if text != tt.expected {
			t.Errorf("GetTextBefore(%v): expected %q, got %q", tt.pos, tt.expected, text)
		}
	}
}

func TestURIToPath(t *testing.T) {
	tests := []struct {
		uri      string
		expected string
	}{
		{"file:///Users/test/greet.star", "/Users/test/greet.star"},
		{"file:///home/user/billing/invoice.star", "/home/user/billing/invoice.star"},
		{"/already/a/path.star", "/already/a/path.star"},
	}

	for _, tt := range tests {
		path := URIToPath(tt.uri)
		if path != tt.expected {
			t.Errorf("URIToPath(%q): expected %q, got %q", tt.uri, tt.expected, path)
		}
	}
}

func TestPathToURI(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/Users/test/greet.star", "file:///Users/test/greet.star"},
		{"/home/user/billing/invoice.star", "file:///home/user/billing/invoice.star"},
		{"file:///already/uri.star", "file:///already/uri.star"},
	}

	for _, tt := range tests {
		uri := PathToURI(tt.path)
		if uri != tt.expected {
			t.Errorf("PathToURI(%q): expected %q, got %q", tt.path, tt.expected, uri)
		}
	}
}

func TestIsWordChar(t *testing.T) {
	wordChars := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_"
	nonWordChars := " \t\n!@#$%^&*()-+=[]{}|;':\",./<>?"

	for _, c := range wordChars {
		if !isWordChar(byte(c)) {
			t.Errorf("isWordChar(%q): expected true", c)
		}
	}

	for _, c := range nonWordChars {
		if isWordChar(byte(c)) {
			t.Errorf("isWordChar(%q): expected false", c)
		}
	}
}
