package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/weftlabs/weft/internal/script"
)

func extract(t *testing.T, src string) *Extraction {
	t.Helper()
	ex, err := Extract("test.script", src)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return ex
}

func TestExtractSimpleMarker(t *testing.T) {
	src := `RESULT = call.util.sum(["k"], [1, 2])` + "\n"
	ex := extract(t, src)

	if len(ex.Sites) != 1 {
		t.Fatalf("got %d sites, want 1", len(ex.Sites))
	}
	site := ex.Sites[0]
	if site.Target != "util.sum" {
		t.Errorf("Target = %q, want util.sum", site.Target)
	}
	if site.KeysExpr != `["k"]` {
		t.Errorf("KeysExpr = %q", site.KeysExpr)
	}
	if site.ArgsExpr != `[1, 2]` {
		t.Errorf("ArgsExpr = %q", site.ArgsExpr)
	}
	if got := src[site.Span.Start:site.Span.End]; got != `call.util.sum(["k"], [1, 2])` {
		t.Errorf("marker span covers %q", got)
	}
	if site.Span.Line != 1 || site.Span.Column != 10 {
		t.Errorf("marker position = %d:%d, want 1:10", site.Span.Line, site.Span.Column)
	}
	if site.Mode != script.ModeDynamic {
		t.Errorf("fresh site mode = %v, want dynamic", site.Mode)
	}
}

func TestExtractIdentRefs(t *testing.T) {
	src := "x = _KEYS[0]\ny = _ARGV\n"
	ex := extract(t, src)

	if len(ex.Idents) != 2 {
		t.Fatalf("got %d ident refs, want 2", len(ex.Idents))
	}
	if ex.Idents[0].Name != "_KEYS" || ex.Idents[0].Span.Line != 1 {
		t.Errorf("first ref = %q at line %d", ex.Idents[0].Name, ex.Idents[0].Span.Line)
	}
	if ex.Idents[1].Name != "_ARGV" || ex.Idents[1].Span.Line != 2 {
		t.Errorf("second ref = %q at line %d", ex.Idents[1].Name, ex.Idents[1].Span.Line)
	}
	if got := src[ex.Idents[0].Span.Start:ex.Idents[0].Span.End]; got != "_KEYS" {
		t.Errorf("ref span covers %q", got)
	}
}

func TestExtractAttributeAccessIgnored(t *testing.T) {
	src := "r = a.call.b(x, y)\ns = obj._KEYS\n"
	ex := extract(t, src)

	if len(ex.Sites) != 0 {
		t.Errorf("got %d sites, want 0", len(ex.Sites))
	}
	if len(ex.Idents) != 0 {
		t.Errorf("got %d ident refs, want 0", len(ex.Idents))
	}
}

func TestExtractSkipsStringsAndComments(t *testing.T) {
	src := strings.Join([]string{
		`s = "call.a.b([], [])"`,
		`# call.c.d([], [])`,
		`t = '_ARGV'`,
		`doc = """`,
		`call.e.f([], [])`,
		`"""`,
	}, "\n") + "\n"
	ex := extract(t, src)

	if len(ex.Sites) != 0 {
		t.Errorf("got %d sites, want 0: %+v", len(ex.Sites), ex.Sites)
	}
	if len(ex.Idents) != 0 {
		t.Errorf("got %d ident refs, want 0", len(ex.Idents))
	}
}

func TestExtractNestedMarker(t *testing.T) {
	src := "RESULT = call.outer.fn([], call.inner.fn([], []))\n"
	ex := extract(t, src)

	if len(ex.Sites) != 2 {
		t.Fatalf("got %d sites, want 2", len(ex.Sites))
	}
	outer, inner := ex.Sites[0], ex.Sites[1]
	if outer.Target != "outer.fn" || inner.Target != "inner.fn" {
		t.Fatalf("targets = %q, %q", outer.Target, inner.Target)
	}
	if outer.Span.Start > inner.Span.Start {
		t.Error("sites are not in document order")
	}
	if outer.ArgsExpr != "call.inner.fn([], [])" {
		t.Errorf("outer ArgsExpr = %q", outer.ArgsExpr)
	}
	if inner.Span.Start < outer.ArgsSpan.Start || inner.Span.End > outer.ArgsSpan.End {
		t.Error("inner marker span is not contained in outer args span")
	}
}

func TestExtractPassThroughArguments(t *testing.T) {
	src := "RESULT = call.b.f(_KEYS, _ARGV)\n"
	ex := extract(t, src)

	if len(ex.Sites) != 1 {
		t.Fatalf("got %d sites, want 1", len(ex.Sites))
	}
	site := ex.Sites[0]
	if site.KeysExpr != "_KEYS" || site.ArgsExpr != "_ARGV" {
		t.Errorf("exprs = %q, %q", site.KeysExpr, site.ArgsExpr)
	}
	if len(ex.Idents) != 2 {
		t.Fatalf("got %d ident refs, want 2", len(ex.Idents))
	}
}

func TestExtractMultilineArguments(t *testing.T) {
	src := "RESULT = call.util.merge(\n    [\"a\", \"b\"],  # keys\n    [1,\n     2],\n)\n"
	_, err := Extract("test.script", src)
	if err == nil {
		t.Fatal("trailing comma should be rejected")
	}

	src = "RESULT = call.util.merge(\n    [\"a\", \"b\"],  # keys\n    [1,\n     2]\n)\n"
	ex := extract(t, src)
	if len(ex.Sites) != 1 {
		t.Fatalf("got %d sites, want 1", len(ex.Sites))
	}
	if ex.Sites[0].KeysExpr != `["a", "b"]` {
		t.Errorf("KeysExpr = %q", ex.Sites[0].KeysExpr)
	}
	if ex.Sites[0].ArgsExpr != "[1,\n     2]" {
		t.Errorf("ArgsExpr = %q", ex.Sites[0].ArgsExpr)
	}
}

func TestExtractSkipsPreambleFence(t *testing.T) {
	src := strings.Join([]string{
		script.PreambleStartMarker,
		"__frames = _ARGV",
		`if len(_ARGV) > 0 and type(_ARGV[-1]) != "string":`,
		"    __frame = _ARGV.pop()",
		script.PreambleEndMarker,
		"x = __argv",
	}, "\n") + "\n"
	ex := extract(t, src)

	if len(ex.Idents) != 0 {
		t.Errorf("got %d ident refs inside preamble, want 0", len(ex.Idents))
	}
	if len(ex.Sites) != 0 {
		t.Errorf("got %d sites, want 0", len(ex.Sites))
	}
}

func TestExtractMalformed(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"missing target", "call.(x, y)\n"},
		{"numeric segment", "call.9a.b([], [])\n"},
		{"uppercase target", "call.Queue.push([], [])\n"},
		{"no paren", "x = call.a\n"},
		{"newline before paren", "call.a.b\n([], [])\n"},
		{"zero args", "call.a.b()\n"},
		{"one arg", "call.a.b([])\n"},
		{"three args", "call.a.b([], [], [])\n"},
		{"trailing comma", "call.a.b([], [],)\n"},
		{"empty first arg", "call.a.b(, [])\n"},
		{"mismatched bracket", "call.a.b([1, 2), [])\n"},
		{"unbalanced to eof", "call.a.b([], ["},
		{"unterminated string", "call.a.b(\"oops, [])\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Extract("test.script", tc.src)
			if err == nil {
				t.Fatal("want MalformedCallSiteError, got nil")
			}
			var mErr *script.MalformedCallSiteError
			if !errors.As(err, &mErr) {
				t.Fatalf("error type = %T, want MalformedCallSiteError", err)
			}
			if mErr.Script != "test.script" {
				t.Errorf("Script = %q", mErr.Script)
			}
			if mErr.Line < 1 || mErr.Column < 1 {
				t.Errorf("position = %d:%d", mErr.Line, mErr.Column)
			}
		})
	}
}

func TestExtractKeywordAlone(t *testing.T) {
	// The keyword not followed by a dot is an ordinary identifier.
	src := "call = 1\nx = call + 2\n"
	ex := extract(t, src)
	if len(ex.Sites) != 0 {
		t.Errorf("got %d sites, want 0", len(ex.Sites))
	}
}

func TestExtractRepeatedTarget(t *testing.T) {
	src := "a = call.util.sum([], [1])\nb = call.util.sum([], [2])\n"
	ex := extract(t, src)
	if len(ex.Sites) != 2 {
		t.Fatalf("got %d sites, want 2", len(ex.Sites))
	}
	if ex.Sites[0].ArgsExpr != "[1]" || ex.Sites[1].ArgsExpr != "[2]" {
		t.Errorf("sites out of order: %q, %q", ex.Sites[0].ArgsExpr, ex.Sites[1].ArgsExpr)
	}
}
