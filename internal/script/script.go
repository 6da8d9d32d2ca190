// Package script defines the core data model shared by the parser, rewriter,
// linker, and host: the script unit itself, extracted call sites, source
// spans, and the hash and symbol conventions of the content-addressed store.
package script

// Mode says how a call site is dispatched in the transformed source.
type Mode int

const (
	// ModeDynamic resolves the target through the shared registry mapping at
	// run time.
	ModeDynamic Mode = iota
	// ModeStatic binds the target's final content hash into the transformed
	// source as a hash-qualified symbol.
	ModeStatic
)

func (m Mode) String() string {
	if m == ModeStatic {
		return "static"
	}
	return "dynamic"
}

// ParseMode is the inverse of Mode.String. Unrecognized input maps to
// ModeDynamic, the safe dispatch form.
func ParseMode(s string) Mode {
	if s == "static" {
		return ModeStatic
	}
	return ModeDynamic
}

// Span is a half-open byte range [Start, End) into a script's raw source.
// Line and Column locate Start, 1-based.
type Span struct {
	Start  int
	End    int
	Line   int
	Column int
}

// CallSite is one cross-script call marker found in raw source. KeysSpan and
// ArgsSpan are sub-ranges of Span covering the two argument expressions;
// KeysExpr and ArgsExpr hold their literal text. The argument expressions are
// opaque to the toolchain: they are captured by bracket balance only and may
// themselves contain nested call markers.
type CallSite struct {
	Span     Span
	Target   string
	KeysSpan Span
	ArgsSpan Span
	KeysExpr string
	ArgsExpr string
	Mode     Mode
}

// IdentRef is one occurrence of a raw implicit-argument identifier (_KEYS or
// _ARGV) outside the generated preamble.
type IdentRef struct {
	Span Span
	Name string
}

// Meta is the optional frontmatter block of a script file.
type Meta struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Owner       string   `yaml:"owner"`
	Tags        []string `yaml:"tags"`
}

// Script is one unit of host code. Name is its dotted registry name; Hash is
// the content address of Transformed and is only meaningful once Finalized.
type Script struct {
	Name        string
	FilePath    string
	RawSource   string
	RawHash     string
	Meta        Meta
	CallSites   []CallSite
	IdentRefs   []IdentRef
	Transformed string
	Hash        string
	Finalized   bool
}

// Targets returns the distinct call targets of the script in first-seen
// order.
func (s *Script) Targets() []string {
	seen := make(map[string]bool, len(s.CallSites))
	var out []string
	for _, cs := range s.CallSites {
		if !seen[cs.Target] {
			seen[cs.Target] = true
			out = append(out, cs.Target)
		}
	}
	return out
}

// CallFrame is the record a rewritten caller pushes onto the shared argument
// list before transferring control. The callee's preamble pops it and derives
// its effective key and argument lists from the two elements.
type CallFrame struct {
	Keys []any
	Args []any
}
