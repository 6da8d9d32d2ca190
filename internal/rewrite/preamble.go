// Package rewrite turns raw script source into its transformed form:
// preamble injection, implicit-identifier renaming, and per-call-site
// dispatch substitution. Transformation is purely textual and deterministic;
// the hash of its output is the script's content address.
package rewrite

import (
	"strings"

	"github.com/weftlabs/weft/internal/script"
)

// preambleText is assembled from the shared convention names so the three
// packages that care about them cannot drift apart.
var preambleText = strings.Join([]string{
	script.PreambleStartMarker,
	script.FramesAlias + " = " + script.ImplicitArgs,
	"if len(" + script.ImplicitArgs + ") > 0 and type(" + script.ImplicitArgs + `[-1]) != "string":`,
	"    __frame = " + script.ImplicitArgs + ".pop()",
	"    " + script.EffectiveKeys + " = __frame[0]",
	"    " + script.EffectiveArgs + " = __frame[1]",
	"else:",
	"    " + script.EffectiveKeys + " = " + script.ImplicitKeys,
	"    " + script.EffectiveArgs + " = " + script.ImplicitArgs,
	script.PreambleEndMarker,
	"",
}, "\n")

// Preamble returns the fixed block injected once at the top of every
// transformed source. It derives the effective argument lists: a non-string
// last element of the raw argument list marks a chained call, and that
// element is the call frame, which is popped so the list is restored for the
// frames above it. A top-level invocation whose own argument list ends in a
// composite value is indistinguishable from a chained call; both preambles
// share that convention as the wire contract.
func Preamble() string {
	return preambleText
}

// HasPreamble reports whether src already starts with the generated
// preamble.
func HasPreamble(src string) bool {
	return strings.HasPrefix(src, script.PreambleStartMarker+"\n")
}
