package rewrite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/weftlabs/weft/internal/script"
)

// StaticResolver returns the final content hash for a statically dispatched
// target. It is consulted only for ModeStatic sites, whose callees the
// linker has already finalized.
type StaticResolver func(target string) (string, error)

// Input is one script's rewrite request. Known is the set of script names in
// the batch; a non-nil Known rejects call sites whose target is not a member.
type Input struct {
	Name    string
	Raw     string
	Sites   []script.CallSite
	Idents  []script.IdentRef
	Known   map[string]bool
	Resolve StaticResolver
}

// Transform produces the transformed source: the preamble (injected once),
// raw implicit identifiers renamed to their effective locals, and every call
// marker replaced by its dispatch expression. Nested markers inside argument
// expressions are rendered recursively. Running Transform on its own output
// with a fresh extraction yields the identical string.
func Transform(in Input) (string, error) {
	if in.Known != nil {
		for i := range in.Sites {
			if !in.Known[in.Sites[i].Target] {
				return "", &script.UnknownTargetError{
					Script: in.Name,
					Target: in.Sites[i].Target,
					Line:   in.Sites[i].Span.Line,
					Column: in.Sites[i].Span.Column,
				}
			}
		}
	}

	nodes := buildNodes(in.Sites, in.Idents)

	var b strings.Builder
	b.Grow(len(in.Raw) + len(preambleText) + 64*len(in.Sites))
	if !HasPreamble(in.Raw) {
		b.WriteString(preambleText)
	}
	if err := renderRange(&b, &in, 0, len(in.Raw), nodes); err != nil {
		return "", err
	}
	return b.String(), nil
}

// node is one rewrite point in the raw source: a call site or an implicit
// identifier reference. Nodes nest but never partially overlap.
type node struct {
	start, end int
	site       *script.CallSite
	ident      *script.IdentRef
}

func buildNodes(sites []script.CallSite, idents []script.IdentRef) []node {
	nodes := make([]node, 0, len(sites)+len(idents))
	for i := range sites {
		nodes = append(nodes, node{start: sites[i].Span.Start, end: sites[i].Span.End, site: &sites[i]})
	}
	for i := range idents {
		nodes = append(nodes, node{start: idents[i].Span.Start, end: idents[i].Span.End, ident: &idents[i]})
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].start < nodes[j].start
	})
	return nodes
}

// renderRange writes raw[lo:hi] with every top-level node in the range
// replaced. Nodes contained in an earlier node of the same range are left to
// that node's own argument rendering.
func renderRange(b *strings.Builder, in *Input, lo, hi int, nodes []node) error {
	cursor := lo
	cover := lo
	for i := range nodes {
		n := nodes[i]
		if n.start < lo || n.end > hi {
			continue
		}
		if n.start < cover {
			continue
		}
		b.WriteString(in.Raw[cursor:n.start])
		if n.site != nil {
			if err := renderSite(b, in, n.site, nodes); err != nil {
				return err
			}
		} else {
			b.WriteString(renameIdent(n.ident.Name))
		}
		cursor = n.end
		cover = n.end
	}
	b.WriteString(in.Raw[cursor:hi])
	return nil
}

func renderSite(b *strings.Builder, in *Input, site *script.CallSite, nodes []node) error {
	var keys, args strings.Builder
	if err := renderRange(&keys, in, site.KeysSpan.Start, site.KeysSpan.End, nodes); err != nil {
		return err
	}
	if err := renderRange(&args, in, site.ArgsSpan.Start, site.ArgsSpan.End, nodes); err != nil {
		return err
	}

	if site.Mode == script.ModeStatic {
		if in.Resolve == nil {
			return fmt.Errorf("%s: static call site %q has no resolver", in.Name, site.Target)
		}
		hash, err := in.Resolve(site.Target)
		if err != nil {
			return fmt.Errorf("%s: static dispatch of %q: %w", in.Name, site.Target, err)
		}
		b.WriteString(staticDispatch(hash, keys.String(), args.String()))
		return nil
	}
	b.WriteString(dynamicDispatch(site.Target, keys.String(), args.String()))
	return nil
}
