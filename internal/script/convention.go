package script

// Host conventions shared by the parser, rewriter, and embedded host. These
// are part of the wire contract: changing any of them changes every
// transformed source and therefore every content hash.
const (
	// DispatchKeyword introduces a call marker: call.<dotted.name>(keys, args).
	DispatchKeyword = "call"

	// ImplicitKeys and ImplicitArgs are the raw argument lists the host
	// predeclares for every invocation chain.
	ImplicitKeys = "_KEYS"
	ImplicitArgs = "_ARGV"

	// EffectiveKeys and EffectiveArgs are the locals the generated preamble
	// derives; raw identifier references are renamed to these.
	EffectiveKeys = "__keys"
	EffectiveArgs = "__argv"

	// FramesAlias is the preamble-defined alias for the raw argument list.
	// Generated dispatch code pushes call frames through it so that a
	// transformed source contains no raw identifier references of its own.
	FramesAlias = "__frames"

	// ResultGlobal is the global a script assigns to report its result.
	ResultGlobal = "RESULT"

	// RegistryGetBuiltin and ScriptBuiltin are the host primitives referenced
	// by generated dynamic dispatch code.
	RegistryGetBuiltin = "__registry_get"
	ScriptBuiltin      = "__script"

	// PreambleStartMarker and PreambleEndMarker fence the generated preamble.
	// Extraction skips everything between them, which is what makes
	// rewriting idempotent.
	PreambleStartMarker = "# weft:preamble"
	PreambleEndMarker   = "# /weft:preamble"
)
