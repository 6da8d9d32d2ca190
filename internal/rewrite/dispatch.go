package rewrite

import (
	"fmt"

	"github.com/weftlabs/weft/internal/script"
)

// Dispatch expressions evaluate left to right: the frame is pushed onto the
// shared argument list, the callee runs and pops it, and the trailing [1]
// selects the callee's result as the value of the whole expression.

// dynamicDispatch resolves the target through the registry at run time.
func dynamicDispatch(target, keys, args string) string {
	return fmt.Sprintf("[%s.append((%s, %s)), %s(%s(%q))()][1]",
		script.FramesAlias, keys, args,
		script.ScriptBuiltin, script.RegistryGetBuiltin, target)
}

// staticDispatch binds the callee's final content hash as a hash-qualified
// symbol.
func staticDispatch(hash, keys, args string) string {
	return fmt.Sprintf("[%s.append((%s, %s)), %s()][1]",
		script.FramesAlias, keys, args, script.Symbol(hash))
}

// renameIdent maps a raw implicit identifier to its effective local.
func renameIdent(name string) string {
	if name == script.ImplicitKeys {
		return script.EffectiveKeys
	}
	return script.EffectiveArgs
}
