package script

import "fmt"

// MalformedCallSiteError reports a call marker that could not be parsed. A
// single malformed marker rejects the whole script.
type MalformedCallSiteError struct {
	Script string
	Line   int
	Column int
	Reason string
}

func (e *MalformedCallSiteError) Error() string {
	return fmt.Sprintf("%s:%d:%d: malformed call site: %s", e.Script, e.Line, e.Column, e.Reason)
}

// UnknownTargetError reports a call site whose target is not part of the
// batch being linked.
type UnknownTargetError struct {
	Script string
	Target string
	Line   int
	Column int
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("%s:%d:%d: unknown call target %q", e.Script, e.Line, e.Column, e.Target)
}

// RegistryMissError reports a dotted name with no entry in the shared
// registry mapping.
type RegistryMissError struct {
	Name string
}

func (e *RegistryMissError) Error() string {
	return fmt.Sprintf("registry miss: no script registered under %q", e.Name)
}
