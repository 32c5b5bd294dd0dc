// Package graph performs semantic and reference validation over a
// hydrated manifest: it resolves every binding directive's target,
// validates the resulting component graph for cycles, and validates the
// governance entries. Its output is the validated graph the binding
// resolver consumes.
package graph

import (
	"fmt"
	"strings"
)

// DuplicateComponentError reports a component name declared more than
// once.
type DuplicateComponentError struct {
	// Name is the duplicated component name.
	Name string
}

// Error implements the error interface.
func (e *DuplicateComponentError) Error() string {
	return fmt.Sprintf("component name %q is declared more than once", e.Name)
}

// ReferenceError reports a binding target that does not resolve to
// exactly one component.
type ReferenceError struct {
	// Source is the component declaring the binding.
	Source string

	// Target describes the directive's target (name or selector).
	Target string

	// Reason is "missing" for an unresolved name or zero selector
	// matches, "ambiguous" for multiple selector matches.
	Reason string

	// Candidates lists the matching component names when the selector
	// was ambiguous.
	Candidates []string
}

// Error implements the error interface.
func (e *ReferenceError) Error() string {
	switch e.Reason {
	case "ambiguous":
		return fmt.Sprintf("binding from %q: selector %s matches %d components (%s); exactly one is required",
			e.Source, e.Target, len(e.Candidates), strings.Join(e.Candidates, ", "))
	default:
		return fmt.Sprintf("binding from %q: target %s does not match any component", e.Source, e.Target)
	}
}

// CircularDependencyError reports a cycle in the bind graph.
type CircularDependencyError struct {
	// Cycle lists the involved component names in walk order; the first
	// name is repeated at the end to close the loop.
	Cycle []string
}

// Error implements the error interface.
func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency between components: %s", strings.Join(e.Cycle, " -> "))
}

// GovernanceValidationError reports an invalid governance suppression or
// extension patch entry.
type GovernanceValidationError struct {
	// Kind is "suppression" or "patch".
	Kind string

	// ID identifies the entry (suppression id or patch name).
	ID string

	// Field is the offending field.
	Field string

	// Detail explains the failure.
	Detail string
}

// Error implements the error interface.
func (e *GovernanceValidationError) Error() string {
	id := e.ID
	if id == "" {
		id = "<unidentified>"
	}
	return fmt.Sprintf("governance %s %q: field %q: %s", e.Kind, id, e.Field, e.Detail)
}
