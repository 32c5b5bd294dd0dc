package graph

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/GoCodeAlone/stackplan/manifest"
)

// CyclePolicy selects which bind edges participate in cycle detection.
type CyclePolicy int

const (
	// CycleCheckAll checks every bind edge. This is the conservative
	// default.
	CycleCheckAll CyclePolicy = iota

	// CycleCheckInvocation checks only invocation-style capabilities
	// (http:, grpc:, invoke: namespaces); data-plane bindings such as a
	// queue both produced to and consumed from are allowed to form
	// loops.
	CycleCheckInvocation
)

// invocationNamespaces are the capability namespaces treated as
// invocation-style for CycleCheckInvocation.
var invocationNamespaces = map[string]bool{
	"http":   true,
	"grpc":   true,
	"invoke": true,
}

// isInvocationCapability reports whether a capability identifier is
// invocation-style.
func isInvocationCapability(capability string) bool {
	ns, _, ok := strings.Cut(capability, ":")
	return ok && invocationNamespaces[ns]
}

// Options configures semantic validation.
type Options struct {
	// CyclePolicy selects the cycle-detection edge set; the zero value
	// checks all edges.
	CyclePolicy CyclePolicy

	// Now supplies the current time for governance expiry checks; nil
	// means time.Now.
	Now func() time.Time

	// Logger receives validation progress; nil falls back to
	// slog.Default.
	Logger *slog.Logger
}

// Edge is one resolved binding: the directive with its target pinned to
// a concrete component.
type Edge struct {
	// Source and SourceType identify the declaring component.
	Source     string
	SourceType string

	// Target and TargetType identify the resolved target component.
	Target     string
	TargetType string

	// Directive is the original binding directive.
	Directive manifest.BindingDirective

	// BindIndex is the directive's position within the source
	// component's binds list.
	BindIndex int
}

// ValidatedGraph is the semantically validated component graph: the
// hydrated manifest plus every binding resolved to a concrete target, in
// declaration order.
type ValidatedGraph struct {
	// Manifest is the validated manifest.
	Manifest *manifest.Manifest

	// Edges lists the resolved bindings in declaration order (component
	// order, then bind order within each component).
	Edges []Edge
}

// Validate resolves and validates the component graph, failing fast on
// the first reference, cycle, or governance error.
func Validate(m *manifest.Manifest, opts Options) (*ValidatedGraph, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	seen := make(map[string]bool, len(m.Components))
	for i := range m.Components {
		name := m.Components[i].Name
		if seen[name] {
			return nil, &DuplicateComponentError{Name: name}
		}
		seen[name] = true
	}

	edges := make([]Edge, 0)
	for i := range m.Components {
		src := &m.Components[i]
		for bi := range src.Binds {
			target, err := resolveTarget(m, src, &src.Binds[bi])
			if err != nil {
				return nil, err
			}
			edges = append(edges, Edge{
				Source:     src.Name,
				SourceType: src.Type,
				Target:     target.Name,
				TargetType: target.Type,
				Directive:  src.Binds[bi],
				BindIndex:  bi,
			})
		}
	}

	if err := detectCycle(m, edges, opts.CyclePolicy); err != nil {
		return nil, err
	}
	if err := validateGovernance(m, now()); err != nil {
		return nil, err
	}

	logger.Debug("component graph validated",
		"components", len(m.Components),
		"bindings", len(edges))

	return &ValidatedGraph{Manifest: m, Edges: edges}, nil
}

// resolveTarget pins a directive to exactly one component.
func resolveTarget(m *manifest.Manifest, src *manifest.ComponentSpec, d *manifest.BindingDirective) (*manifest.ComponentSpec, error) {
	if d.To != "" {
		target := m.Component(d.To)
		if target == nil {
			return nil, &ReferenceError{Source: src.Name, Target: fmt.Sprintf("%q", d.To), Reason: "missing"}
		}
		return target, nil
	}

	if d.Select == nil {
		return nil, &ReferenceError{Source: src.Name, Target: "<unspecified>", Reason: "missing"}
	}

	var matches []*manifest.ComponentSpec
	for i := range m.Components {
		if d.Select.Matches(&m.Components[i]) {
			matches = append(matches, &m.Components[i])
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, &ReferenceError{Source: src.Name, Target: d.Select.String(), Reason: "missing"}
	default:
		names := make([]string, len(matches))
		for i, c := range matches {
			names[i] = c.Name
		}
		sort.Strings(names)
		return nil, &ReferenceError{
			Source:     src.Name,
			Target:     d.Select.String(),
			Reason:     "ambiguous",
			Candidates: names,
		}
	}
}

// detectCycle runs a depth-first walk over the selected edge set and
// fails on the first cycle found.
func detectCycle(m *manifest.Manifest, edges []Edge, policy CyclePolicy) error {
	adjacency := make(map[string][]string)
	for _, e := range edges {
		if policy == CycleCheckInvocation && !isInvocationCapability(e.Directive.Capability) {
			continue
		}
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on the current walk
		black = 2 // fully explored
	)
	color := make(map[string]int, len(m.Components))
	var stack []string

	var visit func(node string) *CircularDependencyError
	visit = func(node string) *CircularDependencyError {
		color[node] = gray
		stack = append(stack, node)
		for _, next := range adjacency[node] {
			switch color[next] {
			case gray:
				// Slice the stack back to where the cycle starts.
				start := 0
				for i, n := range stack {
					if n == next {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, stack[start:]...), next)
				return &CircularDependencyError{Cycle: cycle}
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[node] = black
		return nil
	}

	for i := range m.Components {
		name := m.Components[i].Name
		if color[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateGovernance checks every suppression and extension patch.
func validateGovernance(m *manifest.Manifest, now time.Time) error {
	for i := range m.Governance.Suppress {
		s := &m.Governance.Suppress[i]
		if s.ID == "" {
			return &GovernanceValidationError{Kind: "suppression", Field: "id", Detail: "identifier is required"}
		}
		if s.Justification == "" {
			return &GovernanceValidationError{Kind: "suppression", ID: s.ID, Field: "justification", Detail: "justification is required"}
		}
		if s.Owner == "" {
			return &GovernanceValidationError{Kind: "suppression", ID: s.ID, Field: "owner", Detail: "owner is required"}
		}
		if err := checkExpiry("suppression", s.ID, s.ExpiresOn, now); err != nil {
			return err
		}
		for _, ref := range s.AppliesTo {
			if m.Component(ref) == nil {
				return &GovernanceValidationError{
					Kind:   "suppression",
					ID:     s.ID,
					Field:  "appliesTo",
					Detail: fmt.Sprintf("component %q does not exist", ref),
				}
			}
		}
	}

	for i := range m.Extensions.Patches {
		p := &m.Extensions.Patches[i]
		if p.Name == "" {
			return &GovernanceValidationError{Kind: "patch", Field: "name", Detail: "name is required"}
		}
		if p.Justification == "" {
			return &GovernanceValidationError{Kind: "patch", ID: p.Name, Field: "justification", Detail: "justification is required"}
		}
		if p.Owner == "" {
			return &GovernanceValidationError{Kind: "patch", ID: p.Name, Field: "owner", Detail: "owner is required"}
		}
		if err := checkExpiry("patch", p.Name, p.ExpiresOn, now); err != nil {
			return err
		}
	}
	return nil
}

// expiryFormats are the accepted expiresOn layouts.
var expiryFormats = []string{"2006-01-02", time.RFC3339}

// checkExpiry requires a parseable, strictly future expiry date.
func checkExpiry(kind, id, value string, now time.Time) error {
	if value == "" {
		return &GovernanceValidationError{Kind: kind, ID: id, Field: "expiresOn", Detail: "expiry date is required"}
	}
	var expiry time.Time
	var err error
	for _, layout := range expiryFormats {
		expiry, err = time.Parse(layout, value)
		if err == nil {
			break
		}
	}
	if err != nil {
		return &GovernanceValidationError{
			Kind:   kind,
			ID:     id,
			Field:  "expiresOn",
			Detail: fmt.Sprintf("cannot parse %q as YYYY-MM-DD or RFC 3339", value),
		}
	}
	if !expiry.After(now) {
		return &GovernanceValidationError{
			Kind:   kind,
			ID:     id,
			Field:  "expiresOn",
			Detail: fmt.Sprintf("expiry %s is not in the future", value),
		}
	}
	return nil
}
