// Package manifest defines the declarative service-manifest data model and
// the strict YAML parser that turns raw manifest text into an in-memory
// tree. Parsing performs no semantic interpretation; everything beyond
// syntax is the job of the schema, hydrate, and graph packages.
package manifest

import (
	"sort"
	"strings"
)

// AccessLevel is the access a binding requests against a target capability.
type AccessLevel string

const (
	AccessRead      AccessLevel = "read"
	AccessWrite     AccessLevel = "write"
	AccessReadWrite AccessLevel = "readwrite"
	AccessAdmin     AccessLevel = "admin"
)

// Valid reports whether the access level is one of the known values.
func (a AccessLevel) Valid() bool {
	switch a {
	case AccessRead, AccessWrite, AccessReadWrite, AccessAdmin:
		return true
	}
	return false
}

// AccessLevels returns all valid access levels in ascending privilege order.
func AccessLevels() []AccessLevel {
	return []AccessLevel{AccessRead, AccessWrite, AccessReadWrite, AccessAdmin}
}

// Manifest is the full declarative input describing a service, its
// components, environments, and governance rules. A manifest has no
// identity beyond its content and is immutable once parsed; only the
// hydrator replaces component config values, and never thereafter.
type Manifest struct {
	// Service is the service name.
	Service string `yaml:"service" json:"service"`

	// Owner identifies the owning team or person.
	Owner string `yaml:"owner" json:"owner"`

	// ComplianceFramework is the declared framework name
	// ("commercial", "moderate", or "high"). Empty means the least
	// strict framework.
	ComplianceFramework string `yaml:"complianceFramework,omitempty" json:"complianceFramework,omitempty"`

	// Environments maps environment name to its default key/value
	// overrides. The map doubles as the interpolation lookup source and
	// as the environment-default merge layer.
	Environments map[string]map[string]any `yaml:"environments,omitempty" json:"environments,omitempty"`

	// Components is the ordered list of component declarations.
	Components []ComponentSpec `yaml:"components" json:"components"`

	// Governance holds suppression entries.
	Governance Governance `yaml:"governance,omitempty" json:"governance,omitempty"`

	// Extensions holds approved deviations from platform defaults.
	Extensions Extensions `yaml:"extensions,omitempty" json:"extensions,omitempty"`
}

// Component returns the component with the given name, or nil.
func (m *Manifest) Component(name string) *ComponentSpec {
	for i := range m.Components {
		if m.Components[i].Name == name {
			return &m.Components[i]
		}
	}
	return nil
}

// EnvironmentNames returns the declared environment names, sorted.
func (m *Manifest) EnvironmentNames() []string {
	names := make([]string, 0, len(m.Environments))
	for name := range m.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ComponentSpec is a named, typed unit of configuration within a manifest.
type ComponentSpec struct {
	// Name is the component identifier, unique within the manifest.
	Name string `yaml:"name" json:"name"`

	// Type is the key into the component type registry.
	Type string `yaml:"type" json:"type"`

	// Config holds the component's free-form configuration. Values may
	// contain interpolation tokens or per-environment maps until the
	// hydrator has run.
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`

	// Binds declares this component's access to other components'
	// capabilities, in order.
	Binds []BindingDirective `yaml:"binds,omitempty" json:"binds,omitempty"`

	// Labels are key/value pairs used for selector matching.
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`

	// Overrides are merged above Config but below Policy.
	Overrides map[string]any `yaml:"overrides,omitempty" json:"overrides,omitempty"`

	// Policy entries are merged last and are non-overridable by any
	// lower precedence layer.
	Policy map[string]any `yaml:"policy,omitempty" json:"policy,omitempty"`
}

// BindingDirective is a declared intent for one component to access
// another component's capability at a given access level. The target is
// named either directly via To or indirectly via Select; exactly one of
// the two must be set (enforced by the schema and the graph validator).
type BindingDirective struct {
	// To names the target component directly.
	To string `yaml:"to,omitempty" json:"to,omitempty"`

	// Select matches the target component by type and labels.
	Select *Selector `yaml:"select,omitempty" json:"select,omitempty"`

	// Capability is the namespaced capability identifier requested from
	// the target (e.g. "queue:sqs", "storage:s3").
	Capability string `yaml:"capability" json:"capability"`

	// Access is the requested access level.
	Access AccessLevel `yaml:"access" json:"access"`

	// EnvPrefix overrides the prefix used for injected environment
	// variable names. Empty means the strategy's default naming.
	EnvPrefix string `yaml:"envPrefix,omitempty" json:"envPrefix,omitempty"`

	// Options holds strategy-specific settings (e.g. tls, poolSize).
	Options map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}

// TargetDescription renders the directive's target for error messages.
func (d *BindingDirective) TargetDescription() string {
	if d.To != "" {
		return d.To
	}
	if d.Select != nil {
		return d.Select.String()
	}
	return "<unspecified>"
}

// Selector matches a component by type and exact label equality.
type Selector struct {
	// Type is the required component type.
	Type string `yaml:"type" json:"type"`

	// WithLabels lists labels the target must carry with equal values.
	WithLabels map[string]string `yaml:"withLabels,omitempty" json:"withLabels,omitempty"`
}

// Matches reports whether the given component satisfies the selector.
func (s *Selector) Matches(c *ComponentSpec) bool {
	if c.Type != s.Type {
		return false
	}
	for k, v := range s.WithLabels {
		if c.Labels[k] != v {
			return false
		}
	}
	return true
}

// String renders the selector for error messages.
func (s *Selector) String() string {
	var b strings.Builder
	b.WriteString("select{type=")
	b.WriteString(s.Type)
	keys := make([]string, 0, len(s.WithLabels))
	for k := range s.WithLabels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(", ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(s.WithLabels[k])
	}
	b.WriteString("}")
	return b.String()
}

// Governance groups the manifest's governance entries.
type Governance struct {
	// Suppress lists policy-finding suppressions.
	Suppress []Suppression `yaml:"suppress,omitempty" json:"suppress,omitempty"`
}

// Suppression records an approved, time-bounded exemption from a policy
// finding. All fields except AppliesTo are required and validated by the
// graph validator.
type Suppression struct {
	ID            string   `yaml:"id" json:"id"`
	Justification string   `yaml:"justification" json:"justification"`
	Owner         string   `yaml:"owner" json:"owner"`
	ExpiresOn     string   `yaml:"expiresOn" json:"expiresOn"`
	AppliesTo     []string `yaml:"appliesTo,omitempty" json:"appliesTo,omitempty"`
}

// Extensions groups approved deviations declared in the manifest.
type Extensions struct {
	// Patches lists named, owned, expiring extension patches.
	Patches []Patch `yaml:"patches,omitempty" json:"patches,omitempty"`
}

// Patch is a named, justified, time-bounded extension entry.
type Patch struct {
	Name          string `yaml:"name" json:"name"`
	Justification string `yaml:"justification" json:"justification"`
	Owner         string `yaml:"owner" json:"owner"`
	ExpiresOn     string `yaml:"expiresOn" json:"expiresOn"`
}
