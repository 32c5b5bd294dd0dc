package capability

import (
	"context"
	"strings"

	"github.com/GoCodeAlone/stackplan/compliance"
	"github.com/GoCodeAlone/stackplan/manifest"
)

// ComponentRef identifies a component by name and type.
type ComponentRef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// EnvVar is one environment-variable injection computed by a strategy.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// GrantEffect is the effect of an access-grant descriptor.
type GrantEffect string

const (
	EffectAllow GrantEffect = "allow"
	EffectDeny  GrantEffect = "deny"
)

// AccessGrant is a least-privilege access-grant descriptor scoped to a
// specific target resource. Strategies must never emit an unscoped
// wildcard resource.
type AccessGrant struct {
	// Effect is allow or deny.
	Effect GrantEffect `json:"effect"`

	// Actions lists the allowed action identifiers.
	Actions []string `json:"actions"`

	// Resource is the concrete resource identifier the grant is scoped
	// to (never "*").
	Resource string `json:"resource"`

	// Conditions are additional grant conditions keyed by condition name.
	Conditions map[string]string `json:"conditions,omitempty"`
}

// Direction is the direction of a network-policy rule.
type Direction string

const (
	DirectionEgress  Direction = "egress"
	DirectionIngress Direction = "ingress"
)

// PortRange is an inclusive port range.
type PortRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// NetworkRule is one network-policy rule required by a binding.
type NetworkRule struct {
	// Peer names the component or network the rule targets.
	Peer string `json:"peer"`

	// Ports is the allowed port range.
	Ports PortRange `json:"ports"`

	// Direction is egress (from the source) or ingress (to the target).
	Direction Direction `json:"direction"`
}

// ResolveInput is everything a strategy needs to compute a binding's
// injections: the directive, the target's published capability data, the
// compliance-mandated options, and the resolution scope.
type ResolveInput struct {
	// Source is the component declaring the binding.
	Source ComponentRef

	// Target is the resolved target component.
	Target ComponentRef

	// Directive is the binding directive as declared.
	Directive manifest.BindingDirective

	// Data is the target's published capability data.
	Data Data

	// Options are the compliance-mandated strategy inputs.
	Options compliance.Options

	// Environment is the target environment name.
	Environment string
}

// EnvName builds an environment-variable name from the directive's
// prefix (or the target name) and a suffix, normalized to the usual
// uppercase underscore form.
func (in *ResolveInput) EnvName(suffix string) string {
	prefix := in.Directive.EnvPrefix
	if prefix == "" {
		prefix = in.Target.Name
	}
	normalized := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", ":", "_").Replace(prefix))
	return normalized + "_" + suffix
}

// Resolution is a strategy's computed output for one binding.
type Resolution struct {
	// EnvVars are the environment-variable injections, in emit order.
	EnvVars []EnvVar

	// Grants are the least-privilege access-grant descriptors.
	Grants []AccessGrant

	// NetworkRules are the required network-policy rules.
	NetworkRules []NetworkRule
}

// Strategy computes the concrete injections for one capability kind.
// Implementations must be deterministic: identical inputs yield
// value-equal resolutions. Resolve receives a context because some
// strategies fetch additional data (e.g. a secret-reference lookup) and
// must honor cancellation.
type Strategy interface {
	// Name identifies the strategy for logs and errors.
	Name() string

	// Resolve computes the binding's injections.
	Resolve(ctx context.Context, in ResolveInput) (*Resolution, error)
}
