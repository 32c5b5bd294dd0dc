// Package bind resolves validated binding directives into immutable
// binding results: environment-variable injections, least-privilege
// access grants, and network-policy rules, each stamped with a
// deterministic binding identifier for audit correlation.
package bind

import (
	"github.com/GoCodeAlone/stackplan/capability"
	"github.com/GoCodeAlone/stackplan/compliance"
	"github.com/GoCodeAlone/stackplan/manifest"
)

// State is a binding resolution state. Resolution advances strictly
// Pending -> ResolvingTargetData -> StrategySelected -> ComplianceChecked
// -> Resolved; any failure moves to Rejected and fails the resolution.
type State string

const (
	StatePending           State = "pending"
	StateResolvingData     State = "resolving-target-data"
	StateStrategySelected  State = "strategy-selected"
	StateComplianceChecked State = "compliance-checked"
	StateResolved          State = "resolved"
	StateRejected          State = "rejected"
)

// Metadata identifies a binding result for audit correlation.
type Metadata struct {
	// BindingID is the deterministic identifier: a stable function of
	// (source, target, capability, access, framework, environment).
	BindingID string `json:"bindingId"`

	// Source and Target are the component names.
	Source string `json:"source"`
	Target string `json:"target"`

	// Capability is the bound capability identifier.
	Capability string `json:"capability"`

	// Access is the granted access level.
	Access manifest.AccessLevel `json:"access"`

	// Framework is the compliance framework the binding was resolved
	// under.
	Framework compliance.Framework `json:"framework"`

	// Environment is the target environment.
	Environment string `json:"environment"`

	// Strategy names the strategy that computed the result.
	Strategy string `json:"strategy"`
}

// Result is the immutable outcome of resolving one binding. It is
// frozen on construction: accessors return copies, and a re-resolution
// of the same inputs produces a new, value-equal result rather than
// mutating this one.
type Result struct {
	meta         Metadata
	envVars      []capability.EnvVar
	grants       []capability.AccessGrant
	networkRules []capability.NetworkRule
	actions      []compliance.Action
}

// newResult freezes a strategy resolution into a Result, deep-copying
// every slice and map so no later mutation of the inputs can leak in.
func newResult(meta Metadata, res *capability.Resolution, actions []compliance.Action) *Result {
	return &Result{
		meta:         meta,
		envVars:      copyEnvVars(res.EnvVars),
		grants:       copyGrants(res.Grants),
		networkRules: copyRules(res.NetworkRules),
		actions:      append([]compliance.Action(nil), actions...),
	}
}

// Metadata returns the result's identifying metadata.
func (r *Result) Metadata() Metadata { return r.meta }

// EnvVars returns the environment-variable injections, in emit order.
func (r *Result) EnvVars() []capability.EnvVar { return copyEnvVars(r.envVars) }

// Grants returns the access-grant descriptors.
func (r *Result) Grants() []capability.AccessGrant { return copyGrants(r.grants) }

// NetworkRules returns the network-policy rules.
func (r *Result) NetworkRules() []capability.NetworkRule { return copyRules(r.networkRules) }

// ComplianceActions returns the compliance actions taken during
// enforcement, in application order.
func (r *Result) ComplianceActions() []compliance.Action {
	return append([]compliance.Action(nil), r.actions...)
}

func copyEnvVars(in []capability.EnvVar) []capability.EnvVar {
	return append([]capability.EnvVar(nil), in...)
}

func copyGrants(in []capability.AccessGrant) []capability.AccessGrant {
	out := make([]capability.AccessGrant, len(in))
	for i, g := range in {
		out[i] = g
		out[i].Actions = append([]string(nil), g.Actions...)
		if g.Conditions != nil {
			conds := make(map[string]string, len(g.Conditions))
			for k, v := range g.Conditions {
				conds[k] = v
			}
			out[i].Conditions = conds
		}
	}
	return out
}

func copyRules(in []capability.NetworkRule) []capability.NetworkRule {
	return append([]capability.NetworkRule(nil), in...)
}
