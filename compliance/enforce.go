package compliance

import (
	"fmt"
	"log/slog"

	"github.com/GoCodeAlone/stackplan/manifest"
)

// Options are the compliance-mandated strategy inputs for one binding.
// The enforcer computes them before strategy dispatch; strategies must
// honor every set option.
type Options struct {
	// RequireTLS forces the connection settings the strategy emits to
	// use TLS.
	RequireTLS bool

	// PrivateNetworkOnly restricts emitted network rules to the private
	// network peer.
	PrivateNetworkOnly bool

	// RequireEncryptionAtRest records that the target must encrypt data
	// at rest; strategies surface it as a grant condition.
	RequireEncryptionAtRest bool
}

// Action records one compliance decision taken while enforcing a binding,
// for audit reporting in the binding result.
type Action struct {
	// Requirement is the machine identifier of the rule applied
	// (e.g. "tls-required", "private-network-only").
	Requirement string `json:"requirement"`

	// Description explains what the enforcer did.
	Description string `json:"description"`
}

// ViolationError reports a binding that a compliance framework rejects
// outright.
type ViolationError struct {
	// Framework is the active framework.
	Framework Framework

	// Requirement is the violated requirement identifier.
	Requirement string

	// Source and Target name the binding's endpoints.
	Source string
	Target string

	// Detail explains the violation.
	Detail string
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	return fmt.Sprintf("compliance violation under framework %q: binding %s -> %s violates %q: %s",
		e.Framework, e.Source, e.Target, e.Requirement, e.Detail)
}

// BindingCheck carries the binding facts the enforcer needs. The caller
// extracts them from the directive and the target's capability data so
// this package stays independent of the capability model.
type BindingCheck struct {
	// Source and Target are the component names.
	Source string
	Target string

	// Capability is the requested capability identifier.
	Capability string

	// Access is the requested access level.
	Access manifest.AccessLevel

	// TargetRequiresTLS is true when the target capability mandates TLS.
	TargetRequiresTLS bool

	// TargetSupportsTLS is true when the target endpoint can speak TLS.
	TargetSupportsTLS bool

	// DirectiveTLS is the directive's explicit tls option; nil when the
	// directive does not mention TLS.
	DirectiveTLS *bool
}

// Enforcer applies framework rules to bindings. It runs before strategy
// dispatch and either adjusts the strategy inputs or rejects the binding.
type Enforcer struct {
	logger *slog.Logger
}

// NewEnforcer creates an Enforcer. A nil logger falls back to
// slog.Default.
func NewEnforcer(logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{logger: logger}
}

// EnforceBinding computes the compliance options for one binding under
// the given framework, or rejects it with a ViolationError. The returned
// actions record every adjustment made, in a stable order.
func (e *Enforcer) EnforceBinding(f Framework, check BindingCheck) (Options, []Action, error) {
	var opts Options
	var actions []Action

	if !f.AtLeast(FrameworkModerate) {
		return opts, actions, nil
	}

	// An explicit tls:false against a TLS-mandating target can never be
	// honored at moderate or above.
	if check.TargetRequiresTLS && check.DirectiveTLS != nil && !*check.DirectiveTLS {
		return Options{}, nil, &ViolationError{
			Framework:   f,
			Requirement: "tls-required",
			Source:      check.Source,
			Target:      check.Target,
			Detail:      fmt.Sprintf("capability %q mandates TLS but the directive disables it", check.Capability),
		}
	}

	if f.AtLeast(FrameworkHigh) {
		// At high strictness an omitted TLS option is a rejection, not a
		// silent upgrade: the manifest must state its transport intent.
		if check.TargetRequiresTLS && check.DirectiveTLS == nil {
			return Options{}, nil, &ViolationError{
				Framework:   f,
				Requirement: "tls-required",
				Source:      check.Source,
				Target:      check.Target,
				Detail:      fmt.Sprintf("capability %q mandates TLS but the directive omits the tls option", check.Capability),
			}
		}
		if check.Access == manifest.AccessAdmin {
			return Options{}, nil, &ViolationError{
				Framework:   f,
				Requirement: "least-privilege",
				Source:      check.Source,
				Target:      check.Target,
				Detail:      "admin access is not permitted under the high framework",
			}
		}
	}

	if check.TargetSupportsTLS || check.TargetRequiresTLS {
		opts.RequireTLS = true
		actions = append(actions, Action{
			Requirement: "tls-required",
			Description: "forced TLS for the connection settings",
		})
	}

	if f.AtLeast(FrameworkHigh) {
		opts.PrivateNetworkOnly = true
		actions = append(actions, Action{
			Requirement: "private-network-only",
			Description: "restricted network rules to the private network",
		})
		opts.RequireEncryptionAtRest = true
		actions = append(actions, Action{
			Requirement: "encryption-at-rest",
			Description: "required encryption at rest on the target resource",
		})
	}

	e.logger.Debug("compliance enforcement applied",
		"framework", string(f),
		"source", check.Source,
		"target", check.Target,
		"requireTLS", opts.RequireTLS,
		"privateNetworkOnly", opts.PrivateNetworkOnly)

	return opts, actions, nil
}
