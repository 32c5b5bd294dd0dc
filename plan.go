package stackplan

import (
	"github.com/GoCodeAlone/stackplan/bind"
	"github.com/GoCodeAlone/stackplan/compliance"
	"github.com/GoCodeAlone/stackplan/manifest"
)

// Plan is the core's sole output artifact: the manifest with every
// component's configuration fully merged and interpolated for one
// environment, plus every resolved binding result, both in original
// declaration order. Rendering, diffing, and persisting the plan belong
// to downstream consumers.
type Plan struct {
	// Service is the service name.
	Service string `json:"service"`

	// Owner is the declared owner.
	Owner string `json:"owner"`

	// Environment is the environment the plan was resolved for.
	Environment string `json:"environment"`

	// Framework is the effective compliance framework.
	Framework compliance.Framework `json:"framework"`

	// Components are the hydrated component specs in declaration order.
	Components []manifest.ComponentSpec `json:"components"`

	// Bindings are the resolved binding results in declaration order.
	Bindings []*bind.Result `json:"bindings"`
}

// Component returns the hydrated component with the given name, or nil.
func (p *Plan) Component(name string) *manifest.ComponentSpec {
	for i := range p.Components {
		if p.Components[i].Name == name {
			return &p.Components[i]
		}
	}
	return nil
}

// Binding returns the first binding result between source and target
// for the given capability, or nil.
func (p *Plan) Binding(source, target, capabilityName string) *bind.Result {
	for _, b := range p.Bindings {
		meta := b.Metadata()
		if meta.Source == source && meta.Target == target && meta.Capability == capabilityName {
			return b
		}
	}
	return nil
}
