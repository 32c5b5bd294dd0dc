// Package capability defines the capability data model published by the
// external component synthesizer, the strategy contract that turns a
// binding directive plus capability data into concrete injections, and
// the strategy registry with its exact-then-wildcard lookup.
package capability

import (
	"context"
	"fmt"
)

// Data describes a target component's externally observable shape, as
// published by the synthesizer after the component was instantiated.
// It is discriminated by Type and never mutated by the resolution core.
type Data struct {
	// Type is the capability namespace this data satisfies
	// (e.g. "queue:sqs", "storage:s3", "db:postgres").
	Type string `json:"type"`

	// Endpoint is the network endpoint of the resource, when it has one.
	Endpoint Endpoint `json:"endpoint,omitempty"`

	// Resources maps logical identifier names to concrete resource
	// identifiers (e.g. "arn", "url", "name").
	Resources map[string]string `json:"resources,omitempty"`

	// Secrets maps logical secret names to references into the secret
	// store; values are never inlined.
	Secrets map[string]SecretRef `json:"secrets,omitempty"`

	// RequiresTLS is true when the capability mandates TLS transport.
	RequiresTLS bool `json:"requiresTLS,omitempty"`
}

// Resource returns the identifier registered under the given logical
// name, or an error naming what is missing.
func (d *Data) Resource(name string) (string, error) {
	id, ok := d.Resources[name]
	if !ok || id == "" {
		return "", fmt.Errorf("capability data for %q has no %q resource identifier", d.Type, name)
	}
	return id, nil
}

// Endpoint is a network endpoint of a synthesized resource.
type Endpoint struct {
	// Scheme is the URI scheme (e.g. "https", "postgres", "redis").
	Scheme string `json:"scheme,omitempty"`

	// Host is the hostname or address.
	Host string `json:"host,omitempty"`

	// Port is the listening port; 0 when not applicable.
	Port int `json:"port,omitempty"`

	// SupportsTLS is true when the endpoint can speak TLS.
	SupportsTLS bool `json:"supportsTLS,omitempty"`
}

// SecretRef points at a secret value held by the surrounding platform's
// secret store.
type SecretRef struct {
	// Store identifies the secret backend (e.g. "vault", "ssm").
	Store string `json:"store"`

	// Key is the backend-specific secret path or identifier.
	Key string `json:"key"`
}

// String renders the reference for env-var injection without revealing
// any secret material.
func (s SecretRef) String() string {
	return s.Store + "://" + s.Key
}

// Source supplies the already-published capability data for a component.
// It is the boundary to the external synthesizer: the resolution core
// only consumes published records and never triggers synthesis.
type Source interface {
	// CapabilityData returns the published data for the named component.
	// A nil record with nil error means nothing has been published.
	CapabilityData(ctx context.Context, componentName string) (*Data, error)
}

// StaticSource is an in-memory Source keyed by component name.
type StaticSource map[string]*Data

// CapabilityData implements Source.
func (s StaticSource) CapabilityData(_ context.Context, componentName string) (*Data, error) {
	return s[componentName], nil
}
