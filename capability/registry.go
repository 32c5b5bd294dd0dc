package capability

import (
	"fmt"
	"sort"
	"sync"
)

// WildcardSourceType matches any source component type in a registry
// entry.
const WildcardSourceType = "*"

// NoStrategyFoundError reports that no strategy is registered for a
// (source type, capability) pair, neither exactly nor via the wildcard
// source type.
type NoStrategyFoundError struct {
	// SourceType is the binding's source component type.
	SourceType string

	// Capability is the requested capability identifier.
	Capability string
}

// Error implements the error interface.
func (e *NoStrategyFoundError) Error() string {
	return fmt.Sprintf("no binding strategy registered for source type %q and capability %q",
		e.SourceType, e.Capability)
}

// registryKey is the two-level lookup key: exact source type first, then
// the wildcard source type for the same capability.
type registryKey struct {
	sourceType string
	capability string
}

// Registry maps (source component type, capability) pairs to strategies.
// Lookup tries the exact pair first and falls back to the wildcard
// source type. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[registryKey]Strategy
}

// NewRegistry creates an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[registryKey]Strategy)}
}

// Register adds a strategy for a (source type, capability) pair. Use
// WildcardSourceType to match any source type. Registering the same pair
// twice is an error; the registry is a closed, enumerable contract.
func (r *Registry) Register(sourceType, capabilityName string, s Strategy) error {
	if capabilityName == "" {
		return fmt.Errorf("capability: registration requires a capability name")
	}
	if sourceType == "" {
		return fmt.Errorf("capability: registration requires a source type (use %q for any)", WildcardSourceType)
	}
	if s == nil {
		return fmt.Errorf("capability: nil strategy for %q/%q", sourceType, capabilityName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{sourceType: sourceType, capability: capabilityName}
	if existing, ok := r.entries[key]; ok {
		return fmt.Errorf("capability: strategy %q already registered for %q/%q",
			existing.Name(), sourceType, capabilityName)
	}
	r.entries[key] = s
	return nil
}

// Lookup resolves the strategy for a source type and capability: exact
// match first, wildcard source type second, otherwise
// NoStrategyFoundError.
func (r *Registry) Lookup(sourceType, capabilityName string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.entries[registryKey{sourceType: sourceType, capability: capabilityName}]; ok {
		return s, nil
	}
	if s, ok := r.entries[registryKey{sourceType: WildcardSourceType, capability: capabilityName}]; ok {
		return s, nil
	}
	return nil, &NoStrategyFoundError{SourceType: sourceType, Capability: capabilityName}
}

// Capabilities returns every capability with at least one registered
// strategy, sorted.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for key := range r.entries {
		seen[key.capability] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// NewDefaultRegistry returns a registry preloaded with the built-in
// strategies, each registered under the wildcard source type.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range builtinStrategies() {
		for _, c := range s.capabilities {
			if err := r.Register(WildcardSourceType, c, s.strategy); err != nil {
				panic("capability: built-in registration cannot collide: " + err.Error())
			}
		}
	}
	return r
}

// builtinEntry pairs a strategy with the capabilities it serves.
type builtinEntry struct {
	strategy     Strategy
	capabilities []string
}

func builtinStrategies() []builtinEntry {
	return []builtinEntry{
		{strategy: &QueueStrategy{}, capabilities: []string{"queue:sqs"}},
		{strategy: &ObjectStoreStrategy{}, capabilities: []string{"storage:s3"}},
		{strategy: &DatabaseStrategy{}, capabilities: []string{"db:postgres"}},
		{strategy: &CacheStrategy{}, capabilities: []string{"cache:redis"}},
		{strategy: &HTTPServiceStrategy{}, capabilities: []string{"http:service"}},
	}
}
