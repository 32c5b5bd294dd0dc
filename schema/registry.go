package schema

import (
	"log/slog"
	"sort"
	"sync"
)

// TypeRegistry is the source of truth for the set of valid component
// types. It exposes each type's config schema for master-schema
// composition and its fallback config defaults for hydration.
type TypeRegistry interface {
	// Types returns all registered component types, sorted.
	Types() []string

	// ConfigSchema returns the config schema for a component type.
	ConfigSchema(componentType string) (*Document, bool)

	// DefaultConfig returns the hardcoded fallback configuration for a
	// component type, the lowest layer of the merge chain. May be nil.
	DefaultConfig(componentType string) map[string]any
}

// TypeDefinition bundles everything the registry tracks for one
// component type.
type TypeDefinition struct {
	// Type is the component type identifier (e.g. "queue", "database").
	Type string

	// ConfigSchema validates the component's config block.
	ConfigSchema *Document

	// DefaultConfig is the hardcoded fallback configuration.
	DefaultConfig map[string]any
}

// StaticTypeRegistry is an in-memory TypeRegistry. Registration of a
// duplicate type keeps the first definition and logs a warning; callers
// never see the later one. It is safe for concurrent use.
type StaticTypeRegistry struct {
	mu     sync.RWMutex
	defs   map[string]TypeDefinition
	logger *slog.Logger
}

// NewStaticTypeRegistry creates an empty registry. A nil logger falls
// back to slog.Default.
func NewStaticTypeRegistry(logger *slog.Logger) *StaticTypeRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaticTypeRegistry{
		defs:   make(map[string]TypeDefinition),
		logger: logger,
	}
}

// Register adds a type definition. The first registration for a type
// wins; later ones are ignored with a warning.
func (r *StaticTypeRegistry) Register(def TypeDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Type]; exists {
		r.logger.Warn("duplicate component type registration ignored",
			"type", def.Type)
		return
	}
	r.defs[def.Type] = def
}

// Types returns all registered component types, sorted.
func (r *StaticTypeRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.defs))
	for t := range r.defs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ConfigSchema returns the config schema for a component type.
func (r *StaticTypeRegistry) ConfigSchema(componentType string) (*Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[componentType]
	if !ok || def.ConfigSchema == nil {
		return nil, false
	}
	return def.ConfigSchema, true
}

// DefaultConfig returns the fallback configuration for a component type.
func (r *StaticTypeRegistry) DefaultConfig(componentType string) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defs[componentType].DefaultConfig
}

// NewDefaultTypeRegistry returns a registry preloaded with the built-in
// component types.
func NewDefaultTypeRegistry(logger *slog.Logger) *StaticTypeRegistry {
	r := NewStaticTypeRegistry(logger)
	for _, def := range builtinTypes() {
		r.Register(def)
	}
	return r
}

// builtinTypes defines the component types shipped with the engine.
func builtinTypes() []TypeDefinition {
	return []TypeDefinition{
		{
			Type: "service",
			ConfigSchema: &Document{
				Type: "object",
				Properties: map[string]*Document{
					"image":    {Type: "string", Description: "Container image reference"},
					"port":     {Type: "number", Description: "Listening port", Minimum: floatPtr(1), Maximum: floatPtr(65535)},
					"replicas": {Type: "number", Description: "Desired replica count", Minimum: floatPtr(0)},
					"cpu":      {Type: "string", Description: "CPU request (e.g. \"250m\")"},
					"memory":   {Type: "string", Description: "Memory request (e.g. \"512Mi\")"},
					"env":      {Type: "object", Description: "Static environment variables"},
					"public":   {Type: "boolean", Description: "Expose the service outside the private network"},
				},
				Required: []string{"image"},
			},
			DefaultConfig: map[string]any{
				"replicas": 1,
				"cpu":      "250m",
				"memory":   "512Mi",
				"public":   false,
			},
		},
		{
			Type: "worker",
			ConfigSchema: &Document{
				Type: "object",
				Properties: map[string]*Document{
					"image":       {Type: "string", Description: "Container image reference"},
					"replicas":    {Type: "number", Minimum: floatPtr(0)},
					"concurrency": {Type: "number", Description: "Messages processed in parallel", Minimum: floatPtr(1)},
					"env":         {Type: "object"},
				},
				Required: []string{"image"},
			},
			DefaultConfig: map[string]any{
				"replicas":    1,
				"concurrency": 4,
			},
		},
		{
			Type: "queue",
			ConfigSchema: &Document{
				Type: "object",
				Properties: map[string]*Document{
					"visibilityTimeout": {Type: "string", Description: "Message visibility timeout (e.g. \"30s\")"},
					"fifo":              {Type: "boolean", Description: "First-in-first-out delivery"},
					"dlq":               {Type: "boolean", Description: "Provision a dead-letter queue"},
					"retentionDays":     {Type: "number", Minimum: floatPtr(1), Maximum: floatPtr(14)},
				},
			},
			DefaultConfig: map[string]any{
				"visibilityTimeout": "30s",
				"fifo":              false,
				"dlq":               true,
				"retentionDays":     4,
			},
		},
		{
			Type: "bucket",
			ConfigSchema: &Document{
				Type: "object",
				Properties: map[string]*Document{
					"versioning": {Type: "boolean", Description: "Keep object versions"},
					"encryption": {Type: "string", Enum: []string{"none", "sse", "kms"}},
					"publicRead": {Type: "boolean"},
				},
			},
			DefaultConfig: map[string]any{
				"versioning": false,
				"encryption": "sse",
				"publicRead": false,
			},
		},
		{
			Type: "database",
			ConfigSchema: &Document{
				Type: "object",
				Properties: map[string]*Document{
					"engine":    {Type: "string", Enum: []string{"postgres", "mysql"}},
					"version":   {Type: "string"},
					"storageGB": {Type: "number", Minimum: floatPtr(5)},
					"multiAZ":   {Type: "boolean"},
					"encrypted": {Type: "boolean"},
				},
			},
			DefaultConfig: map[string]any{
				"engine":    "postgres",
				"storageGB": 20,
				"multiAZ":   false,
				"encrypted": true,
			},
		},
		{
			Type: "cache",
			ConfigSchema: &Document{
				Type: "object",
				Properties: map[string]*Document{
					"engine":   {Type: "string", Enum: []string{"redis"}},
					"memoryMB": {Type: "number", Minimum: floatPtr(64)},
					"replicas": {Type: "number", Minimum: floatPtr(0)},
				},
			},
			DefaultConfig: map[string]any{
				"engine":   "redis",
				"memoryMB": 256,
				"replicas": 0,
			},
		},
	}
}

// floatPtr is a convenience for numeric bounds.
func floatPtr(v float64) *float64 { return &v }
