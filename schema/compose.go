package schema

import "fmt"

// BaseManifestSchema returns the generic manifest schema before
// composition. The component `type` enum is a placeholder; Compose
// replaces it with the registry's full type set and attaches the
// per-type config conditionals.
func BaseManifestSchema() *Document {
	componentSchema := &Document{
		Type:     "object",
		Required: []string{"name", "type"},
		Properties: map[string]*Document{
			"name": {
				Type:        "string",
				Description: "Unique name for this component",
				Pattern:     "^[a-z][a-z0-9-]*$",
			},
			"type": {
				Type:        "string",
				Description: "Component type identifier from the type registry",
			},
			"config": {
				Type:        "object",
				Description: "Component-specific configuration key/value pairs",
			},
			"binds": {
				Type:        "array",
				Description: "Capability bindings to other components",
				Items:       bindingSchema(),
			},
			"labels": {
				Type:                 "object",
				Description:          "Key/value labels used for selector matching",
				AdditionalProperties: []byte(`{"type":"string"}`),
			},
			"overrides": {
				Type:        "object",
				Description: "Values merged above config, below policy",
			},
			"policy": {
				Type:        "object",
				Description: "Non-overridable values merged last",
			},
		},
	}
	componentSchema.setAdditionalPropertiesBool(false)

	root := &Document{
		Schema:      "https://json-schema.org/draft/2020-12/schema",
		Title:       "Service Manifest",
		Description: "Declarative service manifest resolved into an execution plan",
		Type:        "object",
		Required:    []string{"service", "owner", "components"},
		Properties: map[string]*Document{
			"service": {
				Type:        "string",
				Description: "Service name",
				Pattern:     "^[a-z][a-z0-9-]*$",
			},
			"owner": {
				Type:        "string",
				Description: "Owning team or person",
				MinLength:   intPtr(1),
			},
			"complianceFramework": {
				Type:        "string",
				Description: "Declared compliance framework",
				Enum:        []string{"commercial", "moderate", "high"},
			},
			"environments": {
				Type:                 "object",
				Description:          "Per-environment default key/value overrides",
				AdditionalProperties: []byte(`{"type":"object"}`),
			},
			"components": {
				Type:        "array",
				Description: "Ordered component declarations",
				Items:       componentSchema,
				MinItems:    intPtr(1),
			},
			"governance": governanceSchema(),
			"extensions": extensionsSchema(),
		},
	}
	root.setAdditionalPropertiesBool(false)
	return root
}

// bindingSchema describes one binding directive. Exactly one of `to` and
// `select` must be present.
func bindingSchema() *Document {
	sel := &Document{
		Type:     "object",
		Required: []string{"type"},
		Properties: map[string]*Document{
			"type": {Type: "string", Description: "Required component type of the target"},
			"withLabels": {
				Type:                 "object",
				Description:          "Labels the target must carry",
				AdditionalProperties: []byte(`{"type":"string"}`),
			},
		},
	}
	sel.setAdditionalPropertiesBool(false)

	b := &Document{
		Type:     "object",
		Required: []string{"capability", "access"},
		Properties: map[string]*Document{
			"to":         {Type: "string", Description: "Target component name"},
			"select":     sel,
			"capability": {Type: "string", Description: "Namespaced capability identifier", Pattern: "^[a-z][a-z0-9-]*:[a-z][a-z0-9-]*$"},
			"access": {
				Type: "string",
				Enum: []string{"read", "write", "readwrite", "admin"},
			},
			"envPrefix": {Type: "string", Description: "Override for injected environment variable prefix"},
			"options":   {Type: "object", Description: "Strategy-specific options"},
		},
		OneOf: []*Document{
			{Required: []string{"to"}},
			{Required: []string{"select"}},
		},
	}
	b.setAdditionalPropertiesBool(false)
	return b
}

func governanceSchema() *Document {
	suppression := &Document{
		Type:     "object",
		Required: []string{"id", "justification", "owner", "expiresOn"},
		Properties: map[string]*Document{
			"id":            {Type: "string", MinLength: intPtr(1)},
			"justification": {Type: "string", MinLength: intPtr(1)},
			"owner":         {Type: "string", MinLength: intPtr(1)},
			"expiresOn":     {Type: "string", Description: "Expiry date (YYYY-MM-DD or RFC 3339)"},
			"appliesTo": {
				Type:  "array",
				Items: &Document{Type: "string"},
			},
		},
	}
	suppression.setAdditionalPropertiesBool(false)

	g := &Document{
		Type:        "object",
		Description: "Governance rules",
		Properties: map[string]*Document{
			"suppress": {
				Type:  "array",
				Items: suppression,
			},
		},
	}
	g.setAdditionalPropertiesBool(false)
	return g
}

func extensionsSchema() *Document {
	patch := &Document{
		Type:     "object",
		Required: []string{"name", "justification", "owner", "expiresOn"},
		Properties: map[string]*Document{
			"name":          {Type: "string", MinLength: intPtr(1)},
			"justification": {Type: "string", MinLength: intPtr(1)},
			"owner":         {Type: "string", MinLength: intPtr(1)},
			"expiresOn":     {Type: "string"},
		},
	}
	patch.setAdditionalPropertiesBool(false)

	e := &Document{
		Type:        "object",
		Description: "Approved deviations from platform defaults",
		Properties: map[string]*Document{
			"patches": {
				Type:  "array",
				Items: patch,
			},
		},
	}
	e.setAdditionalPropertiesBool(false)
	return e
}

// typeIfThen builds the conditional rule binding one component type to
// its config schema: when type == T, config is validated against T's
// schema and becomes structurally required.
func typeIfThen(componentType string) *Document {
	return &Document{
		If: &Document{
			Properties: map[string]*Document{
				"type": {Const: strPtr(componentType)},
			},
			Required: []string{"type"},
		},
		Then: &Document{
			Properties: map[string]*Document{
				"config": {Ref: "#/$defs/" + defKey(componentType)},
			},
			Required: []string{"config"},
		},
	}
}

// defKey is the stable internal definition key for a component type's
// config schema.
func defKey(componentType string) string {
	return componentType + "Config"
}

// Compose builds the master validation schema from a base manifest schema
// and the registry's per-type config schemas. Composition is pure: the
// inputs are not mutated, and composing the same inputs twice yields
// schema-equal output. The base schema must declare a components array
// whose item schema has a type property; anything else is an error.
func Compose(base *Document, registry TypeRegistry) (*Document, error) {
	master := base.Clone()
	componentSchema, err := componentItemsSchema(master)
	if err != nil {
		return nil, err
	}
	types := registry.Types()

	if master.Definitions == nil {
		master.Definitions = make(map[string]*Document, len(types))
	}

	// Restrict the generic type placeholder to the known type set.
	componentSchema.Properties["type"].Enum = types

	allOf := make([]*Document, 0, len(types))
	for _, t := range types {
		cfg, ok := registry.ConfigSchema(t)
		if !ok {
			continue
		}
		master.Definitions[defKey(t)] = cfg.Clone()
		allOf = append(allOf, typeIfThen(t))
	}
	if len(allOf) > 0 {
		componentSchema.AllOf = allOf
	}
	return master, nil
}

// componentItemsSchema locates the per-component schema that Compose
// extends, verifying the base-schema contract along the way.
func componentItemsSchema(master *Document) (*Document, error) {
	components, ok := master.Properties["components"]
	if !ok || components.Items == nil {
		return nil, fmt.Errorf("schema: base schema must declare a components array with an items schema")
	}
	if _, ok := components.Items.Properties["type"]; !ok {
		return nil, fmt.Errorf("schema: base component schema must declare a type property")
	}
	return components.Items, nil
}
