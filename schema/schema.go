// Package schema builds and applies the master validation schema for
// service manifests. It composes a base manifest schema with the
// per-component-type config schemas exposed by a type registry, binding
// each declared component type to its own config schema via conditional
// rules, and validates parsed manifest trees against the compiled result.
package schema

import (
	"bytes"
	"encoding/json"
)

// Document represents a JSON Schema document. Only the keywords the
// composer and the built-in type schemas need are modeled; the compiled
// validator understands the full dialect.
type Document struct {
	Schema               string               `json:"$schema,omitempty"`
	Title                string               `json:"title,omitempty"`
	Description          string               `json:"description,omitempty"`
	Type                 string               `json:"type,omitempty"`
	Required             []string             `json:"required,omitempty"`
	Properties           map[string]*Document `json:"properties,omitempty"`
	Items                *Document            `json:"items,omitempty"`
	Enum                 []string             `json:"enum,omitempty"`
	Const                *string              `json:"const,omitempty"`
	AdditionalProperties json.RawMessage      `json:"additionalProperties,omitempty"`
	AnyOf                []*Document          `json:"anyOf,omitempty"`
	OneOf                []*Document          `json:"oneOf,omitempty"`
	AllOf                []*Document          `json:"allOf,omitempty"`
	If                   *Document            `json:"if,omitempty"`
	Then                 *Document            `json:"then,omitempty"`
	Default              any                  `json:"default,omitempty"`
	MinItems             *int                 `json:"minItems,omitempty"`
	MinLength            *int                 `json:"minLength,omitempty"`
	Minimum              *float64             `json:"minimum,omitempty"`
	Maximum              *float64             `json:"maximum,omitempty"`
	Pattern              string               `json:"pattern,omitempty"`
	Definitions          map[string]*Document `json:"$defs,omitempty"`
	Ref                  string               `json:"$ref,omitempty"`
}

// setAdditionalPropertiesBool sets additionalProperties to a boolean value.
func (d *Document) setAdditionalPropertiesBool(v bool) {
	if v {
		d.AdditionalProperties = json.RawMessage(`true`)
	} else {
		d.AdditionalProperties = json.RawMessage(`false`)
	}
}

// Clone returns a deep copy of the document via JSON round-tripping.
func (d *Document) Clone() *Document {
	data, err := json.Marshal(d)
	if err != nil {
		panic("schema: marshal of Document cannot fail: " + err.Error())
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		panic("schema: unmarshal of Document cannot fail: " + err.Error())
	}
	return &out
}

// Equal reports whether two documents are schema-equal, i.e. their
// canonical JSON serializations match.
func (d *Document) Equal(other *Document) bool {
	a, err := json.Marshal(d)
	if err != nil {
		return false
	}
	b, err := json.Marshal(other)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// intPtr is a convenience for optional integer keywords.
func intPtr(v int) *int { return &v }

// strPtr is a convenience for the const keyword.
func strPtr(v string) *string { return &v }
