// Package compliance models the ordered compliance frameworks that govern
// default configuration and binding constraints. Frameworks form a strict
// order (commercial < moderate < high); stricter frameworks layer
// additional configuration defaults and binding requirements on top of
// the weaker ones.
package compliance

import "fmt"

// Framework identifies a compliance framework strictness level.
type Framework string

const (
	// FrameworkCommercial is the least strict framework and the default
	// when a manifest declares none.
	FrameworkCommercial Framework = "commercial"

	// FrameworkModerate adds transport-security and durability defaults.
	FrameworkModerate Framework = "moderate"

	// FrameworkHigh is the strictest framework: private networking,
	// mandatory TLS, and least-privilege enforcement.
	FrameworkHigh Framework = "high"
)

// frameworkRank orders frameworks from least to most strict.
var frameworkRank = map[Framework]int{
	FrameworkCommercial: 0,
	FrameworkModerate:   1,
	FrameworkHigh:       2,
}

// Valid reports whether the framework is a known level.
func (f Framework) Valid() bool {
	_, ok := frameworkRank[f]
	return ok
}

// AtLeast reports whether f is at least as strict as other.
func (f Framework) AtLeast(other Framework) bool {
	return frameworkRank[f] >= frameworkRank[other]
}

// Frameworks returns all frameworks in ascending strictness order.
func Frameworks() []Framework {
	return []Framework{FrameworkCommercial, FrameworkModerate, FrameworkHigh}
}

// Parse resolves a declared framework name. The empty string resolves to
// the least strict framework.
func Parse(name string) (Framework, error) {
	if name == "" {
		return FrameworkCommercial, nil
	}
	f := Framework(name)
	if !f.Valid() {
		return "", fmt.Errorf("unknown compliance framework %q (valid: commercial, moderate, high)", name)
	}
	return f, nil
}

// moderateDefaults are the per-type configuration defaults layered in at
// moderate strictness and above.
var moderateDefaults = map[string]map[string]any{
	"database": {
		"encrypted": true,
	},
	"bucket": {
		"encryption": "sse",
		"publicRead": false,
	},
	"queue": {
		"dlq": true,
	},
}

// highDefaults are layered on top of moderateDefaults at high strictness.
var highDefaults = map[string]map[string]any{
	"database": {
		"encrypted": true,
		"multiAZ":   true,
	},
	"bucket": {
		"encryption": "kms",
		"publicRead": false,
	},
	"service": {
		"public": false,
	},
	"cache": {
		"replicas": 1,
	},
}

// DefaultsFor returns the configuration defaults a framework imposes on a
// component type. The result is a fresh map; callers may merge it freely.
// Stricter frameworks include the weaker frameworks' defaults.
func DefaultsFor(f Framework, componentType string) map[string]any {
	out := make(map[string]any)
	if f.AtLeast(FrameworkModerate) {
		for k, v := range moderateDefaults[componentType] {
			out[k] = v
		}
	}
	if f.AtLeast(FrameworkHigh) {
		for k, v := range highDefaults[componentType] {
			out[k] = v
		}
	}
	return out
}
