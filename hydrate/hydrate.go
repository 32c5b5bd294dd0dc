package hydrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/GoCodeAlone/stackplan/compliance"
	"github.com/GoCodeAlone/stackplan/manifest"
	"github.com/GoCodeAlone/stackplan/schema"
)

// defaultConcurrency bounds per-component hydration workers when the
// caller does not set a limit.
const defaultConcurrency = 4

// envFallbackKey is the designated fallback entry of a per-environment
// map, honored only when Options.AllowEnvFallback is set.
const envFallbackKey = "default"

// UnknownEnvironmentError reports a target environment the manifest does
// not declare.
type UnknownEnvironmentError struct {
	// Name is the requested environment.
	Name string

	// Declared lists the manifest's environments, sorted.
	Declared []string
}

// Error implements the error interface.
func (e *UnknownEnvironmentError) Error() string {
	return fmt.Sprintf("environment %q is not declared in the manifest (declared: %s)",
		e.Name, strings.Join(e.Declared, ", "))
}

// NonMappingConfigError reports a component block that resolved to a
// scalar or list where a configuration mapping is required, e.g. a
// config block that is itself a per-environment map with scalar
// entries.
type NonMappingConfigError struct {
	// Component is the owning component name, stamped by the hydrator.
	Component string

	// Block names the offending block: "config", "overrides", or
	// "policy".
	Block string

	// Value is the resolved non-mapping value.
	Value any
}

// Error implements the error interface.
func (e *NonMappingConfigError) Error() string {
	return fmt.Sprintf("%s block resolved to %T (%v); a key/value mapping is required",
		e.Block, e.Value, e.Value)
}

// Options configures hydration.
type Options struct {
	// Registry supplies per-type fallback defaults (merge layer 1).
	// Required.
	Registry schema.TypeRegistry

	// PlatformDefaults is the platform-wide default configuration
	// (merge layer 3). May be nil.
	PlatformDefaults map[string]any

	// AllowEnvFallback selects the "default" entry of a per-environment
	// map when the target environment has none. Off by default: a
	// missing entry is a hard error.
	AllowEnvFallback bool

	// Concurrency bounds the per-component worker pool; <= 0 means the
	// package default.
	Concurrency int

	// Logger receives hydration progress; nil falls back to
	// slog.Default.
	Logger *slog.Logger
}

// Result is the hydrated manifest for one target environment: every
// component's config fully merged and interpolated, with zero remaining
// interpolation tokens.
type Result struct {
	// Manifest is a new manifest value; the input is never mutated.
	Manifest *manifest.Manifest

	// Environment is the target environment name.
	Environment string

	// Framework is the effective compliance framework.
	Framework compliance.Framework
}

// Hydrate resolves the manifest for the target environment. Component
// hydration units are independent and run under a bounded worker pool;
// the output preserves declaration order regardless of execution order.
func Hydrate(ctx context.Context, m *manifest.Manifest, environment string, opts Options) (*Result, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("hydrate: Options.Registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if len(m.Environments) > 0 {
		if _, ok := m.Environments[environment]; !ok {
			return nil, &UnknownEnvironmentError{Name: environment, Declared: m.EnvironmentNames()}
		}
	}

	framework, err := compliance.Parse(m.ComplianceFramework)
	if err != nil {
		return nil, err
	}

	envDefaults := m.Environments[environment]
	it := &interpolator{environment: environment, envDefaults: envDefaults}
	envNames := make(map[string]bool, len(m.Environments))
	for name := range m.Environments {
		envNames[name] = true
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	hydrated := make([]manifest.ComponentSpec, len(m.Components))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range m.Components {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			spec, err := hydrateComponent(&m.Components[i], it, envNames, framework, environment, opts)
			if err != nil {
				name := m.Components[i].Name
				return fmt.Errorf("component %q: %w", name, tagComponent(err, name))
			}
			hydrated[i] = *spec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &manifest.Manifest{
		Service:             m.Service,
		Owner:               m.Owner,
		ComplianceFramework: string(framework),
		Environments:        m.Environments,
		Components:          hydrated,
		Governance:          m.Governance,
		Extensions:          m.Extensions,
	}

	logger.Debug("manifest hydrated",
		"service", m.Service,
		"environment", environment,
		"framework", string(framework),
		"components", len(hydrated))

	return &Result{Manifest: out, Environment: environment, Framework: framework}, nil
}

// hydrateComponent resolves one component: per-environment selection,
// token interpolation, and the five-layer merge.
func hydrateComponent(c *manifest.ComponentSpec, it *interpolator, envNames map[string]bool, framework compliance.Framework, environment string, opts Options) (*manifest.ComponentSpec, error) {
	resolve := func(block string, m map[string]any) (map[string]any, error) {
		if m == nil {
			return nil, nil
		}
		selected, err := selectEnvEntries(copyMap(m), environment, envNames, opts.AllowEnvFallback)
		if err != nil {
			return nil, err
		}
		resolved, err := it.resolveValue(selected)
		if err != nil {
			return nil, err
		}
		// A block that is itself a per-environment map may have
		// resolved to a scalar or list entry.
		out, ok := resolved.(map[string]any)
		if !ok {
			return nil, &NonMappingConfigError{Block: block, Value: resolved}
		}
		return out, nil
	}

	config, err := resolve("config", c.Config)
	if err != nil {
		return nil, err
	}
	overrides, err := resolve("overrides", c.Overrides)
	if err != nil {
		return nil, err
	}
	policy, err := resolve("policy", c.Policy)
	if err != nil {
		return nil, err
	}

	merged := mergeLayers(
		copyMap(opts.Registry.DefaultConfig(c.Type)),
		compliance.DefaultsFor(framework, c.Type),
		copyMap(opts.PlatformDefaults),
		copyMap(it.envDefaults),
		config,
		overrides,
	)
	// Policy entries are applied last; no lower layer can override them.
	merged = deepMerge(merged, policy)

	if token := findToken(merged); token != "" {
		return nil, &UnresolvedInterpolationError{
			Key:    token,
			Token:  token,
			Detail: "token survived hydration",
		}
	}

	out := &manifest.ComponentSpec{
		Name:      c.Name,
		Type:      c.Type,
		Config:    merged,
		Binds:     append([]manifest.BindingDirective(nil), c.Binds...),
		Labels:    c.Labels,
		Overrides: overrides,
		Policy:    policy,
	}
	return out, nil
}

// tagComponent stamps the owning component name onto the hydration
// errors that carry one.
func tagComponent(err error, name string) error {
	var ie *UnresolvedInterpolationError
	if errors.As(err, &ie) && ie.Component == "" {
		ie.Component = name
	}
	var ce *NonMappingConfigError
	if errors.As(err, &ce) && ce.Component == "" {
		ce.Component = name
	}
	return err
}

// selectEnvEntries replaces per-environment maps (maps whose keys are
// all declared environment names, optionally plus "default") with the
// entry for the target environment. A missing entry is a hard error
// unless fallback is enabled and a "default" entry exists.
func selectEnvEntries(v any, environment string, envNames map[string]bool, allowFallback bool) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if isPerEnvMap(val, envNames) {
			entry, ok := val[environment]
			if !ok {
				if allowFallback {
					if fb, hasFB := val[envFallbackKey]; hasFB {
						return selectEnvEntries(fb, environment, envNames, allowFallback)
					}
				}
				return nil, &UnresolvedInterpolationError{
					Key:    environment,
					Detail: fmt.Sprintf("per-environment map has entries only for %s", strings.Join(mapKeys(val), ", ")),
				}
			}
			return selectEnvEntries(entry, environment, envNames, allowFallback)
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			selected, err := selectEnvEntries(item, environment, envNames, allowFallback)
			if err != nil {
				return nil, err
			}
			out[k] = selected
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			selected, err := selectEnvEntries(item, environment, envNames, allowFallback)
			if err != nil {
				return nil, err
			}
			out[i] = selected
		}
		return out, nil
	default:
		return v, nil
	}
}

// isPerEnvMap reports whether a map is a per-environment value: every
// key is a declared environment name or the fallback key, and at least
// one declared environment name is present.
func isPerEnvMap(m map[string]any, envNames map[string]bool) bool {
	if len(m) == 0 || len(envNames) == 0 {
		return false
	}
	sawEnv := false
	for k := range m {
		if envNames[k] {
			sawEnv = true
			continue
		}
		if k == envFallbackKey {
			continue
		}
		return false
	}
	return sawEnv
}

// mapKeys returns the sorted keys of a map for error messages.
func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
