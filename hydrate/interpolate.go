// Package hydrate resolves a validated manifest for one target
// environment: it evaluates interpolation tokens, selects
// per-environment config entries, and merges the five-layer
// configuration precedence chain into one concrete configuration per
// component. Hydration either produces a token-free manifest or fails;
// partial resolution is never emitted.
package hydrate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
)

// UnresolvedInterpolationError reports a token that references an
// undefined key, or a per-environment map with no entry for the target
// environment. Hydration fails fast on the first occurrence.
type UnresolvedInterpolationError struct {
	// Component is the owning component name, stamped by the hydrator.
	Component string

	// Key is the missing key (or environment name for per-environment
	// maps).
	Key string

	// Token is the original token text, when the failure came from a
	// token.
	Token string

	// Detail carries evaluation context.
	Detail string
}

// Error implements the error interface.
func (e *UnresolvedInterpolationError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("unresolved interpolation token %q: undefined key %q%s", e.Token, e.Key, e.detail())
	}
	return fmt.Sprintf("unresolved interpolation: undefined key %q%s", e.Key, e.detail())
}

func (e *UnresolvedInterpolationError) detail() string {
	if e.Detail == "" {
		return ""
	}
	return " (" + e.Detail + ")"
}

// tokenRe matches ${...} interpolation tokens.
var tokenRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// envLookupRe matches the plain value-lookup form "env.KEY".
var envLookupRe = regexp.MustCompile(`^env\.([A-Za-z_][A-Za-z0-9_]*)$`)

// interpolator evaluates interpolation tokens against one environment
// scope. Two forms are supported: a value lookup against the target
// environment's default map ("env.KEY") and a boolean test of the target
// environment's name ("environment == 'prod'"). Both are expressions;
// the lookup form is special-cased so a missing key can be named.
type interpolator struct {
	environment string
	envDefaults map[string]any
}

// exprScope builds the evaluation scope shared by all tokens.
func (it *interpolator) exprScope() map[string]any {
	defaults := it.envDefaults
	if defaults == nil {
		defaults = map[string]any{}
	}
	return map[string]any{
		"env":         defaults,
		"environment": it.environment,
	}
}

// resolveToken evaluates a single token body and returns the typed value.
func (it *interpolator) resolveToken(body string) (any, error) {
	src := strings.TrimSpace(body)
	token := "${" + body + "}"

	if m := envLookupRe.FindStringSubmatch(src); m != nil {
		val, ok := it.envDefaults[m[1]]
		if !ok {
			return nil, &UnresolvedInterpolationError{Key: m[1], Token: token}
		}
		return val, nil
	}

	out, err := expr.Eval(src, it.exprScope())
	if err != nil {
		return nil, &UnresolvedInterpolationError{Key: src, Token: token, Detail: err.Error()}
	}
	if out == nil {
		return nil, &UnresolvedInterpolationError{Key: src, Token: token, Detail: "expression evaluated to nil"}
	}
	return out, nil
}

// resolveString resolves every token in a string scalar. When the whole
// string is one token the typed value is preserved; otherwise token
// values are stringified in place.
func (it *interpolator) resolveString(s string) (any, error) {
	matches := tokenRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// Whole-scalar token: keep the resolved value's type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		return it.resolveToken(s[matches[0][2]:matches[0][3]])
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		val, err := it.resolveToken(s[m[2]:m[3]])
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "%v", val)
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// resolveValue walks a config value tree, resolving every string scalar.
func (it *interpolator) resolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return it.resolveString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := it.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := it.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// findToken returns the first remaining token in a value tree, or "".
// Used to verify the zero-tokens-remaining post-condition.
func findToken(v any) string {
	switch val := v.(type) {
	case string:
		if m := tokenRe.FindString(val); m != "" {
			return m
		}
	case map[string]any:
		for _, item := range val {
			if m := findToken(item); m != "" {
				return m
			}
		}
	case []any:
		for _, item := range val {
			if m := findToken(item); m != "" {
				return m
			}
		}
	}
	return ""
}
