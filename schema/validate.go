package schema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Violation is a single schema validation failure with enough context to
// render a precise, actionable message without access to the manifest
// source.
type Violation struct {
	// Path is the JSON-pointer path to the offending value.
	Path string

	// Keyword is the schema rule that failed (e.g. "required", "enum").
	Keyword string

	// Message is the human-readable description of the failure.
	Message string

	// Value is the offending value when it is a scalar; nil otherwise.
	Value any

	// ComponentName and ComponentType identify the owning component when
	// the path falls under components[i]; empty otherwise.
	ComponentName string
	ComponentType string
}

// Error implements the error interface.
func (v *Violation) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s [%s]", v.Path, v.Message, v.Keyword)
	if v.ComponentName != "" {
		fmt.Fprintf(&b, " (component %q", v.ComponentName)
		if v.ComponentType != "" {
			fmt.Fprintf(&b, " of type %q", v.ComponentType)
		}
		b.WriteString(")")
	}
	return b.String()
}

// Violations collects every failure found in one validation pass.
type Violations []*Violation

// Error implements the error interface.
func (vs Violations) Error() string {
	msgs := make([]string, len(vs))
	for i, v := range vs {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("manifest schema validation failed with %d error(s):\n  - %s",
		len(vs), strings.Join(msgs, "\n  - "))
}

// CompileTimeoutError reports that master-schema compilation exceeded its
// configured time budget.
type CompileTimeoutError struct {
	// Budget is the configured compilation time budget.
	Budget time.Duration
}

// Error implements the error interface.
func (e *CompileTimeoutError) Error() string {
	return fmt.Sprintf("schema compilation exceeded time budget of %s", e.Budget)
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithCompileBudget sets the time budget for schema compilation. Zero
// disables the budget.
func WithCompileBudget(d time.Duration) ValidatorOption {
	return func(v *Validator) { v.compileBudget = d }
}

// WithLogger sets the validator's logger.
func WithLogger(logger *slog.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = logger }
}

// Validator holds the composed master schema and its compiled form. The
// compiled schema is built once and reused across Validate calls; Reload
// is the only invalidation. Safe for concurrent use.
type Validator struct {
	mu            sync.RWMutex
	base          *Document
	registry      TypeRegistry
	master        *Document
	compiled      *jsonschema.Schema
	compileBudget time.Duration
	logger        *slog.Logger
	printer       *message.Printer
}

// NewValidator composes the master schema from the base schema and type
// registry, compiles it, and returns a ready validator.
func NewValidator(base *Document, registry TypeRegistry, opts ...ValidatorOption) (*Validator, error) {
	v := &Validator{
		base:     base.Clone(),
		registry: registry,
		logger:   slog.Default(),
		printer:  message.NewPrinter(language.English),
	}
	for _, opt := range opts {
		opt(v)
	}
	if err := v.Reload(); err != nil {
		return nil, err
	}
	return v, nil
}

// Master returns a copy of the composed master schema.
func (v *Validator) Master() *Document {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.master.Clone()
}

// Reload recomposes and recompiles the master schema from the current
// registry contents. It is the only way to invalidate the compiled cache.
func (v *Validator) Reload() error {
	master, err := Compose(v.base, v.registry)
	if err != nil {
		return err
	}
	compiled, err := v.compile(master)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.master = master
	v.compiled = compiled
	v.mu.Unlock()
	return nil
}

// compile turns the master schema document into a compiled validator,
// honoring the configured time budget.
func (v *Validator) compile(master *Document) (*jsonschema.Schema, error) {
	type result struct {
		sch *jsonschema.Schema
		err error
	}

	run := func() (*jsonschema.Schema, error) {
		data, err := json.Marshal(master)
		if err != nil {
			return nil, fmt.Errorf("marshaling master schema: %w", err)
		}
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
		if err != nil {
			return nil, fmt.Errorf("decoding master schema: %w", err)
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("manifest.schema.json", doc); err != nil {
			return nil, fmt.Errorf("registering master schema: %w", err)
		}
		sch, err := compiler.Compile("manifest.schema.json")
		if err != nil {
			return nil, fmt.Errorf("compiling master schema: %w", err)
		}
		return sch, nil
	}

	if v.compileBudget <= 0 {
		return run()
	}

	ch := make(chan result, 1)
	go func() {
		sch, err := run()
		ch <- result{sch, err}
	}()
	select {
	case res := <-ch:
		return res.sch, res.err
	case <-time.After(v.compileBudget):
		return nil, &CompileTimeoutError{Budget: v.compileBudget}
	}
}

// Validate checks the raw manifest tree against the compiled master
// schema. It returns nil on success or a Violations error carrying every
// failure found (all-errors mode), each with JSON-pointer path, failed
// keyword, the offending scalar value when safe to include, and the
// owning component's name and type when resolvable.
func (v *Validator) Validate(raw any) error {
	v.mu.RLock()
	compiled := v.compiled
	v.mu.RUnlock()

	instance := toJSONValue(raw)
	err := compiled.Validate(instance)
	if err == nil {
		return nil
	}

	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return &Violation{Path: "", Keyword: "schema", Message: err.Error()}
	}

	var out Violations
	v.collect(verr, instance, &out)
	if len(out) == 0 {
		out = append(out, &Violation{Path: "", Keyword: "schema", Message: verr.Error()})
	}
	return out
}

// collect flattens the validation error tree into leaf violations.
func (v *Validator) collect(e *jsonschema.ValidationError, instance any, out *Violations) {
	if len(e.Causes) > 0 {
		for _, cause := range e.Causes {
			v.collect(cause, instance, out)
		}
		return
	}

	keyword := "schema"
	if kp := e.ErrorKind.KeywordPath(); len(kp) > 0 {
		keyword = kp[len(kp)-1]
	}

	viol := &Violation{
		Path:    jsonPointer(e.InstanceLocation),
		Keyword: keyword,
		Message: e.ErrorKind.LocalizedString(v.printer),
	}

	if val, ok := valueAt(instance, e.InstanceLocation); ok {
		switch val.(type) {
		case string, bool, float64, nil:
			viol.Value = val
		}
	}

	name, typ := componentAt(instance, e.InstanceLocation)
	viol.ComponentName = name
	viol.ComponentType = typ

	// An unknown component type must tell the user what types exist.
	if keyword == "enum" && isComponentTypePath(e.InstanceLocation) {
		viol.Message = fmt.Sprintf("unknown component type; allowed types: %s",
			strings.Join(v.registry.Types(), ", "))
	}

	*out = append(*out, viol)
}

// jsonPointer renders an instance location as an RFC 6901 pointer.
func jsonPointer(location []string) string {
	if len(location) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range location {
		b.WriteString("/")
		seg = strings.ReplaceAll(seg, "~", "~0")
		seg = strings.ReplaceAll(seg, "/", "~1")
		b.WriteString(seg)
	}
	return b.String()
}

// valueAt walks the instance tree along the given location.
func valueAt(instance any, location []string) (any, bool) {
	cur := instance
	for _, seg := range location {
		switch node := cur.(type) {
		case map[string]any:
			val, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = val
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// componentAt resolves the owning component's name and type by walking
// from the violation path back to the nearest ancestor components[i].
func componentAt(instance any, location []string) (name, typ string) {
	if len(location) < 2 || location[0] != "components" {
		return "", ""
	}
	comp, ok := valueAt(instance, location[:2])
	if !ok {
		return "", ""
	}
	m, ok := comp.(map[string]any)
	if !ok {
		return "", ""
	}
	name, _ = m["name"].(string)
	typ, _ = m["type"].(string)
	return name, typ
}

// isComponentTypePath reports whether the location is components[i].type.
func isComponentTypePath(location []string) bool {
	return len(location) == 3 && location[0] == "components" && location[2] == "type"
}

// toJSONValue normalizes a YAML-decoded tree into the JSON value space
// the compiled validator expects: string-keyed maps, []any, float64
// numbers, and RFC 3339 strings for timestamps.
func toJSONValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = toJSONValue(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = toJSONValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toJSONValue(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}
