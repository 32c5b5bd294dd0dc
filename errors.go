package stackplan

import (
	"errors"
	"fmt"

	"github.com/GoCodeAlone/stackplan/graph"
	"github.com/GoCodeAlone/stackplan/hydrate"
	"github.com/GoCodeAlone/stackplan/schema"
)

// Stage identifies a pipeline stage for error attribution.
type Stage string

const (
	StageParse   Stage = "parse"
	StageSchema  Stage = "schema"
	StageHydrate Stage = "hydrate"
	StageGraph   Stage = "graph"
	StageBind    Stage = "bind"
)

// StageError wraps a stage failure with enough structured context to
// render a precise, actionable message without access to the manifest
// source. The underlying typed error remains reachable via Unwrap.
type StageError struct {
	// Stage is the pipeline stage that failed.
	Stage Stage

	// Path is a JSON-pointer-style path into the manifest, when the
	// failure is addressable.
	Path string

	// Message is the human-readable description.
	Message string

	// Rule is the machine rule identifier, when the failure has one.
	Rule string

	// ComponentName and ComponentType identify the owning component,
	// when resolvable.
	ComponentName string
	ComponentType string

	// Err is the underlying typed error.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Stage, e.Message)
}

// Unwrap returns the underlying typed error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// newStageError wraps an inner error, lifting structured context out of
// the error kinds that carry it.
func newStageError(stage Stage, err error) *StageError {
	se := &StageError{Stage: stage, Message: err.Error(), Err: err}

	var violations schema.Violations
	if errors.As(err, &violations) && len(violations) > 0 {
		first := violations[0]
		se.Path = first.Path
		se.Rule = first.Keyword
		se.ComponentName = first.ComponentName
		se.ComponentType = first.ComponentType
		return se
	}

	var interpErr *hydrate.UnresolvedInterpolationError
	if errors.As(err, &interpErr) {
		se.Rule = "interpolation/unresolved"
		se.ComponentName = interpErr.Component
		return se
	}

	var cfgErr *hydrate.NonMappingConfigError
	if errors.As(err, &cfgErr) {
		se.Rule = "config/non-mapping"
		se.ComponentName = cfgErr.Component
		return se
	}

	var refErr *graph.ReferenceError
	if errors.As(err, &refErr) {
		se.Rule = "reference/" + refErr.Reason
		se.ComponentName = refErr.Source
		return se
	}

	var govErr *graph.GovernanceValidationError
	if errors.As(err, &govErr) {
		se.Rule = "governance/" + govErr.Kind
		se.Path = "/governance"
		return se
	}

	return se
}
