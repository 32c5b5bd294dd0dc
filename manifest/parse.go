package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError reports a manifest syntax failure with position information
// where the YAML parser provides it. Line and Column are 1-based; zero
// means the position could not be determined.
type ParseError struct {
	// Message is the parser's description of the failure.
	Message string

	// Line is the 1-based line of the failure, 0 if unknown.
	Line int

	// Column is the 1-based column of the failure, 0 if unknown.
	Column int
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		if e.Column > 0 {
			return fmt.Sprintf("manifest parse error at line %d, column %d: %s", e.Line, e.Column, e.Message)
		}
		return fmt.Sprintf("manifest parse error at line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("manifest parse error: %s", e.Message)
}

// Document is the output of Parse: the raw in-memory tree used for schema
// validation plus the original node for typed decoding. No semantic
// interpretation has happened yet; a syntactically valid but semantically
// empty document is a valid Document.
type Document struct {
	// Raw is the plain-value tree (maps, slices, scalars) used by the
	// schema validator.
	Raw any

	node *yaml.Node
}

// yamlLineRe extracts the line number the yaml package embeds in its
// error strings ("yaml: line 3: ...").
var yamlLineRe = regexp.MustCompile(`(?:yaml: )?line (\d+):`)

// Parse converts raw manifest text into a Document or fails with a
// ParseError. Exactly one YAML document is accepted; format ambiguity
// (tabs, stray indentation, multiple documents) fails rather than being
// best-guess parsed.
func Parse(text []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(text))

	var root yaml.Node
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return &Document{Raw: map[string]any{}, node: &yaml.Node{}}, nil
		}
		return nil, newParseError(err)
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Message: "expected a single document in the stream"}
	}
	if root.Kind == 0 {
		// Empty input parses to a zero node; treat as an empty mapping
		// so downstream stages report the real problem (missing fields).
		return &Document{Raw: map[string]any{}, node: &root}, nil
	}

	var raw any
	if err := root.Decode(&raw); err != nil {
		return nil, newParseError(err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return &Document{Raw: raw, node: &root}, nil
}

// Decode produces the typed Manifest view of the document. It is intended
// to run after schema validation, so type mismatches here indicate a
// schema gap and are still reported as ParseErrors with position info
// where available.
func (d *Document) Decode() (*Manifest, error) {
	var m Manifest
	if d.node == nil || d.node.Kind == 0 {
		return &m, nil
	}
	if err := d.node.Decode(&m); err != nil {
		return nil, newParseError(err)
	}
	return &m, nil
}

// newParseError converts a yaml error into a ParseError, pulling a line
// number out of the message when present.
func newParseError(err error) *ParseError {
	msg := err.Error()
	pe := &ParseError{Message: strings.TrimPrefix(msg, "yaml: ")}
	if m := yamlLineRe.FindStringSubmatch(msg); m != nil {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil {
			pe.Line = n
			pe.Message = strings.TrimSpace(msg[strings.Index(msg, m[0])+len(m[0]):])
		}
	}
	if te, ok := err.(*yaml.TypeError); ok && len(te.Errors) > 0 {
		pe.Message = strings.Join(te.Errors, "; ")
		if m := yamlLineRe.FindStringSubmatch(te.Errors[0]); m != nil {
			if n, convErr := strconv.Atoi(m[1]); convErr == nil {
				pe.Line = n
			}
		}
	}
	return pe
}
