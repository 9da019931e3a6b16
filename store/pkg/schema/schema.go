// Package schema validates build metadata documents against a JSON-Schema.
// The schema is a collaborator input: a versioned default ships embedded, but
// deployments can point at their own schema file or disable validation
// entirely with the None sentinel.
package schema

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// None disables validation when passed as the schema path.
const None = "none"

// ErrInvalidMeta marks a document that failed schema validation. It must
// surface to the caller; an invalid document is never written to disk.
var ErrInvalidMeta = errors.New("build metadata failed schema validation")

//go:embed v1.json
var embeddedV1 []byte

// Validator checks documents against one compiled schema. A nil-schema
// Validator (from New(None)) accepts everything.
type Validator struct {
	schema *jsonschema.Schema
}

// New compiles the schema at path. An empty path selects the embedded v1
// schema; None returns a Validator that accepts any document.
func New(path string) (*Validator, error) {
	if path == None {
		return &Validator{}, nil
	}
	raw := embeddedV1
	name := "embedded://v1.json"
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", path, err)
		}
		raw = data
		name = path
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("loading schema %s: %w", name, err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", name, err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks doc against the schema. doc must be a plain decoded JSON
// value (json.Number is accepted for numbers).
func (v *Validator) Validate(doc map[string]any) error {
	if v == nil || v.schema == nil {
		return nil
	}
	if err := v.schema.Validate(normalize(doc)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMeta, err)
	}
	return nil
}

// normalize rewrites values the validator does not understand natively into
// plain decoded-JSON equivalents, so documents built programmatically (e.g.
// with int sizes) validate the same as documents read from disk.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case int:
		return int64(t)
	default:
		return v
	}
}
