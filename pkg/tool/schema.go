package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError reports why a document does not satisfy a schema.
type ValidationError struct {
	Message string
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Details, "; "))
}

// Schema is a structural description compiled for repeated validation.
// When full JSON Schema compilation fails the schema degrades to
// required-key presence plus primitive type checks.
type Schema struct {
	raw        map[string]any
	compiled   *gojsonschema.Schema
	compileErr error
}

// CompileSchema compiles raw. A nil or empty raw schema accepts everything.
func CompileSchema(raw map[string]any) *Schema {
	s := &Schema{raw: raw}
	if len(raw) == 0 {
		return s
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
	if err != nil {
		s.compileErr = err
		return s
	}
	s.compiled = compiled
	return s
}

// Degraded reports whether the schema fell back to basic checks, and why.
func (s *Schema) Degraded() (bool, error) {
	return s.compileErr != nil, s.compileErr
}

// Validate checks doc against the schema.
func (s *Schema) Validate(doc any) error {
	if s == nil || len(s.raw) == 0 {
		return nil
	}
	if doc == nil && s.raw["type"] == "object" {
		doc = map[string]any{}
	}
	if s.compiled == nil {
		return s.validateBasic(doc)
	}

	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &ValidationError{Message: "document could not be validated", Details: []string{err.Error()}}
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resErr := range result.Errors() {
			details = append(details, resErr.String())
		}
		return &ValidationError{Message: "validation errors", Details: details}
	}
	return nil
}

// validateBasic is the fallback when the schema cannot be compiled.
func (s *Schema) validateBasic(doc any) error {
	if want, ok := s.raw["type"].(string); ok && !matchesType(want, doc) {
		return &ValidationError{Message: fmt.Sprintf("expected %s, got %s", want, describe(doc))}
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil
	}

	var details []string
	for _, key := range requiredKeys(s.raw["required"]) {
		if _, present := obj[key]; !present {
			details = append(details, fmt.Sprintf("%s is required", key))
		}
	}

	props, _ := s.raw["properties"].(map[string]any)
	keys := make([]string, 0, len(props))
	for key := range props {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value, present := obj[key]
		if !present {
			continue
		}
		prop, _ := props[key].(map[string]any)
		if want, ok := prop["type"].(string); ok && !matchesType(want, value) {
			details = append(details, fmt.Sprintf("%s: expected %s, got %s", key, want, describe(value)))
		}
	}

	if len(details) > 0 {
		return &ValidationError{Message: "validation errors", Details: details}
	}
	return nil
}

// ValidateParams checks params against the manifest's input schema.
func ValidateParams(m Manifest, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	return CompileSchema(m.InputSchema).Validate(params)
}

// ValidateOutput checks data against the manifest's optional output schema.
func ValidateOutput(m Manifest, data any) error {
	if len(m.OutputSchema) == 0 {
		return nil
	}
	return CompileSchema(m.OutputSchema).Validate(data)
}

func requiredKeys(v any) []string {
	switch keys := v.(type) {
	case []string:
		return keys
	case []any:
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			if s, ok := k.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func matchesType(want string, v any) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		_, ok := toFloat(v)
		return ok
	case "integer":
		f, ok := toFloat(v)
		return ok && f == math.Trunc(f)
	case "object":
		if v == nil {
			return false
		}
		return reflect.ValueOf(v).Kind() == reflect.Map
	case "array":
		if v == nil {
			return false
		}
		kind := reflect.ValueOf(v).Kind()
		return kind == reflect.Slice || kind == reflect.Array
	case "null":
		return v == nil
	default:
		// unknown type keywords are not enforced by the fallback
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	return reflect.TypeOf(v).String()
}

func joinResultErrors(errs []gojsonschema.ResultError) string {
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		parts = append(parts, err.String())
	}
	return strings.Join(parts, "; ")
}
