package agent

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
)

// ValidateToolArguments checks decoded tool-call arguments against the tool's
// input schema before the tool runs. The tools here declare small closed
// objects: query_data needs a non-blank query, start_job a non-blank
// user_request with optional parameters, and poll_job and terminate_job a
// non-blank run_id. The supported keywords are required, properties with
// type, additionalProperties, and the string rules minLength (counted after
// trimming whitespace) and enum. Every failure wraps ErrValidation, so the
// registry reports it to the model as a tool error instead of running the tool.
func ValidateToolArguments(schema map[string]any, arguments map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	compiled, err := compileArgumentSchema(schema)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := compiled.check(arguments); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

type argumentSchema struct {
	required []string
	// fields is nil when the schema declares no properties.
	fields map[string]fieldRule
	closed bool
}

type fieldRule struct {
	kind      string
	minLength int
	oneOf     []string
}

func compileArgumentSchema(schema map[string]any) (argumentSchema, error) {
	var compiled argumentSchema

	required, err := stringList(schema["required"], "required")
	if err != nil {
		return compiled, err
	}
	compiled.required = required

	switch extra := schema["additionalProperties"].(type) {
	case nil:
	case bool:
		compiled.closed = !extra
	default:
		return compiled, errors.New(`input schema "additionalProperties" must be a bool`)
	}

	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		return compiled, nil
	}
	compiled.fields = make(map[string]fieldRule, len(properties))
	for name, raw := range properties {
		rule, err := compileFieldRule(raw)
		if err != nil {
			return compiled, fmt.Errorf("argument %q: %w", name, err)
		}
		compiled.fields[name] = rule
	}
	return compiled, nil
}

func compileFieldRule(raw any) (fieldRule, error) {
	var rule fieldRule

	property, ok := raw.(map[string]any)
	if !ok {
		return rule, errors.New(`input schema "properties" entries must be objects`)
	}
	if rawKind, ok := property["type"]; ok {
		kind, ok := rawKind.(string)
		if !ok {
			return rule, errors.New(`input schema property "type" must be a string`)
		}
		rule.kind = kind
	}
	if rawMin, ok := property["minLength"]; ok {
		minLength, ok := wholeNumber(rawMin)
		if !ok || minLength < 0 {
			return rule, errors.New(`input schema "minLength" must be a non-negative integer`)
		}
		rule.minLength = minLength
	}
	if rawEnum, ok := property["enum"]; ok {
		values, err := stringList(rawEnum, "enum")
		if err != nil {
			return rule, err
		}
		rule.oneOf = values
	}
	return rule, nil
}

func (s argumentSchema) check(arguments map[string]any) error {
	for _, name := range s.required {
		if _, ok := arguments[name]; !ok {
			return fmt.Errorf("missing required argument %q", name)
		}
	}

	names := make([]string, 0, len(arguments))
	for name := range arguments {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		rule, declared := s.fields[name]
		if !declared {
			if s.fields != nil && s.closed {
				return fmt.Errorf("unknown argument %q", name)
			}
			continue
		}
		if err := rule.check(name, arguments[name]); err != nil {
			return err
		}
	}
	return nil
}

func (r fieldRule) check(name string, value any) error {
	if r.kind != "" && !valueHasKind(r.kind, value) {
		return fmt.Errorf("argument %q must be %q", name, r.kind)
	}
	text, ok := value.(string)
	if !ok {
		return nil
	}
	if len(strings.TrimSpace(text)) < r.minLength {
		return fmt.Errorf("argument %q must be at least %d characters", name, r.minLength)
	}
	if r.oneOf != nil && !slices.Contains(r.oneOf, text) {
		return fmt.Errorf("argument %q must be one of %q", name, r.oneOf)
	}
	return nil
}

func stringList(raw any, keyword string) ([]string, error) {
	switch value := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		return slices.Clone(value), nil
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			text, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("input schema %q entries must be strings", keyword)
			}
			out = append(out, text)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("input schema %q must be an array", keyword)
	}
}

// wholeNumber accepts ints and integral floats, since arguments and schemas
// decoded from JSON carry numbers as float64.
func wholeNumber(value any) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return int(reflect.ValueOf(n).Convert(reflect.TypeOf(0)).Int()), true
	case float32:
		return wholeNumber(float64(n))
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// Unknown type names are accepted.
var knownKinds = []string{"string", "boolean", "number", "integer", "object", "array"}

func valueHasKind(kind string, value any) bool {
	if value == nil {
		return !slices.Contains(knownKinds, kind)
	}
	switch kind {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		switch reflect.TypeOf(value).Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return true
		}
		return false
	case "integer":
		_, ok := wholeNumber(value)
		return ok
	case "object":
		return reflect.TypeOf(value).Kind() == reflect.Map
	case "array":
		kind := reflect.TypeOf(value).Kind()
		return kind == reflect.Array || kind == reflect.Slice
	default:
		return true
	}
}
