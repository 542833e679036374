package toolbox

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// compileSchema turns a tool's input schema into a reusable validator.
// The $schema keyword is dropped so drafts newer than gojsonschema knows
// (MCP servers advertise 2020-12) still load.
func compileSchema(raw json.RawMessage) (*gojsonschema.Schema, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	delete(doc, "$schema")

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// parseArgs decodes raw call arguments and applies parameter defaults.
func parseArgs(t Tool, raw string) (map[string]any, error) {
	args := map[string]any{}
	if s := strings.TrimSpace(raw); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			return nil, &InvalidArgumentError{Tool: t.Name, Reason: "arguments must be a JSON object"}
		}
	}

	for _, p := range t.Params {
		if _, ok := args[p.Name]; !ok && p.Default != nil {
			args[p.Name] = p.Default
		}
	}

	return args, nil
}

// validateArgs checks args against the compiled schema and reports the
// first violation as an InvalidArgumentError naming the parameter.
func validateArgs(tool string, schema *gojsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &InvalidArgumentError{Tool: tool, Reason: err.Error()}
	}
	if result.Valid() {
		return nil
	}

	first := result.Errors()[0]
	field := first.Field()
	if first.Type() == "required" {
		if p, ok := first.Details()["property"].(string); ok {
			field = p
		}
	}
	if field == gojsonschema.STRING_CONTEXT_ROOT {
		field = ""
	}
	// Nested paths such as "origin.0" are reported against the top-level parameter.
	field, _, _ = strings.Cut(field, ".")

	return &InvalidArgumentError{Tool: tool, Field: field, Reason: first.Description()}
}

// conforms reports whether v is a value of type t.
func conforms(t Type, v any) bool {
	if fa, ok := v.(FinalAnswer); ok {
		v = fa.Value
	}

	switch t {
	case "", TypeAny:
		return true
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	}

	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)

	switch t {
	case TypeInteger:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return true
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			return f == math.Trunc(f) && !math.IsInf(f, 0)
		}
		return false
	case TypeNumber:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return true
		}
		return false
	case TypeObject:
		k := rv.Kind()
		if k == reflect.Pointer {
			k = rv.Elem().Kind()
		}
		return k == reflect.Map || k == reflect.Struct
	case TypeArray:
		k := rv.Kind()
		return k == reflect.Slice || k == reflect.Array
	}

	return false
}
