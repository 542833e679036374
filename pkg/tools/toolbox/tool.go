package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
)

// Type is the semantic type of a tool parameter or of a tool's output.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeAny     Type = "any"
)

// Param declares one named tool argument. A non-nil Default makes the
// parameter optional and is applied when the caller omits it.
type Param struct {
	Name        string
	Type        Type
	Description string
	Default     any
	Optional    bool
	// Extra is merged into the parameter's JSON Schema (items, enum, minItems, ...).
	Extra map[string]any
}

func (p Param) required() bool {
	return !p.Optional && p.Default == nil
}

// State is the view of the shared context store a handler receives.
// *state.Store implements it.
type State interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Update(key string, fn func(current any, ok bool) (any, error)) error
	Increment(key string, delta int) (int, error)
	Snapshot() map[string]any
}

// Input is what a Handler is called with: validated arguments (defaults
// applied) and the store of the current run.
type Input struct {
	Args  map[string]any
	Raw   json.RawMessage
	State State
}

// Bind decodes the arguments into dst.
func (in Input) Bind(dst any) error {
	if err := json.Unmarshal(in.Raw, dst); err != nil {
		return fmt.Errorf("bind arguments: %w", err)
	}
	return nil
}

// String returns a string argument, or "" when absent.
func (in Input) String(name string) string {
	s, _ := in.Args[name].(string)
	return s
}

// Float returns a numeric argument, or 0 when absent.
func (in Input) Float(name string) float64 {
	f, _ := in.Args[name].(float64)
	return f
}

// Int returns an integer argument, or 0 when absent.
func (in Input) Int(name string) int {
	return int(in.Float(name))
}

// Handler executes a tool. The returned value must match the tool's
// OutputType.
type Handler func(ctx context.Context, in Input) (any, error)

// Tool is a named, described, typed callable. Tools are built once at
// startup and never mutated.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	// InputSchema overrides the schema derived from Params. Tools discovered
	// over MCP carry the server's schema here.
	InputSchema json.RawMessage
	OutputType  Type
	Handler     Handler
}

// Schema returns the JSON Schema of the tool's input object.
func (t Tool) Schema() json.RawMessage {
	if len(t.InputSchema) > 0 {
		return t.InputSchema
	}

	props := make(map[string]any, len(t.Params))
	required := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		prop := make(map[string]any, len(p.Extra)+3)
		for k, v := range p.Extra {
			prop[k] = v
		}
		if p.Type != "" && p.Type != TypeAny {
			prop["type"] = string(p.Type)
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.required() {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	b, _ := json.Marshal(schema)
	return b
}
