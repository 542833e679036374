package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/xeipuuv/gojsonschema"
)

// FinalAnswer is returned by a handler to end the calling agent's run with
// Value as the answer.
type FinalAnswer struct {
	Value any
}

// Result is the outcome of a successful tool call.
type Result struct {
	Value any
	// Text is the observation shown to the model.
	Text string
	// Final is set when the handler returned a FinalAnswer.
	Final bool
}

type entry struct {
	tool   Tool
	schema *gojsonschema.Schema
}

// ToolBox is an ordered registry of tools with compiled input schemas.
// It is filled at startup and read-only afterwards; a ToolBox is safe for
// concurrent calls once registration is done.
type ToolBox struct {
	order []string
	tools map[string]entry
}

// New creates a new ToolBox ready for use.
func New() *ToolBox {
	return &ToolBox{
		tools: make(map[string]entry),
	}
}

// MustNew builds a ToolBox from statically declared tools and panics on a
// duplicate name or a broken schema.
func MustNew(tools ...Tool) *ToolBox {
	tb := New()
	if err := tb.Register(tools...); err != nil {
		panic(err)
	}
	return tb
}

// Register adds tools to the box. Names must be unique within the box.
func (tb *ToolBox) Register(tools ...Tool) error {
	for _, t := range tools {
		if t.Name == "" {
			return fmt.Errorf("toolbox: tool without a name")
		}
		if _, ok := tb.tools[t.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
		}
		if t.Handler == nil {
			return fmt.Errorf("toolbox: tool %s has no handler", t.Name)
		}

		schema, err := compileSchema(t.Schema())
		if err != nil {
			return fmt.Errorf("toolbox: tool %s: %w", t.Name, err)
		}

		tb.tools[t.Name] = entry{tool: t, schema: schema}
		tb.order = append(tb.order, t.Name)
	}
	return nil
}

// Merge registers all tools of other into tb.
func (tb *ToolBox) Merge(other *ToolBox) error {
	for _, name := range other.order {
		if _, ok := tb.tools[name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		tb.tools[name] = other.tools[name]
		tb.order = append(tb.order, name)
	}
	return nil
}

// Get returns a tool by name.
func (tb *ToolBox) Get(name string) (Tool, bool) {
	e, ok := tb.tools[name]
	return e.tool, ok
}

// Len returns the number of registered tools.
func (tb *ToolBox) Len() int { return len(tb.order) }

// Tools returns the registered tools in registration order.
func (tb *ToolBox) Tools() []Tool {
	result := make([]Tool, 0, len(tb.order))
	for _, name := range tb.order {
		result = append(result, tb.tools[name].tool)
	}
	return result
}

// Call validates the arguments of tc, runs the tool with st as its store
// and checks the result against the declared output type.
//
// Errors are ErrToolNotFound, *InvalidArgumentError or *ExecutionError.
func (tb *ToolBox) Call(ctx context.Context, st State, tc content.ToolCall) (Result, error) {
	e, ok := tb.tools[tc.Name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, tc.Name)
	}

	args, err := parseArgs(e.tool, tc.Arguments)
	if err != nil {
		return Result{}, err
	}
	if err := validateArgs(e.tool.Name, e.schema, args); err != nil {
		return Result{}, err
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return Result{}, &InvalidArgumentError{Tool: e.tool.Name, Reason: err.Error()}
	}

	v, err := e.tool.Handler(ctx, Input{Args: args, Raw: raw, State: st})
	if err != nil {
		return Result{}, &ExecutionError{Tool: e.tool.Name, Err: err}
	}
	if !conforms(e.tool.OutputType, v) {
		return Result{}, &ExecutionError{
			Tool: e.tool.Name,
			Err:  fmt.Errorf("result %T does not match output type %s", v, e.tool.OutputType),
		}
	}

	res := Result{Value: v, Text: Format(v)}
	if fa, ok := v.(FinalAnswer); ok {
		res.Value = fa.Value
		res.Final = true
	}
	return res, nil
}

// Has reports whether tb holds a tool called name.
func (tb *ToolBox) Has(name string) bool {
	_, ok := tb.tools[name]
	return ok
}

// Format renders a tool result as observation text.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case FinalAnswer:
		return Format(x.Value)
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Filter returns a new ToolBox holding only the named tools, in the order
// given. Unknown names are skipped. An empty list returns tb itself.
func (tb *ToolBox) Filter(names []string) *ToolBox {
	if len(names) == 0 {
		return tb
	}

	out := New()
	for _, name := range names {
		if e, ok := tb.tools[name]; ok && !out.Has(name) {
			out.tools[name] = e
			out.order = append(out.order, name)
		}
	}
	return out
}
