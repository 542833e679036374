// Package codeexec lets an agent act by writing Lua instead of issuing one
// tool call per turn. The agent's tools become Lua functions inside a
// sandbox and the model sees a single execute_code tool.
package codeexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/germanamz/relay/pkg/tools/toolbox"
	lua "github.com/yuin/gopher-lua"
)

const (
	// ToolName is the name of the tool a code agent acts through.
	ToolName = "execute_code"

	DefaultTimeout   = 30 * time.Second
	DefaultMaxOutput = 10000
)

// Options configures the sandbox.
type Options struct {
	// Timeout bounds one execute_code call.
	Timeout time.Duration
	// MaxOutput caps the observation text in characters.
	MaxOutput int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxOutput <= 0 {
		o.MaxOutput = DefaultMaxOutput
	}
	return o
}

// Outcome is the result of running one snippet.
type Outcome struct {
	// Output holds everything the snippet printed.
	Output string
	// Returned is the tostring of the snippet's return value, if any.
	Returned string
	// Final is set when the snippet called final_answer.
	Final bool
	Value any
}

// ToolView replaces the agent's tool boxes with a single box holding
// execute_code over all of them. It fits agent.Options.ToolView.
func ToolView(opts Options) func([]*toolbox.ToolBox) ([]*toolbox.ToolBox, error) {
	return func(boxes []*toolbox.ToolBox) ([]*toolbox.ToolBox, error) {
		inner := toolbox.New()
		for _, tb := range boxes {
			if err := inner.Merge(tb); err != nil {
				return nil, fmt.Errorf("codeexec: %w", err)
			}
		}
		return []*toolbox.ToolBox{toolbox.MustNew(Tool(inner, opts))}, nil
	}
}

// Tool returns execute_code running snippets against box.
func Tool(box *toolbox.ToolBox, opts Options) toolbox.Tool {
	opts = opts.withDefaults()

	return toolbox.Tool{
		Name:        ToolName,
		Description: describe(box),
		Params: []toolbox.Param{
			{Name: "code", Type: toolbox.TypeString, Description: "Lua code to execute"},
		},
		OutputType: toolbox.TypeAny,
		Handler: func(ctx context.Context, in toolbox.Input) (any, error) {
			out, err := Run(ctx, box, in.State, in.String("code"), opts)
			if err != nil {
				return nil, err
			}
			if out.Final {
				return toolbox.FinalAnswer{Value: out.Value}, nil
			}
			return truncate(out.Observation(), opts.MaxOutput), nil
		},
	}
}

// Observation renders the outcome the way the model sees it.
func (o Outcome) Observation() string {
	var b strings.Builder
	if o.Output != "" {
		b.WriteString("Execution logs:\n")
		b.WriteString(o.Output)
	}
	if o.Returned != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Last output from code snippet:\n")
		b.WriteString(o.Returned)
	}
	if b.Len() == 0 {
		return "Code executed without output."
	}
	return b.String()
}

func describe(box *toolbox.ToolBox) string {
	var b strings.Builder
	b.WriteString("Executes a Lua snippet. Use print() to observe values. ")
	b.WriteString("Call final_answer(value) once you have the answer. ")
	b.WriteString("Functions take positional arguments in the listed order or a single table of named arguments, ")
	b.WriteString("and return their result. Available functions:\n")
	for _, t := range box.Tools() {
		fmt.Fprintf(&b, "- %s(%s): %s\n", t.Name, signature(t), t.Description)
	}
	b.WriteString("- final_answer(value): ends the task with value as the answer\n")
	return b.String()
}

func signature(t toolbox.Tool) string {
	parts := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		s := p.Name
		if p.Type != "" {
			s += ": " + string(p.Type)
		}
		if p.Default != nil {
			s += fmt.Sprintf(" = %v", p.Default)
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 && len(t.InputSchema) > 0 {
		return "{" + strings.Join(schemaProps(t.InputSchema), ", ") + "}"
	}
	return strings.Join(parts, ", ")
}

func schemaProps(raw json.RawMessage) []string {
	var s struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	_ = json.Unmarshal(raw, &s)
	names := make([]string, 0, len(s.Properties))
	for n := range s.Properties {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "\n[output truncated]"
}

// errFinal unwinds the Lua stack once final_answer has been called.
var errFinal = errors.New("final answer")

// Run executes code with every tool of box exposed as a Lua function. Tool
// failures raise Lua errors the snippet may catch with pcall; external
// service failures and cancellation abort the snippet and are returned as
// is.
func Run(ctx context.Context, box *toolbox.ToolBox, st toolbox.State, code string, opts Options) (Outcome, error) {
	opts = opts.withDefaults()

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	rt := &runtime{ctx: runCtx, box: box, state: st}

	L := lua.NewState(lua.Options{SkipOpenLibs: true, CallStackSize: 256})
	defer L.Close()
	L.SetContext(runCtx)

	openSafeLibs(L)
	rt.register(L)

	fn, err := L.LoadString(code)
	if err != nil {
		return Outcome{}, fmt.Errorf("syntax error: %w", err)
	}

	L.Push(fn)
	callErr := L.PCall(0, 1, nil)

	out := Outcome{Output: rt.output.String()}
	switch {
	case rt.fatal != nil:
		return out, rt.fatal
	case rt.final:
		out.Final = true
		out.Value = rt.value
		return out, nil
	case ctx.Err() != nil:
		return out, ctx.Err()
	case runCtx.Err() != nil:
		return out, fmt.Errorf("code execution timed out after %s%s", opts.Timeout, logsSuffix(out.Output))
	case callErr != nil:
		return out, fmt.Errorf("%s%s", luaMessage(callErr), logsSuffix(out.Output))
	}

	if ret := L.Get(-1); ret != lua.LNil {
		out.Returned = ret.String()
	}
	return out, nil
}

func logsSuffix(output string) string {
	if output == "" {
		return ""
	}
	return "\nExecution logs:\n" + output
}

func luaMessage(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}

// openSafeLibs loads base, table, string and math without file access,
// dynamic loading or randomness.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	for _, name := range []string{"loadfile", "dofile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	if tbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

type runtime struct {
	ctx    context.Context
	box    *toolbox.ToolBox
	state  toolbox.State
	output strings.Builder

	final bool
	value any
	fatal error
}

func (r *runtime) register(L *lua.LState) {
	L.SetGlobal("print", L.NewFunction(r.luaPrint))
	L.SetGlobal("final_answer", L.NewFunction(r.luaFinal))
	for _, t := range r.box.Tools() {
		L.SetGlobal(t.Name, L.NewFunction(r.toolFunc(t)))
	}
}

func (r *runtime) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	r.output.WriteString(strings.Join(parts, "\t"))
	r.output.WriteString("\n")
	return 0
}

func (r *runtime) luaFinal(L *lua.LState) int {
	r.final = true
	r.value = fromLua(L.Get(1))
	L.RaiseError("%s", errFinal.Error())
	return 0
}

func (r *runtime) toolFunc(t toolbox.Tool) lua.LGFunction {
	return func(L *lua.LState) int {
		args, err := callArgs(L, t)
		if err != nil {
			L.RaiseError("%s: %v", t.Name, err)
			return 0
		}

		raw, err := json.Marshal(args)
		if err != nil {
			L.RaiseError("%s: encode arguments: %v", t.Name, err)
			return 0
		}

		res, err := r.box.Call(r.ctx, r.state, content.ToolCall{Name: t.Name, Arguments: string(raw)})
		if err != nil {
			if abort(err) {
				r.fatal = err
			}
			L.RaiseError("%v", err)
			return 0
		}
		if res.Final {
			r.final = true
			r.value = res.Value
			L.RaiseError("%s", errFinal.Error())
			return 0
		}

		L.Push(toLua(L, res.Value))
		return 1
	}
}

// callArgs maps the Lua call onto named arguments: a single table argument
// is taken as the named arguments, otherwise values bind to the declared
// parameters in order.
func callArgs(L *lua.LState, t toolbox.Tool) (map[string]any, error) {
	n := L.GetTop()
	if n == 1 {
		if tbl, ok := L.Get(1).(*lua.LTable); ok && tbl.MaxN() == 0 {
			m, _ := fromLua(tbl).(map[string]any)
			if m == nil {
				m = map[string]any{}
			}
			return m, nil
		}
	}

	if n > len(t.Params) {
		return nil, fmt.Errorf("takes %d arguments, got %d", len(t.Params), n)
	}

	args := make(map[string]any, n)
	for i := 1; i <= n; i++ {
		if v := L.Get(i); v != lua.LNil {
			args[t.Params[i-1].Name] = fromLua(v)
		}
	}
	return args, nil
}
