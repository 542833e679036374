// Package agent provides the reasoning loop of a single agent: it asks a
// model for a decision, executes the tool calls it returns, feeds the
// observations back and stops on a final answer or the step limit.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/germanamz/relay/pkg/agentctx"
	"github.com/germanamz/relay/pkg/chats/chat"
	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/chats/role"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/tools/toolbox"
	"github.com/rs/zerolog"
)

// ErrStepLimitExceeded is returned when a run that already took MaxSteps
// acting steps asks for another one. It is never retried.
var ErrStepLimitExceeded = errors.New("agent: step limit exceeded")

// DefaultMaxSteps bounds a run when Options.MaxSteps is zero.
const DefaultMaxSteps = 20

// Options configures an Agent.
type Options struct {
	MaxSteps         int // Acting transitions per run (0 = DefaultMaxSteps).
	PlanningInterval int // Plan before step 0, n, 2n, ... (0 = never).
	Validators       []Validator
	ValidationPolicy ValidationPolicy
	Effects          []Effect
	Middleware       []Middleware // Applied around Run().
	// ToolView rewrites the tool boxes the model sees for one run. Code
	// agents use it to hide their tools behind a single execute_code tool.
	ToolView func(boxes []*toolbox.ToolBox) ([]*toolbox.ToolBox, error)
	Logger   *zerolog.Logger
}

// RunInput is what one run is started with.
type RunInput struct {
	Message string
	// State is the shared store handed to every tool call.
	State toolbox.State
	// Toolboxes are added to the agent's own boxes for this run only.
	Toolboxes []*toolbox.ToolBox
	// OnStep is called synchronously for every scratchpad entry.
	OnStep func(Step)
}

// Result is the outcome of a run.
type Result struct {
	Answer     string
	Value      any
	Scratchpad *Scratchpad
	Steps      int
}

// Agent is an immutable agent definition. One Agent may run many times,
// also concurrently; every run gets its own chat and scratchpad.
type Agent struct {
	name         string
	description  string
	systemPrompt string
	completer    modeladapter.Completer
	toolboxes    []*toolbox.ToolBox
	options      Options
	log          zerolog.Logger
}

// New creates an Agent.
func New(name, description, systemPrompt string, completer modeladapter.Completer, opts Options, tbs ...*toolbox.ToolBox) *Agent {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("agent", name).Logger()
	}

	boxes := make([]*toolbox.ToolBox, len(tbs))
	copy(boxes, tbs)

	return &Agent{
		name:         name,
		description:  description,
		systemPrompt: systemPrompt,
		completer:    completer,
		toolboxes:    boxes,
		options:      opts,
		log:          log,
	}
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent's description.
func (a *Agent) Description() string { return a.description }

// Completer returns the agent's completer.
func (a *Agent) Completer() modeladapter.Completer { return a.completer }

// MaxSteps returns the effective step bound.
func (a *Agent) MaxSteps() int { return a.options.MaxSteps }

// Toolboxes returns the agent's own tool boxes.
func (a *Agent) Toolboxes() []*toolbox.ToolBox {
	out := make([]*toolbox.ToolBox, len(a.toolboxes))
	copy(out, a.toolboxes)
	return out
}

// ToolCount returns the number of tools across the agent's own boxes.
func (a *Agent) ToolCount() int {
	n := 0
	for _, tb := range a.toolboxes {
		n += tb.Len()
	}
	return n
}

// Run executes the reasoning loop with middleware applied.
func (a *Agent) Run(ctx context.Context, in RunInput) (Result, error) {
	var runner Runner = RunnerFunc(a.run)

	// Apply middleware in reverse order so the first middleware is outermost.
	for i := len(a.options.Middleware) - 1; i >= 0; i-- {
		runner = a.options.Middleware[i](runner)
	}

	return runner.Run(ctx, in)
}

// run is the loop: Thinking -> Acting -> Observing -> Thinking | Done.
func (a *Agent) run(ctx context.Context, in RunInput) (Result, error) {
	ctx = agentctx.WithAgentName(ctx, a.name)

	box, err := a.runToolBox(in.Toolboxes)
	if err != nil {
		return Result{}, err
	}
	tools := box.Tools()

	pad := NewScratchpad()
	record := func(s Step) {
		s.Agent = a.name
		pad.Add(s)
		a.log.Debug().Int("step", s.Index).Str("kind", s.Kind.String()).Msg(truncate(s.Text, 200))
		if in.OnStep != nil {
			in.OnStep(s)
		}
	}

	c := chat.New(
		message.NewText(a.name, role.System, a.buildSystemPrompt(tools)),
		message.NewText("user", role.User, in.Message),
	)

	steps := 0
	planned := -1

	exceeded := func() (Result, error) {
		return Result{Scratchpad: pad, Steps: steps},
			fmt.Errorf("%w: %s after %d steps", ErrStepLimitExceeded, a.name, steps)
	}

	for {
		if n := a.options.PlanningInterval; n > 0 && steps%n == 0 && planned != steps {
			planned = steps
			if err := a.plan(ctx, c, tools, steps, record); err != nil {
				return Result{Scratchpad: pad, Steps: steps}, err
			}
		}

		if err := a.evalEffects(ctx, PhaseBeforeComplete, steps, c, pad); err != nil {
			return Result{Scratchpad: pad, Steps: steps}, err
		}

		reply, err := a.completer.Complete(ctx, c, tools)
		if err != nil {
			return Result{Scratchpad: pad, Steps: steps}, err
		}
		reply.Sender = a.name
		c.Append(reply)

		if err := a.evalEffects(ctx, PhaseAfterComplete, steps, c, pad); err != nil {
			return Result{Scratchpad: pad, Steps: steps}, err
		}

		calls := reply.ToolCalls()
		text := strings.TrimSpace(reply.TextContent())

		var (
			candidate string
			value     any
			done      bool
		)

		if len(calls) == 0 {
			candidate, value, done = text, text, true
		} else {
			if text != "" {
				record(Step{Index: steps, Kind: StepThought, Text: text})
			}
			if steps >= a.options.MaxSteps {
				return exceeded()
			}

			steps++
			final, err := a.act(ctx, box, in.State, calls, c, steps, record)
			if err != nil {
				return Result{Scratchpad: pad, Steps: steps}, err
			}
			if final != nil {
				candidate, value, done = final.Text, final.Value, true
			}
		}

		if !done {
			continue
		}

		verr := a.validate(ctx, candidate, pad)
		if verr == nil {
			record(Step{Index: steps, Kind: StepFinal, Text: candidate})
			return Result{Answer: candidate, Value: value, Scratchpad: pad, Steps: steps}, nil
		}
		if isFatal(verr) {
			return Result{Scratchpad: pad, Steps: steps}, verr
		}

		rejected := &ValidationError{Agent: a.name, Answer: candidate, Err: verr}
		if a.options.ValidationPolicy != ValidateRetry {
			return Result{Answer: candidate, Value: value, Scratchpad: pad, Steps: steps}, rejected
		}
		if steps >= a.options.MaxSteps {
			return exceeded()
		}

		steps++
		feedback := fmt.Sprintf("Your final answer was rejected: %v. Reconsider and try again.", verr)
		record(Step{Index: steps, Kind: StepObservation, Text: feedback, IsError: true})
		c.Append(message.NewText("validator", role.User, feedback))
	}
}

// act executes every call of one reply and appends the observations. It
// returns the first final answer any tool produced.
func (a *Agent) act(
	ctx context.Context,
	box *toolbox.ToolBox,
	st toolbox.State,
	calls []content.ToolCall,
	c *chat.Chat,
	step int,
	record func(Step),
) (*toolbox.Result, error) {
	var final *toolbox.Result
	results := make([]content.Part, 0, len(calls))

	for _, tc := range calls {
		call := tc
		record(Step{Index: step, Kind: StepAction, Text: tc.Name, ToolCall: &call})

		res, err := box.Call(ctx, st, tc)
		if err != nil {
			if isFatal(err) {
				return nil, err
			}
			obs := observationError(err)
			record(Step{Index: step, Kind: StepObservation, Text: obs, IsError: true})
			results = append(results, content.ToolResult{ToolCallID: tc.ID, Name: tc.Name, Content: obs, IsError: true})
			continue
		}

		record(Step{Index: step, Kind: StepObservation, Text: res.Text})
		results = append(results, content.ToolResult{ToolCallID: tc.ID, Name: tc.Name, Content: res.Text})
		if res.Final && final == nil {
			r := res
			final = &r
		}
	}

	c.Append(message.New(a.name, role.Tool, results...))

	return final, nil
}

// plan asks the model for a revised plan without offering tools.
func (a *Agent) plan(ctx context.Context, c *chat.Chat, tools []toolbox.Tool, step int, record func(Step)) error {
	var b strings.Builder
	b.WriteString("Before acting, write a short step-by-step plan to solve the task. ")
	b.WriteString("List the facts you know, the facts you still need, and the tools you will use. Do not call any tool.\n\nTools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	if step > 0 {
		b.WriteString("\nProgress so far:\n")
		b.WriteString(c.Transcript())
	}

	pc := chat.New(c.At(0), c.At(1), message.NewText("planner", role.User, b.String()))
	reply, err := a.completer.Complete(ctx, pc, nil)
	if err != nil {
		return err
	}

	plan := strings.TrimSpace(reply.TextContent())
	record(Step{Index: step, Kind: StepPlan, Text: plan})
	c.Append(message.NewText("planner", role.User, "Plan:\n"+plan+"\n\nNow proceed with the next step."))

	return nil
}

func (a *Agent) validate(ctx context.Context, answer string, pad *Scratchpad) error {
	for _, v := range a.options.Validators {
		if err := v(ctx, answer, pad); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) evalEffects(ctx context.Context, phase IterationPhase, step int, c *chat.Chat, pad *Scratchpad) error {
	for _, e := range a.options.Effects {
		ic := IterationContext{
			Phase:     phase,
			Step:      step,
			Chat:      c,
			Pad:       pad,
			Completer: a.completer,
			AgentName: a.name,
		}
		if err := e.Eval(ctx, ic); err != nil {
			return err
		}
	}
	return nil
}

// runToolBox merges the agent's boxes, the per-run boxes and final_answer
// into one box. A name clash is an error.
func (a *Agent) runToolBox(extra []*toolbox.ToolBox) (*toolbox.ToolBox, error) {
	boxes := make([]*toolbox.ToolBox, 0, len(a.toolboxes)+len(extra))
	boxes = append(boxes, a.toolboxes...)
	boxes = append(boxes, extra...)

	if a.options.ToolView != nil {
		var err error
		if boxes, err = a.options.ToolView(boxes); err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.name, err)
		}
	}

	box := toolbox.New()
	for _, tb := range boxes {
		if err := box.Merge(tb); err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.name, err)
		}
	}
	if !box.Has("final_answer") {
		_ = box.Register(toolbox.FinalAnswerTool())
	}

	return box, nil
}

// buildSystemPrompt combines identity, instructions and the tool list.
func (a *Agent) buildSystemPrompt(tools []toolbox.Tool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s.", a.name)
	if a.description != "" {
		fmt.Fprintf(&b, " %s", a.description)
	}
	b.WriteString("\n")

	if a.systemPrompt != "" {
		b.WriteString("\n## Instructions\n\n")
		b.WriteString(a.systemPrompt)
		b.WriteString("\n")
	}

	if len(tools) > 0 {
		b.WriteString("\n## Tools\n\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "- **%s**: %s\n", t.Name, t.Description)
		}
		b.WriteString("\nCall tools to make progress. When you know the answer, call final_answer or reply with the answer as plain text.\n")
	}

	return b.String()
}

// isFatal reports whether err must abort the run instead of becoming an
// observation: external service failures, including those surfacing from a
// tool or a delegated worker.
func isFatal(err error) bool {
	var se *modeladapter.ServiceError
	var rl *modeladapter.RateLimitError
	return errors.As(err, &se) || errors.As(err, &rl) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func observationError(err error) string {
	return "Error: " + err.Error()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
