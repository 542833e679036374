// Package workflow runs a set of agents as a delegation tree around a shared
// state store. The root agent receives the user message; managers reach
// their workers through delegate tools named after them.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/germanamz/relay/pkg/agent"
	"github.com/germanamz/relay/pkg/agentctx"
	"github.com/germanamz/relay/pkg/state"
	"github.com/germanamz/relay/pkg/tools/toolbox"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalid is wrapped by every definition error returned from New.
var ErrInvalid = errors.New("workflow: invalid definition")

// Options defines a workflow.
type Options struct {
	Agents []*agent.Agent
	Root   string
	// Managed maps a manager to the workers it may delegate to.
	Managed map[string][]string
	// InitialState seeds every fresh store.
	InitialState map[string]any
	// StatePrompt wraps the user message. "{state}" is replaced by the JSON
	// snapshot of the store and "{msg}" by the message. Empty sends the
	// message as is.
	StatePrompt string
	// Closers are released by Close. The workflow owns them from New on,
	// so MCP clients live exactly as long as the agents that call them.
	Closers []io.Closer
	Logger  *zerolog.Logger
}

// Result is the outcome of one Run.
type Result struct {
	RunID      string
	Answer     string
	Value      any
	Agent      string
	Scratchpad *agent.Scratchpad
	State      *state.Store
}

// RunOption customizes one Run.
type RunOption func(*runConfig)

type runConfig struct {
	onStep func(agent.Step)
}

// WithStepHandler receives every scratchpad entry of every agent in the run,
// in order.
func WithStepHandler(fn func(agent.Step)) RunOption {
	return func(rc *runConfig) { rc.onStep = fn }
}

// Workflow is an immutable, validated agent tree.
type Workflow struct {
	registry    *agent.Registry
	root        string
	managed     map[string][]string
	initial     map[string]any
	statePrompt string
	closers     []io.Closer
	log         zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New validates opts and builds a Workflow. The root must be a member,
// edges must reference members, the delegation graph must be acyclic and
// every agent needs at least one tool or one worker.
func New(opts Options) (*Workflow, error) {
	if len(opts.Agents) == 0 {
		return nil, fmt.Errorf("%w: no agents", ErrInvalid)
	}

	reg := agent.NewRegistry()
	if err := reg.Register(opts.Agents...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if _, ok := reg.Get(opts.Root); !ok {
		return nil, fmt.Errorf("%w: root agent %q is not a member", ErrInvalid, opts.Root)
	}

	managed := make(map[string][]string, len(opts.Managed))
	for manager, workers := range opts.Managed {
		m, ok := reg.Get(manager)
		if !ok {
			return nil, fmt.Errorf("%w: manager %q is not a member", ErrInvalid, manager)
		}
		seen := make(map[string]bool, len(workers))
		for _, w := range workers {
			if _, ok := reg.Get(w); !ok {
				return nil, fmt.Errorf("%w: %s manages unknown agent %q", ErrInvalid, manager, w)
			}
			if seen[w] {
				return nil, fmt.Errorf("%w: %s lists %q twice", ErrInvalid, manager, w)
			}
			for _, tb := range m.Toolboxes() {
				if tb.Has(w) {
					return nil, fmt.Errorf("%w: %s has a tool named like its worker %q", ErrInvalid, manager, w)
				}
			}
			seen[w] = true
		}
		managed[manager] = append([]string(nil), workers...)
	}

	if cycle := FindCycle(managed); cycle != nil {
		return nil, fmt.Errorf("%w: delegation cycle %s", ErrInvalid, strings.Join(cycle, " -> "))
	}

	for _, e := range reg.List() {
		if e.Tools == 0 && len(managed[e.Name]) == 0 {
			return nil, fmt.Errorf("%w: agent %q has no tools and no workers", ErrInvalid, e.Name)
		}
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	return &Workflow{
		registry:    reg,
		root:        opts.Root,
		managed:     managed,
		initial:     opts.InitialState,
		statePrompt: opts.StatePrompt,
		closers:     opts.Closers,
		log:         log,
	}, nil
}

// Root returns the root agent's name.
func (w *Workflow) Root() string { return w.root }

// Agents lists the member agents sorted by name.
func (w *Workflow) Agents() []agent.Entry { return w.registry.List() }

// Agent returns a member by name.
func (w *Workflow) Agent(name string) (*agent.Agent, bool) { return w.registry.Get(name) }

// Workers returns the workers a manager may delegate to.
func (w *Workflow) Workers(manager string) []string {
	return append([]string(nil), w.managed[manager]...)
}

// NewState returns a fresh store seeded with the initial state.
func (w *Workflow) NewState() *state.Store {
	return state.New(w.initial)
}

// Run sends msg to the root agent. A nil st runs on a fresh store; a
// non-nil st is used and stays mutated afterwards.
func (w *Workflow) Run(ctx context.Context, msg string, st *state.Store, opts ...RunOption) (Result, error) {
	var rc runConfig
	for _, o := range opts {
		o(&rc)
	}

	if st == nil {
		st = w.NewState()
	}

	runID := uuid.NewString()
	ctx = agentctx.WithRunID(ctx, runID)
	log := w.log.With().Str("run_id", runID).Str("root", w.root).Logger()

	prompt, err := w.renderPrompt(msg, st)
	if err != nil {
		return Result{RunID: runID, Agent: w.root, State: st}, err
	}

	root, _ := w.registry.Get(w.root)
	log.Debug().Msg("workflow run started")

	res, err := root.Run(ctx, agent.RunInput{
		Message:   prompt,
		State:     st,
		Toolboxes: w.delegates(w.root, rc.onStep),
		OnStep:    rc.onStep,
	})

	out := Result{
		RunID:      runID,
		Answer:     res.Answer,
		Value:      res.Value,
		Agent:      w.root,
		Scratchpad: res.Scratchpad,
		State:      st,
	}
	if err != nil {
		log.Error().Err(err).Msg("workflow run failed")
		return out, err
	}

	log.Debug().Int("steps", res.Steps).Msg("workflow run finished")
	return out, nil
}

// Close releases the closers handed to New, once. Later calls return the
// same joined error.
func (w *Workflow) Close() error {
	w.closeOnce.Do(func() {
		var errs []error
		for _, c := range w.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		w.closeErr = errors.Join(errs...)
	})
	return w.closeErr
}

func (w *Workflow) renderPrompt(msg string, st *state.Store) (string, error) {
	if w.statePrompt == "" {
		return msg, nil
	}

	snap, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("workflow: encode state: %w", err)
	}

	return strings.NewReplacer("{state}", string(snap), "{msg}", msg).Replace(w.statePrompt), nil
}

// delegates builds one tool box holding a delegate tool per worker of
// manager. Workers get their own delegates recursively; the graph is
// acyclic so this terminates.
func (w *Workflow) delegates(manager string, onStep func(agent.Step)) []*toolbox.ToolBox {
	workers := w.managed[manager]
	if len(workers) == 0 {
		return nil
	}

	tb := toolbox.New()
	for _, name := range workers {
		worker, _ := w.registry.Get(name)
		_ = tb.Register(agent.DelegateTool(worker, w.delegates(name, onStep), onStep))
	}

	return []*toolbox.ToolBox{tb}
}

// FindCycle returns one cycle of the delegation graph as a path, or nil.
func FindCycle(edges map[string][]string) []string {
	const (
		white = iota
		grey
		black
	)

	color := make(map[string]int)
	var path []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = grey
		path = append(path, n)
		for _, m := range edges[n] {
			switch color[m] {
			case grey:
				for i, p := range path {
					if p == m {
						cycle = append(append([]string(nil), path[i:]...), m)
						break
					}
				}
				return true
			case white:
				if visit(m) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return false
	}

	nodes := make([]string, 0, len(edges))
	for n := range edges {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	for _, n := range nodes {
		if color[n] == white && visit(n) {
			return cycle
		}
	}
	return nil
}
