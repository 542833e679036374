package agent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/germanamz/relay/pkg/chats/content"
)

// StepKind classifies a scratchpad entry.
type StepKind int

const (
	StepPlan StepKind = iota
	StepThought
	StepAction
	StepObservation
	StepFinal
)

func (k StepKind) String() string {
	switch k {
	case StepPlan:
		return "plan"
	case StepThought:
		return "thought"
	case StepAction:
		return "action"
	case StepObservation:
		return "observation"
	case StepFinal:
		return "final"
	}
	return fmt.Sprintf("StepKind(%d)", int(k))
}

// Step is one scratchpad entry. Index is the acting step the entry belongs
// to; plan entries carry the index of the step they precede.
type Step struct {
	Index    int
	Kind     StepKind
	Agent    string
	Text     string
	ToolCall *content.ToolCall
	IsError  bool
}

func (s Step) String() string {
	switch {
	case s.Kind == StepAction && s.ToolCall != nil:
		return fmt.Sprintf("[%s #%d %s] %s(%s)", s.Agent, s.Index, s.Kind, s.ToolCall.Name, s.ToolCall.Arguments)
	case s.IsError:
		return fmt.Sprintf("[%s #%d %s] error: %s", s.Agent, s.Index, s.Kind, s.Text)
	}
	return fmt.Sprintf("[%s #%d %s] %s", s.Agent, s.Index, s.Kind, s.Text)
}

// Scratchpad is the ordered record of one agent run. It is safe for
// concurrent use.
type Scratchpad struct {
	mu    sync.RWMutex
	steps []Step
}

// NewScratchpad returns an empty Scratchpad.
func NewScratchpad() *Scratchpad {
	return &Scratchpad{}
}

// Add appends a step.
func (p *Scratchpad) Add(s Step) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.steps = append(p.steps, s)
}

// Steps returns a copy of all steps.
func (p *Scratchpad) Steps() []Step {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Len returns the number of steps.
func (p *Scratchpad) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.steps)
}

// Last returns the most recent step, or false when empty.
func (p *Scratchpad) Last() (Step, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.steps) == 0 {
		return Step{}, false
	}
	return p.steps[len(p.steps)-1], true
}

// Kind returns the steps of kind k, in order.
func (p *Scratchpad) Kind(k StepKind) []Step {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []Step
	for _, s := range p.steps {
		if s.Kind == k {
			out = append(out, s)
		}
	}
	return out
}

// String renders one step per line.
func (p *Scratchpad) String() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var b strings.Builder
	for _, s := range p.steps {
		b.WriteString(s.String())
		b.WriteByte('\n')
	}
	return b.String()
}
