package agent

import (
	"context"

	"github.com/germanamz/relay/pkg/chats/chat"
	"github.com/germanamz/relay/pkg/modeladapter"
)

// IterationPhase indicates when an effect runs within one loop iteration.
type IterationPhase int

const (
	// PhaseBeforeComplete runs before the model is asked for a decision.
	PhaseBeforeComplete IterationPhase = iota
	// PhaseAfterComplete runs after the reply, before its tool calls execute.
	PhaseAfterComplete
)

// IterationContext is the per-iteration view an effect receives.
type IterationContext struct {
	Phase     IterationPhase
	Step      int
	Chat      *chat.Chat
	Pad       *Scratchpad
	Completer modeladapter.Completer
	AgentName string
}

// Effect is a per-iteration hook inside the reasoning loop. Effects run in
// registration order; an error aborts the run.
type Effect interface {
	Eval(ctx context.Context, ic IterationContext) error
}

// EffectFunc adapts a function to Effect.
type EffectFunc func(ctx context.Context, ic IterationContext) error

// Eval calls f(ctx, ic).
func (f EffectFunc) Eval(ctx context.Context, ic IterationContext) error { return f(ctx, ic) }
