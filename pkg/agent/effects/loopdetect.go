// Package effects holds optional per-iteration hooks for the agent loop.
package effects

import (
	"context"
	"fmt"

	"github.com/germanamz/relay/pkg/agent"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/chats/role"
)

const defaultLoopThreshold = 3

// LoopDetect nudges an agent that keeps issuing the same tool call with the
// same arguments. Once the most recent Threshold actions on the scratchpad
// are identical, a user message asking for a different approach is added
// before the next decision.
type LoopDetect struct {
	Threshold int // Identical consecutive calls before intervening (default 3).
}

// NewLoopDetect returns a LoopDetect; threshold <= 0 selects the default.
func NewLoopDetect(threshold int) *LoopDetect {
	if threshold <= 0 {
		threshold = defaultLoopThreshold
	}
	return &LoopDetect{Threshold: threshold}
}

// Eval implements agent.Effect.
func (e *LoopDetect) Eval(_ context.Context, ic agent.IterationContext) error {
	if ic.Phase != agent.PhaseBeforeComplete || ic.Step == 0 || ic.Pad == nil {
		return nil
	}

	name, count := repeatedTail(ic.Pad.Kind(agent.StepAction))
	if count < e.Threshold {
		return nil
	}

	ic.Chat.Append(message.NewText("loop-detector", role.User, fmt.Sprintf(
		"You have called %s with the same arguments %d times in a row without progress. Use what you already observed, try a different tool or give your final answer.",
		name, count,
	)))

	return nil
}

// repeatedTail counts how many of the latest actions share the same tool
// name and arguments.
func repeatedTail(actions []agent.Step) (string, int) {
	if len(actions) == 0 || actions[len(actions)-1].ToolCall == nil {
		return "", 0
	}

	last := actions[len(actions)-1].ToolCall
	count := 0
	for i := len(actions) - 1; i >= 0; i-- {
		tc := actions[i].ToolCall
		if tc == nil || tc.Name != last.Name || tc.Arguments != last.Arguments {
			break
		}
		count++
	}

	return last.Name, count
}
