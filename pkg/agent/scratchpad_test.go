package agent

import (
	"testing"

	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/stretchr/testify/assert"
)

func TestScratchpad(t *testing.T) {
	pad := NewScratchpad()
	_, ok := pad.Last()
	assert.False(t, ok)

	tc := content.ToolCall{Name: "add", Arguments: `{"a":1,"b":2}`}
	pad.Add(Step{Index: 0, Kind: StepPlan, Agent: "m", Text: "add the numbers"})
	pad.Add(Step{Index: 1, Kind: StepAction, Agent: "m", ToolCall: &tc})
	pad.Add(Step{Index: 1, Kind: StepObservation, Agent: "m", Text: "3"})
	pad.Add(Step{Index: 1, Kind: StepFinal, Agent: "m", Text: "3"})

	assert.Equal(t, 4, pad.Len())
	last, ok := pad.Last()
	assert.True(t, ok)
	assert.Equal(t, StepFinal, last.Kind)
	assert.Len(t, pad.Kind(StepAction), 1)

	want := "[m #0 plan] add the numbers\n" +
		"[m #1 action] add({\"a\":1,\"b\":2})\n" +
		"[m #1 observation] 3\n" +
		"[m #1 final] 3\n"
	assert.Equal(t, want, pad.String())
}

func TestStepKindString(t *testing.T) {
	assert.Equal(t, "observation", StepObservation.String())
	assert.Equal(t, "StepKind(9)", StepKind(9).String())
}

func TestStepStringError(t *testing.T) {
	s := Step{Index: 2, Kind: StepObservation, Agent: "w", Text: "boom", IsError: true}
	assert.Equal(t, "[w #2 observation] error: boom", s.String())
}
