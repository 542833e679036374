package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartKinds(t *testing.T) {
	tests := []struct {
		part Part
		want string
	}{
		{Text{Text: "hi"}, "text"},
		{ToolCall{ID: "1", Name: "add", Arguments: `{"a":1,"b":2}`}, "tool_call"},
		{ToolResult{ToolCallID: "1", Name: "add", Content: "3"}, "tool_result"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.part.PartKind())
		})
	}
}
