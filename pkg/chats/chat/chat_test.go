package chat

import (
	"testing"

	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/chats/role"

	"github.com/stretchr/testify/assert"
)

func TestChat_ZeroValue(t *testing.T) {
	var c Chat

	assert.Equal(t, 0, c.Len())

	_, ok := c.Last()
	assert.False(t, ok)
	assert.Empty(t, c.Messages())
	assert.Empty(t, c.SystemPrompt())
}

func TestChat_AppendAndLast(t *testing.T) {
	c := New(message.NewText("", role.System, "You are a calculator assistant."))
	c.Append(
		message.NewText("user", role.User, "add 5 and 3"),
		message.NewText("calculator", role.Assistant, "8"),
	)

	assert.Equal(t, 3, c.Len())
	last, ok := c.Last()
	assert.True(t, ok)
	assert.Equal(t, "8", last.TextContent())
	assert.Equal(t, "add 5 and 3", c.At(1).TextContent())
	assert.Equal(t, "You are a calculator assistant.", c.SystemPrompt())
}

func TestChat_MessagesIsCopy(t *testing.T) {
	c := New(message.NewText("user", role.User, "hi"))

	msgs := c.Messages()
	msgs[0] = message.NewText("user", role.User, "changed")

	assert.Equal(t, "hi", c.At(0).TextContent())
}

func TestChat_Clone(t *testing.T) {
	c := New(message.NewText("user", role.User, "hi"))
	cp := c.Clone()
	cp.Append(message.NewText("bot", role.Assistant, "hello"))

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 2, cp.Len())
}

func TestChat_Transcript(t *testing.T) {
	c := New(
		message.NewText("", role.System, "hidden"),
		message.NewText("user", role.User, "add 5 and 3"),
		message.New("bot", role.Assistant, content.ToolCall{ID: "c1", Name: "add", Arguments: `{"a":5,"b":3}`}),
		message.New("", role.Tool, content.ToolResult{ToolCallID: "c1", Name: "add", Content: "8"}),
	)

	got := c.Transcript()

	assert.NotContains(t, got, "hidden")
	assert.Contains(t, got, "[user] add 5 and 3")
	assert.Contains(t, got, `[assistant] call add({"a":5,"b":3})`)
	assert.Contains(t, got, "[tool] add -> 8")
}
