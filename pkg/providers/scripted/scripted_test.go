package scripted

import (
	"context"
	"errors"
	"testing"

	"github.com/germanamz/relay/pkg/chats/chat"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/chats/role"
	"github.com/germanamz/relay/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleter_PlaysInOrder(t *testing.T) {
	s := New(
		Call("add", map[string]int{"a": 5, "b": 3}),
		Text("8"),
	)
	ctx := context.Background()
	c := chat.New(message.NewText("", role.User, "add 5 and 3"))
	tools := []toolbox.Tool{{Name: "add"}, {Name: "subtract"}}

	first, err := s.Complete(ctx, c, tools)
	require.NoError(t, err)
	calls := first.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "add", calls[0].Name)
	assert.JSONEq(t, `{"a":5,"b":3}`, calls[0].Arguments)

	second, err := s.Complete(ctx, c, nil)
	require.NoError(t, err)
	assert.Equal(t, "8", second.TextContent())

	_, err = s.Complete(ctx, c, nil)
	require.ErrorIs(t, err, ErrExhausted)

	assert.Equal(t, 3, s.Calls())
	assert.Equal(t, []string{"add", "subtract"}, s.ToolNames(0))
	assert.Equal(t, 1, s.Chat(0).Len())
}

func TestCompleter_Loop(t *testing.T) {
	s := New(Call("noop", nil)).Loop()

	for i := 1; i <= 3; i++ {
		msg, err := s.Complete(context.Background(), chat.New(), nil)
		require.NoError(t, err)
		require.Len(t, msg.ToolCalls(), 1)
		assert.Equal(t, "{}", msg.ToolCalls()[0].Arguments)
	}
}

func TestCompleter_MultipleCallsAndFail(t *testing.T) {
	boom := errors.New("boom")
	s := New(
		Calls(ToolCall{Name: "a", Args: `{"x":1}`}, ToolCall{Name: "b"}),
		Fail(boom),
	)

	msg, err := s.Complete(context.Background(), chat.New(), nil)
	require.NoError(t, err)
	calls := msg.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, `{"x":1}`, calls[0].Arguments)
	assert.NotEqual(t, calls[0].ID, calls[1].ID)

	_, err = s.Complete(context.Background(), chat.New(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestCompleter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Text("x")).Complete(ctx, chat.New(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
