package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/germanamz/relay/pkg/chats/chat"
	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/chats/role"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	Model  string `json:"model"`
	System []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string           `json:"role"`
		Content []map[string]any `json:"content"`
	} `json:"messages"`
	Tools []map[string]any `json:"tools"`
}

func newAdapter(t *testing.T, h http.HandlerFunc) *Adapter {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return New(Options{APIKey: "test-key", BaseURL: srv.URL + "/", Model: "claude-test"})
}

func TestComplete_TextAndToolUse(t *testing.T) {
	var got request
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [
				{"type": "text", "text": "Let me add."},
				{"type": "tool_use", "id": "tu_1", "name": "add", "input": {"a": 1, "b": 2}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 20, "output_tokens": 9}
		}`))
	})

	tool := toolbox.Tool{
		Name:        "add",
		Description: "Adds two integers.",
		Params: []toolbox.Param{
			{Name: "a", Type: toolbox.TypeInteger},
			{Name: "b", Type: toolbox.TypeInteger},
		},
		Handler: func(context.Context, toolbox.Input) (any, error) { return 0, nil },
	}

	c := chat.New(
		message.NewText("", role.System, "be brief"),
		message.NewText("", role.User, "1+2?"),
	)
	msg, err := a.Complete(context.Background(), c, []toolbox.Tool{tool})
	require.NoError(t, err)

	assert.Equal(t, "Let me add.", msg.TextContent())
	calls := msg.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "tu_1", calls[0].ID)
	assert.Equal(t, "add", calls[0].Name)
	assert.JSONEq(t, `{"a":1,"b":2}`, calls[0].Arguments)

	assert.Equal(t, 20, a.UsageTracker().Total().InputTokens)

	assert.Equal(t, "claude-test", got.Model)
	require.Len(t, got.System, 1)
	assert.Equal(t, "be brief", got.System[0].Text)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "add", got.Tools[0]["name"])
	assert.Equal(t, "Adds two integers.", got.Tools[0]["description"])
}

func TestBuildMessages_ToolResultsMergeIntoUserTurn(t *testing.T) {
	c := chat.New(
		message.NewText("", role.System, "sys"),
		message.NewText("", role.User, "go"),
		message.New("", role.Assistant,
			content.ToolCall{ID: "a", Name: "x", Arguments: `{}`},
			content.ToolCall{ID: "b", Name: "y", Arguments: `{}`},
		),
		message.New("", role.Tool, content.ToolResult{ToolCallID: "a", Content: "1"}),
		message.New("", role.Tool, content.ToolResult{ToolCallID: "b", Content: "boom", IsError: true}),
		message.NewText("", role.User, "continue"),
	)

	msgs := buildMessages(c)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Len(t, msgs[1].Content, 2)
	assert.Equal(t, "user", string(msgs[2].Role))
	assert.Len(t, msgs[2].Content, 3)
}

func TestComplete_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		rateLimit bool
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true, true},
		{"overloaded", http.StatusServiceUnavailable, false, true},
		{"unauthorized", http.StatusUnauthorized, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"x","message":"nope"}}`))
			})

			_, err := a.Complete(context.Background(), chat.New(message.NewText("", role.User, "hi")), nil)
			require.Error(t, err)

			var rl *modeladapter.RateLimitError
			assert.Equal(t, tt.rateLimit, errors.As(err, &rl))
			assert.Equal(t, tt.retryable, modeladapter.IsRetryable(err))
		})
	}
}

func TestComplete_ZeroTemperatureIsSent(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_2","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	t.Cleanup(srv.Close)

	zero := 0.0
	a := New(Options{APIKey: "test-key", BaseURL: srv.URL + "/", Model: "claude-test", Temperature: &zero})
	_, err := a.Complete(context.Background(), chat.New(message.NewText("", role.User, "hi")), nil)
	require.NoError(t, err)

	temp, ok := body["temperature"]
	require.True(t, ok)
	assert.InDelta(t, 0.0, temp, 1e-9)
}
