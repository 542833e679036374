package huggingface

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

func TestNew_Defaults(t *testing.T) {
	a := New("", "tok", "")

	assert.Equal(t, DefaultBaseURL, a.BaseURL)
	assert.Equal(t, DefaultModel, a.Name)
	require.NotNil(t, a.Temperature)
	assert.InDelta(t, 0.7, *a.Temperature, 1e-9)
	assert.Equal(t, 100, a.MaxTokens)
	assert.Equal(t, "huggingface", a.Provider)
}

func TestBuildRequest_Temperature(t *testing.T) {
	a := New("", "tok", "")
	c := chat.New(message.NewText("", role.User, "hi"))

	zero := 0.0
	a.Temperature = &zero
	req := a.buildRequest(c, nil)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.0, *req.Temperature, 1e-9)

	a.Temperature = nil
	assert.Nil(t, a.buildRequest(c, nil).Temperature)
}

func TestComplete_RoundTrip(t *testing.T) {
	var got apiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, completionsPath, r.URL.Path)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("x-ratelimit-remaining-requests", "42")
		_, _ = w.Write([]byte(`{
			"choices": [{"finish_reason": "tool_calls", "message": {"role": "assistant", "content": null,
				"tool_calls": [
					{"id": "c1", "type": "function", "function": {"name": "add", "arguments": "{\"a\":5,\"b\":3}"}},
					{"id": "c2", "type": "function", "function": {"name": "add", "arguments": {"a": 1, "b": 1}}}
				]}}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 4}
		}`))
	}))
	t.Cleanup(srv.Close)

	a := New(srv.URL+"/", "hf_test", "some/model")
	tool := toolbox.Tool{
		Name:   "add",
		Params: []toolbox.Param{{Name: "a", Type: toolbox.TypeInteger}, {Name: "b", Type: toolbox.TypeInteger}},
	}

	c := chat.New(
		message.NewText("", role.System, "sys"),
		message.NewText("", role.User, "add 5 and 3"),
		message.New("", role.Assistant, content.ToolCall{ID: "c0", Name: "add", Arguments: `{"a":0,"b":0}`}),
		message.New("", role.Tool, content.ToolResult{ToolCallID: "c0", Content: "0"}),
	)
	msg, err := a.Complete(context.Background(), c, []toolbox.Tool{tool})
	require.NoError(t, err)

	calls := msg.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, `{"a":5,"b":3}`, calls[0].Arguments)
	assert.JSONEq(t, `{"a":1,"b":1}`, calls[1].Arguments)

	assert.Equal(t, "some/model", got.Model)
	assert.Equal(t, 100, got.MaxTokens)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "tool", got.Messages[3].Role)
	assert.Equal(t, "c0", got.Messages[3].ToolCallID)
	require.Len(t, got.Tools, 1)
	assert.JSONEq(t, string(tool.Schema()), string(got.Tools[0].Function.Parameters))

	assert.Equal(t, 30, a.UsageTracker().Total().InputTokens)
	require.NotNil(t, a.LastRateLimitInfo())
	assert.Equal(t, 42, a.LastRateLimitInfo().RemainingRequests)
}

func TestComplete_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, "", "m").Complete(context.Background(), chat.New(), nil)

	var rl *modeladapter.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, "3s", rl.RetryAfter.String())
}
