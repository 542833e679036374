package engine

import (
	"context"
	"testing"

	"github.com/germanamz/relay/pkg/chats/chat"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/chats/role"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/providers/anthropic"
	"github.com/germanamz/relay/pkg/providers/huggingface"
	"github.com/germanamz/relay/pkg/providers/openai"
	"github.com/germanamz/relay/pkg/providers/scripted"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCompleter_Kinds(t *testing.T) {
	tests := []struct {
		kind string
		want any
	}{
		{"openai", &openai.Adapter{}},
		{"anthropic", &anthropic.Adapter{}},
		{"huggingface", &huggingface.Adapter{}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			c, err := buildCompleter(ProviderConfig{Name: "p", Kind: tt.kind, APIKey: "k"})
			require.NoError(t, err)
			assert.IsType(t, tt.want, c)
		})
	}
}

func TestBuildCompleter_UnknownKind(t *testing.T) {
	_, err := buildCompleter(ProviderConfig{Name: "p", Kind: "grok"})
	assert.ErrorContains(t, err, `unknown provider kind "grok"`)
}

func TestBuildCompleter_HuggingFaceSettings(t *testing.T) {
	c, err := buildCompleter(ProviderConfig{Name: "hf", Kind: "huggingface"})
	require.NoError(t, err)
	hf := c.(*huggingface.Adapter)
	require.NotNil(t, hf.Temperature)
	assert.InDelta(t, 0.7, *hf.Temperature, 1e-9)
	assert.Equal(t, 100, hf.MaxTokens)
	assert.Equal(t, huggingface.DefaultModel, hf.Name)

	temp := 0.2
	c, err = buildCompleter(ProviderConfig{Name: "hf", Kind: "huggingface", Temperature: &temp, MaxTokens: 512, Model: "m"})
	require.NoError(t, err)
	hf = c.(*huggingface.Adapter)
	require.NotNil(t, hf.Temperature)
	assert.InDelta(t, 0.2, *hf.Temperature, 1e-9)
	assert.Equal(t, 512, hf.MaxTokens)
	assert.Equal(t, "m", hf.Name)

	zero := 0.0
	c, err = buildCompleter(ProviderConfig{Name: "hf", Kind: "huggingface", Temperature: &zero})
	require.NoError(t, err)
	hf = c.(*huggingface.Adapter)
	require.NotNil(t, hf.Temperature)
	assert.InDelta(t, 0.0, *hf.Temperature, 1e-9)
}

func TestBuildCompleter_HuggingFaceTokenFromEnv(t *testing.T) {
	t.Setenv(huggingface.TokenEnv, "hf-env-token")

	c, err := buildCompleter(ProviderConfig{Name: "hf", Kind: "huggingface"})
	require.NoError(t, err)
	assert.Equal(t, "hf-env-token", c.(*huggingface.Adapter).Auth.Key)

	c, err = buildCompleter(ProviderConfig{Name: "hf", Kind: "huggingface", APIKey: "explicit"})
	require.NoError(t, err)
	assert.Equal(t, "explicit", c.(*huggingface.Adapter).Auth.Key)
}

func TestBuildCompleter_Wrappers(t *testing.T) {
	replies := []ReplyConfig{{Text: "hi"}}

	c, err := buildCompleter(ProviderConfig{Name: "p", Kind: "scripted", Replies: replies, Timeout: "5s"})
	require.NoError(t, err)
	assert.IsType(t, &modeladapter.TimeoutCompleter{}, c)

	c, err = buildCompleter(ProviderConfig{Name: "p", Kind: "scripted", Replies: replies, Timeout: "5s", Retry: RetryConfig{MaxRetries: 2}})
	require.NoError(t, err)
	assert.IsType(t, &modeladapter.RetryCompleter{}, c)

	_, err = buildCompleter(ProviderConfig{Name: "p", Kind: "scripted", Replies: replies, Retry: RetryConfig{BaseDelay: "soon"}})
	assert.ErrorContains(t, err, `invalid base_delay "soon"`)

	reply, err := c.Complete(context.Background(), chat.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", reply.TextContent())
}

func TestNewScripted_Replies(t *testing.T) {
	c, err := newScripted(ProviderConfig{Replies: []ReplyConfig{
		{Tool: "add", Args: map[string]any{"a": 1, "b": 2}},
		{Tool: "list_keys"},
		{Text: "3"},
		{Error: "boom"},
	}})
	require.NoError(t, err)

	ctx := context.Background()
	c1 := chat.New(message.NewText("user", role.User, "hi"))

	reply, err := c.Complete(ctx, c1, nil)
	require.NoError(t, err)
	require.Len(t, reply.ToolCalls(), 1)
	assert.JSONEq(t, `{"a":1,"b":2}`, reply.ToolCalls()[0].Arguments)

	reply, err = c.Complete(ctx, c1, nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", reply.ToolCalls()[0].Arguments)

	reply, err = c.Complete(ctx, c1, nil)
	require.NoError(t, err)
	assert.Equal(t, "3", reply.TextContent())

	_, err = c.Complete(ctx, c1, nil)
	assert.ErrorContains(t, err, "boom")

	_, err = newScripted(ProviderConfig{Replies: []ReplyConfig{{}}})
	assert.ErrorContains(t, err, "reply[0]")
	assert.IsType(t, &scripted.Completer{}, c)
}

func TestRegisterProvider(t *testing.T) {
	RegisterProvider("echo", func(cfg ProviderConfig) (modeladapter.Completer, error) {
		return scripted.New(scripted.Text(cfg.Model)), nil
	})

	c, err := buildCompleter(ProviderConfig{Name: "e", Kind: "echo", Model: "parrot"})
	require.NoError(t, err)

	reply, err := c.Complete(context.Background(), chat.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, "parrot", reply.TextContent())
}
