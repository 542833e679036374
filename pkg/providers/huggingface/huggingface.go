// Package huggingface provides a Completer for the Hugging Face inference
// router, which speaks the OpenAI Chat Completions wire format.
package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/germanamz/relay/pkg/chats/chat"
	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/chats/role"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/modeladapter/usage"
	"github.com/germanamz/relay/pkg/tools/toolbox"
)

const (
	// DefaultBaseURL is the Hugging Face inference router.
	DefaultBaseURL = "https://router.huggingface.co"
	// DefaultModel is used when no model is configured.
	DefaultModel = "Qwen/Qwen2.5-Coder-32B-Instruct"
	// TokenEnv is read for the access token when none is configured.
	TokenEnv = "HF_TOKEN"

	completionsPath    = "/v1/chat/completions"
	defaultTemperature = 0.7
	defaultMaxTokens   = 100
)

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter implements modeladapter.Completer for the Hugging Face router.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter. An empty baseURL or model selects the defaults;
// temperature 0.7 and 100 max tokens apply until the caller overrides them.
func New(baseURL, token, model string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}

	a := &Adapter{}
	a.Provider = "huggingface"
	a.BaseURL = strings.TrimSuffix(baseURL, "/")
	a.Auth = modeladapter.Auth{Key: token}
	a.Name = model
	temp := defaultTemperature
	a.Temperature = &temp
	a.MaxTokens = defaultMaxTokens
	a.HeaderParser = modeladapter.ParseOpenAIRateLimitHeaders

	return a
}

// Complete sends the conversation and returns the assistant's reply.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	req := a.buildRequest(c, tools)

	var resp apiResponse
	if err := a.PostJSON(ctx, completionsPath, req, &resp); err != nil {
		return message.Message{}, fmt.Errorf("huggingface: %w", err)
	}

	a.Usage.Add(usage.TokenCount{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	})

	if len(resp.Choices) == 0 {
		return message.Message{}, &modeladapter.ServiceError{
			Provider: a.Provider, Op: "complete", Err: fmt.Errorf("empty choices in response"),
		}
	}

	return parseChoice(resp.Choices[0]), nil
}

// --- request types ---

type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Tools       []apiToolDef `json:"tools,omitempty"`
}

type apiMessage struct {
	Role       string        `json:"role"`
	Content    *string       `json:"content"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type apiToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function apiToolFunction `json:"function"`
}

type apiToolFunction struct {
	Name string `json:"name"`
	// Some router backends return arguments as an object instead of a string.
	Arguments json.RawMessage `json:"arguments"`
}

type apiToolDef struct {
	Type     string         `json:"type"`
	Function apiToolDefFunc `json:"function"`
}

type apiToolDefFunc struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// --- response types ---

type apiResponse struct {
	Choices []apiChoice `json:"choices"`
	Usage   apiUsage    `json:"usage"`
}

type apiChoice struct {
	Message      apiRespMessage `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type apiRespMessage struct {
	Role      string        `json:"role"`
	Content   *string       `json:"content"`
	ToolCalls []apiToolCall `json:"tool_calls,omitempty"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(c *chat.Chat, tools []toolbox.Tool) apiRequest {
	req := apiRequest{
		Model:     a.Name,
		MaxTokens: a.MaxTokens,
	}

	if a.Temperature != nil {
		t := *a.Temperature
		req.Temperature = &t
	}

	if len(tools) > 0 {
		req.Tools = make([]apiToolDef, len(tools))
		for i, t := range tools {
			req.Tools[i] = apiToolDef{
				Type: "function",
				Function: apiToolDefFunc{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Schema(),
				},
			}
		}
	}

	for _, m := range c.Messages() {
		req.Messages = appendMessages(req.Messages, m)
	}

	return req
}

func appendMessages(msgs []apiMessage, m message.Message) []apiMessage {
	switch m.Role {
	case role.System, role.User:
		text := m.TextContent()
		return append(msgs, apiMessage{Role: m.Role.String(), Content: &text})

	case role.Assistant:
		msg := apiMessage{Role: "assistant"}
		if text := m.TextContent(); text != "" {
			msg.Content = &text
		}
		for _, tc := range m.ToolCalls() {
			args := tc.Arguments
			if args == "" {
				args = "{}"
			}
			raw, _ := json.Marshal(args)
			msg.ToolCalls = append(msg.ToolCalls, apiToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: apiToolFunction{Name: tc.Name, Arguments: raw},
			})
		}
		return append(msgs, msg)

	case role.Tool:
		for _, tr := range m.ToolResults() {
			text := tr.Content
			msgs = append(msgs, apiMessage{Role: "tool", Content: &text, ToolCallID: tr.ToolCallID})
		}
	}

	return msgs
}

func parseChoice(choice apiChoice) message.Message {
	var parts []content.Part

	if choice.Message.Content != nil && *choice.Message.Content != "" {
		parts = append(parts, content.Text{Text: *choice.Message.Content})
	}

	for _, tc := range choice.Message.ToolCalls {
		parts = append(parts, content.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: argumentString(tc.Function.Arguments),
		})
	}

	return message.New("", role.Assistant, parts...)
}

// argumentString accepts both encodings of tool arguments: a JSON string
// holding the object, or the object itself.
func argumentString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
