// Package openai provides a Completer backed by the OpenAI Chat Completions
// API through the official openai-go SDK.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/germanamz/relay/pkg/chats/chat"
	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/chats/role"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/modeladapter/usage"
	"github.com/germanamz/relay/pkg/tools/toolbox"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const providerName = "openai"

var _ modeladapter.Completer = (*Adapter)(nil)

// Options configures an Adapter.
type Options struct {
	APIKey      string
	BaseURL     string // Optional; defaults to the SDK's endpoint.
	Model       string
	Temperature *float64 // nil leaves the API default.
	MaxTokens   int
	HTTPClient  *http.Client
}

// Adapter implements modeladapter.Completer for OpenAI.
type Adapter struct {
	client openai.Client
	opts   Options
	usage  usage.Tracker
}

// New creates an Adapter. SDK-level retries are disabled; wrap the adapter
// in a modeladapter.RetryCompleter instead.
func New(opts Options) *Adapter {
	if opts.Model == "" {
		opts.Model = openai.ChatModelGPT4oMini
	}

	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &Adapter{client: openai.NewClient(reqOpts...), opts: opts}
}

// UsageTracker returns the adapter's token usage tracker.
func (a *Adapter) UsageTracker() *usage.Tracker { return &a.usage }

// Complete sends the conversation and returns the assistant's reply.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    a.opts.Model,
		Messages: buildMessages(c),
	}
	if a.opts.Temperature != nil {
		params.Temperature = openai.Float(*a.opts.Temperature)
	}
	if a.opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(a.opts.MaxTokens))
	}
	if len(tools) > 0 {
		defs, err := buildTools(tools)
		if err != nil {
			return message.Message{}, err
		}
		params.Tools = defs
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return message.Message{}, classify(err)
	}

	a.usage.Add(usage.TokenCount{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	})

	if len(resp.Choices) == 0 {
		return message.Message{}, &modeladapter.ServiceError{
			Provider: providerName, Op: "complete", Err: errors.New("empty choices in response"),
		}
	}

	reply := resp.Choices[0].Message
	var parts []content.Part
	if reply.Content != "" {
		parts = append(parts, content.Text{Text: reply.Content})
	}
	for _, tc := range reply.ToolCalls {
		parts = append(parts, content.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return message.New("", role.Assistant, parts...), nil
}

func buildMessages(c *chat.Chat) []openai.ChatCompletionMessageParamUnion {
	var msgs []openai.ChatCompletionMessageParamUnion

	for _, m := range c.Messages() {
		switch m.Role {
		case role.System:
			msgs = append(msgs, openai.SystemMessage(m.TextContent()))
		case role.User:
			msgs = append(msgs, openai.UserMessage(m.TextContent()))
		case role.Assistant:
			calls := m.ToolCalls()
			if len(calls) == 0 {
				msgs = append(msgs, openai.AssistantMessage(m.TextContent()))
				continue
			}
			params := make([]openai.ChatCompletionMessageToolCallParam, len(calls))
			for i, tc := range calls {
				params[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: params,
				},
			})
		case role.Tool:
			for _, tr := range m.ToolResults() {
				msgs = append(msgs, openai.ToolMessage(tr.Content, tr.ToolCallID))
			}
		}
	}

	return msgs
}

func buildTools(tools []toolbox.Tool) ([]openai.ChatCompletionToolParam, error) {
	defs := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		var params openai.FunctionParameters
		if err := json.Unmarshal(t.Schema(), &params); err != nil {
			return nil, fmt.Errorf("openai: schema of %s: %w", t.Name, err)
		}
		defs[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  params,
			},
		}
	}
	return defs, nil
}

// classify maps SDK errors onto the modeladapter failure types.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var retryAfter string
		if apiErr.Response != nil {
			retryAfter = apiErr.Response.Header.Get("Retry-After")
		}
		return modeladapter.StatusError(providerName, "complete", apiErr.StatusCode,
			modeladapter.ParseRetryAfter(retryAfter), err)
	}
	return modeladapter.TransportError(providerName, "complete", err)
}
