// Package anthropic provides a Completer backed by the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/germanamz/relay/pkg/chats/chat"
	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/chats/role"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/modeladapter/usage"
	"github.com/germanamz/relay/pkg/tools/toolbox"
)

const (
	providerName     = "anthropic"
	defaultMaxTokens = 4096
)

var _ modeladapter.Completer = (*Adapter)(nil)

// Options configures an Adapter.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64 // nil leaves the API default.
	MaxTokens   int
	HTTPClient  *http.Client
}

// Adapter implements modeladapter.Completer for Anthropic.
type Adapter struct {
	client anthropic.Client
	opts   Options
	usage  usage.Tracker
}

// New creates an Adapter with SDK retries disabled.
func New(opts Options) *Adapter {
	if opts.Model == "" {
		opts.Model = string(anthropic.ModelClaude3_5HaikuLatest)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
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

	return &Adapter{client: anthropic.NewClient(reqOpts...), opts: opts}
}

// UsageTracker returns the adapter's token usage tracker.
func (a *Adapter) UsageTracker() *usage.Tracker { return &a.usage }

// Complete sends the conversation and returns the assistant's reply.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.opts.Model),
		Messages:  buildMessages(c),
		MaxTokens: int64(a.opts.MaxTokens),
	}
	if a.opts.Temperature != nil {
		params.Temperature = anthropic.Float(*a.opts.Temperature)
	}
	if sys := c.SystemPrompt(); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	if len(tools) > 0 {
		defs, err := buildTools(tools)
		if err != nil {
			return message.Message{}, err
		}
		params.Tools = defs
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return message.Message{}, classify(err)
	}

	a.usage.Add(usage.TokenCount{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	})

	var parts []content.Part
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if text := block.AsText().Text; text != "" {
				parts = append(parts, content.Text{Text: text})
			}
		case "tool_use":
			tu := block.AsToolUse()
			args := "{}"
			if raw, err := json.Marshal(tu.Input); err == nil && string(raw) != "null" {
				args = string(raw)
			}
			parts = append(parts, content.ToolCall{ID: tu.ID, Name: tu.Name, Arguments: args})
		}
	}

	return message.New("", role.Assistant, parts...), nil
}

// buildMessages converts the chat into alternating user/assistant turns.
// Tool results travel as user content; consecutive same-role turns merge.
func buildMessages(c *chat.Chat) []anthropic.MessageParam {
	var msgs []anthropic.MessageParam

	push := func(r anthropic.MessageParamRole, blocks []anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == r {
			msgs[n-1].Content = append(msgs[n-1].Content, blocks...)
			return
		}
		msgs = append(msgs, anthropic.MessageParam{Role: r, Content: blocks})
	}

	for _, m := range c.Messages() {
		var blocks []anthropic.ContentBlockParamUnion
		switch m.Role {
		case role.System:
			continue
		case role.User:
			if text := m.TextContent(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			push(anthropic.MessageParamRoleUser, blocks)
		case role.Assistant:
			if text := m.TextContent(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, tc := range m.ToolCalls() {
				var input any = map[string]any{}
				if tc.Arguments != "" {
					var v any
					if err := json.Unmarshal([]byte(tc.Arguments), &v); err == nil {
						input = v
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			push(anthropic.MessageParamRoleAssistant, blocks)
		case role.Tool:
			for _, tr := range m.ToolResults() {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			push(anthropic.MessageParamRoleUser, blocks)
		}
	}

	return msgs
}

func buildTools(tools []toolbox.Tool) ([]anthropic.ToolUnionParam, error) {
	defs := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if err := json.Unmarshal(t.Schema(), &schema); err != nil {
			return nil, fmt.Errorf("anthropic: schema of %s: %w", t.Name, err)
		}

		input := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: schema.Properties,
			Required:   schema.Required,
		}
		defs[i] = anthropic.ToolUnionParamOfTool(input, t.Name)
		if t.Description != "" {
			defs[i].OfTool.Description = anthropic.String(t.Description)
		}
	}
	return defs, nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
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
