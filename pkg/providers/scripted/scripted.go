// Package scripted provides a deterministic Completer that plays back a
// fixed sequence of replies. It drives agent tests and offline demos.
package scripted

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/germanamz/relay/pkg/chats/chat"
	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/chats/role"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/modeladapter/usage"
	"github.com/germanamz/relay/pkg/tools/toolbox"
)

// ErrExhausted is returned once every reply has been played and looping is off.
var ErrExhausted = errors.New("scripted: no replies left")

var _ modeladapter.Completer = (*Completer)(nil)

// Reply produces one model turn. It sees the conversation and the tools
// offered for that turn.
type Reply func(c *chat.Chat, tools []toolbox.Tool) (message.Message, error)

// Text replies with plain text, which an agent treats as its final answer.
func Text(s string) Reply {
	return func(*chat.Chat, []toolbox.Tool) (message.Message, error) {
		return message.NewText("", role.Assistant, s), nil
	}
}

// Call replies with a single tool call. args is marshalled to JSON; a string
// is used verbatim.
func Call(name string, args any) Reply {
	return Calls(ToolCall{Name: name, Args: args})
}

// ToolCall is one call inside a Calls reply.
type ToolCall struct {
	Name string
	Args any
}

// Calls replies with several tool calls in one turn.
func Calls(calls ...ToolCall) Reply {
	return func(*chat.Chat, []toolbox.Tool) (message.Message, error) {
		parts := make([]content.Part, 0, len(calls))
		for _, tc := range calls {
			args, err := encodeArgs(tc.Args)
			if err != nil {
				return message.Message{}, err
			}
			parts = append(parts, content.ToolCall{Name: tc.Name, Arguments: args})
		}
		return message.New("", role.Assistant, parts...), nil
	}
}

// Fail replies with err.
func Fail(err error) Reply {
	return func(*chat.Chat, []toolbox.Tool) (message.Message, error) {
		return message.Message{}, err
	}
}

func encodeArgs(args any) (string, error) {
	switch v := args.(type) {
	case nil:
		return "{}", nil
	case string:
		return v, nil
	case json.RawMessage:
		return string(v), nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("scripted: encode arguments: %w", err)
	}
	return string(b), nil
}

// Completer plays back replies in order. It is safe for concurrent use.
type Completer struct {
	mu      sync.Mutex
	replies []Reply
	next    int
	loop    bool
	ids     int
	chats   []*chat.Chat
	tools   [][]string
	usage   usage.Tracker
}

// New creates a Completer that plays replies in order.
func New(replies ...Reply) *Completer {
	return &Completer{replies: replies}
}

// Loop makes the Completer repeat its last reply once the script runs out.
func (s *Completer) Loop() *Completer {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loop = true
	return s
}

// UsageTracker returns a tracker fed with rough character-based estimates.
func (s *Completer) UsageTracker() *usage.Tracker { return &s.usage }

// Complete returns the next scripted reply. Tool calls without an ID get a
// sequential one.
func (s *Completer) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	if err := ctx.Err(); err != nil {
		return message.Message{}, err
	}

	s.mu.Lock()
	s.chats = append(s.chats, c.Clone())
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	s.tools = append(s.tools, names)

	if len(s.replies) == 0 || (s.next >= len(s.replies) && !s.loop) {
		s.mu.Unlock()
		return message.Message{}, ErrExhausted
	}
	idx := s.next
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	reply := s.replies[idx]
	s.next++
	s.mu.Unlock()

	msg, err := reply(c, tools)
	if err != nil {
		return message.Message{}, err
	}

	s.mu.Lock()
	for i, p := range msg.Parts {
		if tc, ok := p.(content.ToolCall); ok && tc.ID == "" {
			s.ids++
			tc.ID = fmt.Sprintf("call_%d", s.ids)
			msg.Parts[i] = tc
		}
	}
	s.mu.Unlock()

	s.usage.Add(usage.TokenCount{
		InputTokens:  len(c.Transcript()) / 4,
		OutputTokens: len(msg.TextContent()) / 4,
	})

	return msg, nil
}

// Calls returns how many times Complete was invoked.
func (s *Completer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.chats)
}

// Chat returns a snapshot of the conversation seen by the i-th call.
func (s *Completer) Chat(i int) *chat.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chats[i]
}

// ToolNames returns the tool names offered to the i-th call.
func (s *Completer) ToolNames(i int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tools[i]
}
