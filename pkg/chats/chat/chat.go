// Package chat provides the append-only conversation an agent run builds up.
package chat

import (
	"fmt"
	"strings"

	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/chats/role"
)

// Chat is a mutable conversation container. The zero value is ready to use.
// Chat is not safe for concurrent use.
type Chat struct {
	messages []message.Message
}

// New creates a Chat pre-populated with the given messages.
func New(msgs ...message.Message) *Chat {
	return &Chat{messages: msgs}
}

// Append adds one or more messages to the conversation.
func (c *Chat) Append(msgs ...message.Message) {
	c.messages = append(c.messages, msgs...)
}

// Len returns the number of messages in the conversation.
func (c *Chat) Len() int {
	return len(c.messages)
}

// At returns the message at the given index. It panics if the index is out
// of range.
func (c *Chat) At(index int) message.Message {
	return c.messages[index]
}

// Last returns the most recent message, or false if the chat is empty.
func (c *Chat) Last() (message.Message, bool) {
	if len(c.messages) == 0 {
		return message.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Messages returns a copy of all messages in the conversation.
func (c *Chat) Messages() []message.Message {
	cp := make([]message.Message, len(c.messages))
	copy(cp, c.messages)
	return cp
}

// Clone returns an independent chat holding the same messages.
func (c *Chat) Clone() *Chat {
	return New(c.Messages()...)
}

// SystemPrompt returns the text of the first system message, or "".
func (c *Chat) SystemPrompt() string {
	for _, m := range c.messages {
		if m.Role == role.System {
			return m.TextContent()
		}
	}
	return ""
}

// Transcript renders the non-system messages as plain text, one block per
// message. Judges and planners read it when they need the history as prose.
func (c *Chat) Transcript() string {
	var b strings.Builder
	for _, m := range c.messages {
		if m.Role == role.System {
			continue
		}
		for _, p := range m.Parts {
			switch v := p.(type) {
			case content.Text:
				if v.Text != "" {
					fmt.Fprintf(&b, "[%s] %s\n", m.Role, v.Text)
				}
			case content.ToolCall:
				fmt.Fprintf(&b, "[%s] call %s(%s)\n", m.Role, v.Name, v.Arguments)
			case content.ToolResult:
				fmt.Fprintf(&b, "[%s] %s -> %s\n", m.Role, v.Name, v.Content)
			}
		}
	}
	return b.String()
}
