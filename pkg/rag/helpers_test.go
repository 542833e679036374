package rag

import (
	"context"
	"testing"

	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/germanamz/relay/pkg/tools/toolbox"
)

func toolboxCall(t *testing.T, tool toolbox.Tool, args string) (string, error) {
	t.Helper()
	res, err := toolbox.MustNew(tool).Call(context.Background(), nil, content.ToolCall{Name: tool.Name, Arguments: args})
	return res.Text, err
}
