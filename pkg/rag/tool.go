package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/germanamz/relay/pkg/chats/chat"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/chats/role"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/tools/toolbox"
)

// DefaultTopK is the number of chunks a query returns by default.
const DefaultTopK = 5

// Mode selects what the retrieval tool returns.
type Mode string

const (
	// ModeRetrieve returns the matching chunks.
	ModeRetrieve Mode = "retrieve"
	// ModeSynthesize answers the query from the matching chunks with a
	// completer.
	ModeSynthesize Mode = "synthesize"
)

// ParseMode maps a config string to a Mode. Empty means ModeRetrieve.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeRetrieve:
		return ModeRetrieve, nil
	case ModeSynthesize:
		return ModeSynthesize, nil
	}
	return "", fmt.Errorf("rag: unknown mode %q", s)
}

// ToolOptions configures Tool.
type ToolOptions struct {
	Name        string
	Description string
	TopK        int
	Mode        Mode
	// Completer writes the answer in ModeSynthesize.
	Completer modeladapter.Completer
}

const synthesizePrompt = "You answer questions using only the provided context. " +
	"If the context does not contain the answer, say that you don't know."

// Tool exposes x as a single-argument tool taking a query.
func Tool(x *Index, opts ToolOptions) (toolbox.Tool, error) {
	if opts.Name == "" {
		return toolbox.Tool{}, errors.New("rag: tool name is required")
	}
	if opts.Mode == "" {
		opts.Mode = ModeRetrieve
	}
	if opts.Mode == ModeSynthesize && opts.Completer == nil {
		return toolbox.Tool{}, fmt.Errorf("rag: tool %s: synthesize mode needs a completer", opts.Name)
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Description == "" {
		opts.Description = "Retrieves relevant information from the knowledge base."
	}

	return toolbox.Tool{
		Name:        opts.Name,
		Description: opts.Description,
		Params: []toolbox.Param{
			{Name: "query", Type: toolbox.TypeString, Description: "the query to search for"},
		},
		OutputType: toolbox.TypeString,
		Handler: func(ctx context.Context, in toolbox.Input) (any, error) {
			query := strings.TrimSpace(in.String("query"))
			hits, err := x.Query(ctx, query, opts.TopK)
			if err != nil {
				return nil, err
			}
			if opts.Mode == ModeSynthesize {
				return synthesize(ctx, opts.Completer, query, hits)
			}
			return FormatHits(hits), nil
		},
	}, nil
}

// FormatHits renders hits the way retrieval observations are shown to the
// model.
func FormatHits(hits []Hit) string {
	var b strings.Builder
	b.WriteString("\nRetrieved information:\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "\n\n===== Result %d =====\n%s", i, h.Content)
	}
	return b.String()
}

func synthesize(ctx context.Context, c modeladapter.Completer, query string, hits []Hit) (string, error) {
	if len(hits) == 0 {
		return "No relevant information found.", nil
	}

	var ctxText strings.Builder
	for _, h := range hits {
		if h.Source != "" {
			fmt.Fprintf(&ctxText, "[%s]\n", h.Source)
		}
		ctxText.WriteString(h.Content)
		ctxText.WriteString("\n\n")
	}

	conv := chat.New(
		message.NewText("system", role.System, synthesizePrompt),
		message.NewText("user", role.User, "Context:\n"+ctxText.String()+"Question: "+query),
	)

	reply, err := c.Complete(ctx, conv, nil)
	if err != nil {
		return "", err
	}
	return reply.TextContent(), nil
}
