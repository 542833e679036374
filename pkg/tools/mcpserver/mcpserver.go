// Package mcpserver exposes toolbox tools over the MCP protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/germanamz/relay/pkg/chats/content"
	"github.com/germanamz/relay/pkg/tools/toolbox"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPServer serves the tools of one or more tool boxes. Calls go through
// ToolBox.Call, so arguments are validated and every call shares the
// server's store.
type MCPServer struct {
	server *mcp.Server
	box    *toolbox.ToolBox
	state  toolbox.State
}

// New creates a server. st is handed to every tool call and may be nil.
func New(name, version string, st toolbox.State) *MCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, nil)

	return &MCPServer{server: server, box: toolbox.New(), state: st}
}

// Register adds the tools of tbs. A tool name served twice is an error.
func (s *MCPServer) Register(tbs ...*toolbox.ToolBox) error {
	for _, tb := range tbs {
		for _, t := range tb.Tools() {
			if err := s.box.Register(t); err != nil {
				return fmt.Errorf("mcpserver: %w", err)
			}
			s.server.AddTool(toSDKTool(t), s.handler(t.Name))
		}
	}
	return nil
}

// Len returns the number of served tools.
func (s *MCPServer) Len() int { return s.box.Len() }

// Serve reads requests from in and writes responses to out until ctx is
// cancelled or the transport closes.
func (s *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}

	return s.run(ctx, transport)
}

// ServeStdio serves over the process's stdin and stdout.
func (s *MCPServer) ServeStdio(ctx context.Context) error {
	return s.run(ctx, &mcp.StdioTransport{})
}

func (s *MCPServer) run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func toSDKTool(t toolbox.Tool) *mcp.Tool {
	return &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.Schema(),
	}
}

// handler runs the named tool through the server's tool box. Tool failures
// are reported in-band with IsError so the client model can see them.
func (s *MCPServer) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.Params.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}

		res, err := s.box.Call(ctx, s.state, content.ToolCall{Name: name, Arguments: string(args)})
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.Text}},
		}, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
