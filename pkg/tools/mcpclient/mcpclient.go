// Package mcpclient discovers tools exposed by an external MCP server process
// and wraps them as toolbox tools.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/tools/toolbox"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrToolFailed is wrapped by errors the server reported for a tool call
// (as opposed to transport failures).
var ErrToolFailed = errors.New("mcpclient: tool reported an error")

// Server describes how to start an MCP server over stdio.
type Server struct {
	Name    string
	Command string
	Args    []string
	// Env is added on top of the current process environment.
	Env map[string]string
}

// MCPClient is a connected session with one MCP server.
type MCPClient struct {
	name    string
	client  *mcp.Client
	session *mcp.ClientSession
}

// New starts srv as a subprocess and connects to it. The SDK performs the
// initialization handshake during Connect.
func New(ctx context.Context, srv Server) (*MCPClient, error) {
	if srv.Command == "" {
		return nil, errors.New("mcpclient: command is required")
	}

	cmd := exec.Command(srv.Command, srv.Args...) //nolint:gosec // command comes from configuration
	if len(srv.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(srv.Env)...)
	}

	return newFromTransport(ctx, srv.Name, &mcp.CommandTransport{Command: cmd})
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func newFromTransport(ctx context.Context, name string, transport mcp.Transport) (*MCPClient, error) {
	if name == "" {
		name = "mcp"
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "relay", Version: "0.1.0"}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: %s: connect: %w", name, err)
	}

	return &MCPClient{name: name, client: client, session: session}, nil
}

// Name returns the server name the client was created with.
func (c *MCPClient) Name() string { return c.name }

// ListTools fetches the server's tools and wraps each one so that calling
// its Handler goes back through CallTool.
func (c *MCPClient) ListTools(ctx context.Context) ([]toolbox.Tool, error) {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: %s: list tools: %w", c.name, err)
	}

	tools := make([]toolbox.Tool, 0, len(result.Tools))
	for _, sdkTool := range result.Tools {
		t, err := c.fromSDKTool(sdkTool)
		if err != nil {
			return nil, fmt.Errorf("mcpclient: %s: convert tool %q: %w", c.name, sdkTool.Name, err)
		}
		tools = append(tools, t)
	}

	return tools, nil
}

// ToolBox returns the server's tools as a ToolBox.
func (c *MCPClient) ToolBox(ctx context.Context) (*toolbox.ToolBox, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	tb := toolbox.New()
	if err := tb.Register(tools...); err != nil {
		return nil, fmt.Errorf("mcpclient: %s: %w", c.name, err)
	}
	return tb, nil
}

// CallTool calls a tool by name. Transport failures are returned as
// *modeladapter.ServiceError; a result flagged IsError wraps ErrToolFailed.
func (c *MCPClient) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	var args map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return "", fmt.Errorf("mcpclient: unmarshal arguments: %w", err)
		}
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", modeladapter.TransportError("mcp:"+c.name, "call "+name, err)
	}

	text := extractText(result)
	if result.IsError {
		return "", fmt.Errorf("%w: %s", ErrToolFailed, text)
	}

	return text, nil
}

// Close ends the session. For command transports the SDK closes stdin, waits
// and escalates to SIGTERM and SIGKILL.
func (c *MCPClient) Close() error {
	return c.session.Close()
}

func (c *MCPClient) fromSDKTool(sdkTool *mcp.Tool) (toolbox.Tool, error) {
	schema := json.RawMessage(`{"type":"object"}`)
	if sdkTool.InputSchema != nil {
		b, err := json.Marshal(sdkTool.InputSchema)
		if err != nil {
			return toolbox.Tool{}, fmt.Errorf("marshal input schema: %w", err)
		}
		schema = b
	}

	name := sdkTool.Name

	return toolbox.Tool{
		Name:        name,
		Description: sdkTool.Description,
		InputSchema: schema,
		OutputType:  toolbox.TypeString,
		Handler: func(ctx context.Context, in toolbox.Input) (any, error) {
			return c.CallTool(ctx, name, in.Raw)
		},
	}, nil
}

// extractText joins the text items of a result with newlines.
func extractText(result *mcp.CallToolResult) string {
	var texts []string
	for _, item := range result.Content {
		if tc, ok := item.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}

	return strings.Join(texts, "\n")
}
