// Package tools groups the tool packages.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/relay/pkg/tools/toolbox]: Tool type and the ToolBox that validates arguments and calls handlers
//   - [github.com/germanamz/relay/pkg/tools/catalog]: static registry of the builtin tool boxes
//   - [github.com/germanamz/relay/pkg/tools/calculator], [github.com/germanamz/relay/pkg/tools/flight],
//     [github.com/germanamz/relay/pkg/tools/party], [github.com/germanamz/relay/pkg/tools/web]: builtin tool boxes
//   - [github.com/germanamz/relay/pkg/tools/mcpclient]: MCP client that wraps tools of an external server process
//   - [github.com/germanamz/relay/pkg/tools/mcpserver]: MCP server that exposes tool boxes over the protocol
//
// The toolbox sub-package is the foundation layer; every other package
// depends on it. The mcpclient and mcpserver packages are thin wrappers
// around the official MCP Go SDK (github.com/modelcontextprotocol/go-sdk).
package tools
