// Package chats is the provider-agnostic conversation model shared by agents
// and model adapters.
//
//   - [github.com/germanamz/relay/pkg/chats/role]: conversation roles
//   - [github.com/germanamz/relay/pkg/chats/content]: text, tool call and tool result parts
//   - [github.com/germanamz/relay/pkg/chats/message]: messages built from a role, a sender and parts
//   - [github.com/germanamz/relay/pkg/chats/chat]: append-only conversation container
package chats
