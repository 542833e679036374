// Package agentctx carries run identity through context.Context. It has no
// dependencies inside the module so every package can import it.
package agentctx

import "context"

type (
	agentNameCtxKey struct{}
	runIDCtxKey     struct{}
)

// WithAgentName returns a new context carrying the given agent name.
func WithAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentNameCtxKey{}, name)
}

// AgentNameFromContext extracts the agent name from the context.
// Returns "" if no agent name is present.
func AgentNameFromContext(ctx context.Context) string {
	v, _ := ctx.Value(agentNameCtxKey{}).(string)
	return v
}

// WithRunID returns a new context carrying the workflow run ID.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDCtxKey{}, id)
}

// RunIDFromContext extracts the run ID, or "".
func RunIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(runIDCtxKey{}).(string)
	return v
}
