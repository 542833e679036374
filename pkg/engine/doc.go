// Package engine is the composition root that assembles the relay
// components from configuration: providers, tool boxes, MCP clients,
// retrievers and the agent workflow. Frontends (the relay CLI) interact with
// Engine and Session, observe runs through an EventBus and never wire lower
// level packages themselves.
package engine
