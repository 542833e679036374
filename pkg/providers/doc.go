// Package providers groups the concrete modeladapter.Completer variants.
//
//   - [github.com/germanamz/relay/pkg/providers/openai]: OpenAI Chat Completions through the official SDK
//   - [github.com/germanamz/relay/pkg/providers/anthropic]: Anthropic Messages through the official SDK
//   - [github.com/germanamz/relay/pkg/providers/huggingface]: Hugging Face inference router (OpenAI-compatible wire format)
//   - [github.com/germanamz/relay/pkg/providers/scripted]: deterministic replies for tests and offline demos
package providers
