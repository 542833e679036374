// Package modeladapter defines how the reasoning loop talks to inference
// models.
//
// It contains:
//   - [Completer], the one capability every provider implements
//   - [ModelAdapter], an embeddable HTTP base with auth, custom headers and usage tracking
//   - [ServiceError] and [RateLimitError], the retryable external-service failures
//   - [RetryCompleter] and [WithTimeout], wrappers that add retries and per-call deadlines
//   - [github.com/germanamz/relay/pkg/modeladapter/usage], a token usage tracker
//
// Concrete adapters live under pkg/providers.
package modeladapter
