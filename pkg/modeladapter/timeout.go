package modeladapter

import (
	"context"
	"errors"
	"time"

	"github.com/germanamz/relay/pkg/chats/chat"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/modeladapter/usage"
	"github.com/germanamz/relay/pkg/tools/toolbox"
)

// TimeoutCompleter bounds every Complete call with its own deadline.
type TimeoutCompleter struct {
	inner   Completer
	timeout time.Duration
}

// WithTimeout wraps inner so each call gets at most d. A call that runs out
// of time fails with a retryable *ServiceError. d <= 0 returns inner.
func WithTimeout(inner Completer, d time.Duration) Completer {
	if d <= 0 {
		return inner
	}
	return &TimeoutCompleter{inner: inner, timeout: d}
}

func (t *TimeoutCompleter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	msg, err := t.inner.Complete(callCtx, c, tools)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return message.Message{}, &ServiceError{
			Provider:  "model",
			Op:        "complete",
			Retryable: true,
			Err:       context.DeadlineExceeded,
		}
	}

	return msg, err
}

// UsageTracker forwards to the wrapped completer.
func (t *TimeoutCompleter) UsageTracker() *usage.Tracker {
	if ur, ok := t.inner.(UsageReporter); ok {
		return ur.UsageTracker()
	}
	return nil
}
