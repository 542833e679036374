package modeladapter

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/germanamz/relay/pkg/chats/chat"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/modeladapter/usage"
	"github.com/germanamz/relay/pkg/tools/toolbox"
)

var _ Completer = (*RetryCompleter)(nil)

// RetryOpts configures a RetryCompleter.
type RetryOpts struct {
	RPM        int           // Requests per minute (0 = no limit).
	MaxRetries int           // Retries after the first attempt (default 3).
	BaseDelay  time.Duration // Initial backoff delay (default 1s).
}

// RetryCompleter wraps a Completer with proactive requests-per-minute
// throttling and exponential backoff with jitter on retryable failures
// (429s, 5xx, timeouts). Non-retryable errors are returned at once.
type RetryCompleter struct {
	inner      Completer
	mu         sync.Mutex
	window     []time.Time
	rpm        int
	maxRetries int
	baseDelay  time.Duration

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
	randFunc  func() float64
}

// NewRetryCompleter wraps inner.
func NewRetryCompleter(inner Completer, opts RetryOpts) *RetryCompleter {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}

	return &RetryCompleter{
		inner:      inner,
		rpm:        opts.RPM,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		nowFunc:    time.Now,
		sleepFunc:  contextSleep,
		randFunc:   rand.Float64,
	}
}

// SetNowFunc overrides the time source (for testing).
func (r *RetryCompleter) SetNowFunc(fn func() time.Time) { r.nowFunc = fn }

// SetSleepFunc overrides the sleep function (for testing).
func (r *RetryCompleter) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	r.sleepFunc = fn
}

// SetRandFunc overrides the jitter source (for testing).
func (r *RetryCompleter) SetRandFunc(fn func() float64) { r.randFunc = fn }

func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// waitForSlot blocks until the last minute holds fewer than rpm requests,
// then records the new one.
func (r *RetryCompleter) waitForSlot(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := r.nowFunc()
		cutoff := now.Add(-time.Minute)
		i := 0
		for i < len(r.window) && !r.window[i].After(cutoff) {
			i++
		}
		if i > 0 {
			r.window = append(r.window[:0:0], r.window[i:]...)
		}

		if r.rpm <= 0 || len(r.window) < r.rpm {
			r.window = append(r.window, now)
			r.mu.Unlock()
			return nil
		}

		wait := max(r.window[0].Add(time.Minute).Sub(now), 10*time.Millisecond)
		r.mu.Unlock()

		if err := r.sleepFunc(ctx, wait); err != nil {
			return err
		}
	}
}

// backoff is baseDelay * 2^attempt (or the server's Retry-After when
// larger) with ±25% jitter.
func (r *RetryCompleter) backoff(attempt int, err error) time.Duration {
	d := r.baseDelay * time.Duration(math.Pow(2, float64(attempt)))

	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > d {
		d = rle.RetryAfter
	}

	factor := 0.75 + r.randFunc()*0.5
	return time.Duration(float64(d) * factor)
}

// Complete implements Completer.
func (r *RetryCompleter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	var lastErr error
	for attempt := range r.maxRetries + 1 {
		if err := r.waitForSlot(ctx); err != nil {
			return message.Message{}, err
		}

		msg, err := r.inner.Complete(ctx, c, tools)
		if err == nil {
			if err := r.respectQuota(ctx); err != nil {
				return message.Message{}, err
			}
			return msg, nil
		}
		if !IsRetryable(err) || ctx.Err() != nil {
			return message.Message{}, err
		}

		lastErr = err
		if attempt == r.maxRetries {
			break
		}

		if err := r.sleepFunc(ctx, r.backoff(attempt, err)); err != nil {
			return message.Message{}, err
		}
	}

	return message.Message{}, lastErr
}

// respectQuota sleeps until the provider's reset time when its last
// response said the quota is spent.
func (r *RetryCompleter) respectQuota(ctx context.Context) error {
	reporter, ok := r.inner.(RateLimitInfoReporter)
	if !ok {
		return nil
	}

	info := reporter.LastRateLimitInfo()
	if info == nil {
		return nil
	}

	now := r.nowFunc()
	var until time.Time
	if info.RemainingRequests == 0 && info.RequestsReset.After(now) {
		until = info.RequestsReset
	}
	if info.RemainingTokens == 0 && info.TokensReset.After(now) && info.TokensReset.After(until) {
		until = info.TokensReset
	}
	if until.IsZero() {
		return nil
	}

	return r.sleepFunc(ctx, until.Sub(now))
}

// UsageTracker forwards to the wrapped completer.
func (r *RetryCompleter) UsageTracker() *usage.Tracker {
	if ur, ok := r.inner.(UsageReporter); ok {
		return ur.UsageTracker()
	}
	return nil
}
