package modeladapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// RateLimitError is returned when the API responds with HTTP 429. It carries
// the Retry-After hint when the server sent one.
type RateLimitError struct {
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Body)
	}
	return fmt.Sprintf("rate limited: %s", e.Body)
}

// ServiceError is a failed call to an external service: an inference
// request, an embedding request or a fetch. Retryable tells the caller
// whether running the same request again may succeed.
type ServiceError struct {
	Provider   string
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is an external failure worth retrying.
func IsRetryable(err error) bool {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}

	var se *ServiceError
	if errors.As(err, &se) {
		return se.Retryable
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// StatusError classifies an HTTP failure from provider. 429 becomes a
// *RateLimitError; 408 and 5xx are retryable.
func StatusError(provider, op string, status int, retryAfter time.Duration, err error) error {
	if status == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: retryAfter, Body: err.Error()}
	}

	return &ServiceError{
		Provider:   provider,
		Op:         op,
		StatusCode: status,
		Retryable:  status == http.StatusRequestTimeout || status >= 500,
		Err:        err,
	}
}

// TransportError wraps a failure that happened before any response arrived
// (DNS, connection reset, timeout). Those are always retryable unless the
// caller cancelled.
func TransportError(provider, op string, err error) error {
	return &ServiceError{
		Provider:  provider,
		Op:        op,
		Retryable: !errors.Is(err, context.Canceled),
		Err:       err,
	}
}

// ParseRetryAfter parses the Retry-After header value as either seconds or
// an HTTP-date. It returns zero if unparseable or in the past.
func ParseRetryAfter(val string) time.Duration {
	if val == "" {
		return 0
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(val); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
