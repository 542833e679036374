package modeladapter

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitInfo is the remaining quota a provider advertised in its last
// response.
type RateLimitInfo struct {
	RemainingRequests int
	RemainingTokens   int
	RequestsReset     time.Time
	TokensReset       time.Time
}

// RateLimitInfoReporter is implemented by completers that remember the
// quota headers of their last response.
type RateLimitInfoReporter interface {
	LastRateLimitInfo() *RateLimitInfo
}

// RateLimitHeaderParser extracts quota info from response headers.
type RateLimitHeaderParser func(h http.Header, now time.Time) *RateLimitInfo

// ParseOpenAIRateLimitHeaders reads the x-ratelimit-* headers that OpenAI
// and OpenAI-compatible routers (Hugging Face) send.
func ParseOpenAIRateLimitHeaders(h http.Header, now time.Time) *RateLimitInfo {
	reqRemaining := h.Get("x-ratelimit-remaining-requests")
	tokRemaining := h.Get("x-ratelimit-remaining-tokens")
	if reqRemaining == "" && tokRemaining == "" {
		return nil
	}

	info := &RateLimitInfo{
		RemainingRequests: -1,
		RemainingTokens:   -1,
		RequestsReset:     parseResetTime(h.Get("x-ratelimit-reset-requests"), now),
		TokensReset:       parseResetTime(h.Get("x-ratelimit-reset-tokens"), now),
	}
	if v, err := strconv.Atoi(reqRemaining); err == nil {
		info.RemainingRequests = v
	}
	if v, err := strconv.Atoi(tokRemaining); err == nil {
		info.RemainingTokens = v
	}

	return info
}

// parseResetTime accepts RFC3339 timestamps and Go durations ("6s",
// "1m30s") relative to now.
func parseResetTime(val string, now time.Time) time.Time {
	if val == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t
	}
	if d, err := time.ParseDuration(val); err == nil {
		return now.Add(d)
	}
	return time.Time{}
}
