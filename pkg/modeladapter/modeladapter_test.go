package modeladapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/germanamz/relay/pkg/chats/chat"
	"github.com/germanamz/relay/pkg/chats/message"
	"github.com/germanamz/relay/pkg/chats/role"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ modeladapter.Completer = (*modeladapter.ModelAdapter)(nil)

func TestModelAdapter_StubComplete(t *testing.T) {
	var a modeladapter.ModelAdapter

	_, err := a.Complete(context.Background(), chat.New(), nil)
	assert.EqualError(t, err, "adapter: Complete not implemented")
}

func TestCompleterFunc(t *testing.T) {
	var c modeladapter.Completer = modeladapter.CompleterFunc(
		func(context.Context, *chat.Chat, []toolbox.Tool) (message.Message, error) {
			return message.NewText("", role.Assistant, "hi"), nil
		})

	msg, err := c.Complete(context.Background(), chat.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.TextContent())
}

func TestNewRequest_Auth(t *testing.T) {
	tests := []struct {
		name   string
		auth   modeladapter.Auth
		header string
		want   string
	}{
		{"bearer default", modeladapter.Auth{Key: "k"}, "Authorization", "Bearer k"},
		{"custom scheme", modeladapter.Auth{Key: "k", Scheme: "Token"}, "Authorization", "Token k"},
		{"custom header", modeladapter.Auth{Key: "k", Header: "x-api-key"}, "x-api-key", "k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := modeladapter.ModelAdapter{BaseURL: "https://api.example.com", Auth: tt.auth}
			a.Headers = map[string]string{"X-Title": "relay"}

			req, err := a.NewRequest(context.Background(), http.MethodGet, "/v1/models", nil)
			require.NoError(t, err)

			assert.Equal(t, "https://api.example.com/v1/models", req.URL.String())
			assert.Equal(t, tt.want, req.Header.Get(tt.header))
			assert.Equal(t, "relay", req.Header.Get("X-Title"))
		})
	}
}

func TestPostJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("x-ratelimit-remaining-requests", "7")
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["msg"]})
	}))
	t.Cleanup(srv.Close)

	a := modeladapter.ModelAdapter{BaseURL: srv.URL, HeaderParser: modeladapter.ParseOpenAIRateLimitHeaders}

	var out map[string]string
	require.NoError(t, a.PostJSON(context.Background(), "/echo", map[string]string{"msg": "hi"}, &out))

	assert.Equal(t, "hi", out["echo"])
	require.NotNil(t, a.LastRateLimitInfo())
	assert.Equal(t, 7, a.LastRateLimitInfo().RemainingRequests)
}

func TestPostJSON_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
		rateLimit bool
	}{
		{"rate limited", http.StatusTooManyRequests, true, true},
		{"server error", http.StatusBadGateway, true, false},
		{"bad request", http.StatusBadRequest, false, false},
		{"unauthorized", http.StatusUnauthorized, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "2")
				http.Error(w, "nope", tt.status)
			}))
			t.Cleanup(srv.Close)

			a := modeladapter.ModelAdapter{Provider: "test", BaseURL: srv.URL}
			err := a.PostJSON(context.Background(), "/", struct{}{}, nil)

			require.Error(t, err)
			assert.Equal(t, tt.retryable, modeladapter.IsRetryable(err))

			var rle *modeladapter.RateLimitError
			assert.Equal(t, tt.rateLimit, errors.As(err, &rle))
			if tt.rateLimit {
				assert.Equal(t, 2*time.Second, rle.RetryAfter)
				return
			}

			var se *modeladapter.ServiceError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, "test", se.Provider)
		})
	}
}

func TestPostJSON_TransportFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	a := modeladapter.ModelAdapter{BaseURL: url}
	err := a.PostJSON(context.Background(), "/", struct{}{}, nil)

	require.Error(t, err)
	assert.True(t, modeladapter.IsRetryable(err))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, modeladapter.ParseRetryAfter("3"))
	assert.Zero(t, modeladapter.ParseRetryAfter(""))
	assert.Zero(t, modeladapter.ParseRetryAfter("soon"))
	assert.Zero(t, modeladapter.ParseRetryAfter(time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, modeladapter.IsRetryable(&modeladapter.RateLimitError{}))
	assert.True(t, modeladapter.IsRetryable(context.DeadlineExceeded))
	assert.False(t, modeladapter.IsRetryable(errors.New("boom")))
	assert.False(t, modeladapter.IsRetryable(modeladapter.TransportError("p", "complete", context.Canceled)))
}
