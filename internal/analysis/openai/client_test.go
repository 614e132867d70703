package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitereport/internal/analysis"
)

func newTestClient(t *testing.T, baseURL string, retries int) *Client {
	t.Helper()
	c, err := New(Config{
		APIKey:         "sk-test",
		BaseURL:        baseURL,
		Model:          "test-model",
		MaxRetries:     retries,
		RetryBaseDelay: time.Millisecond,
	}, nil, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestComplete_SendsJSONModeRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "test-model", req.Model)
		require.Equal(t, "json_object", req.ResponseFormat["type"])
		require.Len(t, req.Messages, 2)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"title\":\"x\"}"}}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL, 0).Complete(context.Background(), analysis.CompletionRequest{
		System: "sys",
		User:   "user",
	})
	require.NoError(t, err)
	require.Equal(t, `{"title":"x"}`, out)
}

func TestComplete_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL, 2).Complete(context.Background(), analysis.CompletionRequest{})
	require.NoError(t, err)
	require.Equal(t, "{}", out)
	require.EqualValues(t, 3, calls.Load())
}

func TestComplete_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad prompt"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 3).Complete(context.Background(), analysis.CompletionRequest{})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, "bad prompt", statusErr.Message)
	require.EqualValues(t, 1, calls.Load())
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, nil)
	require.Error(t, err)
}

func TestComplete_RetriesRequestTimeouts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			select {
			case <-time.After(300 * time.Millisecond):
			case <-r.Context().Done():
			}
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{
		APIKey:         "sk-test",
		BaseURL:        srv.URL,
		RequestTimeout: 50 * time.Millisecond,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	}, nil, zap.NewNop())
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), analysis.CompletionRequest{})
	require.NoError(t, err)
	require.Equal(t, "{}", out)
	require.EqualValues(t, 3, calls.Load())
}
