package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = Options{MaxRetries: 3, RetryDelay: time.Millisecond}

func TestGetRetriesRateLimited(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("X-Page", "2")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	body, header, err := Get(context.Background(), server.Client(), server.URL, fastRetry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, "2", header.Get("X-Page"))
	assert.EqualValues(t, 3, attempts.Load())
}

func TestGetSendsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "secret", r.Header.Get("PRIVATE-TOKEN"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
	}))
	defer server.Close()

	opts := fastRetry
	opts.Header = http.Header{"Private-Token": {"secret"}, "Accept": {"application/json"}}
	_, _, err := Get(context.Background(), server.Client(), server.URL, opts)
	require.NoError(t, err)
}

func TestGetDoesNotRetryErrorStatus(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "no such group", http.StatusNotFound)
	}))
	defer server.Close()

	_, _, err := Get(context.Background(), server.Client(), server.URL, fastRetry)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.Body, "no such group")
	assert.EqualValues(t, 1, attempts.Load())
}

func TestGetGivesUpWhenStillRateLimited(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	opts := fastRetry
	opts.MaxRetries = 2
	_, _, err := Get(context.Background(), server.Client(), server.URL, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 3 attempt(s)")
	assert.Contains(t, err.Error(), "rate limited with status 429")
	assert.EqualValues(t, 3, attempts.Load())
}

func TestGetCustomRateLimitRule(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	opts := fastRetry
	opts.RateLimited = func(resp *http.Response) bool {
		return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"
	}
	body, _, err := Get(context.Background(), server.Client(), server.URL, opts)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.EqualValues(t, 2, attempts.Load())
}

func TestGetRetriesTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	opts := fastRetry
	opts.MaxRetries = 1
	_, _, err := Get(context.Background(), http.DefaultClient, url, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 2 attempt(s)")
	assert.Contains(t, err.Error(), "request failed")
}

func TestGetLimitsResponseSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer server.Close()

	opts := fastRetry
	opts.MaxResponseSize = 4
	body, _, err := Get(context.Background(), server.Client(), server.URL, opts)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(body))
}

func TestGetStopsOnCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Get(ctx, server.Client(), server.URL, fastRetry)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", -1},
		{"0", 0},
		{"7", 7 * time.Second},
		{"Wed, 21 Oct 2015 07:28:00 GMT", -1},
		{"-3", -1},
	}
	for _, tt := range tests {
		h := http.Header{}
		if tt.header != "" {
			h.Set("Retry-After", tt.header)
		}
		assert.Equal(t, tt.want, retryAfter(h), "Retry-After %q", tt.header)
	}
}
