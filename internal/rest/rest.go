// Package rest performs the GET requests shared by the provider REST clients,
// retrying transport failures and rate-limited responses with exponential
// backoff.
package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Options configures Get.
type Options struct {
	MaxRetries      int           // retries after the first attempt
	RetryDelay      time.Duration // first backoff interval, doubled per retry
	MaxResponseSize int64         // 0 reads the whole body
	Header          http.Header   // added to every attempt

	// RateLimited reports whether a response should be retried after a
	// delay. Nil treats only 429 as rate limiting.
	RateLimited func(resp *http.Response) bool
}

// StatusError is a non-2xx response that was not retried.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Get fetches url with client. A Retry-After header given in seconds replaces
// the computed delay for the next attempt.
func Get(ctx context.Context, client *http.Client, url string, opts Options) ([]byte, http.Header, error) {
	rateLimited := opts.RateLimited
	if rateLimited == nil {
		rateLimited = func(resp *http.Response) bool { return resp.StatusCode == http.StatusTooManyRequests }
	}

	bo := &retryAfterBackOff{
		BackOff: backoff.WithMaxRetries(newExponential(opts.RetryDelay), uint64(max(opts.MaxRetries, 0))),
		next:    -1,
	}

	var (
		body     []byte
		header   http.Header
		attempts int
	)
	err := backoff.Retry(func() error {
		attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		for k, vs := range opts.Header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		var r io.Reader = resp.Body
		if opts.MaxResponseSize > 0 {
			r = io.LimitReader(resp.Body, opts.MaxResponseSize)
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if rateLimited(resp) {
			bo.next = retryAfter(resp.Header)
			return fmt.Errorf("rate limited with status %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(&StatusError{StatusCode: resp.StatusCode, Body: string(data)})
		}
		body, header = data, resp.Header
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) || ctx.Err() != nil {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("giving up after %d attempt(s): %w", attempts, err)
	}
	return body, header, nil
}

func newExponential(initial time.Duration) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if initial > 0 {
		bo.InitialInterval = initial
	}
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0
	return bo
}

// retryAfterBackOff lets a server-provided delay replace the next interval.
// A negative next means none was given.
type retryAfterBackOff struct {
	backoff.BackOff
	next time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if d == backoff.Stop || b.next < 0 {
		return d
	}
	d, b.next = b.next, -1
	return d
}

// retryAfter parses a Retry-After header in seconds, or returns -1.
func retryAfter(h http.Header) time.Duration {
	seconds, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || seconds < 0 {
		return -1
	}
	return time.Duration(seconds) * time.Second
}
