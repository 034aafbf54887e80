package reposync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/reposync/internal/debug"
	"github.com/steveyegge/reposync/internal/storage"
	"github.com/steveyegge/reposync/internal/telemetry"
)

// ErrorSink receives background task failures. Implementations must be safe
// for concurrent use.
type ErrorSink interface {
	Report(ctx context.Context, task string, err error)
}

// ErrorSinkFunc adapts a function to ErrorSink.
type ErrorSinkFunc func(ctx context.Context, task string, err error)

func (f ErrorSinkFunc) Report(ctx context.Context, task string, err error) {
	f(ctx, task, err)
}

// TaskOptions configures a Tasks runner.
type TaskOptions struct {
	Retries    int           // retries after the first attempt
	Timeout    time.Duration // per task, across all attempts
	Sink       ErrorSink
	Logger     *slog.Logger
	NewBackOff func() backoff.BackOff // nil uses an exponential backoff
}

const (
	defaultTaskRetries = 3
	defaultTaskTimeout = 30 * time.Second
)

// Tasks runs best-effort background work (duplicate deletion, re-enable
// repair, policy bootstrap) detached from the request that submitted it.
// Failures are retried, then reported to the sink and logged; they never
// reach the submitter.
type Tasks struct {
	opts TaskOptions

	wg        sync.WaitGroup
	submitted atomic.Int64
	failed    atomic.Int64

	failures metric.Int64Counter
}

// NewTasks creates a runner. Zero options fall back to defaults.
func NewTasks(opts TaskOptions) *Tasks {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTaskTimeout
	}
	if opts.Logger == nil {
		opts.Logger = debug.Logger()
	}
	if opts.NewBackOff == nil {
		timeout := opts.Timeout
		opts.NewBackOff = func() backoff.BackOff {
			// BackOff implementations are stateful; always return a fresh instance.
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 200 * time.Millisecond
			bo.MaxElapsedTime = timeout
			return bo
		}
	}
	failures, _ := telemetry.Meter(syncScopeName).Int64Counter("reposync.tasks.failed",
		metric.WithDescription("Background tasks that failed after all retries"),
	)
	return &Tasks{opts: opts, failures: failures}
}

// Submit runs fn in the background. The task keeps ctx values (trace spans)
// but not its cancellation, so it outlives the request.
func (t *Tasks) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) {
	t.submitted.Add(1)
	t.wg.Add(1)
	base := context.WithoutCancel(ctx)

	go func() {
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(base, t.opts.Timeout)
		defer cancel()

		bo := backoff.WithMaxRetries(t.opts.NewBackOff(), uint64(t.opts.Retries))
		err := backoff.Retry(func() error {
			err := fn(ctx)
			if errors.Is(err, storage.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}, backoff.WithContext(bo, ctx))
		if err == nil {
			return
		}

		t.failed.Add(1)
		t.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reposync.task", name)))
		t.opts.Logger.Warn("background task failed", "task", name, "error", err)
		if t.opts.Sink != nil {
			t.opts.Sink.Report(ctx, name, err)
		}
	}()
}

// Wait blocks until every submitted task has finished.
func (t *Tasks) Wait() {
	t.wg.Wait()
}

// Submitted returns how many tasks were submitted.
func (t *Tasks) Submitted() int64 {
	return t.submitted.Load()
}

// Failed returns how many tasks failed after all retries.
func (t *Tasks) Failed() int64 {
	return t.failed.Load()
}
