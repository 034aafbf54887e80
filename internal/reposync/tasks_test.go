package reposync

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/reposync/internal/debug"
	"github.com/steveyegge/reposync/internal/storage"
)

func newTestTasks(retries int, sink ErrorSink) *Tasks {
	return NewTasks(TaskOptions{
		Retries:    retries,
		Timeout:    time.Second,
		Sink:       sink,
		Logger:     debug.Discard(),
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
}

func TestTasksRetryThenSucceed(t *testing.T) {
	sink := &sinkRecorder{}
	tasks := newTestTasks(2, sink)

	var attempts atomic.Int32
	tasks.Submit(context.Background(), "flaky", func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errBoom
		}
		return nil
	})
	tasks.Wait()

	assert.Equal(t, int32(3), attempts.Load())
	assert.Zero(t, tasks.Failed())
	assert.Empty(t, sink.errs)
}

func TestTasksReportExhaustedRetries(t *testing.T) {
	sink := &sinkRecorder{}
	tasks := newTestTasks(1, sink)

	var attempts atomic.Int32
	tasks.Submit(context.Background(), "always-fails", func(context.Context) error {
		attempts.Add(1)
		return errBoom
	})
	tasks.Wait()

	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, int64(1), tasks.Failed())
	require.Len(t, sink.errs, 1)
	assert.Equal(t, "always-fails", sink.names[0])
	assert.ErrorIs(t, sink.errs[0], errBoom)
}

func TestTasksNotFoundIsPermanent(t *testing.T) {
	sink := &sinkRecorder{}
	tasks := newTestTasks(5, sink)

	var attempts atomic.Int32
	tasks.Submit(context.Background(), "gone", func(context.Context) error {
		attempts.Add(1)
		return fmt.Errorf("repository 3: %w", storage.ErrNotFound)
	})
	tasks.Wait()

	assert.Equal(t, int32(1), attempts.Load())
	require.Len(t, sink.errs, 1)
	assert.ErrorIs(t, sink.errs[0], storage.ErrNotFound)
}

func TestTasksOutliveSubmitterCancellation(t *testing.T) {
	tasks := newTestTasks(0, nil)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	var ctxErr atomic.Value
	tasks.Submit(ctx, "detached", func(ctx context.Context) error {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			ctxErr.Store(err)
		}
		return nil
	})

	<-started
	cancel()
	close(release)
	tasks.Wait()

	assert.Nil(t, ctxErr.Load())
	assert.Equal(t, int64(1), tasks.Submitted())
	assert.Zero(t, tasks.Failed())
}

func TestErrorSinkFunc(t *testing.T) {
	var got string
	sink := ErrorSinkFunc(func(_ context.Context, task string, _ error) { got = task })
	tasks := newTestTasks(0, sink)

	tasks.Submit(context.Background(), "reenable-repository", func(context.Context) error { return errBoom })
	tasks.Wait()
	assert.Equal(t, "reenable-repository", got)
}
