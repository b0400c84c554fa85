package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingRunner struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (r *blockingRunner) Run(context.Context) (Summary, error) {
	n := r.calls.Add(1)
	if r.release != nil {
		<-r.release
	}
	return Summary{RunID: "run", Fetched: int(n)}, r.err
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	t.Parallel()

	runner := &blockingRunner{release: make(chan struct{})}
	s := NewScheduler(runner, time.Hour, nil)

	require.True(t, s.Trigger(context.Background()))
	require.False(t, s.Trigger(context.Background()))
	_, ok := s.LastRun()
	assert.False(t, ok)

	close(runner.release)
	s.Wait()
	assert.Equal(t, int32(1), runner.calls.Load())

	last, ok := s.LastRun()
	require.True(t, ok)
	assert.Equal(t, "run", last.RunID)

	require.True(t, s.Trigger(context.Background()))
	s.Wait()
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestSchedulerRecordsFailedRuns(t *testing.T) {
	t.Parallel()

	runner := &blockingRunner{err: errors.New("boom")}
	s := NewScheduler(runner, time.Hour, nil)
	s.Trigger(context.Background())
	s.Wait()

	_, ok := s.LastRun()
	assert.True(t, ok)
}

func TestSchedulerStartRunsImmediatelyAndStops(t *testing.T) {
	t.Parallel()

	runner := &blockingRunner{}
	s := NewScheduler(runner, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := s.LastRun()
		return ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(1), runner.calls.Load())
}
