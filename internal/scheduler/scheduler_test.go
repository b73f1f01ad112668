package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingBroadcaster struct {
	calls atomic.Int64
	err   error
}

func (b *countingBroadcaster) ReopenVoting(context.Context) (int, error) {
	b.calls.Add(1)
	return 2, b.err
}

func newTestScheduler(t *testing.T, broadcaster Broadcaster, interval time.Duration) *Scheduler {
	t.Helper()
	timer, err := New(Config{Interval: interval, Broadcaster: broadcaster})
	if err != nil {
		t.Fatalf("failed to build scheduler: %v", err)
	}
	return timer
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Interval: time.Minute}); err == nil {
		t.Fatalf("expected error for missing broadcaster")
	}
	if _, err := New(Config{Broadcaster: &countingBroadcaster{}}); err == nil {
		t.Fatalf("expected error for non-positive interval")
	}
}

func TestSchedulerFiresOnInterval(t *testing.T) {
	broadcaster := &countingBroadcaster{}
	timer := newTestScheduler(t, broadcaster, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	timer.Start(ctx)

	deadline := time.After(2 * time.Second)
	for broadcaster.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("scheduler never fired twice, calls=%d", broadcaster.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	timer.Wait()
}

func TestSchedulerKeepsTickingAfterBroadcastFailure(t *testing.T) {
	broadcaster := &countingBroadcaster{err: errors.New("channel gone")}
	timer := newTestScheduler(t, broadcaster, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	timer.Start(ctx)

	deadline := time.After(2 * time.Second)
	for broadcaster.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("scheduler stopped after failure, calls=%d", broadcaster.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	timer.Wait()
}

func TestStartIsSingleShot(t *testing.T) {
	broadcaster := &countingBroadcaster{}
	timer := newTestScheduler(t, broadcaster, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	timer.Start(ctx)
	timer.Start(ctx)
	timer.Start(ctx)

	cancel()
	timer.Wait()
}

func TestWaitBeforeStartReturnsImmediately(t *testing.T) {
	timer := newTestScheduler(t, &countingBroadcaster{}, time.Minute)

	finished := make(chan struct{})
	go func() {
		timer.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("Wait must not block before Start")
	}
}
