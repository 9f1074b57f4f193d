package ctxwatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pglink/pglink/internal/ctxwatch"
)

func TestContextWatcherContextCancelled(t *testing.T) {
	canceledChan := make(chan struct{})
	cleanupCalled := false
	cw := ctxwatch.NewContextWatcher(func() {
		canceledChan <- struct{}{}
	}, func() {
		cleanupCalled = true
	})

	ctx, cancel := context.WithCancel(context.Background())
	cw.Watch(ctx)
	cancel()

	select {
	case <-canceledChan:
	case <-time.NewTimer(time.Second).C:
		t.Fatal("Timed out waiting for cancel func to be called")
	}

	cw.Unwatch()

	require.True(t, cleanupCalled, "Cleanup func was not called")
}

func TestContextWatcherUnwatchedBeforeContextCancelled(t *testing.T) {
	cw := ctxwatch.NewContextWatcher(func() {
		t.Error("cancel func should not have been called")
	}, func() {
		t.Error("cleanup func should not have been called")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cw.Watch(ctx)
	cw.Unwatch()
	cancel()
}

func TestContextWatcherMultipleWatchPanics(t *testing.T) {
	cw := ctxwatch.NewContextWatcher(func() {}, func() {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cw.Watch(ctx)
	defer cw.Unwatch()

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	require.Panics(t, func() { cw.Watch(ctx2) }, "Expected panic when Watch called multiple times")
}

func TestContextWatcherUnwatchWhenNotWatching(t *testing.T) {
	cw := ctxwatch.NewContextWatcher(func() {}, func() {})
	cw.Unwatch() // no-op

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cw.Watch(ctx)
	cw.Unwatch()
	cw.Unwatch() // no-op
}

func TestContextWatcherBackgroundContext(t *testing.T) {
	cw := ctxwatch.NewContextWatcher(func() {
		t.Error("cancel func should not have been called")
	}, func() {
		t.Error("cleanup func should not have been called")
	})

	cw.Watch(context.Background())
	cw.Unwatch()
}
