package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeSessionManager struct {
	calls chan struct{}
	err   error
}

func newFakeSessionManager() *fakeSessionManager {
	return &fakeSessionManager{calls: make(chan struct{}, 4)}
}

func (f *fakeSessionManager) PurgeExpired() error {
	select {
	case f.calls <- struct{}{}:
	default:
	}
	return f.err
}

func waitForPurge(t *testing.T, sessions *fakeSessionManager) {
	t.Helper()
	select {
	case <-sessions.calls:
	case <-time.After(time.Second):
		t.Fatal("expected purge to be invoked")
	}
}

func TestSessionPurgeLoopPurgesImmediatelyAndOnTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := make(chan time.Time, 1)
	stopped := make(chan struct{})
	sessions := newFakeSessionManager()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	stop := startSessionPurgeLoop(ctx, logger, sessions, ticks, func() { close(stopped) })

	// Startup purge happens before any tick.
	waitForPurge(t, sessions)

	ticks <- time.Now()
	waitForPurge(t, sessions)

	cancel()
	stop()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("expected ticker to stop after context cancellation")
	}
}

func TestStartSessionPurgeWorkerRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Disabled configurations return an inert stop function.
	stop := startSessionPurgeWorker(ctx, logger, nil, time.Minute)
	stop()

	stop = startSessionPurgeWorker(ctx, logger, newFakeSessionManager(), 0)
	stop()
}
