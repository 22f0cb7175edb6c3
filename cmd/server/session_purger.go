package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type sessionPurger interface {
	PurgeExpired() error
}

// startSessionPurgeWorker drops expired sessions on an interval. The first
// purge runs right away so rows that expired while the server was down do
// not linger until the first tick. The returned stop function blocks until
// the worker exits.
func startSessionPurgeWorker(ctx context.Context, logger *slog.Logger, sessions sessionPurger, interval time.Duration) func() {
	if sessions == nil || interval <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(interval)
	return startSessionPurgeLoop(ctx, logger, sessions, ticker.C, ticker.Stop)
}

func startSessionPurgeLoop(ctx context.Context, logger *slog.Logger, sessions sessionPurger, ticks <-chan time.Time, stopTicks func()) func() {
	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer func() {
			if stopTicks != nil {
				stopTicks()
			}
			close(done)
		}()
		purge := func() {
			if err := sessions.PurgeExpired(); err != nil && logger != nil {
				logger.Error("failed to purge expired sessions", "error", err)
			}
		}
		purge()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticks:
				purge()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
