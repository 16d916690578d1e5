// Package bgtask runs long-lived goroutines, the expiry reaper chief among
// them, under a single process-wide lifecycle so they can be shut down
// together with the HTTP server.
package bgtask

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	oneBt sync.Once
	bt    *BackgroundTask
)

// BackgroundTask tracks a set of goroutines sharing one cancelation
// context. Shutdown cancels the context and waits for every tracked
// goroutine to return.
type BackgroundTask struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	tasks  atomic.Int32
}

// Get returns the process-wide BackgroundTask, creating it on first use.
func Get() *BackgroundTask {
	oneBt.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		bt = &BackgroundTask{ctx: ctx, cancel: cancel}
	})
	return bt
}

// ShutdownCtx returns the shared context; it is canceled once Shutdown
// begins.
func (bt *BackgroundTask) ShutdownCtx() context.Context { return bt.ctx }

// Run starts fn in a tracked goroutine. fn receives the shared shutdown
// context and should return promptly once it is canceled. Panics are
// recovered and logged so one background task cannot take the process down.
func (bt *BackgroundTask) Run(fn func(shutdownCtx context.Context)) {
	bt.wg.Add(1)
	bt.tasks.Add(1)
	go func() {
		defer func() {
			bt.wg.Done()
			bt.tasks.Add(-1)
			if r := recover(); r != nil {
				slog.Error("background task panicked", "err", r)
			}
		}()
		fn(bt.ctx)
	}()
}

// Shutdown cancels the shared context and waits up to timeout for all
// tracked goroutines to finish.
func (bt *BackgroundTask) Shutdown(timeout time.Duration) error {
	bt.cancel()
	wait := make(chan struct{})
	go func() {
		bt.wg.Wait()
		close(wait)
	}()
	select {
	case <-wait:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout, %d background task(s) still running", bt.tasks.Load())
	}
}
