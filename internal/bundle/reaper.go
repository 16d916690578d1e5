package bundle

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/timtransfer/timtransfer/internal/bgtask"
	"github.com/timtransfer/timtransfer/internal/store"
)

// SweepResult reports what a single reaper pass did.
type SweepResult struct {
	// bundles deleted because they were expired
	Deleted int
	// records that could not be read or processed; logged and skipped
	Errors int
}

// Sweep enumerates every durable bundle record, evaluates expiry against
// now and deletes each expired bundle. Corrupted records are counted and
// skipped, never fatal to the sweep. Each invocation is a fresh, complete
// scan with no state carried between runs, so a missed run only delays
// cleanup. Deletions run through a worker pool; they are idempotent, so
// racing a live download or a second sweep is harmless.
func (r *Repository) Sweep(ctx context.Context, now time.Time) SweepResult {
	ids, err := r.store.BundleIDs()
	if err != nil {
		slog.Error("reaper: enumerating bundles", "err", err)
		return SweepResult{Errors: 1}
	}
	var deleted, failed atomic.Int64
	wp := bgtask.NewWorkerPool(ctx)
	for _, id := range ids {
		wp.Spawn(func() error {
			b, err := r.store.ReadBundle(id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil // raced another delete, nothing to do
				}
				slog.Error("reaper: reading bundle record", "bundle", id, "err", err)
				failed.Add(1)
				return nil
			}
			if !r.IsExpired(b, now) {
				return nil
			}
			if err = r.Delete(id); err != nil {
				slog.Error("reaper: deleting expired bundle", "bundle", id, "err", err)
				failed.Add(1)
				return nil
			}
			deleted.Add(1)
			return nil
		})
	}
	_ = wp.Wait() // workers report via counters, never an error
	res := SweepResult{Deleted: int(deleted.Load()), Errors: int(failed.Load())}
	if res.Deleted > 0 {
		slog.Info("reaper: removed expired bundles", "deleted", res.Deleted, "errors", res.Errors)
	}
	return res
}

// RunReaper sweeps immediately and then on every tick of the interval until
// the context is canceled. Meant to be run through the background task
// runner alongside live request handling.
func (r *Repository) RunReaper(ctx context.Context, interval time.Duration) {
	slog.Info("reaper: starting", "interval", interval, "expiry", r.expiry)
	r.Sweep(ctx, time.Now())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			r.Sweep(ctx, t)
		}
	}
}
