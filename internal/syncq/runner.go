package syncq

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

const defaultDrainInterval = 5 * time.Minute

// Runner drains the queue on a fixed interval and whenever Kick is called.
// Each tick also schedules the periodic incremental chat and memory passes
// when the queue is idle. Failed items are re-enqueued once at reduced
// priority so a transient failure retries behind fresh work instead of
// ahead of it.
type Runner struct {
	queue    *Queue
	proc     Processor
	interval time.Duration

	kickCh   chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewRunner wires a drain loop over the queue. proc is typically
// Service.Process. A non-positive interval falls back to the 5m default.
func NewRunner(queue *Queue, proc Processor, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	return &Runner{
		queue:    queue,
		proc:     proc,
		interval: interval,
		kickCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Kick requests an immediate drain without waiting for the next tick.
// Safe to call from any goroutine; redundant kicks coalesce.
func (r *Runner) Kick() {
	select {
	case r.kickCh <- struct{}{}:
	default:
	}
}

// Start launches the drain loop.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.scheduleIncremental()
				r.drain(ctx)
			case <-r.kickCh:
				r.drain(ctx)
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and runs one final drain so queued passes from a
// clean shutdown are not stranded until the next start.
func (r *Runner) Stop(ctx context.Context) {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		<-r.doneCh
		r.drain(ctx)
	})
}

// scheduleIncremental enqueues the periodic chat and memory passes. Skipped
// while work is already pending so ticks never pile passes behind a slow
// drain.
func (r *Runner) scheduleIncremental() {
	size, err := r.queue.Size()
	if err != nil {
		log.Printf("syncq: could not inspect queue before scheduling: %v", err)
		return
	}
	if size > 0 {
		return
	}
	for _, typ := range []types.SyncType{types.SyncTypeChat, types.SyncTypeMemory} {
		if err := r.queue.Enqueue(types.SyncItem{Type: typ}); err != nil {
			log.Printf("syncq: failed to schedule %s pass: %v", typ, err)
		}
	}
}

func (r *Runner) drain(ctx context.Context) {
	processed, failed, err := r.queue.DrainAll(ctx, r.proc)
	if err != nil {
		log.Printf("syncq: drain aborted: %v", err)
		return
	}
	if processed > 0 {
		log.Printf("syncq: drained %d sync passes", processed)
	}
	for _, item := range failed {
		if item.Priority > 0 {
			item.Priority--
		}
		item.ID = ""
		item.Timestamp = time.Time{}
		if err := r.queue.Enqueue(item); err != nil {
			log.Printf("syncq: failed to re-enqueue %s pass: %v", item.Type, err)
		}
	}
}
