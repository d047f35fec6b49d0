// Package retryq holds graph projections that failed after the vector write
// landed, replaying them on a periodic flush. The queue is in-memory only; a
// process restart loses pending items, which is acceptable because the sync
// pipeline re-derives graph state from the durable stores.
package retryq

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

const (
	// maxRetryCount is the lifetime cap per item. Items that still fail
	// after this many flush attempts are dropped with a log line.
	maxRetryCount = 10

	// flushAttempts and flushBackoff govern the inner retry loop of a
	// single flush pass.
	flushAttempts = 3
	flushBackoff  = time.Second

	defaultFlushInterval = 60 * time.Second
)

// SyncFunc replays one queued operation against the real store.
type SyncFunc func(ctx context.Context, item types.RetryItem) error

// Queue is a mutex-guarded slice of pending retry items with a background
// flush ticker.
type Queue struct {
	mu    sync.Mutex
	items []types.RetryItem

	// processing prevents overlapping flushes when a pass outlives the
	// tick interval.
	processing bool

	interval time.Duration
	backoff  time.Duration
	syncFn   SyncFunc

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a retry queue that replays items through syncFn. A
// non-positive interval falls back to the 60s default.
func New(syncFn SyncFunc, interval time.Duration) *Queue {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return &Queue{
		interval: interval,
		backoff:  flushBackoff,
		syncFn:   syncFn,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Push appends a failed operation for later replay. Items at or past the
// lifetime retry cap are dropped immediately.
func (q *Queue) Push(item types.RetryItem) {
	if item.RetryCount >= maxRetryCount {
		log.Printf("retryq: dropping %s for memory %s after %d attempts (last error: %s)",
			item.Op, item.Payload.ID, item.RetryCount, item.LastError)
		return
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}
	q.mu.Lock()
	q.items = append(q.items, item)
	size := len(q.items)
	q.mu.Unlock()
	log.Printf("retryq: queued %s for memory %s (pending: %d)", item.Op, item.Payload.ID, size)
}

// Size reports how many items are waiting for the next flush.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Flush replays every queued item once. Each item gets a short inner retry
// loop with linear backoff; items that exhaust it are re-queued with an
// incremented retry count. Safe to call concurrently with Push; overlapping
// Flush calls are coalesced into the first one.
func (q *Queue) Flush(ctx context.Context) {
	q.mu.Lock()
	if q.processing || len(q.items) == 0 {
		q.mu.Unlock()
		return
	}
	q.processing = true
	batch := q.items
	q.items = nil
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
	}()

	log.Printf("retryq: flushing %d pending items", len(batch))
	replayed := 0
	for _, item := range batch {
		if err := q.withRetry(ctx, item); err != nil {
			item.RetryCount++
			item.LastError = err.Error()
			q.Push(item)
			continue
		}
		replayed++
	}
	if replayed > 0 {
		log.Printf("retryq: replayed %d items", replayed)
	}
}

func (q *Queue) withRetry(ctx context.Context, item types.RetryItem) error {
	var lastErr error
	for attempt := 1; attempt <= flushAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = q.syncFn(ctx, item)
		if lastErr == nil {
			return nil
		}
		if attempt < flushAttempts {
			select {
			case <-time.After(q.backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// Start launches the background flush ticker.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		defer close(q.doneCh)
		ticker := time.NewTicker(q.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				q.Flush(ctx)
			case <-q.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the ticker and attempts one final flush so a clean shutdown
// does not strand replayable writes.
func (q *Queue) Stop(ctx context.Context) {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		<-q.doneCh
		q.Flush(ctx)
	})
}
