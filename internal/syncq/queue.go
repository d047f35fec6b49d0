// Package syncq schedules graph synchronization passes through a durable,
// priority-ordered work queue. The queue document is owned by exactly one
// Queue value per process; every mutation goes through that value's lock,
// which makes the read-modify-write of the backing file safe without
// storage-level transactions.
package syncq

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/esinecan/skynet-agent-sub000/internal/storage"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

const (
	queueDocument = "sync-queue"

	// itemTimeout bounds how long one queued pass may run during DrainAll.
	itemTimeout = 30 * time.Second
)

// Processor executes one queued sync pass.
type Processor func(ctx context.Context, item types.SyncItem) error

// Queue is the single-writer owner of the durable sync-queue document.
type Queue struct {
	mu    sync.Mutex
	store storage.DocumentStore
}

// NewQueue creates the queue over its backing document store. The caller
// must not create a second Queue on the same store path.
func NewQueue(store storage.DocumentStore) *Queue {
	return &Queue{store: store}
}

// Enqueue appends an item and persists the full queue. A missing ID or
// timestamp is filled in; an invalid sync type is rejected.
func (q *Queue) Enqueue(item types.SyncItem) error {
	if !types.IsValidSyncType(item.Type) {
		return fmt.Errorf("%w: unknown sync type %q", storage.ErrInvalidInput, item.Type)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load()
	if err != nil {
		return err
	}
	items = append(items, item)
	if err := q.save(items); err != nil {
		return err
	}
	log.Printf("syncq: enqueued %s pass %s at priority %d (pending: %d)", item.Type, item.ID, item.Priority, len(items))
	return nil
}

// DequeueNext removes and returns the highest-priority item, breaking ties
// by insertion order. Returns (nil, nil) on an empty queue.
func (q *Queue) DequeueNext() (*types.SyncItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dequeueLocked()
}

func (q *Queue) dequeueLocked() (*types.SyncItem, error) {
	items, err := q.load()
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	best := 0
	for i := 1; i < len(items); i++ {
		if items[i].Priority > items[best].Priority {
			best = i
		}
	}
	item := items[best]
	items = append(items[:best], items[best+1:]...)
	if err := q.save(items); err != nil {
		return nil, err
	}
	return &item, nil
}

// DrainAll dequeues and processes items until the queue is empty. Each item
// runs under a hard per-item timeout; a timeout or processor error is
// logged and the failed item is returned so the caller may re-enqueue it at
// reduced priority. One bad item never stops the drain.
func (q *Queue) DrainAll(ctx context.Context, proc Processor) (processed int, failed []types.SyncItem, err error) {
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return processed, failed, ctxErr
		}

		item, deqErr := q.DequeueNext()
		if deqErr != nil {
			return processed, failed, deqErr
		}
		if item == nil {
			return processed, failed, nil
		}

		itemCtx, cancel := context.WithTimeout(ctx, itemTimeout)
		procErr := proc(itemCtx, *item)
		cancel()

		if procErr != nil {
			if errors.Is(procErr, context.DeadlineExceeded) {
				log.Printf("syncq: %s pass %s timed out after %s", item.Type, item.ID, itemTimeout)
			} else {
				log.Printf("syncq: %s pass %s failed: %v", item.Type, item.ID, procErr)
			}
			failed = append(failed, *item)
			continue
		}
		processed++
	}
}

// Size reports how many items are persisted in the queue.
func (q *Queue) Size() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items, err := q.load()
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Clear empties the queue document.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.save(nil)
}

// load reads the full queue and sorts it by insertion timestamp so FIFO
// tie-breaking survives a restart regardless of on-disk order.
func (q *Queue) load() ([]types.SyncItem, error) {
	var items []types.SyncItem
	err := q.store.Read(queueDocument, &items)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("syncq: failed to read queue: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
	return items, nil
}

func (q *Queue) save(items []types.SyncItem) error {
	if items == nil {
		items = []types.SyncItem{}
	}
	if err := q.store.Write(queueDocument, items); err != nil {
		return fmt.Errorf("syncq: failed to write queue: %w", err)
	}
	return nil
}
