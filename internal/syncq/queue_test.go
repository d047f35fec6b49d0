package syncq

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esinecan/skynet-agent-sub000/internal/storage/jsonfile"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	docs, err := jsonfile.New(t.TempDir())
	require.NoError(t, err)
	return NewQueue(docs)
}

func TestEnqueueDequeuePriorityOrder(t *testing.T) {
	q := newTestQueue(t)

	base := time.Now().UTC()
	items := []types.SyncItem{
		{ID: "first", Type: types.SyncTypeChat, Priority: 1, Timestamp: base},
		{ID: "second", Type: types.SyncTypeChat, Priority: 1, Timestamp: base.Add(time.Millisecond)},
		{ID: "third", Type: types.SyncTypeFull, Priority: 2, Timestamp: base.Add(2 * time.Millisecond)},
	}
	for _, item := range items {
		require.NoError(t, q.Enqueue(item))
	}

	// Highest priority first, then FIFO among equals.
	var order []string
	for {
		item, err := q.DequeueNext()
		require.NoError(t, err)
		if item == nil {
			break
		}
		order = append(order, item.ID)
	}
	assert.Equal(t, []string{"third", "first", "second"}, order)
}

func TestQueueSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	docs, err := jsonfile.New(dir)
	require.NoError(t, err)

	q := NewQueue(docs)
	require.NoError(t, q.Enqueue(types.SyncItem{Type: types.SyncTypeMemory, Priority: 5}))

	// A fresh Queue over the same directory sees the persisted item.
	docs2, err := jsonfile.New(dir)
	require.NoError(t, err)
	q2 := NewQueue(docs2)

	size, err := q2.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	item, err := q2.DequeueNext()
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, types.SyncTypeMemory, item.Type)
	assert.Equal(t, 5, item.Priority)
	assert.NotEmpty(t, item.ID, "missing ID filled in on enqueue")
}

func TestEnqueueRejectsUnknownType(t *testing.T) {
	q := newTestQueue(t)
	err := q.Enqueue(types.SyncItem{Type: "bogus"})
	assert.Error(t, err)
}

func TestDequeueEmptyReturnsNil(t *testing.T) {
	q := newTestQueue(t)
	item, err := q.DequeueNext()
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestDrainAllContinuesPastFailures(t *testing.T) {
	q := newTestQueue(t)

	base := time.Now().UTC()
	for i, typ := range []types.SyncType{types.SyncTypeChat, types.SyncTypeMemory, types.SyncTypeChat} {
		require.NoError(t, q.Enqueue(types.SyncItem{
			ID:        fmt.Sprintf("item-%d", i),
			Type:      typ,
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	var seen []string
	processed, failed, err := q.DrainAll(context.Background(), func(ctx context.Context, item types.SyncItem) error {
		seen = append(seen, item.ID)
		if item.Type == types.SyncTypeMemory {
			return fmt.Errorf("simulated failure")
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, processed)
	require.Len(t, failed, 1)
	assert.Equal(t, "item-1", failed[0].ID)
	assert.Len(t, seen, 3, "a failing item must not stop the drain")

	size, err := q.Size()
	require.NoError(t, err)
	assert.Zero(t, size, "drained queue is empty even when items failed")
}

func TestClear(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Enqueue(types.SyncItem{Type: types.SyncTypeChat}))
	require.NoError(t, q.Clear())

	size, err := q.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}
