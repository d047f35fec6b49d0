package syncq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esinecan/skynet-agent-sub000/internal/storage/jsonfile"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

type recordingProcessor struct {
	mu    sync.Mutex
	items []types.SyncItem
	fail  map[string]error
}

func (p *recordingProcessor) process(ctx context.Context, item types.SyncItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, item)
	if p.fail != nil {
		if err, ok := p.fail[string(item.Type)]; ok {
			return err
		}
	}
	return nil
}

func (p *recordingProcessor) seen() []types.SyncItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.SyncItem, len(p.items))
	copy(out, p.items)
	return out
}

func newRunnerQueue(t *testing.T) *Queue {
	t.Helper()
	docs, err := jsonfile.New(t.TempDir())
	require.NoError(t, err)
	return NewQueue(docs)
}

func TestKickDrainsImmediately(t *testing.T) {
	q := newRunnerQueue(t)
	proc := &recordingProcessor{}
	r := NewRunner(q, proc.process, time.Hour)

	require.NoError(t, q.Enqueue(types.SyncItem{Type: types.SyncTypeMemory}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop(ctx)

	r.Kick()
	assert.Eventually(t, func() bool { return len(proc.seen()) == 1 },
		2*time.Second, 10*time.Millisecond)

	size, err := q.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestTickerSchedulesIncrementalPasses(t *testing.T) {
	q := newRunnerQueue(t)
	proc := &recordingProcessor{}
	r := NewRunner(q, proc.process, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop(ctx)

	assert.Eventually(t, func() bool {
		chat, memory := false, false
		for _, item := range proc.seen() {
			switch item.Type {
			case types.SyncTypeChat:
				chat = true
			case types.SyncTypeMemory:
				memory = true
			}
		}
		return chat && memory
	}, 2*time.Second, 10*time.Millisecond, "ticks should schedule both incremental passes")
}

func TestFailedPassReEnqueuedAtReducedPriority(t *testing.T) {
	q := newRunnerQueue(t)
	proc := &recordingProcessor{fail: map[string]error{
		string(types.SyncTypeChat): errors.New("source unavailable"),
	}}
	r := NewRunner(q, proc.process, time.Hour)

	require.NoError(t, q.Enqueue(types.SyncItem{Type: types.SyncTypeChat, Priority: 3}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	r.Kick()
	assert.Eventually(t, func() bool { return len(proc.seen()) >= 1 },
		2*time.Second, 10*time.Millisecond)
	r.Stop(ctx)

	// Stop runs a final drain, so the demoted item was attempted again and
	// re-enqueued once more.
	item, err := q.DequeueNext()
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, types.SyncTypeChat, item.Type)
	assert.Less(t, item.Priority, 3)
}
