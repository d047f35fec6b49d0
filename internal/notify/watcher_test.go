package notify

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherFiresOnQueueWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync-queue.json")

	var fired atomic.Int32
	qw := NewQueueWatcher(path, func() { fired.Add(1) })
	require.NoError(t, qw.Start())
	defer qw.Stop()

	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))

	assert.Eventually(t, func() bool { return fired.Load() >= 1 },
		3*time.Second, 50*time.Millisecond)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync-queue.json")

	var fired atomic.Int32
	qw := NewQueueWatcher(path, func() { fired.Add(1) })
	require.NoError(t, qw.Start())
	defer qw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sync-state.json"), []byte("{}"), 0o644))

	time.Sleep(debounceWindow + 300*time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestWatcherCoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync-queue.json")

	var fired atomic.Int32
	qw := NewQueueWatcher(path, func() { fired.Add(1) })
	require.NoError(t, qw.Start())
	defer qw.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return fired.Load() >= 1 },
		3*time.Second, 50*time.Millisecond)
	time.Sleep(debounceWindow)
	assert.Equal(t, int32(1), fired.Load(), "one callback per burst")
}

func TestStartStopCleanShutdown(t *testing.T) {
	qw := NewQueueWatcher(filepath.Join(t.TempDir(), "q.json"), nil)
	require.NoError(t, qw.Start())
	qw.Stop()
}
