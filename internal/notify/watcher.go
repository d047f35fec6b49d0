// Package notify watches the durable sync-queue document for writes made
// by sidecar processes (a chat route or CLI enqueueing passes out of band)
// and wakes the drain loop so external enqueues are picked up without
// waiting for the next tick.
package notify

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceWindow = 500 * time.Millisecond

// QueueWatcher watches one queue document file and dispatches a callback
// when it changes.
type QueueWatcher struct {
	path     string
	callback func()
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewQueueWatcher creates a watcher over the given queue file path.
func NewQueueWatcher(path string, callback func()) *QueueWatcher {
	return &QueueWatcher{
		path:     path,
		callback: callback,
		done:     make(chan struct{}),
	}
}

// Start begins watching. The parent directory is watched rather than the
// file itself so atomic rename-over writes are still observed. Call Stop()
// to clean up.
func (qw *QueueWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(qw.path)); err != nil {
		_ = w.Close()
		return err
	}
	qw.watcher = w

	go qw.loop()
	log.Printf("notify: watching %s for queue writes", qw.path)
	return nil
}

// Stop shuts down the watcher.
func (qw *QueueWatcher) Stop() {
	if qw.watcher != nil {
		_ = qw.watcher.Close()
	}
	<-qw.done
}

// loop coalesces bursts of events into one callback per debounce window.
// Our own read-modify-write cycles touch the file too, so without the
// debounce every drain would immediately re-wake itself.
func (qw *QueueWatcher) loop() {
	defer close(qw.done)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case evt, ok := <-qw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(qw.path) {
				continue
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				fire = timer.C
			} else {
				timer.Reset(debounceWindow)
			}
		case <-fire:
			timer = nil
			fire = nil
			if qw.callback != nil {
				qw.callback()
			}
		case err, ok := <-qw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("notify: watcher error: %v", err)
		}
	}
}
