// Package engine wires the memory subsystem together: the vector store for
// durable memory records, the hybrid retriever for search, and the
// background projection of saved memories into the property graph.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/esinecan/skynet-agent-sub000/internal/extract"
	"github.com/esinecan/skynet-agent-sub000/internal/graph"
	"github.com/esinecan/skynet-agent-sub000/internal/retryq"
	"github.com/esinecan/skynet-agent-sub000/internal/search"
	"github.com/esinecan/skynet-agent-sub000/internal/vector"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// projectionJob carries one saved memory to the background graph workers.
// msg is set for chat turns so their tool invocations reach the extractors.
type projectionJob struct {
	op     types.RetryOp
	memory types.Memory
	msg    *types.ChatMessage
}

// Engine is the composition root's handle on the memory subsystem.
//
// Writes follow a primary-then-projection contract: Save/Update/Delete
// return as soon as the vector store write lands, and the graph projection
// runs on a worker pool. A failed projection lands in the retry queue; it
// never rolls back or fails the primary write.
type Engine struct {
	store     *vector.Store
	retriever *search.HybridRetriever
	pipeline  *extract.Pipeline
	graph     *graph.Service
	retries   *retryq.Queue

	jobs            chan projectionJob
	workerWaitGroup sync.WaitGroup
	workerCancel    context.CancelFunc

	mu           sync.RWMutex
	started      bool
	shuttingDown bool
}

// Config sizes the projection worker pool.
type Config struct {
	Workers   int
	QueueSize int
}

// DefaultConfig returns a pool sized for a single-user agent process.
func DefaultConfig() Config {
	return Config{Workers: 2, QueueSize: 64}
}

// New creates an engine over already-constructed collaborators. retries may
// be nil to disable the projection retry path (useful in tests).
func New(store *vector.Store, retriever *search.HybridRetriever, pipeline *extract.Pipeline, g *graph.Service, retries *retryq.Queue, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("hybrid retriever is required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("extraction pipeline is required")
	}
	if g == nil {
		return nil, fmt.Errorf("graph service is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	return &Engine{
		store:     store,
		retriever: retriever,
		pipeline:  pipeline,
		graph:     g,
		retries:   retries,
		jobs:      make(chan projectionJob, cfg.QueueSize),
	}, nil
}

// Start launches the projection worker pool. Must be called before Save.
func (e *Engine) Start(ctx context.Context, workers int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}
	if workers <= 0 {
		workers = DefaultConfig().Workers
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.workerCancel = cancel
	for i := 0; i < workers; i++ {
		e.workerWaitGroup.Add(1)
		go e.projectionWorker(workerCtx, i)
	}

	e.started = true
	log.Printf("engine: started with %d projection workers", workers)
	return nil
}

// Shutdown stops accepting projections, drains in-flight jobs, then cancels
// the workers.
func (e *Engine) Shutdown(timeout time.Duration) {
	e.mu.Lock()
	if !e.started || e.shuttingDown {
		e.mu.Unlock()
		return
	}
	e.shuttingDown = true
	e.mu.Unlock()

	close(e.jobs)

	done := make(chan struct{})
	go func() {
		e.workerWaitGroup.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Printf("engine: shutdown timed out after %s, abandoning in-flight projections", timeout)
	}
	e.workerCancel()

	e.mu.Lock()
	e.started = false
	e.mu.Unlock()
	log.Println("engine: stopped")
}

// Save stores a memory and schedules its graph projection. The returned ID
// is final once this call succeeds, regardless of projection outcome.
func (e *Engine) Save(ctx context.Context, text string, metadata types.MemoryMetadata) (string, error) {
	id, err := e.store.Store(ctx, text, metadata, "")
	if err != nil {
		return "", err
	}
	e.scheduleProjection(types.RetryOpSave, types.Memory{ID: id, Text: text, Metadata: metadata})
	return id, nil
}

// SaveConscious stores an explicitly tagged, importance-scored note.
func (e *Engine) SaveConscious(ctx context.Context, text string, metadata types.MemoryMetadata) (string, error) {
	metadata.MemoryType = types.MemoryTypeConscious
	if metadata.Importance != 0 && !types.IsValidImportance(metadata.Importance) {
		return "", fmt.Errorf("importance must be between %d and %d", types.MinImportance, types.MaxImportance)
	}
	if metadata.Source == "" {
		metadata.Source = types.MemorySourceExplicit
	}
	return e.Save(ctx, text, metadata)
}

// Update rewrites a memory's text and mutable metadata in place. Source,
// session and creation time carry over from the stored record.
func (e *Engine) Update(ctx context.Context, id, text string, metadata types.MemoryMetadata) error {
	existing, err := e.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if metadata.Importance != 0 && !types.IsValidImportance(metadata.Importance) {
		return fmt.Errorf("importance must be between %d and %d", types.MinImportance, types.MaxImportance)
	}

	metadata.Source = existing.Metadata.Source
	metadata.SessionID = existing.Metadata.SessionID
	metadata.MemoryType = existing.Metadata.MemoryType
	metadata.Timestamp = existing.Metadata.Timestamp
	if text == "" {
		text = existing.Text
	}

	if _, err := e.store.Store(ctx, text, metadata, id); err != nil {
		return err
	}
	e.scheduleProjection(types.RetryOpUpdate, types.Memory{ID: id, Text: text, Metadata: metadata})
	return nil
}

// Delete removes a memory and its graph node.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}
	e.scheduleProjection(types.RetryOpDelete, types.Memory{ID: id})
	return nil
}

// DeleteBySession removes every memory recorded for the given session.
func (e *Engine) DeleteBySession(ctx context.Context, sessionID string) (int, error) {
	results, err := e.store.Scan(ctx, 0)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, r := range results {
		if r.Metadata.SessionID != sessionID {
			continue
		}
		if err := e.Delete(ctx, r.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// ClearAll wipes the vector store and the Memory nodes projected from it.
// Other graph labels (files, tools, sessions) are left in place.
func (e *Engine) ClearAll(ctx context.Context) error {
	if err := e.store.ClearAll(ctx); err != nil {
		return err
	}
	if count, err := e.graph.DeleteNodesByLabel(ctx, types.NodeMemory); err != nil {
		log.Printf("engine: graph clear failed: %v", err)
	} else {
		log.Printf("engine: cleared all memories and %d graph nodes", count)
	}
	return nil
}

// Search runs the hybrid retrieval pipeline. It never returns an error;
// retrieval degradation surfaces as an empty slice.
func (e *Engine) Search(ctx context.Context, query string, opts search.Options) []types.RetrievalResult {
	return e.retriever.Search(ctx, query, opts)
}

// GetByID fetches one memory record.
func (e *Engine) GetByID(ctx context.Context, id string) (*types.Memory, error) {
	return e.store.GetByID(ctx, id)
}

// Count reports how many memories are stored.
func (e *Engine) Count(ctx context.Context) (int, error) {
	return e.store.Count(ctx)
}

// HealthCheck verifies the vector store and embedding provider.
func (e *Engine) HealthCheck(ctx context.Context) error {
	return e.store.HealthCheck(ctx)
}

// StoreMessage records a conversational turn as a derived memory and
// schedules its projection, including tool invocations. Turns that carry
// only tool invocations get a derived text so the vector write still lands.
func (e *Engine) StoreMessage(ctx context.Context, msg types.ChatMessage) (string, error) {
	if msg.Content == "" && len(msg.ToolInvocations) == 0 {
		return "", fmt.Errorf("message has no content")
	}

	text := msg.Content
	if text == "" {
		names := make([]string, 0, len(msg.ToolInvocations))
		for _, inv := range msg.ToolInvocations {
			names = append(names, inv.ToolName)
		}
		text = "invoked tools: " + strings.Join(names, ", ")
	}

	metadata := types.MemoryMetadata{
		SessionID:   msg.SessionID,
		MessageType: msg.Role,
		Source:      types.MemorySourceDerived,
		Timestamp:   msg.Timestamp,
	}
	id, err := e.store.Store(ctx, text, metadata, msg.ID)
	if err != nil {
		return "", err
	}
	msg.ID = id
	e.projectMessage(msg)
	return id, nil
}

// scheduleProjection hands a memory write to the worker pool without
// blocking. A full queue or stopped engine falls through to the retry
// queue so the projection is not lost.
func (e *Engine) scheduleProjection(op types.RetryOp, memory types.Memory) {
	e.schedule(projectionJob{op: op, memory: memory})
}

// projectMessage queues a chat-turn projection; the message rides along so
// its tool invocations reach the extractors.
func (e *Engine) projectMessage(msg types.ChatMessage) {
	e.schedule(projectionJob{
		op: types.RetryOpSave,
		memory: types.Memory{
			ID:   msg.ID,
			Text: msg.Content,
			Metadata: types.MemoryMetadata{
				SessionID:   msg.SessionID,
				MessageType: msg.Role,
				Source:      types.MemorySourceDerived,
			},
		},
		msg: &msg,
	})
}

func (e *Engine) schedule(job projectionJob) {
	e.mu.RLock()
	accepting := e.started && !e.shuttingDown
	e.mu.RUnlock()

	if accepting {
		select {
		case e.jobs <- job:
			return
		default:
			log.Printf("engine: projection queue full, deferring %s for %s", job.op, job.memory.ID)
		}
	}

	if e.retries != nil {
		e.retries.Push(types.RetryItem{
			ID:      job.memory.ID,
			Op:      job.op,
			Payload: job.memory,
			Message: job.msg,
		})
	}
}

func (e *Engine) projectionWorker(ctx context.Context, id int) {
	defer e.workerWaitGroup.Done()
	for {
		select {
		case job, ok := <-e.jobs:
			if !ok {
				return
			}
			if err := e.project(ctx, job); err != nil {
				log.Printf("engine: worker %d projection %s for %s failed: %v", id, job.op, job.memory.ID, err)
				if e.retries != nil {
					e.retries.Push(types.RetryItem{
						ID:        job.memory.ID,
						Op:        job.op,
						Payload:   job.memory,
						Message:   job.msg,
						LastError: err.Error(),
					})
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// project applies one memory write to the graph.
func (e *Engine) project(ctx context.Context, job projectionJob) error {
	if job.op == types.RetryOpDelete {
		return e.graph.DeleteNode(ctx, extract.MemoryEntityID(job.memory.ID))
	}

	memory := job.memory
	unit := &extract.Unit{Text: memory.Text}
	switch {
	case job.msg != nil:
		unit = &extract.Unit{Message: job.msg}
	case memory.Metadata.IsConscious():
		unit = &extract.Unit{Note: &memory}
	}
	result := e.pipeline.Extract(ctx, unit)
	nodes, rels, err := e.graph.UpsertExtraction(ctx, result)
	if err != nil {
		return err
	}
	if nodes > 0 || rels > 0 {
		log.Printf("engine: projected %s as %d nodes, %d relationships", memory.ID, nodes, rels)
	}
	return nil
}

// RetrySync replays one queued projection. It is the retryq.SyncFunc the
// composition root hands the retry queue.
func (e *Engine) RetrySync(ctx context.Context, item types.RetryItem) error {
	return e.project(ctx, projectionJob{op: item.Op, memory: item.Payload, msg: item.Message})
}
