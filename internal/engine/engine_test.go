package engine

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esinecan/skynet-agent-sub000/internal/extract"
	"github.com/esinecan/skynet-agent-sub000/internal/graph"
	"github.com/esinecan/skynet-agent-sub000/internal/retryq"
	"github.com/esinecan/skynet-agent-sub000/internal/search"
	"github.com/esinecan/skynet-agent-sub000/internal/storage/sqlite"
	"github.com/esinecan/skynet-agent-sub000/internal/vector"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// hashEmbedder produces a deterministic unit vector from the text bytes so
// identical texts always embed identically.
type hashEmbedder struct{}

func (hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, 8)
	for i, b := range []byte(text) {
		v[i%8] += float32(b)
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v, nil
}

func (hashEmbedder) Dimensions() int                { return 8 }
func (hashEmbedder) Ready(ctx context.Context) bool { return true }

type testHarness struct {
	engine  *Engine
	graph   *graph.Service
	store   *vector.Store
	retries *retryq.Queue
}

func newTestEngine(t *testing.T) *testHarness {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := vector.NewStore(sqlite.NewVectorIndex(db), hashEmbedder{}, vector.Config{})
	require.NoError(t, err)

	graphSvc := graph.NewService(sqlite.NewGraphStore(db))
	pipeline := extract.NewPipeline(nil)
	retriever := search.NewHybridRetriever(store)

	var eng *Engine
	retries := retryq.New(func(ctx context.Context, item types.RetryItem) error {
		return eng.RetrySync(ctx, item)
	}, time.Hour)

	eng, err = New(store, retriever, pipeline, graphSvc, retries, Config{Workers: 1, QueueSize: 8})
	require.NoError(t, err)
	return &testHarness{engine: eng, graph: graphSvc, store: store, retries: retries}
}

func (h *testHarness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Start(context.Background(), 1))
	t.Cleanup(func() { h.engine.Shutdown(5 * time.Second) })
}

func getNode(g *graph.Service, id string) (*types.GraphNode, error) {
	return g.GetNode(context.Background(), id)
}

func TestSaveConsciousProjectsToGraph(t *testing.T) {
	h := newTestEngine(t)
	h.start(t)
	ctx := context.Background()

	id, err := h.engine.SaveConscious(ctx, "prefers concise answers", types.MemoryMetadata{
		Tags:       []string{"prefs"},
		Importance: 6,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	mem, err := h.engine.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.MemoryTypeConscious, mem.Metadata.MemoryType)
	assert.Equal(t, types.MemorySourceExplicit, mem.Metadata.Source)

	memoryNode := extract.MemoryEntityID(id)
	require.Eventually(t, func() bool {
		node, err := getNode(h.graph, memoryNode)
		return err == nil && node != nil
	}, 2*time.Second, 10*time.Millisecond, "projection worker should create the memory node")

	tagNode, err := getNode(h.graph, extract.TagEntityID("prefs"))
	require.NoError(t, err)
	assert.Equal(t, "prefs", tagNode.Properties["name"])
}

func TestSaveConsciousRejectsBadImportance(t *testing.T) {
	h := newTestEngine(t)
	_, err := h.engine.SaveConscious(context.Background(), "x", types.MemoryMetadata{Importance: 11})
	assert.Error(t, err)
}

func TestSaveBeforeStartFallsBackToRetryQueue(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	_, err := h.engine.Save(ctx, "saved while workers are down", types.MemoryMetadata{})
	require.NoError(t, err, "primary write succeeds regardless of projection path")
	assert.Equal(t, 1, h.retries.Size(), "projection deferred to the retry queue")

	// The flush replays the projection; plain free text with no paths
	// yields no graph nodes, what matters is that the retry drained
	// without re-queueing.
	h.retries.Flush(ctx)
	assert.Zero(t, h.retries.Size())
}

func TestUpdatePreservesImmutableMetadata(t *testing.T) {
	h := newTestEngine(t)
	h.start(t)
	ctx := context.Background()

	id, err := h.engine.SaveConscious(ctx, "original", types.MemoryMetadata{
		SessionID: "s1",
	})
	require.NoError(t, err)

	err = h.engine.Update(ctx, id, "updated text", types.MemoryMetadata{
		SessionID: "attempted-change",
		Source:    types.MemorySourceSuggested,
		Tags:      []string{"new-tag"},
	})
	require.NoError(t, err)

	mem, err := h.engine.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "updated text", mem.Text)
	assert.Equal(t, "s1", mem.Metadata.SessionID, "session is immutable")
	assert.Equal(t, types.MemorySourceExplicit, mem.Metadata.Source, "source is immutable")
	assert.Equal(t, []string{"new-tag"}, mem.Metadata.Tags, "tags are mutable")
}

func TestDeleteRemovesMemoryAndNode(t *testing.T) {
	h := newTestEngine(t)
	h.start(t)
	ctx := context.Background()

	id, err := h.engine.SaveConscious(ctx, "short lived", types.MemoryMetadata{})
	require.NoError(t, err)

	memoryNode := extract.MemoryEntityID(id)
	require.Eventually(t, func() bool {
		_, err := getNode(h.graph, memoryNode)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.engine.Delete(ctx, id))

	_, err = h.engine.GetByID(ctx, id)
	assert.Error(t, err)
	require.Eventually(t, func() bool {
		_, err := getNode(h.graph, memoryNode)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond, "graph node removed by the delete projection")
}

func TestDeleteBySession(t *testing.T) {
	h := newTestEngine(t)
	h.start(t)
	ctx := context.Background()

	_, err := h.engine.Save(ctx, "keep me", types.MemoryMetadata{SessionID: "keep"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := h.engine.Save(ctx, fmt.Sprintf("drop me %d", i), types.MemoryMetadata{SessionID: "drop"})
		require.NoError(t, err)
	}

	deleted, err := h.engine.DeleteBySession(ctx, "drop")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	count, err := h.engine.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSearchRoundTrip(t *testing.T) {
	h := newTestEngine(t)
	h.start(t)
	ctx := context.Background()

	text := "the quarterly report is due Friday"
	id, err := h.engine.Save(ctx, text, types.MemoryMetadata{})
	require.NoError(t, err)

	// Identical text embeds identically, so the exact query is a top hit.
	results := h.engine.Search(ctx, text, search.Options{})
	require.NotEmpty(t, results)
	assert.Equal(t, id, results[0].ID)
}

func TestStoreMessageProjectsToolInvocations(t *testing.T) {
	h := newTestEngine(t)
	h.start(t)
	ctx := context.Background()

	id, err := h.engine.StoreMessage(ctx, types.ChatMessage{
		ID:        "turn-1",
		SessionID: "sess-9",
		Role:      types.MessageTypeAssistant,
		Content:   "let me check that file",
		Timestamp: time.Now(),
		ToolInvocations: []types.ToolInvocation{
			{ToolName: "read_file", Args: map[string]string{"path": "main.go"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "turn-1", id)

	require.Eventually(t, func() bool {
		_, err := getNode(h.graph, extract.ToolEntityID("read_file"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "tool node should be projected")

	session, err := getNode(h.graph, extract.SessionEntityID("sess-9"))
	require.NoError(t, err)
	assert.Equal(t, types.NodeSession, session.Label)
}

func TestStoreMessageToolOnlyTurn(t *testing.T) {
	h := newTestEngine(t)
	h.start(t)
	ctx := context.Background()

	// Some assistant turns carry invocations and no prose at all.
	id, err := h.engine.StoreMessage(ctx, types.ChatMessage{
		ID:        "turn-2",
		SessionID: "sess-9",
		Role:      types.MessageTypeAssistant,
		Timestamp: time.Now(),
		ToolInvocations: []types.ToolInvocation{
			{ToolName: "grep", Args: map[string]string{"pattern": "TODO"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "turn-2", id)

	mem, err := h.engine.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, mem.Text, "grep", "derived text names the invoked tool")

	require.Eventually(t, func() bool {
		_, err := getNode(h.graph, extract.ToolEntityID("grep"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "tool node projected from a tool-only turn")
}

func TestUpdateRejectsOutOfRangeImportance(t *testing.T) {
	h := newTestEngine(t)
	h.start(t)
	ctx := context.Background()

	id, err := h.engine.SaveConscious(ctx, "keep importance sane", types.MemoryMetadata{Importance: 5})
	require.NoError(t, err)

	err = h.engine.Update(ctx, id, "", types.MemoryMetadata{Importance: 42})
	require.Error(t, err)

	mem, err := h.engine.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, mem.Metadata.Importance, "rejected update leaves the record untouched")
}

func TestStoreMessageRequiresContent(t *testing.T) {
	h := newTestEngine(t)
	_, err := h.engine.StoreMessage(context.Background(), types.ChatMessage{ID: "m", SessionID: "s"})
	assert.Error(t, err)
}
