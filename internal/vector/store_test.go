package vector

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esinecan/skynet-agent-sub000/internal/storage"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

type memIndex struct {
	records  map[string]*storage.VectorRecord
	order    []string
	queryErr error
}

func newMemIndex() *memIndex {
	return &memIndex{records: map[string]*storage.VectorRecord{}}
}

func (m *memIndex) Upsert(ctx context.Context, rec *storage.VectorRecord) error {
	if _, ok := m.records[rec.ID]; !ok {
		m.order = append(m.order, rec.ID)
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *memIndex) Query(ctx context.Context, embedding []float32, limit int) ([]storage.VectorMatch, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	matches := make([]storage.VectorMatch, 0, len(m.records))
	for _, id := range m.order {
		rec := m.records[id]
		matches = append(matches, storage.VectorMatch{
			Record:   *rec,
			Distance: storage.CosineDistance(embedding, rec.Embedding),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (m *memIndex) Get(ctx context.Context, id string) (*storage.VectorRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec, nil
}

func (m *memIndex) Scan(ctx context.Context, limit int) ([]storage.VectorRecord, error) {
	out := make([]storage.VectorRecord, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, *m.records[m.order[i]])
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memIndex) Count(ctx context.Context) (int, error) { return len(m.records), nil }

func (m *memIndex) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		delete(m.records, id)
		for i, existing := range m.order {
			if existing == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (m *memIndex) Clear(ctx context.Context) error {
	m.records = map[string]*storage.VectorRecord{}
	m.order = nil
	return nil
}

func (m *memIndex) Ping(ctx context.Context) error { return nil }
func (m *memIndex) Close() error                   { return nil }

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (s *stubEmbedder) Dimensions() int                { return 3 }
func (s *stubEmbedder) Ready(ctx context.Context) bool { return true }

func TestStoreGeneratesIDAndStampsMetadata(t *testing.T) {
	ctx := context.Background()
	index := newMemIndex()
	store, err := NewStore(index, &stubEmbedder{}, Config{})
	require.NoError(t, err)

	id, err := store.Store(ctx, "remember this", types.MemoryMetadata{SessionID: "s1"}, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := index.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "remember this", rec.Text)
	assert.Equal(t, len("remember this"), rec.Metadata.TextLength)
	assert.False(t, rec.Metadata.Timestamp.IsZero())
	assert.Equal(t, "s1", rec.Metadata.SessionID)
}

func TestStoreRejectsEmptyText(t *testing.T) {
	store, err := NewStore(newMemIndex(), &stubEmbedder{}, Config{})
	require.NoError(t, err)

	_, err = store.Store(context.Background(), "", types.MemoryMetadata{}, "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestStoreOverwritesInPlace(t *testing.T) {
	ctx := context.Background()
	index := newMemIndex()
	store, err := NewStore(index, &stubEmbedder{}, Config{})
	require.NoError(t, err)

	id, err := store.Store(ctx, "first version", types.MemoryMetadata{}, "fixed-id")
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)

	_, err = store.Store(ctx, "second version", types.MemoryMetadata{}, "fixed-id")
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	mem, err := store.GetByID(ctx, "fixed-id")
	require.NoError(t, err)
	assert.Equal(t, "second version", mem.Text)
}

func TestRetrieveAppliesThresholdAndFilters(t *testing.T) {
	ctx := context.Background()
	index := newMemIndex()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"the query":  {1, 0, 0},
		"close hit":  {0.9, 0.43589, 0},
		"distant":    {0, 1, 0},
		"other sess": {0.95, 0.3122, 0},
	}}
	store, err := NewStore(index, embedder, Config{BaseMinScore: 0.7})
	require.NoError(t, err)

	idClose, err := store.Store(ctx, "close hit", types.MemoryMetadata{SessionID: "s1"}, "")
	require.NoError(t, err)
	_, err = store.Store(ctx, "distant", types.MemoryMetadata{SessionID: "s1"}, "")
	require.NoError(t, err)
	_, err = store.Store(ctx, "other sess", types.MemoryMetadata{SessionID: "s2"}, "")
	require.NoError(t, err)

	results := store.Retrieve(ctx, "the query", RetrieveOptions{SessionID: "s1"})
	require.Len(t, results, 1)
	assert.Equal(t, idClose, results[0].ID)
	assert.Equal(t, types.SearchTypeSemantic, results[0].SearchType)
	assert.InDelta(t, 0.9, results[0].Score, 0.01)
}

func TestRetrieveDegradesToEmptyOnEmbedderError(t *testing.T) {
	store, err := NewStore(newMemIndex(), &stubEmbedder{err: fmt.Errorf("provider down")}, Config{})
	require.NoError(t, err)

	results := store.Retrieve(context.Background(), "anything", RetrieveOptions{})
	assert.Empty(t, results)
}

func TestRetrieveDegradesToEmptyOnIndexError(t *testing.T) {
	index := newMemIndex()
	index.queryErr = fmt.Errorf("index offline")
	store, err := NewStore(index, &stubEmbedder{}, Config{})
	require.NoError(t, err)

	results := store.Retrieve(context.Background(), "anything", RetrieveOptions{})
	assert.Empty(t, results)
}

func TestRetrieveCachesQueryEmbeddings(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{}
	store, err := NewStore(newMemIndex(), embedder, Config{})
	require.NoError(t, err)

	store.Retrieve(ctx, "same query", RetrieveOptions{})
	first := embedder.calls
	store.Retrieve(ctx, "same query", RetrieveOptions{})
	assert.Equal(t, first, embedder.calls, "second identical query must hit the cache")
}

func TestRetrieveEmptyQueryReturnsNothing(t *testing.T) {
	store, err := NewStore(newMemIndex(), &stubEmbedder{}, Config{})
	require.NoError(t, err)

	assert.Empty(t, store.Retrieve(context.Background(), "   ", RetrieveOptions{}))
}
