// Package vector implements the memory subsystem's vector store: it owns
// embedding generation, query preprocessing, dynamic score thresholds and
// candidate over-fetch on top of a storage.VectorIndex backend.
package vector

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/esinecan/skynet-agent-sub000/internal/llm"
	"github.com/esinecan/skynet-agent-sub000/internal/storage"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// defaultBaseMinScore is the nominal similarity threshold applied when a
// caller does not supply one.
const defaultBaseMinScore = 0.7

// minScoreFloor is the lowest value the dynamic adjustment can push an
// above-floor threshold down to.
const minScoreFloor = 0.3

// RetrieveOptions configures a retrieval call.
type RetrieveOptions struct {
	// Limit is the maximum number of results (default: 10).
	Limit int

	// MinScore is the nominal similarity threshold before dynamic
	// adjustment. Zero means the store default.
	MinScore float64

	// SessionID filters results to one session when non-empty.
	SessionID string

	// MessageType filters results by conversational role when non-empty.
	MessageType types.MessageType
}

// Store is the vector store. It persists (vector, text, metadata) tuples and
// answers similarity queries with quality-aware thresholding.
type Store struct {
	index    storage.VectorIndex
	embedder llm.EmbeddingGenerator

	baseMinScore float64

	// queryCache memoizes query embeddings so repeated searches skip the
	// embedding call. Keyed by the preprocessed query text.
	queryCache *lru.Cache[string, []float32]
}

// Config configures a Store.
type Config struct {
	// BaseMinScore overrides the default nominal threshold (0.7).
	BaseMinScore float64

	// QueryCacheSize is the query-embedding LRU capacity (default: 256).
	QueryCacheSize int
}

// NewStore creates a vector store on the given index and embedding provider.
func NewStore(index storage.VectorIndex, embedder llm.EmbeddingGenerator, cfg Config) (*Store, error) {
	if index == nil {
		return nil, fmt.Errorf("%w: vector index is required", storage.ErrInvalidInput)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedding generator is required", storage.ErrInvalidInput)
	}

	base := cfg.BaseMinScore
	if base <= 0 {
		base = defaultBaseMinScore
	}
	cacheSize := cfg.QueryCacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("vector: create query cache: %w", err)
	}

	return &Store{
		index:        index,
		embedder:     embedder,
		baseMinScore: base,
		queryCache:   cache,
	}, nil
}

// Store embeds text and writes the record (id, vector, text, metadata with
// timestamp and textLength stamped) in a single underlying write. When id is
// empty a fresh UUID is generated; passing an existing id overwrites in
// place (update).
func (s *Store) Store(ctx context.Context, text string, metadata types.MemoryMetadata, id string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("%w: text is required", storage.ErrInvalidInput)
	}
	if id == "" {
		id = uuid.NewString()
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("vector: embed text for %s: %w", id, err)
	}

	metadata.TextLength = len(text)
	if metadata.Timestamp.IsZero() {
		metadata.Timestamp = time.Now().UTC()
	}

	rec := &storage.VectorRecord{
		ID:        id,
		Text:      text,
		Embedding: embedding,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.index.Upsert(ctx, rec); err != nil {
		return "", err
	}
	return id, nil
}

// Retrieve runs a similarity query. Retrieval is advisory: any error on the
// path degrades to an empty result with a logged reason, never a failure.
func (s *Store) Retrieve(ctx context.Context, query string, opts RetrieveOptions) []types.RetrievalResult {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	processed := PreprocessQuery(query)
	if processed == "" {
		return []types.RetrievalResult{}
	}

	embedding, err := s.embedQuery(ctx, processed)
	if err != nil {
		log.Printf("vector: query embedding failed, returning no results: %v", err)
		return []types.RetrievalResult{}
	}

	// Over-fetch so post-filters don't starve the result set.
	fetchLimit := opts.Limit * 3
	if fetchLimit < 15 {
		fetchLimit = 15
	}

	matches, err := s.index.Query(ctx, embedding, fetchLimit)
	if err != nil {
		log.Printf("vector: similarity query failed, returning no results: %v", err)
		return []types.RetrievalResult{}
	}

	base := opts.MinScore
	if base <= 0 {
		base = s.baseMinScore
	}
	effective := DynamicMinScore(base, len(processed))

	results := make([]types.RetrievalResult, 0, opts.Limit)
	for _, match := range matches {
		score := clampScore(1 - match.Distance)
		if score < effective {
			continue
		}
		md := match.Record.Metadata
		if opts.SessionID != "" && md.SessionID != opts.SessionID {
			continue
		}
		if opts.MessageType != "" && md.MessageType != opts.MessageType {
			continue
		}
		results = append(results, types.RetrievalResult{
			ID:         match.Record.ID,
			Text:       match.Record.Text,
			Score:      score,
			Metadata:   md,
			SearchType: types.SearchTypeSemantic,
		})
		if len(results) == opts.Limit {
			break
		}
	}
	return results
}

// GetByID fetches a single stored memory.
func (s *Store) GetByID(ctx context.Context, id string) (*types.Memory, error) {
	rec, err := s.index.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return recordToMemory(rec), nil
}

// Scan returns up to limit stored memories ordered newest first, as
// zero-score retrieval results. Used by the hybrid retriever's keyword
// fallback and list mode.
func (s *Store) Scan(ctx context.Context, limit int) ([]types.RetrievalResult, error) {
	records, err := s.index.Scan(ctx, limit)
	if err != nil {
		return nil, err
	}
	results := make([]types.RetrievalResult, 0, len(records))
	for i := range records {
		results = append(results, types.RetrievalResult{
			ID:       records[i].ID,
			Text:     records[i].Text,
			Metadata: records[i].Metadata,
		})
	}
	return results, nil
}

// Count returns the number of stored memories.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.index.Count(ctx)
}

// HealthCheck verifies both the backing index and the embedding provider.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.index.Ping(ctx); err != nil {
		return fmt.Errorf("vector: index unreachable: %w", err)
	}
	if !s.embedder.Ready(ctx) {
		return fmt.Errorf("vector: embedding provider not ready")
	}
	return nil
}

// Delete removes memories by ID.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	return s.index.Delete(ctx, ids...)
}

// ClearAll removes every stored memory.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.index.Clear(ctx)
}

func (s *Store) embedQuery(ctx context.Context, processed string) ([]float32, error) {
	if cached, ok := s.queryCache.Get(processed); ok {
		return cached, nil
	}
	embedding, err := s.embedder.Embed(ctx, processed)
	if err != nil {
		return nil, err
	}
	s.queryCache.Add(processed, embedding)
	return embedding, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func recordToMemory(rec *storage.VectorRecord) *types.Memory {
	return &types.Memory{
		ID:        rec.ID,
		Text:      rec.Text,
		Embedding: rec.Embedding,
		Metadata:  rec.Metadata,
		CreatedAt: rec.CreatedAt,
	}
}
