package types

// RetrievalResult is one ranked hit from the vector store or the keyword
// fallback. Computed per query, never persisted.
type RetrievalResult struct {
	ID   string `json:"id"`
	Text string `json:"text"`

	// Score is 1 - cosineDistance clamped to [0,1] for semantic results, or
	// the composite keyword heuristic for keyword results.
	Score float64 `json:"score"`

	Metadata   MemoryMetadata `json:"metadata"`
	SearchType SearchType     `json:"searchType"`

	// KeywordMatches is the number of query keywords matched when the result
	// came through (or was also found by) the keyword path. The hybrid
	// retriever's quality filter keeps any result with a positive count.
	KeywordMatches int `json:"keywordMatches,omitempty"`
}
