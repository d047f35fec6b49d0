// Package search implements the hybrid retriever: semantic retrieval blended
// with a keyword fallback, quality filtering, deduplication and deterministic
// ranking. The pipeline contains no randomness so fixed inputs always produce
// the same ordering.
package search

import (
	"context"
	"log"
	"sort"
	"strings"
	"unicode"

	"github.com/esinecan/skynet-agent-sub000/internal/vector"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// goodScoreThreshold classifies a semantic hit as "good".
const goodScoreThreshold = 0.15

// keepScoreThreshold is the mediocrity floor of the quality filter: when no
// merged result reaches goodScoreThreshold, results at or above this still
// survive so a query never returns nothing just because everything is
// mediocre.
const keepScoreThreshold = 0.05

// semanticFloor is the permissive threshold stage 1 retrieves at; the
// quality filter does the real cutting afterwards.
const semanticFloor = 0.05

// keywordScanLimit caps how many stored items the fallback scans.
const keywordScanLimit = 1000

// tieWindow is the score band within which a semantic-origin result
// outranks a keyword-origin one.
const tieWindow = 0.1

// listModeLimit is the default cap for the empty-query list mode.
const listModeLimit = 100

// Options configures a hybrid search.
type Options struct {
	// Limit caps the number of results (default: 10; list mode: 100).
	Limit int

	// Tags keeps only conscious memories carrying at least one of these tags.
	Tags []string

	// MinImportance / MaxImportance bound conscious-memory importance.
	// Zero values mean unbounded.
	MinImportance int
	MaxImportance int

	// Source keeps only conscious memories with this source.
	Source types.MemorySource

	// ConsciousOnly drops non-conscious memories from the results.
	ConsciousOnly bool

	// SessionID restricts semantic retrieval to one session.
	SessionID string
}

// HybridRetriever blends semantic and keyword retrieval over a vector store.
type HybridRetriever struct {
	store *vector.Store
}

// NewHybridRetriever creates a retriever on the given vector store.
func NewHybridRetriever(store *vector.Store) *HybridRetriever {
	return &HybridRetriever{store: store}
}

// Search runs the five-stage pipeline. Like plain retrieval it is advisory:
// errors degrade to an empty list.
func (h *HybridRetriever) Search(ctx context.Context, query string, opts Options) []types.RetrievalResult {
	query = strings.TrimSpace(query)

	if query == "" {
		return h.listAll(ctx, opts)
	}

	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	// Stage 1: semantic retrieval at a permissive floor.
	semantic := h.store.Retrieve(ctx, query, vector.RetrieveOptions{
		Limit:     opts.Limit,
		MinScore:  semanticFloor,
		SessionID: opts.SessionID,
	})

	goodHits := 0
	for _, r := range semantic {
		if r.Score >= goodScoreThreshold {
			goodHits++
		}
	}

	// Stage 2: keyword fallback when semantic retrieval came up short.
	var keyword []types.RetrievalResult
	if goodHits == 0 || len(semantic) < 3 {
		keyword = h.keywordSearch(ctx, query, opts.Limit)
	}

	// Stage 3: merge by ID; semantic entries win on collision.
	merged := mergeResults(semantic, keyword)

	// Stage 4: quality filter.
	merged = filterQuality(merged)

	// Stage 5: subtype filters and final deterministic sort.
	merged = filterConscious(merged, opts)
	sortResults(merged)

	if len(merged) > opts.Limit {
		merged = merged[:opts.Limit]
	}
	return merged
}

// listAll is the empty-query mode: recency order, no relevance filtering,
// subtype filters still applied.
func (h *HybridRetriever) listAll(ctx context.Context, opts Options) []types.RetrievalResult {
	limit := opts.Limit
	if limit <= 0 {
		limit = listModeLimit
	}

	items, err := h.store.Scan(ctx, keywordScanLimit)
	if err != nil {
		log.Printf("search: list mode scan failed, returning no results: %v", err)
		return []types.RetrievalResult{}
	}

	items = filterConscious(items, opts)
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// keywordSearch scans stored items and scores them against the query with
// substring heuristics. Items with zero keyword matches are discarded.
func (h *HybridRetriever) keywordSearch(ctx context.Context, query string, limit int) []types.RetrievalResult {
	items, err := h.store.Scan(ctx, keywordScanLimit)
	if err != nil {
		log.Printf("search: keyword scan failed, skipping fallback: %v", err)
		return nil
	}

	keywords := queryKeywords(query)
	queryLower := strings.ToLower(query)

	var results []types.RetrievalResult
	for i := range items {
		score, matches := keywordScore(items[i].Text, queryLower, keywords)
		if matches == 0 {
			continue
		}
		r := items[i]
		r.Score = score
		r.SearchType = types.SearchTypeKeyword
		r.KeywordMatches = matches
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// keyword holds one query keyword with its proper-noun flag from the
// original (pre-lowercase) query.
type keyword struct {
	text        string
	capitalized bool
}

// queryKeywords splits the query into keywords of at least two characters,
// remembering which were capitalized in the original query.
func queryKeywords(query string) []keyword {
	fields := strings.Fields(query)
	keywords := make([]keyword, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		first := []rune(f)[0]
		keywords = append(keywords, keyword{
			text:        strings.ToLower(f),
			capitalized: unicode.IsUpper(first),
		})
	}
	return keywords
}

// keywordScore computes the composite keyword heuristic for one item:
// +1.0 for an exact substring match of the full query, +0.4 per matched
// keyword, +0.3 word-boundary bonus, +0.2 proper-noun bonus, all scaled by
// max(0.5, matched/total).
func keywordScore(text, queryLower string, keywords []keyword) (float64, int) {
	textLower := strings.ToLower(text)

	var score float64
	if strings.Contains(textLower, queryLower) {
		score += 1.0
	}

	matched := 0
	for _, kw := range keywords {
		if !strings.Contains(textLower, kw.text) {
			continue
		}
		matched++
		score += 0.4
		if matchesWordBoundary(textLower, kw.text) {
			score += 0.3
		}
		if kw.capitalized {
			score += 0.2
		}
	}

	if matched == 0 {
		return 0, 0
	}

	coverage := 1.0
	if len(keywords) > 0 {
		coverage = float64(matched) / float64(len(keywords))
		if coverage < 0.5 {
			coverage = 0.5
		}
	}
	return score * coverage, matched
}

// matchesWordBoundary reports whether needle occurs in haystack delimited by
// non-alphanumeric characters (or string edges) on both sides.
func matchesWordBoundary(haystack, needle string) bool {
	for from := 0; ; {
		idx := strings.Index(haystack[from:], needle)
		if idx < 0 {
			return false
		}
		idx += from

		leftOK := idx == 0 || !isWordChar(rune(haystack[idx-1]))
		end := idx + len(needle)
		rightOK := end == len(haystack) || !isWordChar(rune(haystack[end]))
		if leftOK && rightOK {
			return true
		}

		from = idx + 1
		if from >= len(haystack) {
			return false
		}
	}
}

func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// mergeResults unions both result sets by ID. Where an ID appears in both,
// the semantic entry wins but inherits the keyword match count.
func mergeResults(semantic, keyword []types.RetrievalResult) []types.RetrievalResult {
	merged := make([]types.RetrievalResult, 0, len(semantic)+len(keyword))
	byID := make(map[string]int, len(semantic))

	for _, r := range semantic {
		byID[r.ID] = len(merged)
		merged = append(merged, r)
	}
	for _, r := range keyword {
		if idx, ok := byID[r.ID]; ok {
			merged[idx].KeywordMatches = r.KeywordMatches
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// filterQuality applies the stage-4 rule: keep results scoring at least 0.15,
// or carrying a keyword match, or scoring at least 0.05 when nothing in the
// set reached 0.15.
func filterQuality(results []types.RetrievalResult) []types.RetrievalResult {
	var best float64
	for _, r := range results {
		if r.Score > best {
			best = r.Score
		}
	}
	allMediocre := best < goodScoreThreshold

	kept := results[:0]
	for _, r := range results {
		switch {
		case r.Score >= goodScoreThreshold:
			kept = append(kept, r)
		case r.KeywordMatches > 0:
			kept = append(kept, r)
		case allMediocre && r.Score >= keepScoreThreshold:
			kept = append(kept, r)
		}
	}
	return kept
}

// filterConscious applies tag/importance/source filters to conscious
// memories. Non-conscious memories pass through untouched unless
// ConsciousOnly is requested.
func filterConscious(results []types.RetrievalResult, opts Options) []types.RetrievalResult {
	kept := results[:0]
	for _, r := range results {
		if !r.Metadata.IsConscious() {
			if !opts.ConsciousOnly {
				kept = append(kept, r)
			}
			continue
		}
		if len(opts.Tags) > 0 && !hasAnyTag(r.Metadata.Tags, opts.Tags) {
			continue
		}
		if opts.MinImportance > 0 && r.Metadata.Importance < opts.MinImportance {
			continue
		}
		if opts.MaxImportance > 0 && r.Metadata.Importance > opts.MaxImportance {
			continue
		}
		if opts.Source != "" && r.Metadata.Source != opts.Source {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

// sortResults orders by descending score, except that within a 0.1 tie
// window a semantic-origin result outranks a keyword-origin one.
func sortResults(results []types.RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		diff := a.Score - b.Score
		if diff < 0 {
			diff = -diff
		}
		if diff <= tieWindow && a.SearchType != b.SearchType {
			return a.SearchType == types.SearchTypeSemantic
		}
		return a.Score > b.Score
	})
}
