package vector

import "strings"

// maxVerbatimQueryLength is the longest query embedded as-is. Longer queries
// are reduced to their trailing clauses: the most recent clause of a long
// conversational turn is the best proxy for current intent.
const maxVerbatimQueryLength = 500

// PreprocessQuery prepares a query for embedding. Queries up to 500
// characters pass through verbatim; longer ones are cut down to their last
// 3-5 sentence-delimited clauses, or their trailing 500 characters when no
// sentence breaks exist.
func PreprocessQuery(query string) string {
	query = strings.TrimSpace(query)
	if len(query) <= maxVerbatimQueryLength {
		return query
	}

	clauses := splitSentences(query)
	if len(clauses) > 1 {
		keep := 5
		if keep > len(clauses) {
			keep = len(clauses)
		}
		// Prefer 5 trailing clauses, but drop to 3 if that still overshoots.
		for ; keep > 3; keep-- {
			if len(strings.Join(clauses[len(clauses)-keep:], " ")) <= maxVerbatimQueryLength {
				break
			}
		}
		return strings.Join(clauses[len(clauses)-keep:], " ")
	}

	return strings.TrimSpace(query[len(query)-maxVerbatimQueryLength:])
}

// splitSentences splits on sentence-ending punctuation, keeping non-empty
// trimmed clauses.
func splitSentences(text string) []string {
	var clauses []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			clause := strings.TrimSpace(text[start : i+1])
			if clause != "" && clause != "." && clause != "!" && clause != "?" {
				clauses = append(clauses, clause)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		clauses = append(clauses, tail)
	}
	return clauses
}

// DynamicMinScore lowers the nominal threshold as the (preprocessed) query
// grows: long queries rarely achieve tight cosine similarity even for a true
// match. No adjustment under 200 characters; -0.05 up to 500; -0.10 up to
// 1000; -0.15 above. The adjustment never pushes a threshold below 0.3, and
// never raises a threshold that was already below the floor.
func DynamicMinScore(base float64, queryLength int) float64 {
	var adjustment float64
	switch {
	case queryLength < 200:
		adjustment = 0
	case queryLength <= 500:
		adjustment = 0.05
	case queryLength <= 1000:
		adjustment = 0.10
	default:
		adjustment = 0.15
	}

	effective := base - adjustment
	floor := minScoreFloor
	if base < floor {
		floor = base
	}
	if effective < floor {
		effective = floor
	}
	return effective
}
