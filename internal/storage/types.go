package storage

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingEndpoint indicates a relationship merge referenced a node
	// that does not exist. Callers treat this as a logged no-op.
	ErrMissingEndpoint = errors.New("relationship endpoint node does not exist")
)

// VectorRecord is one stored (vector, text, metadata) tuple.
type VectorRecord struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  types.MemoryMetadata
	CreatedAt time.Time
}

// VectorMatch pairs a record with its cosine distance from the query vector.
type VectorMatch struct {
	Record   VectorRecord
	Distance float64
}

// JoinList serializes a list-valued metadata field as a comma-joined
// string, the storage form shared by the SQL backends. A value containing a
// comma is rejected because the format cannot round-trip it.
func JoinList(values []string) (string, error) {
	for _, v := range values {
		if strings.Contains(v, ",") {
			return "", fmt.Errorf("%w: list value %q must not contain a comma", ErrInvalidInput, v)
		}
	}
	return strings.Join(values, ","), nil
}

// SplitList reverses JoinList. Empty input yields a nil slice.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// CosineDistance computes 1 - cosine similarity between two vectors.
// Returns 1 (maximally distant) for mismatched or zero-magnitude vectors so
// degenerate embeddings rank last instead of erroring.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - sim
}
