package vector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreprocessQueryShortPassesThrough(t *testing.T) {
	q := "what did we decide about the cache layer?"
	assert.Equal(t, q, PreprocessQuery(q))
}

func TestPreprocessQueryTrimsWhitespace(t *testing.T) {
	assert.Equal(t, "hello", PreprocessQuery("  hello \n"))
}

func TestPreprocessQueryExactly500Verbatim(t *testing.T) {
	q := strings.Repeat("a", 500)
	assert.Equal(t, q, PreprocessQuery(q))
}

func TestPreprocessQueryLongKeepsTrailingClauses(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("This is filler sentence number ")
		b.WriteString(strings.Repeat("x", 10))
		b.WriteString(". ")
	}
	b.WriteString("The part that matters is the last clause.")
	query := b.String()

	got := PreprocessQuery(query)
	assert.LessOrEqual(t, len(got), 500)
	assert.True(t, strings.HasSuffix(got, "The part that matters is the last clause."))
	assert.NotContains(t, got, "number 1")
}

func TestPreprocessQueryLongWithoutSentenceBreaks(t *testing.T) {
	query := strings.Repeat("w", 1200)
	got := PreprocessQuery(query)
	assert.Len(t, got, 500)
}

func TestPreprocessQueryClauseCountBetweenThreeAndFive(t *testing.T) {
	// Ten 80-char sentences: five of them join to ~404 chars, within the cap.
	sentence := strings.Repeat("y", 79) + "."
	query := strings.Repeat(sentence+" ", 10)

	got := PreprocessQuery(query)
	clauses := strings.Count(got, ".")
	assert.GreaterOrEqual(t, clauses, 3)
	assert.LessOrEqual(t, clauses, 5)
}

func TestDynamicMinScoreBreakpoints(t *testing.T) {
	base := 0.7
	assert.InDelta(t, 0.70, DynamicMinScore(base, 100), 1e-9)
	assert.InDelta(t, 0.65, DynamicMinScore(base, 200), 1e-9)
	assert.InDelta(t, 0.65, DynamicMinScore(base, 500), 1e-9)
	assert.InDelta(t, 0.60, DynamicMinScore(base, 501), 1e-9)
	assert.InDelta(t, 0.60, DynamicMinScore(base, 1000), 1e-9)
	assert.InDelta(t, 0.55, DynamicMinScore(base, 1001), 1e-9)
}

func TestDynamicMinScoreMonotonicInQueryLength(t *testing.T) {
	base := 0.7
	prev := DynamicMinScore(base, 0)
	for _, length := range []int{100, 199, 200, 350, 500, 750, 1000, 1500, 10000} {
		cur := DynamicMinScore(base, length)
		assert.LessOrEqual(t, cur, prev, "threshold rose at length %d", length)
		prev = cur
	}
}

func TestDynamicMinScoreNeverBelowFloor(t *testing.T) {
	for _, base := range []float64{0.3, 0.35, 0.4, 0.7, 1.0} {
		got := DynamicMinScore(base, 5000)
		assert.GreaterOrEqual(t, got, 0.3, "base %g dropped below floor", base)
	}
}

func TestDynamicMinScorePermissiveBaseKept(t *testing.T) {
	// A base already under the floor is not raised up to it.
	got := DynamicMinScore(0.05, 5000)
	assert.InDelta(t, 0.05, got, 1e-9)
}
