package types

// Entity is a candidate graph node produced by the extraction pipeline.
// IDs are deterministic given (label, identifying value) so repeated
// extraction of the same real-world thing converges on one node: a content
// hash for file paths, a normalized lowercase-hyphenated name for tags, a
// slug for tool names, or a fresh random ID when no natural key exists
// (e.g. a tool-invocation event).
type Entity struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`

	// Partial marks a stub emitted only so a relationship endpoint exists.
	// The upsert layer skips partial entities when the node is already in
	// the graph, so a stub never overwrites a fully projected node.
	Partial bool `json:"partial,omitempty"`
}

// Valid reports whether the entity carries the minimum shape required for a
// graph upsert. Invalid entities are dropped by the pipeline, not fatal.
func (e *Entity) Valid() bool {
	return e.ID != "" && e.Label != "" && e.Properties != nil
}

// ExtractionResult is the common output shape of every extractor, rule-based
// or model-based.
type ExtractionResult struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}
