package types

import "fmt"

// Relationship is a candidate graph edge produced by the extraction pipeline.
type Relationship struct {
	// ID defaults to "source_type_target" when absent, making relationship
	// upserts idempotent by construction.
	ID         string         `json:"id,omitempty"`
	SourceID   string         `json:"sourceEntityId"`
	TargetID   string         `json:"targetEntityId"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Key returns the (source, type, target) identity used for deduplication and
// merge-on-write in the graph store.
func (r *Relationship) Key() string {
	return fmt.Sprintf("%s_%s_%s", r.SourceID, r.Type, r.TargetID)
}

// EffectiveID returns the explicit ID when set, otherwise the deterministic
// source_type_target default.
func (r *Relationship) EffectiveID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Key()
}

// Valid reports whether the relationship has a type and both endpoints.
// Endpoint resolution against surviving entities is the pipeline's job.
func (r *Relationship) Valid() bool {
	return r.Type != "" && r.SourceID != "" && r.TargetID != ""
}
