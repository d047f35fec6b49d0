package types

import "time"

// GraphNode is the persisted counterpart of an extracted entity in the
// property-graph store. Created-or-updated (merged) keyed by ID.
type GraphNode struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// GraphRelationship is the persisted counterpart of an extracted
// relationship. Created-or-updated keyed by (SourceID, Type, TargetID).
type GraphRelationship struct {
	ID         string         `json:"id"`
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
