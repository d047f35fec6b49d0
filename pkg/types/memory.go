package types

import "time"

// MemoryMetadata is the typed metadata bag attached to every stored memory.
// Known fields are explicit; anything else rides in Extra. List-valued fields
// are serialized as comma-joined strings when they cross the persistence
// boundary (see the storage layer), but stay slices in memory.
type MemoryMetadata struct {
	// Always present
	SessionID   string      `json:"sessionId"`
	MessageType MessageType `json:"messageType"`
	TextLength  int         `json:"textLength"`
	Timestamp   time.Time   `json:"timestamp"`

	// MemoryType distinguishes conscious memories ("conscious") from raw
	// conversational turns (empty).
	MemoryType string `json:"memoryType,omitempty"`

	// Conscious-memory fields (only meaningful when MemoryType == "conscious")
	Tags             []string     `json:"tags,omitempty"`       // preserved verbatim for display
	Importance       int          `json:"importance,omitempty"` // 1..10
	Source           MemorySource `json:"source,omitempty"`     // immutable after creation
	Context          string       `json:"context,omitempty"`
	RelatedMemoryIDs []string     `json:"relatedMemoryIds,omitempty"`

	// Extra carries unrecognized metadata keys across the persistence boundary.
	Extra map[string]string `json:"extra,omitempty"`
}

// IsConscious reports whether this metadata marks a conscious memory.
func (m *MemoryMetadata) IsConscious() bool {
	return m.MemoryType == MemoryTypeConscious
}

// Memory represents a single stored memory unit: raw text, its embedding
// vector, and metadata. Immutable once stored except for an in-place
// overwrite keyed by ID (used for updates).
type Memory struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  MemoryMetadata `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// ChatMessage is a single conversational turn handed to the sync pass by the
// chat history source. Transcript storage itself is out of scope; this is the
// shape the extraction pipeline consumes.
type ChatMessage struct {
	ID              string           `json:"id"`
	SessionID       string           `json:"session_id"`
	Role            MessageType      `json:"role"`
	Content         string           `json:"content"`
	ToolInvocations []ToolInvocation `json:"tool_invocations,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}

// ToolInvocation is a structured record of one tool call inside a chat turn.
type ToolInvocation struct {
	ToolName string            `json:"tool_name"`
	Args     map[string]string `json:"args,omitempty"`
	Result   string            `json:"result,omitempty"`
}
