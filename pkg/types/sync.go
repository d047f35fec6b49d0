package types

import "time"

// SyncType classifies what a queued sync pass should cover.
type SyncType string

// Sync type constants
const (
	// SyncTypeFull reprocesses all chat history and saved memories
	SyncTypeFull SyncType = "full"

	// SyncTypeChat is an incremental pass over chat history since the last checkpoint
	SyncTypeChat SyncType = "chat"

	// SyncTypeMemory is an incremental pass over saved memories since the last checkpoint
	SyncTypeMemory SyncType = "memory"
)

// IsValidSyncType checks if the given sync type is valid
func IsValidSyncType(syncType SyncType) bool {
	switch syncType {
	case SyncTypeFull, SyncTypeChat, SyncTypeMemory:
		return true
	}
	return false
}

// SyncItem is one queued synchronization request. Items are persisted as an
// ordered list in a durable JSON document and survive process restarts.
type SyncItem struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      SyncType  `json:"type"`
	Priority  int       `json:"priority"`
}

// LastProcessedIDs records, per source, the unit IDs the most recent sync
// pass already projected into the graph.
type LastProcessedIDs struct {
	ChatMessages      []string `json:"chatMessages"`
	ConsciousMemories []string `json:"consciousMemories"`
	RagMemories       []string `json:"ragMemories"`
}

// SyncState is the checkpoint document that lets incremental passes skip
// already-processed units. Best effort: the checkpoint is written after a
// pass completes, so a crash mid-pass reprocesses (idempotent) upserts.
type SyncState struct {
	// LastSyncTimestamp is RFC3339; empty on a fresh checkpoint.
	LastSyncTimestamp string           `json:"lastSyncTimestamp"`
	LastProcessedIDs  LastProcessedIDs `json:"lastProcessedIds"`
}

// RetryOp identifies which primary-store operation a retry item mirrors.
type RetryOp string

// Retry operation constants
const (
	RetryOpSave   RetryOp = "save"
	RetryOpUpdate RetryOp = "update"
	RetryOpDelete RetryOp = "delete"
)

// RetryItem is one pending graph projection awaiting retry. Transient and
// in-memory only; not durable across restarts.
type RetryItem struct {
	ID      string  `json:"id"`
	Op      RetryOp `json:"operation"`
	Payload Memory  `json:"payload"`

	// Message is set for chat-turn projections so tool invocations survive
	// the retry round trip.
	Message *ChatMessage `json:"message,omitempty"`

	RetryCount int       `json:"retryCount"`
	LastError  string    `json:"lastError,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
