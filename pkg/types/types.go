// Package types defines the core data structures for the memory subsystem:
// memories and their metadata, retrieval results, extracted entities and
// relationships, graph node/edge records, and the sync/retry queue items.
package types

// MessageType classifies the conversational origin of a memory.
type MessageType string

// Message type constants
const (
	// MessageTypeUser marks content authored by the user
	MessageTypeUser MessageType = "user"

	// MessageTypeAssistant marks content authored by the assistant
	MessageTypeAssistant MessageType = "assistant"
)

// MemorySource describes how a conscious memory came into existence.
type MemorySource string

// Memory source constants
const (
	// MemorySourceExplicit indicates the user explicitly saved the memory
	MemorySourceExplicit MemorySource = "explicit"

	// MemorySourceSuggested indicates the assistant proposed the memory and the user accepted
	MemorySourceSuggested MemorySource = "suggested"

	// MemorySourceDerived indicates the extraction pipeline derived the memory
	MemorySourceDerived MemorySource = "derived"
)

// SearchType records which retrieval path produced a result.
type SearchType string

// Search type constants
const (
	// SearchTypeSemantic marks results from embedding similarity search
	SearchTypeSemantic SearchType = "semantic"

	// SearchTypeKeyword marks results from the keyword fallback scan
	SearchTypeKeyword SearchType = "keyword"
)

// MemoryTypeConscious is the metadata marker distinguishing explicitly
// tagged, importance-scored notes from raw conversational turns.
const MemoryTypeConscious = "conscious"

// Node label constants for the property graph
const (
	NodeTool           = "Tool"
	NodeToolInvocation = "ToolInvocation"
	NodeTag            = "Tag"
	NodeSession        = "Session"
	NodeMemory         = "Memory"
	NodeFile           = "File"
)

// ValidNodeLabels is a slice of all node labels the extraction pipeline emits
var ValidNodeLabels = []string{
	NodeTool,
	NodeToolInvocation,
	NodeTag,
	NodeSession,
	NodeMemory,
	NodeFile,
}

// Relationship type constants for the property graph
const (
	RelOfType    = "OF_TYPE"    // ToolInvocation -> Tool
	RelRelatedTo = "RELATED_TO" // Memory -> Memory (explicit link)
	RelHasTag    = "HAS_TAG"    // Memory -> Tag
	RelInSession = "IN_SESSION" // Memory/ToolInvocation -> Session
	RelMentions  = "MENTIONS"   // Memory -> File/entity mentioned in text
)

// ValidRelationshipTypes is a slice of all relationship types for validation
var ValidRelationshipTypes = []string{
	RelOfType,
	RelRelatedTo,
	RelHasTag,
	RelInSession,
	RelMentions,
}

// IsValidMessageType checks if the given message type is valid
func IsValidMessageType(messageType MessageType) bool {
	return messageType == MessageTypeUser || messageType == MessageTypeAssistant
}

// IsValidMemorySource checks if the given memory source is valid
func IsValidMemorySource(source MemorySource) bool {
	switch source {
	case MemorySourceExplicit, MemorySourceSuggested, MemorySourceDerived:
		return true
	}
	return false
}

// IsValidNodeLabel checks if the given node label is valid
func IsValidNodeLabel(label string) bool {
	for _, validLabel := range ValidNodeLabels {
		if validLabel == label {
			return true
		}
	}
	return false
}

// IsValidRelationshipType checks if the given relationship type is valid
func IsValidRelationshipType(relType string) bool {
	for _, validType := range ValidRelationshipTypes {
		if validType == relType {
			return true
		}
	}
	return false
}

// Importance bounds for conscious memories
const (
	MinImportance = 1
	MaxImportance = 10
)

// IsValidImportance checks if the given importance score is in range
func IsValidImportance(importance int) bool {
	return importance >= MinImportance && importance <= MaxImportance
}
