package extract

import (
	"context"
	"regexp"
	"time"

	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// Unit is one extraction input: free text, a structured chat turn with tool
// invocations, or a tagged note. Exactly one of Message/Note may be set;
// Text stands alone for plain free-text units.
type Unit struct {
	Text    string
	Message *types.ChatMessage
	Note    *types.Memory
}

// Content returns the textual body of the unit.
func (u *Unit) Content() string {
	switch {
	case u.Note != nil:
		return u.Note.Text
	case u.Message != nil:
		return u.Message.Content
	default:
		return u.Text
	}
}

// subjectEntityID returns the graph node ID representing the unit itself
// (the memory node for notes), or empty when the unit has no node of its own.
func (u *Unit) subjectEntityID() string {
	if u.Note != nil {
		return MemoryEntityID(u.Note.ID)
	}
	return ""
}

// Extractor turns a unit into candidate entities and relationships.
// Rule-based extractors are pure functions with no external calls.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, unit *Unit) (*types.ExtractionResult, error)
}

// filePathPattern matches slash-delimited path tokens with an extension or
// at least two segments (src/main.go, /etc/hosts, ./docs/notes.md).
var filePathPattern = regexp.MustCompile(`(?:\.{0,2}/)?(?:[\w.-]+/)+[\w.-]+|\b[\w-]+\.(?:go|ts|js|py|rs|md|json|yaml|yml|toml|sql|sh|txt)\b`)

// PathExtractor recognizes file-path tokens in free text and emits File
// entities. When the unit has a node of its own (a note), it also links the
// node to each file with a MENTIONS edge.
type PathExtractor struct{}

// Name implements Extractor.
func (PathExtractor) Name() string { return "paths" }

// Extract implements Extractor.
func (PathExtractor) Extract(_ context.Context, unit *Unit) (*types.ExtractionResult, error) {
	result := &types.ExtractionResult{}
	subject := unit.subjectEntityID()

	for _, match := range filePathPattern.FindAllString(unit.Content(), -1) {
		id := FileEntityID(match)
		result.Entities = append(result.Entities, types.Entity{
			ID:    id,
			Label: types.NodeFile,
			Properties: map[string]any{
				"path": match,
			},
		})
		if subject != "" {
			result.Relationships = append(result.Relationships, types.Relationship{
				SourceID: subject,
				TargetID: id,
				Type:     types.RelMentions,
			})
		}
	}
	return result, nil
}

// ToolExtractor walks the tool invocations of a chat turn, producing a Tool
// node per distinct tool, a unique ToolInvocation node per call, and an
// OF_TYPE edge between them. Invocations are also tied to their session.
type ToolExtractor struct{}

// Name implements Extractor.
func (ToolExtractor) Name() string { return "tools" }

// Extract implements Extractor.
func (ToolExtractor) Extract(_ context.Context, unit *Unit) (*types.ExtractionResult, error) {
	result := &types.ExtractionResult{}
	if unit.Message == nil || len(unit.Message.ToolInvocations) == 0 {
		return result, nil
	}

	msg := unit.Message
	sessionNode := ""
	if msg.SessionID != "" {
		sessionNode = SessionEntityID(msg.SessionID)
		result.Entities = append(result.Entities, types.Entity{
			ID:    sessionNode,
			Label: types.NodeSession,
			Properties: map[string]any{
				"sessionId": msg.SessionID,
			},
		})
	}

	for _, inv := range msg.ToolInvocations {
		if inv.ToolName == "" {
			continue
		}
		toolID := ToolEntityID(inv.ToolName)
		result.Entities = append(result.Entities, types.Entity{
			ID:    toolID,
			Label: types.NodeTool,
			Properties: map[string]any{
				"name": inv.ToolName,
			},
		})

		invID := ToolInvocationID()
		props := map[string]any{
			"tool":      inv.ToolName,
			"messageId": msg.ID,
			"timestamp": msg.Timestamp.Format(time.RFC3339),
		}
		if len(inv.Args) > 0 {
			props["args"] = inv.Args
		}
		if inv.Result != "" {
			props["result"] = inv.Result
		}
		result.Entities = append(result.Entities, types.Entity{
			ID:         invID,
			Label:      types.NodeToolInvocation,
			Properties: props,
		})

		result.Relationships = append(result.Relationships, types.Relationship{
			SourceID: invID,
			TargetID: toolID,
			Type:     types.RelOfType,
		})
		if sessionNode != "" {
			result.Relationships = append(result.Relationships, types.Relationship{
				SourceID: invID,
				TargetID: sessionNode,
				Type:     types.RelInSession,
			})
		}
	}
	return result, nil
}

// NoteExtractor walks the metadata of a tagged note: the memory node itself,
// Tag and Session nodes, HAS_TAG/IN_SESSION edges, and RELATED_TO edges to
// explicitly linked memories.
type NoteExtractor struct{}

// Name implements Extractor.
func (NoteExtractor) Name() string { return "notes" }

// Extract implements Extractor.
func (NoteExtractor) Extract(_ context.Context, unit *Unit) (*types.ExtractionResult, error) {
	result := &types.ExtractionResult{}
	if unit.Note == nil {
		return result, nil
	}

	note := unit.Note
	md := note.Metadata
	memoryNode := MemoryEntityID(note.ID)

	props := map[string]any{
		"memoryId": note.ID,
		"text":     snippet(note.Text, 200),
	}
	if md.Importance != 0 {
		props["importance"] = md.Importance
	}
	if md.Source != "" {
		props["source"] = string(md.Source)
	}
	if !note.CreatedAt.IsZero() {
		props["createdAt"] = note.CreatedAt.Format(time.RFC3339)
	}
	result.Entities = append(result.Entities, types.Entity{
		ID:         memoryNode,
		Label:      types.NodeMemory,
		Properties: props,
	})

	for _, tag := range md.Tags {
		if NormalizeTag(tag) == "" {
			continue
		}
		tagID := TagEntityID(tag)
		result.Entities = append(result.Entities, types.Entity{
			ID:    tagID,
			Label: types.NodeTag,
			Properties: map[string]any{
				// ID is normalized; the display form stays verbatim.
				"name": tag,
			},
		})
		result.Relationships = append(result.Relationships, types.Relationship{
			SourceID: memoryNode,
			TargetID: tagID,
			Type:     types.RelHasTag,
		})
	}

	if md.SessionID != "" {
		sessionID := SessionEntityID(md.SessionID)
		result.Entities = append(result.Entities, types.Entity{
			ID:    sessionID,
			Label: types.NodeSession,
			Properties: map[string]any{
				"sessionId": md.SessionID,
			},
		})
		result.Relationships = append(result.Relationships, types.Relationship{
			SourceID: memoryNode,
			TargetID: sessionID,
			Type:     types.RelInSession,
		})
	}

	for _, relatedID := range md.RelatedMemoryIDs {
		if relatedID == "" || relatedID == note.ID {
			continue
		}
		relatedNode := MemoryEntityID(relatedID)
		// Stub node so the edge survives validation even when the related
		// memory has not been projected yet. Marked partial: if the related
		// memory is already in the graph, its properties stay untouched.
		result.Entities = append(result.Entities, types.Entity{
			ID:    relatedNode,
			Label: types.NodeMemory,
			Properties: map[string]any{
				"memoryId": relatedID,
			},
			Partial: true,
		})
		result.Relationships = append(result.Relationships, types.Relationship{
			SourceID: memoryNode,
			TargetID: relatedNode,
			Type:     types.RelRelatedTo,
		})
	}

	return result, nil
}

func snippet(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max]
}
