package syncq

import (
	"context"
	"fmt"
	"log"

	"github.com/esinecan/skynet-agent-sub000/internal/extract"
	"github.com/esinecan/skynet-agent-sub000/internal/graph"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

const memoryScanLimit = 5000

// ChatHistorySource supplies conversational turns for projection into the
// graph. Implementations return messages oldest first.
type ChatHistorySource interface {
	Messages(ctx context.Context) ([]types.ChatMessage, error)
}

// MemorySource supplies stored memories for projection. The vector store
// satisfies this directly.
type MemorySource interface {
	Scan(ctx context.Context, limit int) ([]types.RetrievalResult, error)
}

// Service runs sync passes: it walks un-projected source units through the
// extraction pipeline and upserts the merged result into the graph,
// checkpointing processed IDs so incremental passes skip them.
type Service struct {
	pipeline *extract.Pipeline
	graph    *graph.Service
	state    *StateStore
	chats    ChatHistorySource
	memories MemorySource
}

// NewService wires a sync service. chats may be nil when no conversational
// source is attached; chat passes then only cover memories.
func NewService(pipeline *extract.Pipeline, g *graph.Service, state *StateStore, chats ChatHistorySource, memories MemorySource) *Service {
	return &Service{
		pipeline: pipeline,
		graph:    g,
		state:    state,
		chats:    chats,
		memories: memories,
	}
}

// Process executes one queued sync pass. It is the Processor handed to
// Queue.DrainAll.
func (s *Service) Process(ctx context.Context, item types.SyncItem) error {
	switch item.Type {
	case types.SyncTypeFull:
		if err := s.state.Reset(); err != nil {
			return err
		}
		if err := s.syncChats(ctx); err != nil {
			return err
		}
		return s.syncMemories(ctx)
	case types.SyncTypeChat:
		return s.syncChats(ctx)
	case types.SyncTypeMemory:
		return s.syncMemories(ctx)
	default:
		return fmt.Errorf("syncq: unknown sync type %q", item.Type)
	}
}

// syncChats projects chat messages not yet recorded in the checkpoint.
func (s *Service) syncChats(ctx context.Context) error {
	if s.chats == nil {
		return nil
	}

	state, err := s.state.Load()
	if err != nil {
		return err
	}
	seen := toSet(state.LastProcessedIDs.ChatMessages)

	messages, err := s.chats.Messages(ctx)
	if err != nil {
		return fmt.Errorf("syncq: failed to load chat history: %w", err)
	}

	projected := 0
	for i := range messages {
		msg := &messages[i]
		if seen[msg.ID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		result := s.pipeline.Extract(ctx, &extract.Unit{Message: msg})
		if _, _, err := s.graph.UpsertExtraction(ctx, result); err != nil {
			return fmt.Errorf("syncq: projection of message %s failed: %w", msg.ID, err)
		}
		state.LastProcessedIDs.ChatMessages = append(state.LastProcessedIDs.ChatMessages, msg.ID)
		projected++
	}

	if projected > 0 {
		log.Printf("syncq: projected %d chat messages", projected)
	}
	state.LastSyncTimestamp = ""
	return s.state.Save(state)
}

// syncMemories projects stored memories, conscious notes through the
// metadata walk and plain memories through free-text extraction.
func (s *Service) syncMemories(ctx context.Context) error {
	state, err := s.state.Load()
	if err != nil {
		return err
	}
	seenConscious := toSet(state.LastProcessedIDs.ConsciousMemories)
	seenRag := toSet(state.LastProcessedIDs.RagMemories)

	results, err := s.memories.Scan(ctx, memoryScanLimit)
	if err != nil {
		return fmt.Errorf("syncq: failed to scan memories: %w", err)
	}

	projected := 0
	for _, res := range results {
		conscious := res.Metadata.IsConscious()
		if (conscious && seenConscious[res.ID]) || (!conscious && seenRag[res.ID]) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		unit := &extract.Unit{Text: res.Text}
		if conscious {
			unit = &extract.Unit{Note: &types.Memory{
				ID:       res.ID,
				Text:     res.Text,
				Metadata: res.Metadata,
			}}
		}
		extraction := s.pipeline.Extract(ctx, unit)
		if _, _, err := s.graph.UpsertExtraction(ctx, extraction); err != nil {
			return fmt.Errorf("syncq: projection of memory %s failed: %w", res.ID, err)
		}

		if conscious {
			state.LastProcessedIDs.ConsciousMemories = append(state.LastProcessedIDs.ConsciousMemories, res.ID)
		} else {
			state.LastProcessedIDs.RagMemories = append(state.LastProcessedIDs.RagMemories, res.ID)
		}
		projected++
	}

	if projected > 0 {
		log.Printf("syncq: projected %d memories", projected)
	}
	state.LastSyncTimestamp = ""
	return s.state.Save(state)
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
