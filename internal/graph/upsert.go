// Package graph is the upsert layer between extraction results and the
// property-graph store. All writes are idempotent merges keyed by
// deterministic IDs, so re-running a sync pass converges instead of
// duplicating.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/esinecan/skynet-agent-sub000/internal/storage"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// Service wraps a storage.GraphStore with extraction-aware upsert logic.
type Service struct {
	store storage.GraphStore
}

// NewService creates an upsert service on the given graph store.
func NewService(store storage.GraphStore) *Service {
	return &Service{store: store}
}

// UpsertNode merges one entity into the graph: create if absent, update
// properties and updated_at if present. Never duplicates by ID. Partial
// entities only ever create; when the node already exists the upsert is a
// no-op so the stub cannot replace a full projection's properties.
func (s *Service) UpsertNode(ctx context.Context, entity types.Entity) error {
	if !entity.Valid() {
		return fmt.Errorf("%w: entity must carry id, label and properties", storage.ErrInvalidInput)
	}
	if entity.Partial {
		exists, err := s.store.NodeExists(ctx, entity.ID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}
	return s.store.MergeNode(ctx, &types.GraphNode{
		ID:         entity.ID,
		Label:      entity.Label,
		Properties: entity.Properties,
	})
}

// UpsertRelationship merges one relationship keyed by (source, type,
// target). A missing endpoint is reported as storage.ErrMissingEndpoint so
// callers can treat it as a logged no-op rather than a crash.
func (s *Service) UpsertRelationship(ctx context.Context, rel types.Relationship) error {
	if !rel.Valid() {
		return fmt.Errorf("%w: relationship must carry type and endpoints", storage.ErrInvalidInput)
	}
	return s.store.MergeRelationship(ctx, &types.GraphRelationship{
		ID:         rel.EffectiveID(),
		SourceID:   rel.SourceID,
		TargetID:   rel.TargetID,
		Type:       rel.Type,
		Properties: rel.Properties,
	})
}

// UpsertExtraction writes a full extraction result: entities first so
// relationship endpoints exist, then relationships. Individual failures are
// logged and counted; the batch never aborts on one bad item.
func (s *Service) UpsertExtraction(ctx context.Context, result *types.ExtractionResult) (nodes, rels int, err error) {
	if result == nil {
		return 0, 0, nil
	}

	failed := 0
	for _, ent := range result.Entities {
		if upErr := s.UpsertNode(ctx, ent); upErr != nil {
			failed++
			log.Printf("graph: node upsert failed for %s: %v", ent.ID, upErr)
			continue
		}
		nodes++
	}

	for _, rel := range result.Relationships {
		if upErr := s.UpsertRelationship(ctx, rel); upErr != nil {
			failed++
			if errors.Is(upErr, storage.ErrMissingEndpoint) {
				log.Printf("graph: skipped relationship %s: %v", rel.EffectiveID(), upErr)
			} else {
				log.Printf("graph: relationship upsert failed for %s: %v", rel.EffectiveID(), upErr)
			}
			continue
		}
		rels++
	}

	if failed > 0 && nodes == 0 && rels == 0 {
		return 0, 0, fmt.Errorf("graph: all %d upserts in batch failed", failed)
	}
	return nodes, rels, nil
}

// GetNode fetches a node by ID.
func (s *Service) GetNode(ctx context.Context, id string) (*types.GraphNode, error) {
	return s.store.GetNode(ctx, id)
}

// CountNodes reports how many nodes carry the given label. An empty label
// counts everything.
func (s *Service) CountNodes(ctx context.Context, label string) (int, error) {
	return s.store.CountNodes(ctx, label)
}

// DeleteNode detach-deletes a node and its incident relationships.
func (s *Service) DeleteNode(ctx context.Context, id string) error {
	return s.store.DeleteNode(ctx, id)
}

// DeleteNodesByLabel detach-deletes every node with the given label and
// returns how many were removed.
func (s *Service) DeleteNodesByLabel(ctx context.Context, label string) (int, error) {
	return s.store.DeleteNodesByLabel(ctx, label)
}
