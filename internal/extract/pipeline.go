// Package extract turns text units (free text, tool-invocation events,
// tagged notes) into candidate graph entities and relationships. Rule-based
// extractors are pure; the model-based extractor is an external collaborator
// whose absence or failure never breaks the pipeline.
package extract

import (
	"context"
	"log"

	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// Pipeline runs all extractors over a unit in a stable order and merges
// their output with first-writer-wins deduplication.
type Pipeline struct {
	extractors []Extractor
}

// NewPipeline creates a pipeline with the standard rule extractors followed
// by the model extractor. Rule extractors run first so their deterministic
// entities win the first-writer-wins merge over model output sharing an ID.
func NewPipeline(model *ModelExtractor) *Pipeline {
	extractors := []Extractor{
		PathExtractor{},
		ToolExtractor{},
		NoteExtractor{},
	}
	if model != nil {
		extractors = append(extractors, model)
	}
	return &Pipeline{extractors: extractors}
}

// Extract runs every extractor and returns the merged, validated result.
// A failing extractor contributes nothing; its error is logged, not
// propagated.
func (p *Pipeline) Extract(ctx context.Context, unit *Unit) *types.ExtractionResult {
	results := make([]*types.ExtractionResult, 0, len(p.extractors))
	for _, ext := range p.extractors {
		result, err := ext.Extract(ctx, unit)
		if err != nil {
			log.Printf("extract: %s extractor failed, continuing without it: %v", ext.Name(), err)
			continue
		}
		results = append(results, result)
	}
	return Merge(results...)
}

// Merge combines extraction results in argument order with first-writer-wins
// semantics: the first entity seen for an ID is kept without property
// merging, as is the first relationship for a (source, type, target) key.
// The one exception is a partial stub, which any full entity for the same
// ID replaces. The merged result is then validated.
func Merge(results ...*types.ExtractionResult) *types.ExtractionResult {
	merged := &types.ExtractionResult{}
	entityIdx := make(map[string]int)
	seenRels := make(map[string]bool)

	for _, result := range results {
		if result == nil {
			continue
		}
		for _, ent := range result.Entities {
			if i, ok := entityIdx[ent.ID]; ok {
				// A full entity supersedes a previously kept stub for
				// the same ID.
				if merged.Entities[i].Partial && !ent.Partial {
					merged.Entities[i] = ent
				}
				continue
			}
			entityIdx[ent.ID] = len(merged.Entities)
			merged.Entities = append(merged.Entities, ent)
		}
		for _, rel := range result.Relationships {
			key := rel.Key()
			if seenRels[key] {
				continue
			}
			seenRels[key] = true
			merged.Relationships = append(merged.Relationships, rel)
		}
	}

	return validate(merged)
}

// validate drops malformed entities and relationships: entities missing an
// ID, label or properties map; relationships missing a type or whose
// endpoints do not resolve to a surviving entity. Drops are counted and
// logged, never fatal.
func validate(result *types.ExtractionResult) *types.ExtractionResult {
	valid := &types.ExtractionResult{}
	droppedEntities := 0
	droppedRels := 0

	surviving := make(map[string]bool, len(result.Entities))
	for _, ent := range result.Entities {
		if !ent.Valid() {
			droppedEntities++
			continue
		}
		surviving[ent.ID] = true
		valid.Entities = append(valid.Entities, ent)
	}

	for _, rel := range result.Relationships {
		if !rel.Valid() || !surviving[rel.SourceID] || !surviving[rel.TargetID] {
			droppedRels++
			continue
		}
		valid.Relationships = append(valid.Relationships, rel)
	}

	if droppedEntities > 0 || droppedRels > 0 {
		log.Printf("extract: dropped %d malformed entities and %d unresolvable relationships",
			droppedEntities, droppedRels)
	}
	return valid
}
