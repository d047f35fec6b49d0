package extract

import (
	"context"
	"fmt"

	"github.com/esinecan/skynet-agent-sub000/internal/llm"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// ModelExtractor adapts an llm.ExtractionModel to the Extractor interface.
// It is the only extractor permitted to fail non-deterministically; the
// pipeline treats its errors as a skipped contribution, never a batch
// failure.
type ModelExtractor struct {
	model llm.ExtractionModel
}

// NewModelExtractor wraps model; model may be nil, in which case Extract
// returns empty results.
func NewModelExtractor(model llm.ExtractionModel) *ModelExtractor {
	return &ModelExtractor{model: model}
}

// Name implements Extractor.
func (m *ModelExtractor) Name() string { return "model" }

// Extract implements Extractor. Model output is normalized before it joins
// the shared dedup path: entities without IDs get deterministic slug IDs
// derived from their label and name, and relationship endpoints referencing
// the model's provisional IDs or entity names are remapped.
func (m *ModelExtractor) Extract(ctx context.Context, unit *Unit) (*types.ExtractionResult, error) {
	if m.model == nil {
		return &types.ExtractionResult{}, nil
	}

	contextHint := ""
	if unit.Note != nil {
		contextHint = unit.Note.Metadata.Context
	}

	raw, err := m.model.Extract(ctx, unit.Content(), contextHint)
	if err != nil {
		return nil, fmt.Errorf("model extraction: %w", err)
	}

	return m.normalize(raw), nil
}

func (m *ModelExtractor) normalize(raw *types.ExtractionResult) *types.ExtractionResult {
	result := &types.ExtractionResult{}

	// idMap resolves the model's provisional IDs and entity names to the
	// deterministic IDs assigned here.
	idMap := make(map[string]string)

	for _, ent := range raw.Entities {
		name, _ := ent.Properties["name"].(string)
		// Model IDs are provisional; a named entity always gets the
		// deterministic slug ID so repeated extractions converge.
		id := ent.ID
		if name != "" {
			id = Slugify(ent.Label) + ":" + Slugify(name)
		} else if id == "" {
			continue // nothing to key on
		}
		if ent.ID != "" {
			idMap[ent.ID] = id
		}
		if name != "" {
			idMap[name] = id
		}
		result.Entities = append(result.Entities, types.Entity{
			ID:         id,
			Label:      ent.Label,
			Properties: ent.Properties,
		})
	}

	for _, rel := range raw.Relationships {
		source := rel.SourceID
		if mapped, ok := idMap[source]; ok {
			source = mapped
		}
		target := rel.TargetID
		if mapped, ok := idMap[target]; ok {
			target = mapped
		}
		result.Relationships = append(result.Relationships, types.Relationship{
			SourceID:   source,
			TargetID:   target,
			Type:       rel.Type,
			Properties: rel.Properties,
		})
	}

	return result
}
