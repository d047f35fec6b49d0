package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// extractionPrompt builds the shared entity/relationship extraction prompt.
// Both providers ask for the same JSON shape so the response parser is common.
func extractionPrompt(text, context_ string) string {
	var b strings.Builder
	b.WriteString(`Extract named entities and relationships from the text below.

Respond with a single JSON object:
{
  "entities": [{"id": "", "label": "Concept|Person|Tool|File", "properties": {"name": "..."}}],
  "relationships": [{"sourceEntityId": "", "targetEntityId": "", "type": "MENTIONS|RELATED_TO"}]
}

Rules:
- Leave "id" empty; IDs are assigned downstream.
- Every relationship endpoint must reference an entity in the same response.
- Return {"entities": [], "relationships": []} when nothing is found.
`)
	if context_ != "" {
		b.WriteString("\nContext:\n")
		b.WriteString(context_)
		b.WriteString("\n")
	}
	b.WriteString("\nText:\n")
	b.WriteString(text)
	return b.String()
}

// parseExtractionResponse decodes the model's JSON answer. Models sometimes
// wrap the object in markdown fences or prose; we slice out the outermost
// object before decoding.
func parseExtractionResponse(response string) (*types.ExtractionResult, error) {
	raw := response
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}

	var result types.ExtractionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("llm: malformed extraction response: %w", err)
	}

	// Models occasionally omit the properties map; normalize so downstream
	// validation doesn't drop otherwise usable entities.
	for i := range result.Entities {
		if result.Entities[i].Properties == nil {
			result.Entities[i].Properties = map[string]any{}
		}
	}
	return &result, nil
}
