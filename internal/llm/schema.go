package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/last-minute-learner/reviewer-api/internal/reviewer"
)

const (
	schemaName        = "reviewer_document"
	schemaDescription = "A structured study reviewer generated from the supplied content"
)

// ReviewerSchema returns the JSON Schema of a ReviewerDocument
func ReviewerSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":            map[string]any{"type": "string"},
			"description":      map[string]any{"type": "string"},
			"field":            map[string]any{"type": "string"},
			"detailedReviewer": map[string]any{"type": "string"},
			"terminologies": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"term":       map[string]any{"type": "string"},
						"definition": map[string]any{"type": "string"},
					},
					"required":             []string{"term", "definition"},
					"additionalProperties": false,
				},
				"minItems": reviewer.MinTerminologies,
				"maxItems": reviewer.MaxTerminologies,
			},
			"essentialFacts": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"minItems": reviewer.MinEssentialFacts,
				"maxItems": reviewer.MaxEssentialFacts,
			},
		},
		"required": []string{
			"title", "description", "field", "detailedReviewer", "terminologies", "essentialFacts",
		},
		"additionalProperties": false,
	}
}

// decodeDocument parses model output into a document and checks its bounds.
// Text around the outermost JSON object is ignored.
func decodeDocument(raw string) (*reviewer.ReviewerDocument, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	var doc reviewer.ReviewerDocument
	if err := json.Unmarshal([]byte(raw[start:end+1]), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse model output: %w", err)
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}
