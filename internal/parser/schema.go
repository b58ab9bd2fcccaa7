package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"energodoc/internal/port"
)

var proposalSchemaDoc = map[string]any{
	"$schema":  "http://json-schema.org/draft-07/schema#",
	"type":     "object",
	"required": []string{"proposed_mapping", "confidence"},
	"properties": map[string]any{
		"proposed_mapping": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"canonical_path", "cell_range"},
				"properties": map[string]any{
					"canonical_path": map[string]any{"type": "string", "minLength": 1},
					"cell_range":     map[string]any{"type": "string", "pattern": `^\$?[A-Za-z]{1,3}\$?[0-9]{1,7}(:\$?[A-Za-z]{1,3}\$?[0-9]{1,7})?$`},
					"unit":           map[string]any{"type": "string"},
				},
			},
		},
		"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"notes":      map[string]any{"type": "string"},
	},
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func proposalSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := json.Marshal(proposalSchemaDoc)
		if err != nil {
			schemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("proposal.json", bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("proposal.json")
	})
	return schema, schemaErr
}

// DecodeProposal extracts the JSON object from raw model output, validates
// it against the proposal schema and decodes it. Every failure wraps
// ErrMalformedResponse.
func DecodeProposal(text, model string) (*port.MappingProposal, error) {
	raw := extractJSONObject(text)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in output (raw: %s)", ErrMalformedResponse, truncate(text, 300))
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	s, err := proposalSchema()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var p port.MappingProposal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	p.Model = model
	return &p, nil
}

// extractJSONObject strips markdown fences and surrounding prose, returning
// the outermost {...} span.
func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
