package port

import (
	"context"
	"time"
)

// GridRow is one row of a section grid as sent to the fallback. Row is the
// 1-based row number; cell i sits in column i+1.
type GridRow struct {
	Row   int      `json:"row"`
	Cells []string `json:"cells"`
}

// MappingRequest is the narrow input of the semantic fallback for one section.
type MappingRequest struct {
	SectionID      string            `json:"section_identifier"`
	HeaderRows     []GridRow         `json:"header_rows"`
	SampleRows     []GridRow         `json:"sample_data_rows"`
	LanguageHints  []string          `json:"language_hints"`
	PartialMapping map[string]string `json:"current_partial_mapping"`
}

// ProposedCell maps one canonical path to an A1 cell or range.
type ProposedCell struct {
	Path      string `json:"canonical_path"`
	CellRange string `json:"cell_range"`
	Unit      string `json:"unit,omitempty"`
}

// MappingProposal is what a provider returns for a MappingRequest.
type MappingProposal struct {
	Mapping    []ProposedCell `json:"proposed_mapping"`
	Confidence float64        `json:"confidence"`
	Notes      string         `json:"notes"`
	Model      string         `json:"model,omitempty"`
}

// SemanticMapper proposes a mapping for a section the deterministic parser
// could not resolve with confidence. A nil proposal with a nil error means
// "no proposal".
type SemanticMapper interface {
	ProposeMapping(ctx context.Context, req MappingRequest) (*MappingProposal, error)
}

// ProposalCache stores provider proposals by request fingerprint.
type ProposalCache interface {
	Get(ctx context.Context, key string) (*MappingProposal, bool, error)
	Set(ctx context.Context, key string, p *MappingProposal, ttl time.Duration) error
}
