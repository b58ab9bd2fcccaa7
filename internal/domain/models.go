package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RawSubmission is an uploaded file. Immutable once stored; the only durable input.
type RawSubmission struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	FileName       string           `db:"file_name" json:"file_name"`
	FileType       FileType         `db:"file_type" json:"file_type"`
	ContentType    string           `db:"content_type" json:"content_type"`
	SizeBytes      int64            `db:"size_bytes" json:"size_bytes"`
	ContentHash    string           `db:"content_hash" json:"content_hash"`
	S3Bucket       string           `db:"s3_bucket" json:"-"`
	S3Key          string           `db:"s3_key" json:"-"`
	Status         SubmissionStatus `db:"status" json:"status"`
	Attempts       int              `db:"attempts" json:"attempts"`
	LastError      *string          `db:"last_error" json:"last_error,omitempty"`
	CurrentVersion int              `db:"current_version" json:"current_version"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// PageEvidence is the text density observed on one sampled page or sheet.
type PageEvidence struct {
	Page        int     `json:"page"`
	Chars       int     `json:"chars"`
	TextDensity float64 `json:"text_density"`
	HasText     bool    `json:"has_text"`
	Images      int     `json:"images,omitempty"`
}

// DocumentClassification is computed once per run and selects the extraction strategy.
type DocumentClassification struct {
	Kind       DocumentKind    `json:"kind"`
	Confidence ConfidenceLabel `json:"confidence"`
	Pass       string          `json:"pass"`
	PageCount  int             `json:"page_count"`
	Evidence   []PageEvidence  `json:"evidence"`
}

// CellSpan is an inclusive 1-based range of rows or columns.
type CellSpan struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// SourceRef locates the cells a value was read from.
type SourceRef struct {
	Sheet string   `json:"sheet"`
	Rows  CellSpan `json:"rows"`
	Cols  CellSpan `json:"cols"`
}

// FieldExtraction is one candidate value for a canonical path.
type FieldExtraction struct {
	Seq        int              `json:"seq"`
	Path       string           `json:"canonical_path"`
	Value      *float64         `json:"value,omitempty"`
	Text       string           `json:"text,omitempty"`
	Unit       string           `json:"unit,omitempty"`
	Method     ExtractionMethod `json:"method"`
	Confidence float64          `json:"confidence"`
	Source     SourceRef        `json:"provenance"`
	Winner     bool             `json:"winner"`
	Note       string           `json:"note,omitempty"`
}

// CanonicalValue is the winning candidate for a path.
type CanonicalValue struct {
	Value      *float64         `json:"value,omitempty"`
	Text       string           `json:"text,omitempty"`
	Unit       string           `json:"unit,omitempty"`
	Method     ExtractionMethod `json:"method"`
	Confidence float64          `json:"confidence"`
	Seq        int              `json:"seq"`
}

// ResourceSeries is the time-indexed consumption of one resource.
type ResourceSeries struct {
	Unit     string                 `json:"unit"`
	Months   map[int]CanonicalValue `json:"months,omitempty"`
	Quarters map[int]CanonicalValue `json:"quarters,omitempty"`
	Annual   *CanonicalValue        `json:"annual,omitempty"`
}

// EquipmentItem is an energy-consuming installation.
type EquipmentItem struct {
	Index        int             `json:"index"`
	Name         *CanonicalValue `json:"name,omitempty"`
	Type         *CanonicalValue `json:"type,omitempty"`
	Model        *CanonicalValue `json:"model,omitempty"`
	RatedPowerKW *CanonicalValue `json:"rated_power_kw,omitempty"`
	Location     *CanonicalValue `json:"location,omitempty"`
}

// NodeItem is a metering point.
type NodeItem struct {
	Index     int             `json:"index"`
	NodeID    *CanonicalValue `json:"node_id,omitempty"`
	Resource  *CanonicalValue `json:"resource,omitempty"`
	Location  *CanonicalValue `json:"location,omitempty"`
	MeterType *CanonicalValue `json:"meter_type,omitempty"`
}

// EnvelopeItem is a building envelope element.
type EnvelopeItem struct {
	Index    int             `json:"index"`
	Element  *CanonicalValue `json:"element,omitempty"`
	Material *CanonicalValue `json:"material,omitempty"`
	AreaM2   *CanonicalValue `json:"area_m2,omitempty"`
	UValue   *CanonicalValue `json:"u_value,omitempty"`
}

// SectionSummary describes how one sheet or text block was handled.
type SectionSummary struct {
	Section           string      `json:"section"`
	Kind              SectionKind `json:"kind"`
	Resource          string      `json:"resource,omitempty"`
	Confidence        float64     `json:"confidence"`
	HeaderRow         int         `json:"header_row,omitempty"`
	Candidates        int         `json:"candidates"`
	UnmappedColumns   []string    `json:"unmapped_columns,omitempty"`
	FallbackRequested bool        `json:"fallback_requested"`
	FallbackProposed  bool        `json:"fallback_proposed"`
	Reason            string      `json:"reason,omitempty"`
}

// ExtractionIssue is a recorded, non-fatal extraction problem.
type ExtractionIssue struct {
	Kind    string `json:"kind"`
	Section string `json:"section"`
	Page    int    `json:"page,omitempty"`
	Message string `json:"message"`
}

// CanonicalSourceData is the complete output for one processing run. It is
// replaced as a whole on reprocessing and never patched.
type CanonicalSourceData struct {
	RulesetVersion string                     `json:"ruleset_version"`
	Classification DocumentClassification     `json:"classification"`
	Resources      map[string]*ResourceSeries `json:"resources"`
	Equipment      []EquipmentItem            `json:"equipment"`
	Nodes          []NodeItem                 `json:"nodes"`
	Envelope       []EnvelopeItem             `json:"envelope"`
	Values         map[string]CanonicalValue  `json:"values"`
	Provenance     []FieldExtraction          `json:"provenance"`
	Sections       []SectionSummary           `json:"sections"`
	Issues         []ExtractionIssue          `json:"issues"`
}

// CanonicalVersion is a persisted CanonicalSourceData with its version metadata.
type CanonicalVersion struct {
	SubmissionID   uuid.UUID       `db:"submission_id" json:"submission_id"`
	Version        int             `db:"version" json:"version"`
	RulesetVersion string          `db:"ruleset_version" json:"ruleset_version"`
	Data           json.RawMessage `db:"data" json:"data"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// ReadinessReport is derived on demand and never persisted as source of truth.
type ReadinessReport struct {
	SectionName         string                 `json:"section_name"`
	Status              ReadinessStatus        `json:"status"`
	MinConfidence       float64                `json:"min_confidence"`
	MissingFields       []string               `json:"missing_fields"`
	LowConfidenceFields []string               `json:"low_confidence_fields"`
	FieldStatuses       map[string]FieldStatus `json:"field_statuses"`
}
