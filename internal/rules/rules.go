// Package rules holds the versioned alias tables, unit conversions, scoring
// constants and readiness requirements used by every extraction stage.
// A Ruleset is immutable after Load and is passed explicitly to components.
package rules

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

//go:embed default_rules.yaml
var defaultRules []byte

// ScanRules bounds the header and table searches.
type ScanRules struct {
	HeaderRows       int     `yaml:"header_rows"`
	MinHeaderCells   int     `yaml:"min_header_cells"`
	HeaderTextRatio  float64 `yaml:"header_text_ratio"`
	DataNumericRatio float64 `yaml:"data_numeric_ratio"`
	LookaheadRows    int     `yaml:"lookahead_rows"`
	TitleRows        int     `yaml:"title_rows"`
	MinTableLines    int     `yaml:"min_table_lines"`
}

// Thresholds gate the semantic fallback.
type Thresholds struct {
	Fallback              float64 `yaml:"fallback"`
	MinProposalConfidence float64 `yaml:"min_proposal_confidence"`
}

// FallbackRequestRules bounds the sample sent to the semantic fallback.
type FallbackRequestRules struct {
	HeaderRows int `yaml:"header_rows"`
	SampleRows int `yaml:"sample_rows"`
}

// Scoring holds the fixed confidence increments and penalties for deterministic extraction.
type Scoring struct {
	Base                  float64 `yaml:"base"`
	ResourceExact         float64 `yaml:"resource_exact"`
	HeaderDetected        float64 `yaml:"header_detected"`
	PeriodMapped          float64 `yaml:"period_mapped"`
	UnitExplicit          float64 `yaml:"unit_explicit"`
	PenaltyFuzzyResource  float64 `yaml:"penalty_fuzzy_resource"`
	PenaltyHeaderFallback float64 `yaml:"penalty_header_fallback"`
	PenaltyRowTiebreak    float64 `yaml:"penalty_row_tiebreak"`
	PenaltyUnitUnresolved float64 `yaml:"penalty_unit_unresolved"`
	PenaltyOCROrigin      float64 `yaml:"penalty_ocr_origin"`
}

// ResourceRule describes one resource family.
type ResourceRule struct {
	Name    string   `yaml:"name"`
	Unit    string   `yaml:"unit"`
	Aliases []string `yaml:"aliases"`
	Stems   []string `yaml:"stems"`
}

// PeriodSynonyms maps one month or quarter number to its spellings.
type PeriodSynonyms struct {
	Number   int      `yaml:"number"`
	Synonyms []string `yaml:"synonyms"`
}

// PeriodRules is the calendar synonym table.
type PeriodRules struct {
	Months        []PeriodSynonyms `yaml:"months"`
	Quarters      []PeriodSynonyms `yaml:"quarters"`
	Annual        []string         `yaml:"annual"`
	AnnualLeading []string         `yaml:"annual_leading"`
	YearSuffixes  []string         `yaml:"year_suffixes"`
}

// Conversion is a multiplicative factor from one unit code to another.
type Conversion struct {
	From   string  `yaml:"from"`
	To     string  `yaml:"to"`
	Factor float64 `yaml:"factor"`
}

// UnitRules maps unit spellings to codes and codes to each other.
type UnitRules struct {
	Aliases     map[string][]string `yaml:"aliases"`
	Conversions []Conversion        `yaml:"conversions"`
}

// FieldRule is one expected column of an entity section.
type FieldRule struct {
	Name    string   `yaml:"name"`
	Numeric bool     `yaml:"numeric"`
	Unit    string   `yaml:"unit"`
	Aliases []string `yaml:"aliases"`
}

// EntityRule describes equipment, metering-node or envelope sections.
type EntityRule struct {
	Kind    string      `yaml:"kind"`
	Aliases []string    `yaml:"aliases"`
	Stems   []string    `yaml:"stems"`
	Fields  []FieldRule `yaml:"fields"`
}

// SectionRequirement is one row of the readiness table.
type SectionRequirement struct {
	Name          string   `yaml:"name"`
	MinConfidence float64  `yaml:"min_confidence"`
	Required      []string `yaml:"required"`
}

// Ruleset is the complete versioned configuration.
type Ruleset struct {
	Version             string               `yaml:"version"`
	LanguageHints       []string             `yaml:"language_hints"`
	Scan                ScanRules            `yaml:"scan"`
	Thresholds          Thresholds           `yaml:"thresholds"`
	FallbackRequest     FallbackRequestRules `yaml:"fallback_request"`
	Scoring             Scoring              `yaml:"scoring"`
	Resources           []ResourceRule       `yaml:"resources"`
	ConsumptionKeywords []string             `yaml:"consumption_keywords"`
	ExcludeKeywords     []string             `yaml:"exclude_keywords"`
	Periods             PeriodRules          `yaml:"periods"`
	Units               UnitRules            `yaml:"units"`
	Entities            []EntityRule         `yaml:"entities"`
	Sections            []SectionRequirement `yaml:"sections"`

	fingerprint string
	idx         *index
}

// Default returns the embedded ruleset.
func Default() (*Ruleset, error) {
	return Load(defaultRules)
}

// LoadFile reads a ruleset from a YAML file.
func LoadFile(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ruleset %s: %w", path, err)
	}
	return Load(data)
}

// Load decodes and compiles a ruleset.
func Load(data []byte) (*Ruleset, error) {
	rs := &Ruleset{}
	if err := yaml.Unmarshal(data, rs); err != nil {
		return nil, fmt.Errorf("decoding ruleset: %w", err)
	}
	if err := rs.validate(); err != nil {
		return nil, err
	}

	canonical, err := json.Marshal(rs)
	if err != nil {
		return nil, fmt.Errorf("encoding ruleset: %w", err)
	}
	sum := sha256.Sum256(canonical)
	rs.fingerprint = hex.EncodeToString(sum[:])

	idx, err := compile(rs)
	if err != nil {
		return nil, err
	}
	rs.idx = idx
	return rs, nil
}

// Fingerprint identifies the ruleset content. Any change to aliases,
// thresholds or scoring yields a different value.
func (r *Ruleset) Fingerprint() string {
	return r.fingerprint
}

// Resource returns the rule for a resource family by name.
func (r *Ruleset) Resource(name string) (ResourceRule, bool) {
	for _, res := range r.Resources {
		if res.Name == name {
			return res, true
		}
	}
	return ResourceRule{}, false
}

// Entity returns the rule for an entity section kind.
func (r *Ruleset) Entity(kind string) (EntityRule, bool) {
	for _, e := range r.Entities {
		if e.Kind == kind {
			return e, true
		}
	}
	return EntityRule{}, false
}

func (r *Ruleset) validate() error {
	if r.Version == "" {
		return fmt.Errorf("ruleset: version is required")
	}
	if len(r.Resources) == 0 {
		return fmt.Errorf("ruleset %s: no resources defined", r.Version)
	}
	if r.Scan.HeaderRows <= 0 {
		return fmt.Errorf("ruleset %s: scan.header_rows must be positive", r.Version)
	}
	if r.Thresholds.Fallback < 0 || r.Thresholds.Fallback > 1 {
		return fmt.Errorf("ruleset %s: thresholds.fallback must be within [0,1]", r.Version)
	}
	for _, s := range r.Sections {
		if s.MinConfidence < 0 || s.MinConfidence > 1 {
			return fmt.Errorf("ruleset %s: section %s min_confidence must be within [0,1]", r.Version, s.Name)
		}
	}
	for _, c := range r.Units.Conversions {
		if c.Factor <= 0 {
			return fmt.Errorf("ruleset %s: conversion %s->%s needs a positive factor", r.Version, c.From, c.To)
		}
	}
	return nil
}
