// Package tabular is the deterministic structural parser. It locates energy
// resource tables and entity lists inside grids of cells and maps them onto
// canonical paths without any external calls.
package tabular

import (
	"go.uber.org/zap"

	"energodoc/internal/document"
	"energodoc/internal/domain"
	"energodoc/internal/rules"
)

// SectionResult is the parse outcome of one sheet. Candidates carry no Seq;
// sequence numbers are assigned by the caller once sheet order is fixed.
type SectionResult struct {
	Sheet           string
	Index           int
	Page            int
	Kind            domain.SectionKind
	Resource        string
	Resolved        bool
	Empty           bool
	Confidence      float64
	Candidates      []domain.FieldExtraction
	HeaderRow       int
	UnmappedColumns []string
	Reason          string
	EntityCount     int
}

// NeedsFallback reports whether the section should be offered to the
// semantic fallback: unresolved, nothing extracted, or below threshold.
// Empty sheets never are.
func (r *SectionResult) NeedsFallback(threshold float64) bool {
	if r.Empty {
		return false
	}
	if !r.Resolved || len(r.Candidates) == 0 {
		return true
	}
	return r.Confidence < threshold
}

func (r *SectionResult) finish() {
	r.Confidence = 0
	for i, c := range r.Candidates {
		if i == 0 || c.Confidence < r.Confidence {
			r.Confidence = c.Confidence
		}
	}
}

// Parser is safe for concurrent use; it only reads its ruleset.
type Parser struct {
	rules *rules.Ruleset
	log   *zap.Logger
}

// New creates a Parser bound to one ruleset.
func New(rs *rules.Ruleset, log *zap.Logger) *Parser {
	return &Parser{rules: rs, log: log}
}

// ParseSheet resolves what a sheet describes and extracts its values.
// Entity and resource names are looked up in the sheet name and title
// lines, exact aliases before stems. Sheets named by neither are tried as
// entity lists by their column headers, then as multi-resource tables by
// row or column labels. Whatever remains is returned unresolved.
func (p *Parser) ParseSheet(s *document.Sheet) SectionResult {
	res := SectionResult{Sheet: s.Name, Index: s.Index, Page: s.Page, Kind: domain.SectionUnresolved}
	if s.IsEmpty() {
		res.Empty = true
		res.Reason = "empty sheet"
		return res
	}

	names := append([]string{s.Name}, titleLines(s, p.rules.Scan)...)
	entity, entityOK := lookup(p.rules.MatchEntity, names)
	resource, resourceOK := lookup(p.rules.MatchResource, names)

	switch {
	case entityOK && entity.Clean():
		p.parseEntity(s, entityKind(entity.Name), true, &res)
	case resourceOK && resource.Clean():
		p.parseResource(s, &resource, &res)
	case entityOK && !entity.Ambiguous:
		p.parseEntity(s, entityKind(entity.Name), false, &res)
	case resourceOK && !resource.Ambiguous:
		p.parseResource(s, &resource, &res)
	default:
		if kind, ok := p.entityByFields(s); ok {
			p.parseEntity(s, kind, false, &res)
		} else if resourceOK {
			p.parseResource(s, &resource, &res)
		} else {
			p.parseResource(s, nil, &res)
		}
	}

	res.finish()
	p.log.Debug("tabular.Parser: sheet parsed",
		zap.String("sheet", s.Name),
		zap.String("kind", string(res.Kind)),
		zap.String("resource", res.Resource),
		zap.Int("candidates", len(res.Candidates)),
		zap.Float64("confidence", res.Confidence),
		zap.String("reason", res.Reason))
	return res
}

// lookup returns the first exact match among texts, else the first stem match.
func lookup(match func(string) (rules.Match, bool), texts []string) (rules.Match, bool) {
	var fuzzy *rules.Match
	for _, t := range texts {
		m, ok := match(t)
		if !ok {
			continue
		}
		if m.Exact {
			return m, true
		}
		if fuzzy == nil {
			fuzzy = &m
		}
	}
	if fuzzy != nil {
		return *fuzzy, true
	}
	return rules.Match{}, false
}

func entityKind(name string) domain.SectionKind {
	switch name {
	case "equipment":
		return domain.SectionEquipment
	case "nodes":
		return domain.SectionNodes
	case "envelope":
		return domain.SectionEnvelope
	}
	return domain.SectionUnresolved
}

func source(sheet string, row, col int) domain.SourceRef {
	return domain.SourceRef{
		Sheet: sheet,
		Rows:  domain.CellSpan{From: row, To: row},
		Cols:  domain.CellSpan{From: col, To: col},
	}
}
