package tabular

import (
	"strconv"
	"strings"

	"energodoc/internal/document"
	"energodoc/internal/domain"
	"energodoc/internal/rules"
)

const minFieldHits = 2

// entityHeader finds the first row in the scan window naming at least two
// distinct fields of kind. It returns the row and the column→field map.
func (p *Parser) entityHeader(s *document.Sheet, kind string) (int, map[int]rules.FieldRule) {
	for _, r := range s.NonEmptyRows() {
		if r > p.rules.Scan.HeaderRows {
			break
		}
		cols := make(map[int]rules.FieldRule)
		seen := make(map[string]bool)
		for c := 1; c <= len(s.Rows[r-1]); c++ {
			f, ok := p.rules.MatchField(kind, s.Cell(r, c))
			if !ok || seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			cols[c] = f
		}
		if len(seen) >= minFieldHits {
			return r, cols
		}
	}
	return 0, nil
}

// entityByFields identifies an entity list by its column headers alone.
// A tie between kinds resolves nothing.
func (p *Parser) entityByFields(s *document.Sheet) (domain.SectionKind, bool) {
	best, bestHits, tie := "", 0, false
	for _, e := range p.rules.Entities {
		_, cols := p.entityHeader(s, e.Kind)
		switch {
		case len(cols) > bestHits:
			best, bestHits, tie = e.Kind, len(cols), false
		case len(cols) == bestHits && bestHits > 0:
			tie = true
		}
	}
	if best == "" || tie {
		return "", false
	}
	return entityKind(best), true
}

// parseEntity reads one item per data row below the entity header. Total
// rows and column-numbering rows are skipped. Item indexes are local to the
// sheet and start at 0.
func (p *Parser) parseEntity(s *document.Sheet, kind domain.SectionKind, exact bool, res *SectionResult) {
	res.Kind = kind
	res.Resolved = true
	collection := domain.EntityCollection(kind)

	header, cols := p.entityHeader(s, collection)
	if header == 0 {
		res.Reason = "no entity header found"
		return
	}
	res.HeaderRow = header
	for c := 1; c <= len(s.Rows[header-1]); c++ {
		if _, ok := cols[c]; !ok && s.Cell(header, c) != "" {
			res.UnmappedColumns = append(res.UnmappedColumns, s.Cell(header, c))
		}
	}

	sig := signals{
		exactMatch:     exact,
		headerDetected: true,
		mapped:         true,
		ocrOrigin:      s.Origin == domain.OriginOCR,
	}

	item := 0
	for _, r := range s.NonEmptyRows() {
		if r <= header || p.skipEntityRow(s, r) {
			continue
		}
		var cands []domain.FieldExtraction
		for c := 1; c <= len(s.Rows[r-1]); c++ {
			f, ok := cols[c]
			if !ok {
				continue
			}
			if fe, ok := p.entityField(s, header, r, c, kind, item, f, sig); ok {
				cands = append(cands, fe)
			}
		}
		if len(cands) == 0 {
			continue
		}
		res.Candidates = append(res.Candidates, cands...)
		item++
	}
	res.EntityCount = item
	if item == 0 {
		res.Reason = "entity header without rows"
	}
}

func (p *Parser) skipEntityRow(s *document.Sheet, r int) bool {
	row := s.Rows[r-1]
	first := ""
	numbering := true
	n := 0
	for c, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if first == "" {
			first = cell
		}
		n++
		if cell != strconv.Itoa(c+1) {
			numbering = false
		}
	}
	if p.rules.IsAnnualLeading(first) {
		return true
	}
	return numbering && n >= minFieldHits
}

func (p *Parser) entityField(s *document.Sheet, header, r, c int, kind domain.SectionKind, item int, f rules.FieldRule, sig signals) (domain.FieldExtraction, bool) {
	cell := s.Cell(r, c)
	if cell == "" {
		return domain.FieldExtraction{}, false
	}
	fe := domain.FieldExtraction{
		Path:   domain.EntityPath(kind, item, f.Name),
		Method: s.Origin.Method(),
		Source: source(s.Name, r, c),
	}

	if !f.Numeric {
		fe.Text = cell
		if kind == domain.SectionNodes && f.Name == "resource" {
			if m, ok := p.rules.MatchResource(cell); ok && !m.Ambiguous {
				fe.Text = m.Name
				fe.Note = cell
			}
		}
		fe.Confidence = score(p.rules.Scoring, sig)
		return fe, true
	}

	raw, ok := parseValue(cell)
	if !ok {
		return domain.FieldExtraction{}, false
	}
	csig := sig
	value, unit := raw, f.Unit
	detected, found := p.rules.DetectUnit(cell)
	if !found {
		detected, found = p.rules.DetectUnit(s.Cell(header, c))
	}
	if found && f.Unit != "" {
		if conv, ok := p.rules.Convert(raw, detected, f.Unit); ok {
			value = conv
			csig.unitExplicit = true
		} else {
			unit = detected
			csig.unitUnresolved = true
		}
	}
	v := roundValue(value)
	fe.Value = &v
	fe.Unit = unit
	fe.Confidence = score(p.rules.Scoring, csig)
	return fe, true
}
