package tabular

import (
	"strings"

	"energodoc/internal/document"
	"energodoc/internal/domain"
	"energodoc/internal/rules"
)

// periodCell is one value slot of a line together with its period.
type periodCell struct {
	period rules.Period
	row    int
	col    int
	raw    string
	header string
}

// line is a candidate series: a data row when periods run across columns,
// a value column when periods run down rows.
type line struct {
	label string
	cells []periodCell
}

type layout struct {
	lines    []line
	unmapped []string
}

// parseResource extracts resource series. name is the sheet-level match and
// may be nil or ambiguous, in which case lines are resolved by their labels.
func (p *Parser) parseResource(s *document.Sheet, name *rules.Match, res *SectionResult) {
	header, detected := detectHeader(s, p.rules.Scan)
	res.HeaderRow = header

	lay, ok := p.layoutOf(s, header)
	if !ok {
		if name != nil && !name.Ambiguous {
			res.Kind = domain.SectionResource
			res.Resource = name.Name
			res.Resolved = true
		}
		res.Reason = "no period headers found"
		return
	}
	res.UnmappedColumns = lay.unmapped

	titleUnit := p.titleUnit(s)
	base := signals{headerDetected: detected, mapped: true, ocrOrigin: s.Origin == domain.OriginOCR}

	if name != nil && !name.Ambiguous {
		res.Kind = domain.SectionResource
		res.Resource = name.Name
		res.Resolved = true
		ln, tiebreak, found := p.selectLine(lay.lines, name.Name)
		if !found {
			res.Reason = "no consumption line with values"
			return
		}
		sig := base
		sig.exactMatch = name.Exact
		sig.rowTiebreak = tiebreak
		res.Candidates = p.emitLine(s, name.Name, ln, sig, titleUnit)
		return
	}

	taken := make(map[string]bool)
	for _, ln := range lay.lines {
		if p.rules.IsExcluded(ln.label) {
			continue
		}
		m, ok := p.rules.MatchResource(ln.label)
		if !ok || m.Ambiguous || taken[m.Name] {
			continue
		}
		taken[m.Name] = true
		sig := base
		sig.exactMatch = m.Exact
		res.Candidates = append(res.Candidates, p.emitLine(s, m.Name, ln, sig, titleUnit)...)
	}
	if len(taken) > 0 {
		res.Kind = domain.SectionResource
		res.Resolved = true
		if len(taken) == 1 {
			for r := range taken {
				res.Resource = r
			}
		} else {
			res.Reason = "multiple resources resolved by line labels"
		}
		return
	}

	if name != nil {
		// Ambiguous sheet name and no line labels to disambiguate: keep the
		// first family with the stem penalty.
		res.Kind = domain.SectionResource
		res.Resource = name.Name
		res.Resolved = true
		ln, tiebreak, found := p.selectLine(lay.lines, name.Name)
		if !found {
			res.Reason = "no consumption line with values"
			return
		}
		sig := base
		sig.rowTiebreak = tiebreak
		res.Candidates = p.emitLine(s, name.Name, ln, sig, titleUnit)
		res.Reason = "ambiguous resource name"
		return
	}
	res.Reason = "no resource alias matched"
}

// layoutOf maps periods either across the header row or down one column,
// whichever yields more period cells.
func (p *Parser) layoutOf(s *document.Sheet, header int) (layout, bool) {
	width := s.Width()
	var dataRows []int
	for _, r := range s.NonEmptyRows() {
		if r > header {
			dataRows = append(dataRows, r)
		}
	}
	if len(dataRows) == 0 {
		return layout{}, false
	}

	across := make(map[int]rules.Period)
	for c := 1; c <= width; c++ {
		if per, ok := p.rules.MatchPeriod(s.Cell(header, c)); ok {
			across[c] = per
		}
	}

	downCol, downHits := 0, 0
	for c := 1; c <= width; c++ {
		hits := 0
		for _, r := range dataRows {
			cell := s.Cell(r, c)
			if isNumericCell(cell) {
				continue
			}
			if _, ok := p.rules.MatchPeriod(cell); ok {
				hits++
			}
		}
		if hits > downHits {
			downCol, downHits = c, hits
		}
	}

	switch {
	case downHits > len(across):
		return p.downLayout(s, header, dataRows, downCol), true
	case len(across) > 0:
		return p.acrossLayout(s, header, dataRows, across), true
	}
	return layout{}, false
}

func (p *Parser) acrossLayout(s *document.Sheet, header int, dataRows []int, across map[int]rules.Period) layout {
	var lay layout
	width := s.Width()
	numericCols := make(map[int]bool)
	for _, r := range dataRows {
		ln := line{}
		var label []string
		seen := make(map[rules.Period]bool)
		for c := 1; c <= width; c++ {
			cell := s.Cell(r, c)
			if cell == "" {
				continue
			}
			per, isPeriod := across[c]
			switch {
			case isPeriod:
				if seen[per] {
					continue
				}
				seen[per] = true
				ln.cells = append(ln.cells, periodCell{period: per, row: r, col: c, raw: cell, header: s.Cell(header, c)})
			case isNumericCell(cell):
				numericCols[c] = true
			default:
				label = append(label, cell)
			}
		}
		ln.label = strings.Join(label, " ")
		lay.lines = append(lay.lines, ln)
	}
	for c := 1; c <= width; c++ {
		if numericCols[c] {
			if h := s.Cell(header, c); h != "" {
				lay.unmapped = append(lay.unmapped, h)
			} else {
				lay.unmapped = append(lay.unmapped, document.CellName(header, c))
			}
		}
	}
	return lay
}

func (p *Parser) downLayout(s *document.Sheet, header int, dataRows []int, periodCol int) layout {
	var lay layout
	type slot struct {
		row int
		per rules.Period
	}
	var slots []slot
	seen := make(map[rules.Period]bool)
	for _, r := range dataRows {
		per, ok := p.rules.MatchPeriod(s.Cell(r, periodCol))
		if !ok {
			if st := statsOf(s.Rows[r-1]); st.numeric > 0 {
				lay.unmapped = append(lay.unmapped, s.Cell(r, periodCol))
			}
			continue
		}
		if seen[per] {
			continue
		}
		seen[per] = true
		slots = append(slots, slot{row: r, per: per})
	}
	for c := 1; c <= s.Width(); c++ {
		if c == periodCol {
			continue
		}
		ln := line{label: s.Cell(header, c)}
		for _, sl := range slots {
			cell := s.Cell(sl.row, c)
			if cell == "" {
				continue
			}
			ln.cells = append(ln.cells, periodCell{period: sl.per, row: sl.row, col: c, raw: cell, header: ln.label})
		}
		if len(ln.cells) > 0 || ln.label != "" {
			lay.lines = append(lay.lines, ln)
		}
	}
	return lay
}

// selectLine picks the consumption line of a single-resource table. A line
// labelled with a consumption keyword or the resource itself wins outright;
// otherwise the first line holding a number is taken as a tie-break.
func (p *Parser) selectLine(lines []line, resource string) (line, bool, bool) {
	for _, ln := range lines {
		if p.rules.IsExcluded(ln.label) || !hasValue(ln) {
			continue
		}
		if p.rules.IsConsumption(ln.label) {
			return ln, false, true
		}
		if m, ok := p.rules.MatchResource(ln.label); ok && m.Exact && m.Name == resource {
			return ln, false, true
		}
	}
	for _, ln := range lines {
		if p.rules.IsExcluded(ln.label) || !hasValue(ln) {
			continue
		}
		return ln, true, true
	}
	return line{}, false, false
}

func hasValue(ln line) bool {
	for _, c := range ln.cells {
		if _, ok := parseValue(c.raw); ok {
			return true
		}
	}
	return false
}

// emitLine converts every parseable period cell of a line into a candidate.
func (p *Parser) emitLine(s *document.Sheet, resource string, ln line, sig signals, titleUnit string) []domain.FieldExtraction {
	canonical := p.rules.ResourceUnit(resource)
	labelUnit, hasLabelUnit := p.rules.DetectUnit(ln.label)

	var out []domain.FieldExtraction
	for _, c := range ln.cells {
		raw, ok := parseValue(c.raw)
		if !ok {
			continue
		}
		unit := titleUnit
		if hasLabelUnit {
			unit = labelUnit
		} else if u, ok := p.rules.DetectUnit(c.header); ok {
			unit = u
		}

		csig := sig
		value, outUnit := raw, canonical
		if unit != "" {
			if conv, ok := p.rules.Convert(raw, unit, canonical); ok && canonical != "" {
				value = conv
				csig.unitExplicit = true
			} else {
				outUnit = unit
				csig.unitUnresolved = true
			}
		}
		v := roundValue(value)
		out = append(out, domain.FieldExtraction{
			Path:       domain.ResourcePath(resource, c.period.Granularity, c.period.Index),
			Value:      &v,
			Unit:       outUnit,
			Method:     s.Origin.Method(),
			Confidence: score(p.rules.Scoring, csig),
			Source:     source(s.Name, c.row, c.col),
		})
	}
	return out
}

// titleUnit looks for a unit in the sheet name and title lines.
func (p *Parser) titleUnit(s *document.Sheet) string {
	for _, t := range append(titleLines(s, p.rules.Scan), s.Name) {
		if u, ok := p.rules.DetectUnit(t); ok {
			return u
		}
	}
	return ""
}
