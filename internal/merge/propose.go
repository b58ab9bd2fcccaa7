package merge

import (
	"fmt"
	"strings"

	"energodoc/internal/document"
	"energodoc/internal/domain"
	"energodoc/internal/port"
	"energodoc/internal/rules"
	"energodoc/internal/tabular"
)

// Rejection is a proposal entry that was not turned into a candidate.
type Rejection struct {
	Path      string
	CellRange string
	Reason    string
}

func (r Rejection) String() string {
	return fmt.Sprintf("%s@%s: %s", r.Path, r.CellRange, r.Reason)
}

// Propose turns a fallback proposal for one section into ai_fallback
// candidates read from the section grid. A nil proposal, or one below the
// ruleset's minimum proposal confidence, yields nothing. Entries with an
// invalid path or a range outside the grid are rejected one by one. A
// multi-cell range sums its numeric cells.
func Propose(rs *rules.Ruleset, s *document.Sheet, p *port.MappingProposal) ([]domain.FieldExtraction, []Rejection) {
	if p == nil || p.Confidence < rs.Thresholds.MinProposalConfidence {
		return nil, nil
	}
	conf := clamp(p.Confidence)
	note := proposalNote(p)

	var (
		out      []domain.FieldExtraction
		rejected []Rejection
		seen     = map[string]bool{}
	)
	reject := func(e port.ProposedCell, format string, args ...any) {
		rejected = append(rejected, Rejection{Path: e.Path, CellRange: e.CellRange, Reason: fmt.Sprintf(format, args...)})
	}

	for _, e := range p.Mapping {
		t, ok := target(rs, e.Path)
		if !ok {
			reject(e, "not a canonical path")
			continue
		}
		if seen[e.Path] {
			reject(e, "duplicate path")
			continue
		}
		rows, cols, err := document.ParseRange(e.CellRange)
		if err != nil {
			reject(e, "bad range: %v", err)
			continue
		}
		if rows.To > len(s.Rows) || cols.To > s.Width() {
			reject(e, "range outside %d×%d grid", len(s.Rows), s.Width())
			continue
		}

		c := domain.FieldExtraction{
			Path:       e.Path,
			Method:     domain.MethodAIFallback,
			Confidence: conf,
			Source:     domain.SourceRef{Sheet: s.Name, Rows: rows, Cols: cols},
			Note:       note,
		}
		cells := rangeCells(s, rows, cols)
		if t.numeric {
			v, n := sum(cells)
			if n == 0 {
				reject(e, "no numeric cell")
				continue
			}
			v, c.Unit = proposedUnit(rs, v, e.Unit, cells, t.unit)
			c.Value = &v
		} else {
			c.Text = strings.Join(cells, " ")
			if c.Text == "" {
				reject(e, "empty range")
				continue
			}
		}
		seen[e.Path] = true
		out = append(out, c)
	}
	return out, rejected
}

type pathTarget struct {
	numeric bool
	unit    string
}

// target checks a path against the ruleset: known resource families and
// declared entity fields only.
func target(rs *rules.Ruleset, path string) (pathTarget, bool) {
	cp, ok := domain.ParsePath(path)
	if !ok {
		return pathTarget{}, false
	}
	if cp.Entity == domain.SectionResource {
		res, ok := rs.Resource(cp.Resource)
		if !ok {
			return pathTarget{}, false
		}
		return pathTarget{numeric: true, unit: res.Unit}, true
	}
	ent, ok := rs.Entity(domain.EntityCollection(cp.Entity))
	if !ok {
		return pathTarget{}, false
	}
	for _, f := range ent.Fields {
		if f.Name == cp.Field {
			return pathTarget{numeric: f.Numeric, unit: f.Unit}, true
		}
	}
	return pathTarget{}, false
}

// proposedUnit converts v to the target unit. The unit is taken from the
// proposal, else from the cell text; with neither, the value is taken to be
// in the target unit already. Unconvertible units are kept as found.
func proposedUnit(rs *rules.Ruleset, v float64, stated string, cells []string, to string) (float64, string) {
	code, ok := "", false
	if stated != "" {
		if code, ok = rs.DetectUnit(stated); !ok {
			return v, stated
		}
	} else {
		for _, c := range cells {
			if code, ok = rs.DetectUnit(c); ok {
				break
			}
		}
	}
	if !ok {
		return v, to
	}
	if to == "" {
		return v, code
	}
	if conv, ok := rs.Convert(v, code, to); ok {
		return round6(conv), to
	}
	return v, code
}

func rangeCells(s *document.Sheet, rows, cols domain.CellSpan) []string {
	var out []string
	for r := rows.From; r <= rows.To; r++ {
		for c := cols.From; c <= cols.To; c++ {
			if v := s.Cell(r, c); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func sum(cells []string) (float64, int) {
	var total float64
	n := 0
	for _, c := range cells {
		if v, ok := tabular.Number(c); ok {
			total += v
			n++
		}
	}
	return round6(total), n
}

// proposalNote keeps the model name and its rationale on every candidate.
func proposalNote(p *port.MappingProposal) string {
	notes := strings.TrimSpace(p.Notes)
	switch {
	case p.Model == "":
		return notes
	case notes == "":
		return p.Model
	}
	return p.Model + ": " + notes
}
