package merge

import (
	"strings"

	"energodoc/internal/document"
	"energodoc/internal/domain"
	"energodoc/internal/port"
	"energodoc/internal/rules"
)

// BuildRequest renders the fallback request for one section: the first
// non-empty rows as headers, the next ones as bounded samples, and the
// section's own deterministic candidates as the current partial mapping.
func BuildRequest(rs *rules.Ruleset, s *document.Sheet, partial []domain.FieldExtraction) port.MappingRequest {
	req := port.MappingRequest{
		SectionID:      s.Name,
		HeaderRows:     []port.GridRow{},
		SampleRows:     []port.GridRow{},
		LanguageHints:  append([]string{}, rs.LanguageHints...),
		PartialMapping: make(map[string]string, len(partial)),
	}

	rows := s.NonEmptyRows()
	headers := min(rs.FallbackRequest.HeaderRows, len(rows))
	for _, r := range rows[:headers] {
		req.HeaderRows = append(req.HeaderRows, gridRow(s, r))
	}
	samples := rows[headers:]
	if len(samples) > rs.FallbackRequest.SampleRows {
		samples = samples[:rs.FallbackRequest.SampleRows]
	}
	for _, r := range samples {
		req.SampleRows = append(req.SampleRows, gridRow(s, r))
	}

	for _, c := range partial {
		req.PartialMapping[c.Path] = document.RangeName(c.Source.Rows, c.Source.Cols)
	}
	return req
}

func gridRow(s *document.Sheet, row int) port.GridRow {
	raw := s.Rows[row-1]
	cells := make([]string, len(raw))
	last := 0
	for i, c := range raw {
		cells[i] = strings.TrimSpace(c)
		if cells[i] != "" {
			last = i + 1
		}
	}
	return port.GridRow{Row: row, Cells: cells[:last]}
}
