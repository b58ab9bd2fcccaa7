// Package document turns submitted files into named grids of cells and
// blocks of free text. Grids are the common input of the structural parser,
// whether they came from a workbook, a csv file or a recovered OCR table.
package document

import (
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"energodoc/internal/domain"
)

// Sheet is a named grid. Rows are 1-based in A1 notation; Rows[0] is row 1.
type Sheet struct {
	Index     int
	Name      string
	Origin    domain.SheetOrigin
	Page      int
	TitleRows []string
	Rows      [][]string
}

// TextBlock is page content that could not be recovered as a table.
type TextBlock struct {
	Section string
	Page    int
	Origin  domain.SheetOrigin
	Text    string
}

// Content is everything read from one submission.
type Content struct {
	Sheets []Sheet
	Blocks []TextBlock
	Issues []domain.ExtractionIssue
}

var columnGapRe = regexp.MustCompile(`\t+| {2,}`)

// Grid lays a text block out as a sheet, one line per row, cells split on
// tabs and runs of two or more spaces. Empty lines keep their row number.
func (b *TextBlock) Grid() Sheet {
	lines := strings.Split(strings.ReplaceAll(b.Text, "\r\n", "\n"), "\n")
	rows := make([][]string, len(lines))
	for i, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		rows[i] = columnGapRe.Split(l, -1)
	}
	for len(rows) > 0 && rows[len(rows)-1] == nil {
		rows = rows[:len(rows)-1]
	}
	return Sheet{Name: b.Section, Origin: b.Origin, Page: b.Page, Rows: rows}
}

// Cell returns the trimmed value at 1-based row and column, or "".
func (s *Sheet) Cell(row, col int) string {
	if row < 1 || row > len(s.Rows) {
		return ""
	}
	r := s.Rows[row-1]
	if col < 1 || col > len(r) {
		return ""
	}
	return strings.TrimSpace(r[col-1])
}

// Width is the length of the longest row.
func (s *Sheet) Width() int {
	w := 0
	for _, r := range s.Rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// IsEmpty reports whether no cell holds a value.
func (s *Sheet) IsEmpty() bool {
	for _, r := range s.Rows {
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				return false
			}
		}
	}
	return true
}

// NonEmptyRows returns the 1-based numbers of rows holding at least one value.
func (s *Sheet) NonEmptyRows() []int {
	var out []int
	for i, r := range s.Rows {
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				out = append(out, i+1)
				break
			}
		}
	}
	return out
}

// FillRatio is the share of non-empty cells in the used area.
func (s *Sheet) FillRatio() float64 {
	w := s.Width()
	if w == 0 || len(s.Rows) == 0 {
		return 0
	}
	filled := 0
	for _, r := range s.Rows {
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				filled++
			}
		}
	}
	return float64(filled) / float64(w*len(s.Rows))
}

// CellName renders a 1-based coordinate in A1 notation.
func CellName(row, col int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return ""
	}
	return name
}

// RangeName renders an inclusive rectangle as "A1" or "A1:C3".
func RangeName(rows, cols domain.CellSpan) string {
	from := CellName(rows.From, cols.From)
	if rows.From == rows.To && cols.From == cols.To {
		return from
	}
	return from + ":" + CellName(rows.To, cols.To)
}

// ParseRange parses "B4" or "B4:D4" into row and column spans.
func ParseRange(ref string) (rows, cols domain.CellSpan, err error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	from, to, found := strings.Cut(ref, ":")
	if !found {
		to = from
	}
	c1, r1, err := excelize.CellNameToCoordinates(strings.ReplaceAll(from, "$", ""))
	if err != nil {
		return rows, cols, err
	}
	c2, r2, err := excelize.CellNameToCoordinates(strings.ReplaceAll(to, "$", ""))
	if err != nil {
		return rows, cols, err
	}
	if r2 < r1 {
		r1, r2 = r2, r1
	}
	if c2 < c1 {
		c1, c2 = c2, c1
	}
	return domain.CellSpan{From: r1, To: r2}, domain.CellSpan{From: c1, To: c2}, nil
}
