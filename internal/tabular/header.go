package tabular

import (
	"strings"

	"energodoc/internal/document"
	"energodoc/internal/rules"
)

type rowStats struct {
	nonEmpty int
	numeric  int
}

func statsOf(row []string) rowStats {
	var st rowStats
	for _, c := range row {
		if strings.TrimSpace(c) == "" {
			continue
		}
		st.nonEmpty++
		if isNumericCell(c) {
			st.numeric++
		}
	}
	return st
}

func (st rowStats) textRatio() float64 {
	if st.nonEmpty == 0 {
		return 0
	}
	return float64(st.nonEmpty-st.numeric) / float64(st.nonEmpty)
}

func (st rowStats) numericRatio() float64 {
	if st.nonEmpty == 0 {
		return 0
	}
	return float64(st.numeric) / float64(st.nonEmpty)
}

// detectHeader finds the first row within the scan window whose cells are
// mostly text and whose following rows are mostly numeric. The row right
// after the header must itself be numeric enough. Without such a row the
// first non-empty row is used and detected is false.
func detectHeader(s *document.Sheet, scan rules.ScanRules) (row int, detected bool) {
	rows := s.NonEmptyRows()
	if len(rows) == 0 {
		return 0, false
	}
	lookahead := max(scan.LookaheadRows, 1)
	for i, r := range rows {
		if r > scan.HeaderRows {
			break
		}
		st := statsOf(s.Rows[r-1])
		if st.nonEmpty < scan.MinHeaderCells || st.textRatio() < scan.HeaderTextRatio {
			continue
		}
		next := rows[i+1 : min(len(rows), i+1+lookahead)]
		if len(next) == 0 {
			continue
		}
		if statsOf(s.Rows[next[0]-1]).numericRatio() < scan.DataNumericRatio {
			continue
		}
		var total rowStats
		for _, n := range next {
			st := statsOf(s.Rows[n-1])
			total.nonEmpty += st.nonEmpty
			total.numeric += st.numeric
		}
		if total.numericRatio() >= scan.DataNumericRatio {
			return r, true
		}
	}
	return rows[0], false
}

// titleLines returns the text that names the table: recovered title lines
// plus leading single-value rows above the first multi-cell row. A merged
// title repeats one value across its range and still counts as one cell.
func titleLines(s *document.Sheet, scan rules.ScanRules) []string {
	out := append([]string(nil), s.TitleRows...)
	for _, r := range s.NonEmptyRows() {
		if r > max(scan.TitleRows, 1) {
			break
		}
		t, ok := singleValue(s.Rows[r-1])
		if !ok {
			break
		}
		out = append(out, t)
	}
	return out
}

// singleValue reports the one distinct non-empty value of a row.
func singleValue(row []string) (string, bool) {
	var v string
	for _, c := range row {
		t := strings.TrimSpace(c)
		if t == "" {
			continue
		}
		if v != "" && t != v {
			return "", false
		}
		v = t
	}
	return v, v != ""
}
