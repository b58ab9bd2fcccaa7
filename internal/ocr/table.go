package ocr

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"energodoc/internal/document"
	"energodoc/internal/rules"
)

var (
	// Two or more spaces, or any tab, separate columns of aligned text.
	gapRe = regexp.MustCompile(`\t+| {2,}`)
	// Rule lines drawn with dashes, equals signs, underscores or box characters.
	ruleRe = regexp.MustCompile(`^[\s|+\-=_—–─━┼┤├]*[\-=_—–─━]{3,}[\s|+\-=_—–─━┼┤├]*$`)
)

type lineKind int

const (
	lineBlank lineKind = iota
	lineRule
	linePiped
	lineAligned
	linePlain
)

type span struct {
	text       string
	start, end int
}

type textLine struct {
	kind  lineKind
	raw   string
	cells []span
}

const maxTitleLines = 3

// RecoverTables rebuilds grids from the plain text of one page. Aligned
// columns and explicit "|" delimiters are tried in that order; dash rules
// separate rows. A run must keep a consistent column count and reach
// scan.MinTableLines rows to become a table. Lines outside every table are
// returned as a text block: the whole page when no table was found.
func RecoverTables(p Page, scan rules.ScanRules) ([]document.Sheet, *document.TextBlock) {
	minLines := scan.MinTableLines
	if minLines <= 0 {
		minLines = 3
	}

	lines := classifyLines(p.Text)
	consumed := make([]bool, len(lines))
	var sheets []document.Sheet

	i := 0
	for i < len(lines) {
		kind := lines[i].kind
		if kind != linePiped && kind != lineAligned {
			i++
			continue
		}
		var run []textLine
		j := i
		for ; j < len(lines); j++ {
			k := lines[j].kind
			if k == lineBlank || k == lineRule {
				continue
			}
			if k != kind || !consistent(kind, lines[i], lines[j]) {
				break
			}
			run = append(run, lines[j])
		}
		if len(run) >= minLines {
			var grid [][]string
			if kind == linePiped {
				grid = pipedGrid(run)
			} else {
				grid = alignedGrid(run)
			}
			var titles []string
			for _, k := range titleAbove(lines, i) {
				if consumed[k] {
					continue
				}
				consumed[k] = true
				titles = append(titles, strings.TrimSpace(lines[k].raw))
			}
			for k := i; k < j; k++ {
				consumed[k] = true
			}
			sheets = append(sheets, document.Sheet{
				Name:      fmt.Sprintf("page %d table %d", p.Number, len(sheets)+1),
				Origin:    p.Origin,
				Page:      p.Number,
				TitleRows: titles,
				Rows:      grid,
			})
		}
		i = j
	}

	text := strings.TrimSpace(p.Text)
	if len(sheets) > 0 {
		text = remainder(lines, consumed)
	}
	if text == "" {
		return sheets, nil
	}
	return sheets, &document.TextBlock{
		Section: fmt.Sprintf("page %d", p.Number),
		Page:    p.Number,
		Origin:  p.Origin,
		Text:    text,
	}
}

// consistent reports whether l can continue a run opened by first. Cell
// counts may differ by one; an aligned line with fewer cells also fits when
// each of its cells sits under a distinct column of first.
func consistent(kind lineKind, first, l textLine) bool {
	if abs(len(l.cells)-len(first.cells)) <= 1 {
		return true
	}
	if kind != lineAligned || len(l.cells) > len(first.cells) {
		return false
	}
	used := make(map[int]bool, len(l.cells))
	for _, c := range l.cells {
		col := overlapColumn(first.cells, c)
		if col < 0 || used[col] {
			return false
		}
		used[col] = true
	}
	return true
}

// remainder joins the non-blank lines no table claimed, rules excluded.
func remainder(lines []textLine, consumed []bool) string {
	var out []string
	for k, l := range lines {
		if consumed[k] || l.kind == lineBlank || l.kind == lineRule {
			continue
		}
		out = append(out, strings.TrimSpace(l.raw))
	}
	return strings.Join(out, "\n")
}

func classifyLines(text string) []textLine {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]textLine, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, " \t\r")
		trimmed := strings.TrimSpace(l)
		switch {
		case trimmed == "":
			out = append(out, textLine{kind: lineBlank})
		case ruleRe.MatchString(trimmed):
			out = append(out, textLine{kind: lineRule, raw: l})
		case strings.Count(trimmed, "|") >= 1 && len(splitPipes(trimmed)) >= 2:
			out = append(out, textLine{kind: linePiped, raw: l, cells: splitPipes(trimmed)})
		default:
			cells := splitAligned(l)
			if len(cells) >= 2 {
				out = append(out, textLine{kind: lineAligned, raw: l, cells: cells})
			} else {
				out = append(out, textLine{kind: linePlain, raw: l})
			}
		}
	}
	return out
}

func splitPipes(line string) []span {
	line = strings.TrimPrefix(strings.TrimSuffix(line, "|"), "|")
	parts := strings.Split(line, "|")
	out := make([]span, 0, len(parts))
	for i, p := range parts {
		out = append(out, span{text: strings.TrimSpace(p), start: i, end: i + 1})
	}
	return out
}

// splitAligned cuts a line at whitespace gaps and records rune offsets.
func splitAligned(line string) []span {
	var out []span
	expanded := strings.ReplaceAll(line, "\t", "    ")
	prev := 0
	for _, gap := range gapRe.FindAllStringIndex(expanded, -1) {
		if gap[0] > prev {
			out = appendSpan(out, expanded, prev, gap[0])
		}
		prev = gap[1]
	}
	if prev < len(expanded) {
		out = appendSpan(out, expanded, prev, len(expanded))
	}
	return out
}

func appendSpan(out []span, line string, from, to int) []span {
	text := strings.TrimSpace(line[from:to])
	if text == "" {
		return out
	}
	lead := len(line[from:to]) - len(strings.TrimLeft(line[from:to], " "))
	start := utf8.RuneCountInString(line[:from+lead])
	return append(out, span{text: text, start: start, end: start + utf8.RuneCountInString(text)})
}

func pipedGrid(run []textLine) [][]string {
	width := 0
	for _, l := range run {
		if len(l.cells) > width {
			width = len(l.cells)
		}
	}
	grid := make([][]string, 0, len(run))
	for _, l := range run {
		row := make([]string, width)
		for i, c := range l.cells {
			row[i] = c.text
		}
		grid = append(grid, row)
	}
	return grid
}

// alignedGrid places each cell under the anchor column it overlaps most.
// The anchor is the line with the most cells in the run.
func alignedGrid(run []textLine) [][]string {
	anchor := run[0].cells
	for _, l := range run[1:] {
		if len(l.cells) > len(anchor) {
			anchor = l.cells
		}
	}

	grid := make([][]string, 0, len(run))
	for _, l := range run {
		row := make([]string, len(anchor))
		for _, c := range l.cells {
			col := nearestColumn(anchor, c)
			if row[col] == "" {
				row[col] = c.text
			} else {
				row[col] += " " + c.text
			}
		}
		grid = append(grid, row)
	}
	return grid
}

func nearestColumn(anchor []span, c span) int {
	if best := overlapColumn(anchor, c); best >= 0 {
		return best
	}
	center := (c.start + c.end) / 2
	best, bestDist := 0, -1
	for i, a := range anchor {
		d := abs((a.start+a.end)/2 - center)
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// overlapColumn returns the anchor cell c overlaps most, or -1.
func overlapColumn(anchor []span, c span) int {
	best, bestOverlap := -1, 0
	for i, a := range anchor {
		if ov := min(a.end, c.end) - max(a.start, c.start); ov > bestOverlap {
			best, bestOverlap = i, ov
		}
	}
	return best
}

// titleAbove returns the indexes of up to maxTitleLines plain lines right
// above a table, top first.
func titleAbove(lines []textLine, at int) []int {
	var titles []int
	for k := at - 1; k >= 0 && len(titles) < maxTitleLines; k-- {
		switch lines[k].kind {
		case lineBlank, lineRule:
			continue
		case linePlain:
			titles = append([]int{k}, titles...)
		default:
			return titles
		}
	}
	return titles
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
