// Package csvexport writes the provenance of a canonical record as CSV for
// audit in spreadsheet tools.
package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"energodoc/internal/document"
	"energodoc/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// columns defines the CSV header row.
var columns = []string{
	"Seq",
	"Canonical Path",
	"Value",
	"Text",
	"Unit",
	"Method",
	"Confidence",
	"Winner",
	"Sheet",
	"Cells",
	"Note",
}

// Writer wraps csv.Writer for exporting provenance rows.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteProvenance writes one row per candidate, losers included, in the
// record's order.
func (w *Writer) WriteProvenance(data *domain.CanonicalSourceData) error {
	for i := range data.Provenance {
		if err := w.csv.Write(extractionToRow(&data.Provenance[i])); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

// Export writes BOM, header and provenance rows to out.
func Export(out io.Writer, data *domain.CanonicalSourceData) error {
	if _, err := out.Write(BOM); err != nil {
		return err
	}
	w := NewWriter(out)
	if err := w.WriteHeader(); err != nil {
		return err
	}
	if err := w.WriteProvenance(data); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func extractionToRow(fe *domain.FieldExtraction) []string {
	row := make([]string, len(columns))
	row[0] = strconv.Itoa(fe.Seq)
	row[1] = fe.Path
	if fe.Value != nil {
		row[2] = strconv.FormatFloat(*fe.Value, 'f', -1, 64)
	}
	row[3] = fe.Text
	row[4] = fe.Unit
	row[5] = string(fe.Method)
	row[6] = strconv.FormatFloat(fe.Confidence, 'f', 3, 64)
	row[7] = formatBool(fe.Winner)
	row[8] = fe.Source.Sheet
	if fe.Source.Rows.From > 0 && fe.Source.Cols.From > 0 {
		row[9] = document.RangeName(fe.Source.Rows, fe.Source.Cols)
	}
	row[10] = fe.Note
	return row
}

func formatBool(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a file name for use in Content-Disposition.
// Replaces non-alphanumeric chars (except - _) with _, collapses consecutive
// underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns the attachment name for a submission's provenance
// export: {sanitized_file_stem}_v{version}_provenance.csv
func BuildFilename(fileName string, version int) string {
	stem := fileName
	if i := strings.LastIndexByte(stem, '.'); i > 0 {
		stem = stem[:i]
	}
	sanitized := SanitizeFilename(stem)
	if sanitized == "" {
		sanitized = "submission"
	}
	return fmt.Sprintf("%s_v%d_provenance.csv", sanitized, version)
}
