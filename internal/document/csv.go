package document

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"energodoc/internal/domain"
)

// ReadCSV reads a delimited text file as a single sheet named after the file.
// The delimiter is sniffed from the first line among ',', ';' and tab.
func ReadCSV(r io.Reader, name string) (*Content, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading csv: %v", domain.ErrUnreadableDocument, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sniffDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parsing csv: %v", domain.ErrUnreadableDocument, err)
	}
	return &Content{Sheets: []Sheet{{
		Name:   strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)),
		Origin: domain.OriginSpreadsheet,
		Rows:   rows,
	}}}, nil
}

func sniffDelimiter(data []byte) rune {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !sc.Scan() {
		return ','
	}
	line := sc.Text()
	best, bestN := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}
