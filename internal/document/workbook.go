package document

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"energodoc/internal/domain"
)

// ReadWorkbook reads every sheet of an xlsx/xlsm workbook. Merged ranges are
// expanded so each covered cell repeats the value of the range's first cell.
// A sheet that cannot be read is recorded as an issue; its siblings are kept.
func ReadWorkbook(r io.Reader, log *zap.Logger) (*Content, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: opening workbook: %v", domain.ErrUnreadableDocument, err)
	}
	defer func() { _ = f.Close() }()

	content := &Content{}
	for i, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			fail := &domain.ExtractionFailure{Section: name, Err: err}
			log.Warn("document.ReadWorkbook: sheet unreadable", zap.String("sheet", name), zap.Error(err))
			content.Issues = append(content.Issues, fail.Issue())
			continue
		}

		merges, err := f.GetMergeCells(name)
		if err != nil {
			log.Debug("document.ReadWorkbook: merged ranges unavailable", zap.String("sheet", name), zap.Error(err))
		}
		for _, mg := range merges {
			rows = fillMerge(rows, mg.GetStartAxis(), mg.GetEndAxis(), mg.GetCellValue())
		}

		content.Sheets = append(content.Sheets, Sheet{
			Index:  i,
			Name:   name,
			Origin: domain.OriginSpreadsheet,
			Rows:   rows,
		})
	}
	return content, nil
}

func fillMerge(rows [][]string, start, end, value string) [][]string {
	c1, r1, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return rows
	}
	c2, r2, err := excelize.CellNameToCoordinates(end)
	if err != nil {
		return rows
	}
	for len(rows) < r2 {
		rows = append(rows, nil)
	}
	for r := r1; r <= r2; r++ {
		row := rows[r-1]
		for len(row) < c2 {
			row = append(row, "")
		}
		for c := c1; c <= c2; c++ {
			if row[c-1] == "" {
				row[c-1] = value
			}
		}
		rows[r-1] = row
	}
	return rows
}
