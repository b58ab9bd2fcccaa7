// Package classifier decides whether a submission is machine-readable text,
// scanned imagery or a mix of both. The decision selects the extraction
// strategy and is made before any heavier parsing.
package classifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"energodoc/internal/document"
	"energodoc/internal/domain"
	"energodoc/internal/ocr"
)

const (
	cheapPages     = 3
	expensivePages = 5
	minPageChars   = 10
	fullPageChars  = 2000

	PassCheap     = "cheap"
	PassExpensive = "expensive"
	PassFormat    = "format"
)

// TextProbe is the expensive text extractor used by the second pass.
type TextProbe interface {
	PDFText(ctx context.Context, data []byte, maxPages int) ([]ocr.Page, error)
}

// Classifier classifies submissions. It holds no state between calls.
type Classifier struct {
	probe TextProbe
	log   *zap.Logger
}

// New creates a Classifier. probe may be nil, in which case PDFs that the
// cheap pass cannot settle are classified from cheap evidence alone.
func New(probe TextProbe, log *zap.Logger) *Classifier {
	return &Classifier{probe: probe, log: log}
}

// DetectFileType maps a file name to a supported FileType.
func DetectFileType(name string) (domain.FileType, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	ft, ok := domain.AllowedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, ext)
	}
	return ft, nil
}

// ClassifySheets classifies an already read spreadsheet. Evidence is the
// fill ratio of each sheet.
func (c *Classifier) ClassifySheets(sheets []document.Sheet) domain.DocumentClassification {
	evidence := make([]domain.PageEvidence, 0, len(sheets))
	for i := range sheets {
		s := &sheets[i]
		evidence = append(evidence, domain.PageEvidence{
			Page:        i + 1,
			Chars:       sheetChars(s),
			TextDensity: round4(s.FillRatio()),
			HasText:     !s.IsEmpty(),
		})
	}
	return domain.DocumentClassification{
		Kind:       domain.DocumentKindText,
		Confidence: domain.ConfidenceHigh,
		Pass:       PassFormat,
		PageCount:  len(sheets),
		Evidence:   evidence,
	}
}

// Classify classifies PDF and image bytes. Spreadsheets go through ClassifySheets.
func (c *Classifier) Classify(ctx context.Context, data []byte, ft domain.FileType) (domain.DocumentClassification, error) {
	switch {
	case ft.IsImage():
		return domain.DocumentClassification{
			Kind:       domain.DocumentKindImage,
			Confidence: domain.ConfidenceHigh,
			Pass:       PassFormat,
			PageCount:  1,
		}, nil
	case ft == domain.FileTypePDF:
		return c.classifyPDF(ctx, data), nil
	case ft.IsSpreadsheet():
		return domain.DocumentClassification{}, fmt.Errorf("classifier: %s must be classified from its sheets", ft)
	}
	return domain.DocumentClassification{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, ft)
}

func (c *Classifier) classifyPDF(ctx context.Context, data []byte) domain.DocumentClassification {
	cheap, pageCount, err := cheapPass(data)
	if err != nil {
		c.log.Debug("classifier.Classifier: cheap pass failed", zap.Error(err))
	} else {
		avg, ratio := summarize(cheap)
		switch {
		case avg > 100 && ratio > 0.7:
			return result(domain.DocumentKindText, domain.ConfidenceHigh, PassCheap, pageCount, cheap)
		case avg < 20 && ratio < 0.3:
			return result(domain.DocumentKindImage, domain.ConfidenceHigh, PassCheap, pageCount, cheap)
		}
	}

	if c.probe == nil {
		if err != nil {
			return result(domain.DocumentKindUnknown, domain.ConfidenceLow, PassCheap, 0, nil)
		}
		return result(domain.DocumentKindHybrid, domain.ConfidenceMedium, PassCheap, pageCount, cheap)
	}

	pages, perr := c.probe.PDFText(ctx, data, expensivePages)
	if perr != nil || len(pages) == 0 {
		c.log.Debug("classifier.Classifier: expensive pass failed", zap.Error(perr))
		if err != nil {
			return result(domain.DocumentKindUnknown, domain.ConfidenceLow, PassExpensive, 0, nil)
		}
		return result(domain.DocumentKindHybrid, domain.ConfidenceMedium, PassCheap, pageCount, cheap)
	}

	evidence := make([]domain.PageEvidence, 0, len(pages))
	for _, p := range pages {
		evidence = append(evidence, pageEvidence(p.Number, printable(p.Text), 0))
	}
	if pageCount < len(pages) {
		pageCount = len(pages)
	}
	avg, ratio := summarize(evidence)
	switch {
	case avg > 100 && ratio > 0.8:
		return result(domain.DocumentKindText, domain.ConfidenceMedium, PassExpensive, pageCount, evidence)
	case avg < 15 && ratio < 0.2:
		return result(domain.DocumentKindImage, domain.ConfidenceMedium, PassExpensive, pageCount, evidence)
	}
	return result(domain.DocumentKindHybrid, domain.ConfidenceMedium, PassExpensive, pageCount, evidence)
}

// cheapPass reads the leading pages with pdfcpu and counts glyphs shown by
// their content streams. No text decoding is attempted.
func cheapPass(data []byte) ([]domain.PageEvidence, int, error) {
	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	if pctx.PageCount == 0 {
		return nil, 0, fmt.Errorf("pdf has no pages")
	}

	n := min(cheapPages, pctx.PageCount)
	evidence := make([]domain.PageEvidence, 0, n)
	for pageNr := 1; pageNr <= n; pageNr++ {
		chars := 0
		if r, err := pdfcpu.ExtractPageContent(pctx, pageNr); err == nil && r != nil {
			if content, err := io.ReadAll(r); err == nil {
				chars = countGlyphs(content)
			}
		}
		images := len(pdfcpu.ImageObjNrs(pctx, pageNr))
		evidence = append(evidence, pageEvidence(pageNr, chars, images))
	}
	return evidence, pctx.PageCount, nil
}

func pageEvidence(page, chars, images int) domain.PageEvidence {
	return domain.PageEvidence{
		Page:        page,
		Chars:       chars,
		TextDensity: round4(math.Min(1, float64(chars)/fullPageChars)),
		HasText:     chars > minPageChars,
		Images:      images,
	}
}

func summarize(evidence []domain.PageEvidence) (avgChars, textRatio float64) {
	if len(evidence) == 0 {
		return 0, 0
	}
	total, withText := 0, 0
	for _, e := range evidence {
		total += e.Chars
		if e.HasText {
			withText++
		}
	}
	n := float64(len(evidence))
	return float64(total) / n, float64(withText) / n
}

func result(kind domain.DocumentKind, conf domain.ConfidenceLabel, pass string, pages int, evidence []domain.PageEvidence) domain.DocumentClassification {
	return domain.DocumentClassification{
		Kind:       kind,
		Confidence: conf,
		Pass:       pass,
		PageCount:  pages,
		Evidence:   evidence,
	}
}

// countGlyphs counts characters in literal "( )" and hex "< >" strings of a
// content stream. Hex strings count one glyph per two digits.
func countGlyphs(stream []byte) int {
	n := 0
	for i := 0; i < len(stream); i++ {
		switch stream[i] {
		case '(':
			depth := 1
			for i++; i < len(stream) && depth > 0; i++ {
				switch stream[i] {
				case '\\':
					i++
					n++
				case '(':
					depth++
					n++
				case ')':
					depth--
					if depth > 0 {
						n++
					}
				default:
					if !unicode.IsSpace(rune(stream[i])) {
						n++
					}
				}
			}
			i--
		case '<':
			if i+1 < len(stream) && stream[i+1] == '<' {
				i++
				continue
			}
			digits := 0
			for i++; i < len(stream) && stream[i] != '>'; i++ {
				if isHex(stream[i]) {
					digits++
				}
			}
			n += digits / 2
		case '%':
			for i < len(stream) && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}
		}
	}
	return n
}

func isHex(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func sheetChars(s *document.Sheet) int {
	n := 0
	for _, r := range s.Rows {
		for _, c := range r {
			n += printable(c)
		}
	}
	return n
}

func printable(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) && unicode.IsPrint(r) {
			n++
		}
	}
	return n
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
