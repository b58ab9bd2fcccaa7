// Package ocr extracts page text from PDFs and images with poppler and
// tesseract, and recovers table grids from that text.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"energodoc/internal/document"
	"energodoc/internal/domain"
	"energodoc/internal/rules"
)

// Config names the binaries and rendering options.
type Config struct {
	Pdftotext    string
	Pdftoppm     string
	Tesseract    string
	Lang         string
	DPI          int
	MaxPages     int
	PSM          int
	TessdataDir  string
	MinPageChars int
}

// Page is the text of one page and how it was obtained.
type Page struct {
	Number int
	Text   string
	Origin domain.SheetOrigin
}

// Engine runs text extraction and OCR through a Runner.
type Engine struct {
	cfg    Config
	runner Runner
	log    *zap.Logger
}

var pngPageRe = regexp.MustCompile(`-(\d+)\.png$`)

// NewEngine fills defaults for empty config fields.
func NewEngine(cfg Config, runner Runner, log *zap.Logger) *Engine {
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "rus+uzb+eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.PSM <= 0 {
		cfg.PSM = 6
	}
	if cfg.MinPageChars <= 0 {
		cfg.MinPageChars = 20
	}
	return &Engine{cfg: cfg, runner: runner, log: log}
}

// PDFText runs pdftotext in layout mode on at most maxPages pages (0 = all).
func (e *Engine) PDFText(ctx context.Context, data []byte, maxPages int) ([]Page, error) {
	var pages []Page
	err := withTempFile(data, "pdf", func(path string) error {
		var err error
		pages, err = e.pdfText(ctx, path, maxPages)
		return err
	})
	return pages, err
}

// Recover extracts page text according to the document kind and rebuilds
// table grids from it. Pages whose OCR fails are recorded as issues.
func (e *Engine) Recover(ctx context.Context, data []byte, ft domain.FileType, kind domain.DocumentKind, scan rules.ScanRules) (*document.Content, error) {
	if ft != domain.FileTypePDF && !ft.IsImage() {
		return nil, fmt.Errorf("%w: %s has no page text", domain.ErrUnsupportedFormat, ft)
	}

	content := &document.Content{}
	var pages []Page
	err := withTempFile(data, string(ft), func(path string) error {
		if ft.IsImage() {
			text, err := e.tesseract(ctx, path)
			if err != nil {
				return err
			}
			pages = []Page{{Number: 1, Text: text, Origin: domain.OriginOCR}}
			return nil
		}
		var issues []domain.ExtractionIssue
		var err error
		pages, issues, err = e.pdfPages(ctx, path, kind)
		content.Issues = append(content.Issues, issues...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreadableDocument, err)
	}

	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sheets, block := RecoverTables(p, scan)
		for _, s := range sheets {
			s.Index = len(content.Sheets)
			content.Sheets = append(content.Sheets, s)
		}
		if block != nil {
			content.Blocks = append(content.Blocks, *block)
		}
	}
	e.log.Debug("ocr.Engine: pages recovered",
		zap.Int("pages", len(pages)),
		zap.Int("tables", len(content.Sheets)),
		zap.Int("text_blocks", len(content.Blocks)))
	return content, nil
}

func (e *Engine) pdfPages(ctx context.Context, path string, kind domain.DocumentKind) ([]Page, []domain.ExtractionIssue, error) {
	if kind == domain.DocumentKindText || kind == domain.DocumentKindHybrid {
		pages, err := e.pdfText(ctx, path, e.cfg.MaxPages)
		if err == nil {
			if kind == domain.DocumentKindText {
				return pages, nil, nil
			}
			var sparse []int
			for _, p := range pages {
				if printable(p.Text) < e.cfg.MinPageChars {
					sparse = append(sparse, p.Number)
				}
			}
			ocred, issues := e.ocrPDF(ctx, path, sparse)
			for i, p := range pages {
				if t, ok := ocred[p.Number]; ok {
					pages[i] = Page{Number: p.Number, Text: t, Origin: domain.OriginOCR}
				}
			}
			return pages, issues, nil
		}
		e.log.Warn("ocr.Engine: pdftotext failed, rasterizing", zap.Error(err))
	}

	ocred, issues := e.ocrPDF(ctx, path, nil)
	if len(ocred) == 0 {
		return nil, issues, fmt.Errorf("no page could be recognized")
	}
	nums := make([]int, 0, len(ocred))
	for n := range ocred {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	pages := make([]Page, 0, len(nums))
	for _, n := range nums {
		pages = append(pages, Page{Number: n, Text: ocred[n], Origin: domain.OriginOCR})
	}
	return pages, issues, nil
}

func (e *Engine) pdfText(ctx context.Context, path string, maxPages int) ([]Page, error) {
	// pdftotext -layout -enc UTF-8 -eol unix [-l N] <path> -
	args := []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}
	if maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(maxPages))
	}
	args = append(args, path, "-")
	out, _, err := e.runner.Run(ctx, e.cfg.Pdftotext, args...)
	if err != nil {
		return nil, toolError("pdftotext", err)
	}

	// Form feed separates pages; the last one is followed by a trailing \f.
	parts := strings.Split(string(out), "\f")
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]Page, 0, len(parts))
	for i, t := range parts {
		pages = append(pages, Page{Number: i + 1, Text: t, Origin: domain.OriginPDFText})
	}
	return pages, nil
}

// ocrPDF rasterizes and recognizes the given pages, or every page when only is nil.
func (e *Engine) ocrPDF(ctx context.Context, path string, only []int) (map[int]string, []domain.ExtractionIssue) {
	out := make(map[int]string)
	var issues []domain.ExtractionIssue
	if only != nil && len(only) == 0 {
		return out, nil
	}

	tmpDir, err := os.MkdirTemp("", "energodoc-ppm-*")
	if err != nil {
		return out, []domain.ExtractionIssue{(&domain.ExtractionFailure{Section: "document", Err: err}).Issue()}
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	prefix := filepath.Join(tmpDir, "page")

	type span struct{ first, last int }
	var spans []span
	if only == nil {
		spans = []span{{1, e.cfg.MaxPages}}
	} else {
		for _, n := range only {
			spans = append(spans, span{n, n})
		}
	}

	for _, sp := range spans {
		// pdftoppm -r DPI -png [-f N] [-l M] <in.pdf> <tmp/page>
		args := []string{"-r", strconv.Itoa(e.cfg.DPI), "-png", "-f", strconv.Itoa(sp.first)}
		if sp.last > 0 {
			args = append(args, "-l", strconv.Itoa(sp.last))
		}
		args = append(args, path, prefix)
		if _, _, err := e.runner.Run(ctx, e.cfg.Pdftoppm, args...); err != nil {
			f := &domain.ExtractionFailure{Section: fmt.Sprintf("page %d", sp.first), Page: sp.first,
				Err: toolError("pdftoppm", err)}
			issues = append(issues, f.Issue())
		}
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	for _, img := range matches {
		m := pngPageRe.FindStringSubmatch(img)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		text, err := e.tesseract(ctx, img)
		if err != nil {
			f := &domain.ExtractionFailure{Section: fmt.Sprintf("page %d", n), Page: n, Err: err}
			issues = append(issues, f.Issue())
			continue
		}
		out[n] = text
	}
	return out, issues
}

func (e *Engine) tesseract(ctx context.Context, img string) (string, error) {
	// tesseract <img> stdout -l <lang> --psm N -c preserve_interword_spaces=1
	args := []string{img, "stdout", "-l", e.cfg.Lang, "--psm", strconv.Itoa(e.cfg.PSM), "-c", "preserve_interword_spaces=1"}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, _, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", toolError("tesseract", err)
	}
	return string(out), nil
}

// toolError names the failed tool and its exit status. Stderr may hold
// per-run temp paths; it stays in the runner's log.
func toolError(tool string, err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%s: exit status %d", tool, exitErr.ExitCode())
	}
	return fmt.Errorf("%s: %w", tool, err)
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

func withTempFile(data []byte, ext string, fn func(path string) error) error {
	dir, err := os.MkdirTemp("", "energodoc-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(dir) }()
	path := filepath.Join(dir, "input."+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	return fn(path)
}
