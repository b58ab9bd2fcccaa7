// Package pipeline runs one submission through the extraction state machine:
// classified → deterministic_parsed → (fallback_pending | merge_ready) →
// merged → validated. fallback_pending is the only re-entry point.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"energodoc/internal/document"
	"energodoc/internal/domain"
	"energodoc/internal/metrics"
	"energodoc/internal/port"
	"energodoc/internal/rules"
	"energodoc/internal/tabular"
	"energodoc/internal/validator"
)

// Classifier decides the document kind. *classifier.Classifier implements it.
type Classifier interface {
	Classify(ctx context.Context, data []byte, ft domain.FileType) (domain.DocumentClassification, error)
	ClassifySheets(sheets []document.Sheet) domain.DocumentClassification
}

// Extractor recovers sheets and text blocks from PDF and image bytes.
// *ocr.Engine implements it.
type Extractor interface {
	Recover(ctx context.Context, data []byte, ft domain.FileType, kind domain.DocumentKind, scan rules.ScanRules) (*document.Content, error)
}

// Deps are the collaborators of a Runner. Mapper is nil when the semantic
// fallback is disabled; Metrics may be nil.
type Deps struct {
	Rules       *rules.Ruleset
	Classifier  Classifier
	Extractor   Extractor
	Mapper      port.SemanticMapper
	Metrics     *metrics.Metrics
	Log         *zap.Logger
	Concurrency int
}

// Input is one submission's bytes.
type Input struct {
	FileName string
	FileType domain.FileType
	Data     []byte
}

// Section pairs a grid with its deterministic parse.
type Section struct {
	Sheet  document.Sheet
	Result tabular.SectionResult
	// FreeText marks a text block laid out as a grid for the fallback only.
	FreeText bool
}

// State is everything known about a run between stages.
type State struct {
	Stage          domain.Stage
	Trace          []domain.Stage
	Classification domain.DocumentClassification
	Sections       []Section
	Issues         []domain.ExtractionIssue
	// Pending indexes the sections offered to the fallback.
	Pending   []int
	Proposals map[int][]domain.FieldExtraction
}

func (s *State) enter(stage domain.Stage) {
	s.Stage = stage
	s.Trace = append(s.Trace, stage)
}

// Result is the outcome of a completed run.
type Result struct {
	State     *State
	Data      *domain.CanonicalSourceData
	JSON      []byte
	Readiness []domain.ReadinessReport
}

// Runner executes the pipeline. It is safe for concurrent use; runs share
// nothing but the immutable ruleset.
type Runner struct {
	rules       *rules.Ruleset
	classifier  Classifier
	extractor   Extractor
	mapper      port.SemanticMapper
	parser      *tabular.Parser
	readiness   *validator.Engine
	metrics     *metrics.Metrics
	log         *zap.Logger
	concurrency int
}

// New creates a Runner.
func New(d Deps) (*Runner, error) {
	if d.Rules == nil || d.Classifier == nil {
		return nil, errors.New("pipeline: rules and classifier are required")
	}
	reg, err := validator.NewRegistry(d.Rules)
	if err != nil {
		return nil, fmt.Errorf("compiling section requirements: %w", err)
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	conc := d.Concurrency
	if conc <= 0 {
		conc = 4
	}
	return &Runner{
		rules:       d.Rules,
		classifier:  d.Classifier,
		extractor:   d.Extractor,
		mapper:      d.Mapper,
		parser:      tabular.New(d.Rules, log),
		readiness:   validator.NewEngine(reg),
		metrics:     d.Metrics,
		log:         log,
		concurrency: conc,
	}, nil
}

// FallbackEnabled reports whether the runner has a semantic mapper.
func (r *Runner) FallbackEnabled() bool {
	return r.mapper != nil
}

// Readiness evaluates a stored record against the runner's ruleset.
func (r *Runner) Readiness(data *domain.CanonicalSourceData) []domain.ReadinessReport {
	return r.readiness.Evaluate(data)
}

// Run processes a submission from raw bytes to a validated canonical record.
func (r *Runner) Run(ctx context.Context, in Input) (*Result, error) {
	st := &State{}
	if err := r.classify(ctx, in, st); err != nil {
		return nil, err
	}
	if err := r.parse(ctx, st); err != nil {
		return nil, err
	}
	if st.Stage == domain.StageFallbackPending {
		if err := r.fallback(ctx, st); err != nil {
			return nil, err
		}
	}
	return r.finish(ctx, st)
}

// ResumeFallback re-enters a run at fallback_pending and completes it.
func (r *Runner) ResumeFallback(ctx context.Context, st *State) (*Result, error) {
	if st == nil || st.Stage != domain.StageFallbackPending {
		return nil, fmt.Errorf("pipeline: resume needs a %s state", domain.StageFallbackPending)
	}
	if err := r.fallback(ctx, st); err != nil {
		return nil, err
	}
	return r.finish(ctx, st)
}

func canceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSubmissionCanceled, err)
	}
	return nil
}

func (r *Runner) classify(ctx context.Context, in Input, st *State) error {
	if err := canceled(ctx); err != nil {
		return err
	}
	start := time.Now()
	defer r.metrics.ObserveStage(string(domain.StageClassified), start)

	var content *document.Content
	switch {
	case in.FileType == domain.FileTypeCSV:
		c, err := document.ReadCSV(bytes.NewReader(in.Data), in.FileName)
		if err != nil {
			return err
		}
		content = c
		st.Classification = r.classifier.ClassifySheets(c.Sheets)
	case in.FileType.IsSpreadsheet():
		c, err := document.ReadWorkbook(bytes.NewReader(in.Data), r.log)
		if err != nil {
			return err
		}
		content = c
		st.Classification = r.classifier.ClassifySheets(c.Sheets)
	case in.FileType == domain.FileTypePDF || in.FileType.IsImage():
		cls, err := r.classifier.Classify(ctx, in.Data, in.FileType)
		if err != nil {
			return err
		}
		st.Classification = cls
		c, err := r.recover(ctx, in, cls)
		if err != nil {
			return err
		}
		content = c
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, in.FileType)
	}

	st.Issues = append(st.Issues, content.Issues...)
	for _, s := range content.Sheets {
		st.Sections = append(st.Sections, Section{Sheet: s})
	}
	for i := range content.Blocks {
		g := content.Blocks[i].Grid()
		st.Sections = append(st.Sections, Section{Sheet: g, FreeText: true})
	}
	for i := range st.Sections {
		st.Sections[i].Sheet.Index = i
	}
	st.enter(domain.StageClassified)
	r.log.Info("pipeline.Runner: classified",
		zap.String("file", in.FileName),
		zap.String("kind", string(st.Classification.Kind)),
		zap.String("confidence", string(st.Classification.Confidence)),
		zap.Int("sections", len(st.Sections)))
	return nil
}

// recover runs OCR. A document nothing could be extracted from is still
// given a chance; if that fails too it becomes an empty record with an issue.
func (r *Runner) recover(ctx context.Context, in Input, cls domain.DocumentClassification) (*document.Content, error) {
	if r.extractor == nil {
		if cls.Kind == domain.DocumentKindUnknown {
			return &document.Content{Issues: []domain.ExtractionIssue{
				(&domain.ExtractionFailure{Section: in.FileName, Err: domain.ErrUnreadableDocument}).Issue(),
			}}, nil
		}
		return nil, fmt.Errorf("%w: no OCR engine configured for %s", domain.ErrUnreadableDocument, in.FileType)
	}
	c, err := r.extractor.Recover(ctx, in.Data, in.FileType, cls.Kind, r.rules.Scan)
	if err == nil {
		return c, nil
	}
	if cerr := canceled(ctx); cerr != nil {
		return nil, cerr
	}
	if cls.Kind == domain.DocumentKindUnknown {
		r.log.Warn("pipeline.Runner: unknown document unreadable", zap.String("file", in.FileName), zap.Error(err))
		return &document.Content{Issues: []domain.ExtractionIssue{
			(&domain.ExtractionFailure{Section: in.FileName, Err: err}).Issue(),
		}}, nil
	}
	return nil, err
}

func (r *Runner) parse(ctx context.Context, st *State) error {
	if err := canceled(ctx); err != nil {
		return err
	}
	start := time.Now()
	defer r.metrics.ObserveStage(string(domain.StageDeterministicParsed), start)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range st.Sections {
		sec := &st.Sections[i]
		if sec.FreeText {
			sec.Result = freeTextResult(&sec.Sheet)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sec.Result = r.parser.ParseSheet(&sec.Sheet)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return canceled(ctx)
	}

	for i, sec := range st.Sections {
		if sec.Result.NeedsFallback(r.rules.Thresholds.Fallback) {
			st.Pending = append(st.Pending, i)
		}
	}
	st.enter(domain.StageDeterministicParsed)
	if r.mapper != nil && len(st.Pending) > 0 {
		st.enter(domain.StageFallbackPending)
	} else {
		st.enter(domain.StageMergeReady)
	}
	r.log.Debug("pipeline.Runner: parsed",
		zap.Int("sections", len(st.Sections)),
		zap.Int("pending", len(st.Pending)),
		zap.Bool("fallback_enabled", r.mapper != nil))
	return nil
}

func freeTextResult(s *document.Sheet) tabular.SectionResult {
	res := tabular.SectionResult{
		Sheet:  s.Name,
		Index:  s.Index,
		Page:   s.Page,
		Kind:   domain.SectionUnresolved,
		Reason: "free text",
	}
	if s.IsEmpty() {
		res.Empty = true
		res.Reason = "empty text block"
	}
	return res
}
