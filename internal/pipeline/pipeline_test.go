package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"energodoc/internal/cache/memory"
	"energodoc/internal/classifier"
	"energodoc/internal/document"
	"energodoc/internal/domain"
	"energodoc/internal/parser"
	"energodoc/internal/pipeline"
	"energodoc/internal/port"
	"energodoc/internal/rules"
	"energodoc/internal/tabular"
	"energodoc/mocks"
)

type sheet struct {
	name string
	rows [][]string
}

func workbook(t *testing.T, sheets ...sheet) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, s := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", s.name))
		} else {
			_, err := f.NewSheet(s.name)
			require.NoError(t, err)
		}
		for r, row := range s.rows {
			cells := make([]any, len(row))
			for c, v := range row {
				cells[c] = v
			}
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(s.name, cell, &cells))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

var (
	electricity = sheet{name: "Электроэнергия", rows: [][]string{
		{"Показатель", "Ед. изм.", "Январь", "Февраль", "Март", "Итого"},
		{"Потребление", "тыс. кВт·ч", "12,5", "11,0", "10,5", "34"},
		{"Стоимость", "сум", "1000", "900", "800", "2700"},
	}}
	equipment = sheet{name: "Оборудование", rows: [][]string{
		{"№", "Наименование", "Тип", "Мощность, кВт", "Место установки"},
		{"1", "Насос", "центробежный", "75", "Котельная"},
		{"2", "Компрессор", "винтовой", "0,2 МВт", "Цех 2"},
	}}
	unresolved = sheet{name: "Лист2", rows: [][]string{
		{"Показатель", "Январь"},
		{"Прочее", "5"},
	}}
)

const stemOnlyCSV = "Показатель;I квартал;II квартал\nПотребление, кВт·ч;3000;2800\n"

type fakeExtractor struct {
	content *document.Content
	err     error
	calls   int
}

func (f *fakeExtractor) Recover(_ context.Context, _ []byte, _ domain.FileType, _ domain.DocumentKind, _ rules.ScanRules) (*document.Content, error) {
	f.calls++
	return f.content, f.err
}

// blockingMapper never answers before its context ends.
type blockingMapper struct{}

func (blockingMapper) ProposeMapping(ctx context.Context, _ port.MappingRequest) (*port.MappingProposal, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newRunner(t *testing.T, mapper port.SemanticMapper, ext pipeline.Extractor) (*pipeline.Runner, *rules.Ruleset) {
	t.Helper()
	rs, err := rules.Default()
	require.NoError(t, err)
	deps := pipeline.Deps{
		Rules:      rs,
		Classifier: classifier.New(nil, zap.NewNop()),
		Extractor:  ext,
		Mapper:     mapper,
		Log:        zap.NewNop(),
	}
	r, err := pipeline.New(deps)
	require.NoError(t, err)
	return r, rs
}

func report(t *testing.T, res *pipeline.Result, section string) domain.ReadinessReport {
	t.Helper()
	for _, rep := range res.Readiness {
		if rep.SectionName == section {
			return rep
		}
	}
	t.Fatalf("no readiness report for %s", section)
	return domain.ReadinessReport{}
}

func TestNew_RequiresRulesAndClassifier(t *testing.T) {
	_, err := pipeline.New(pipeline.Deps{})
	assert.Error(t, err)
}

func TestRun_CleanWorkbookStaysDeterministic(t *testing.T) {
	m := new(mocks.MockSemanticMapper)
	r, _ := newRunner(t, m, nil)
	data := workbook(t, electricity, sheet{name: "Газ"})

	res, err := r.Run(context.Background(), pipeline.Input{FileName: "report.xlsx", FileType: domain.FileTypeXLSX, Data: data})
	require.NoError(t, err)

	assert.Equal(t, []domain.Stage{
		domain.StageClassified,
		domain.StageDeterministicParsed,
		domain.StageMergeReady,
		domain.StageMerged,
		domain.StageValidated,
	}, res.State.Trace)
	m.AssertNotCalled(t, "ProposeMapping", mock.Anything, mock.Anything)

	assert.Equal(t, domain.DocumentKindSpreadsheet, res.Data.Classification.Kind)
	series := res.Data.Resources["electricity"]
	require.NotNil(t, series)
	assert.Equal(t, "kWh", series.Unit)
	require.NotNil(t, series.Months[1].Value)
	assert.Equal(t, 12500.0, *series.Months[1].Value)
	require.NotNil(t, series.Annual)
	assert.Equal(t, 34000.0, *series.Annual.Value)
	assert.NotContains(t, res.Data.Resources, "gas")

	for _, c := range res.Data.Provenance {
		assert.Equal(t, domain.MethodDeterministic, c.Method)
		assert.True(t, c.Winner)
	}
	require.Len(t, res.Data.Sections, 2)
	assert.Equal(t, "Газ", res.Data.Sections[1].Section)
	assert.False(t, res.Data.Sections[1].FallbackRequested)

	assert.Equal(t, domain.ReadinessReady, report(t, res, "electricity").Status)
	gas := report(t, res, "gas")
	assert.Equal(t, domain.ReadinessBlocked, gas.Status)
	assert.Equal(t, []string{"resources.gas.*"}, gas.MissingFields)
}

func TestRun_IsIdempotent(t *testing.T) {
	r, _ := newRunner(t, nil, nil)
	data := workbook(t, electricity, equipment)
	in := pipeline.Input{FileName: "report.xlsx", FileType: domain.FileTypeXLSX, Data: data}

	first, err := r.Run(context.Background(), in)
	require.NoError(t, err)
	second, err := r.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, first.JSON, second.JSON)
	assert.Len(t, first.Data.Equipment, 2)
}

func TestRun_FallbackOutranksWeakDeterministic(t *testing.T) {
	m := new(mocks.MockSemanticMapper)
	m.On("ProposeMapping", mock.Anything, mock.MatchedBy(func(req port.MappingRequest) bool {
		return req.SectionID == "Электропотребление" &&
			req.PartialMapping["resources.electricity.quarter[1]"] == "B2"
	})).Return(&port.MappingProposal{
		Mapping:    []port.ProposedCell{{Path: "resources.electricity.quarter[1]", CellRange: "B2", Unit: "кВт·ч"}},
		Confidence: 0.8,
		Model:      "test-model",
	}, nil).Once()
	r, _ := newRunner(t, m, nil)

	res, err := r.Run(context.Background(), pipeline.Input{
		FileName: "Электропотребление.csv", FileType: domain.FileTypeCSV, Data: []byte(stemOnlyCSV),
	})
	require.NoError(t, err)
	m.AssertExpectations(t)

	assert.Contains(t, res.State.Trace, domain.StageFallbackPending)
	q1 := res.Data.Values["resources.electricity.quarter[1]"]
	assert.Equal(t, domain.MethodAIFallback, q1.Method)
	assert.Equal(t, 0.8, q1.Confidence)
	require.NotNil(t, q1.Value)
	assert.Equal(t, 3000.0, *q1.Value)

	q2 := res.Data.Values["resources.electricity.quarter[2]"]
	assert.Equal(t, domain.MethodDeterministic, q2.Method)

	var q1Cands []domain.FieldExtraction
	for _, c := range res.Data.Provenance {
		if c.Path == "resources.electricity.quarter[1]" {
			q1Cands = append(q1Cands, c)
		}
	}
	require.Len(t, q1Cands, 2)
	assert.Equal(t, domain.MethodDeterministic, q1Cands[0].Method)
	assert.False(t, q1Cands[0].Winner)
	assert.True(t, q1Cands[1].Winner)
	assert.Less(t, q1Cands[0].Seq, q1Cands[1].Seq)

	require.Len(t, res.Data.Sections, 1)
	assert.True(t, res.Data.Sections[0].FallbackRequested)
	assert.True(t, res.Data.Sections[0].FallbackProposed)
	assert.Equal(t, domain.ReadinessReady, report(t, res, "electricity").Status)
}

func TestRun_FallbackDisabledKeepsWeakValues(t *testing.T) {
	r, _ := newRunner(t, nil, nil)
	res, err := r.Run(context.Background(), pipeline.Input{
		FileName: "Электропотребление.csv", FileType: domain.FileTypeCSV, Data: []byte(stemOnlyCSV),
	})
	require.NoError(t, err)

	assert.NotContains(t, res.State.Trace, domain.StageFallbackPending)
	assert.Equal(t, 0.5, res.Data.Values["resources.electricity.quarter[1]"].Confidence)
	rep := report(t, res, "electricity")
	assert.Equal(t, domain.ReadinessBlocked, rep.Status)
	assert.ElementsMatch(t, []string{
		"resources.electricity.quarter[1]",
		"resources.electricity.quarter[2]",
	}, rep.LowConfidenceFields)
}

func TestRun_FallbackTimeoutLeavesPathMissing(t *testing.T) {
	guard := parser.NewGuardedMapper(blockingMapper{}, nil, parser.GuardOptions{Timeout: 20 * time.Millisecond}, nil, zap.NewNop())
	r, _ := newRunner(t, guard, nil)

	res, err := r.Run(context.Background(), pipeline.Input{
		FileName: "report.xlsx", FileType: domain.FileTypeXLSX, Data: workbook(t, unresolved),
	})
	require.NoError(t, err)

	assert.Contains(t, res.State.Trace, domain.StageFallbackPending)
	assert.Empty(t, res.Data.Values)
	require.Len(t, res.Data.Sections, 1)
	assert.True(t, res.Data.Sections[0].FallbackRequested)
	assert.False(t, res.Data.Sections[0].FallbackProposed)
	rep := report(t, res, "electricity")
	assert.Equal(t, domain.ReadinessBlocked, rep.Status)
	assert.Equal(t, []string{"resources.electricity.*"}, rep.MissingFields)
}

func TestRun_ProposedEntitiesContinueDocumentIndexes(t *testing.T) {
	m := new(mocks.MockSemanticMapper)
	m.On("ProposeMapping", mock.Anything, mock.MatchedBy(func(req port.MappingRequest) bool {
		return req.SectionID == "Лист2"
	})).Return(&port.MappingProposal{
		Mapping:    []port.ProposedCell{{Path: "equipment[0].name", CellRange: "A2"}},
		Confidence: 0.9,
	}, nil)
	r, _ := newRunner(t, m, nil)

	res, err := r.Run(context.Background(), pipeline.Input{
		FileName: "report.xlsx", FileType: domain.FileTypeXLSX, Data: workbook(t, equipment, unresolved),
	})
	require.NoError(t, err)
	m.AssertNumberOfCalls(t, "ProposeMapping", 1)

	require.Len(t, res.Data.Equipment, 3)
	assert.Equal(t, "Насос", res.Data.Equipment[0].Name.Text)
	assert.Equal(t, 2, res.Data.Equipment[2].Index)
	require.NotNil(t, res.Data.Equipment[2].Name)
	assert.Equal(t, "Прочее", res.Data.Equipment[2].Name.Text)
	assert.Equal(t, domain.MethodAIFallback, res.Data.Values["equipment[2].name"].Method)
}

func TestRun_CachedProposalGivesIdenticalRecord(t *testing.T) {
	rs, err := rules.Default()
	require.NoError(t, err)
	m := new(mocks.MockSemanticMapper)
	m.On("ProposeMapping", mock.Anything, mock.Anything).Return(&port.MappingProposal{
		Mapping:    []port.ProposedCell{{Path: "resources.electricity.quarter[1]", CellRange: "B2"}},
		Confidence: 0.75,
		Model:      "test-model",
	}, nil).Once()
	guard := parser.NewGuardedMapper(m, memory.New(), parser.GuardOptions{
		CacheTTL: time.Minute,
		KeySalt:  rs.Fingerprint(),
	}, nil, zap.NewNop())
	r, _ := newRunner(t, guard, nil)
	in := pipeline.Input{FileName: "Электропотребление.csv", FileType: domain.FileTypeCSV, Data: []byte(stemOnlyCSV)}

	first, err := r.Run(context.Background(), in)
	require.NoError(t, err)
	second, err := r.Run(context.Background(), in)
	require.NoError(t, err)

	m.AssertNumberOfCalls(t, "ProposeMapping", 1)
	assert.Equal(t, first.JSON, second.JSON)
	assert.Equal(t, domain.MethodAIFallback, second.Data.Values["resources.electricity.quarter[1]"].Method)
}

func TestRun_ImageUsesRecoveredGrid(t *testing.T) {
	ext := &fakeExtractor{content: &document.Content{Sheets: []document.Sheet{{
		Name:      "page 1 table 1",
		Origin:    domain.OriginOCR,
		Page:      1,
		TitleRows: []string{"ПОТРЕБЛЕНИЕ ЭЛЕКТРОЭНЕРГИИ, кВт·ч"},
		Rows: [][]string{
			{"Показатель", "Январь", "Февраль", "Март"},
			{"Потребление", "1200", "1100", "1050"},
		},
	}}}}
	r, _ := newRunner(t, nil, ext)

	res, err := r.Run(context.Background(), pipeline.Input{FileName: "scan.png", FileType: domain.FileTypePNG, Data: []byte("png")})
	require.NoError(t, err)
	assert.Equal(t, 1, ext.calls)
	assert.Equal(t, domain.DocumentKindImage, res.Data.Classification.Kind)
	require.NotEmpty(t, res.Data.Provenance)
	for _, c := range res.Data.Provenance {
		assert.Equal(t, domain.MethodOCRHeuristic, c.Method)
	}
	assert.Equal(t, 1200.0, *res.Data.Values["resources.electricity.month[1]"].Value)
}

func TestRun_TextBlockOfferedToFallback(t *testing.T) {
	ext := &fakeExtractor{content: &document.Content{Blocks: []document.TextBlock{{
		Section: "page 2",
		Page:    2,
		Origin:  domain.OriginOCR,
		Text:    "Расход газа за год  1500 м3",
	}}}}
	m := new(mocks.MockSemanticMapper)
	m.On("ProposeMapping", mock.Anything, mock.MatchedBy(func(req port.MappingRequest) bool {
		return req.SectionID == "page 2"
	})).Return(nil, nil).Once()
	r, _ := newRunner(t, m, ext)

	res, err := r.Run(context.Background(), pipeline.Input{FileName: "scan.tiff", FileType: domain.FileTypeTIFF, Data: []byte("tiff")})
	require.NoError(t, err)
	m.AssertExpectations(t)
	require.Len(t, res.Data.Sections, 1)
	assert.True(t, res.Data.Sections[0].FallbackRequested)
	assert.False(t, res.Data.Sections[0].FallbackProposed)
	assert.Empty(t, res.Data.Values)
}

func TestRun_RecoveryFailure(t *testing.T) {
	t.Run("image is an error", func(t *testing.T) {
		r, _ := newRunner(t, nil, &fakeExtractor{err: errors.New("tesseract: exit 1")})
		_, err := r.Run(context.Background(), pipeline.Input{FileName: "scan.jpg", FileType: domain.FileTypeJPG, Data: []byte("jpg")})
		assert.Error(t, err)
	})

	t.Run("unknown pdf becomes an empty record", func(t *testing.T) {
		r, _ := newRunner(t, nil, &fakeExtractor{err: errors.New("pdftotext: exit 1")})
		res, err := r.Run(context.Background(), pipeline.Input{FileName: "broken.pdf", FileType: domain.FileTypePDF, Data: []byte("not a pdf")})
		require.NoError(t, err)
		assert.Equal(t, domain.DocumentKindUnknown, res.Data.Classification.Kind)
		assert.Empty(t, res.Data.Values)
		require.Len(t, res.Data.Issues, 1)
		assert.Equal(t, "broken.pdf", res.Data.Issues[0].Section)
	})
}

func TestRun_UnsupportedFormat(t *testing.T) {
	r, _ := newRunner(t, nil, nil)
	_, err := r.Run(context.Background(), pipeline.Input{FileName: "a.doc", FileType: "doc", Data: []byte("x")})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestRun_Cancellation(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		r, _ := newRunner(t, nil, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := r.Run(ctx, pipeline.Input{FileName: "report.xlsx", FileType: domain.FileTypeXLSX, Data: workbook(t, electricity)})
		assert.ErrorIs(t, err, domain.ErrSubmissionCanceled)
	})

	t.Run("during fallback", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		m := new(mocks.MockSemanticMapper)
		m.On("ProposeMapping", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return(&port.MappingProposal{
				Mapping:    []port.ProposedCell{{Path: "resources.electricity.quarter[1]", CellRange: "B2"}},
				Confidence: 0.9,
			}, nil)
		r, _ := newRunner(t, m, nil)

		res, err := r.Run(ctx, pipeline.Input{FileName: "Электропотребление.csv", FileType: domain.FileTypeCSV, Data: []byte(stemOnlyCSV)})
		assert.ErrorIs(t, err, domain.ErrSubmissionCanceled)
		assert.Nil(t, res)
	})
}

func TestResumeFallback(t *testing.T) {
	m := new(mocks.MockSemanticMapper)
	m.On("ProposeMapping", mock.Anything, mock.Anything).Return(&port.MappingProposal{
		Mapping:    []port.ProposedCell{{Path: "resources.electricity.quarter[2]", CellRange: "C2"}},
		Confidence: 0.7,
	}, nil).Once()
	r, rs := newRunner(t, m, nil)

	t.Run("rejects a state past fallback", func(t *testing.T) {
		_, err := r.ResumeFallback(context.Background(), &pipeline.State{Stage: domain.StageMergeReady})
		assert.Error(t, err)
		_, err = r.ResumeFallback(context.Background(), nil)
		assert.Error(t, err)
	})

	t.Run("completes a pending state", func(t *testing.T) {
		s := document.Sheet{Name: "Электропотребление", Origin: domain.OriginSpreadsheet, Rows: [][]string{
			{"Показатель", "I квартал", "II квартал"},
			{"Потребление, кВт·ч", "3000", "2800"},
		}}
		st := &pipeline.State{
			Stage:    domain.StageFallbackPending,
			Trace:    []domain.Stage{domain.StageClassified, domain.StageDeterministicParsed, domain.StageFallbackPending},
			Sections: []pipeline.Section{{Sheet: s, Result: tabular.New(rs, zap.NewNop()).ParseSheet(&s)}},
			Pending:  []int{0},
		}

		res, err := r.ResumeFallback(context.Background(), st)
		require.NoError(t, err)
		assert.Equal(t, domain.StageValidated, res.State.Stage)
		q2 := res.Data.Values["resources.electricity.quarter[2]"]
		assert.Equal(t, domain.MethodAIFallback, q2.Method)
		assert.Equal(t, 2800.0, *q2.Value)
	})
}

func TestRunner_FallbackEnabled(t *testing.T) {
	off, _ := newRunner(t, nil, nil)
	assert.False(t, off.FallbackEnabled())
	on, _ := newRunner(t, new(mocks.MockSemanticMapper), nil)
	assert.True(t, on.FallbackEnabled())
}
