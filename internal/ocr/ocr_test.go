package ocr_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"energodoc/internal/domain"
	"energodoc/internal/ocr"
	"energodoc/internal/rules"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fn    func(name string, args []string) ([]byte, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	f.mu.Unlock()
	out, err := f.fn(name, args)
	if err != nil {
		return nil, []byte(err.Error()), err
	}
	return out, nil, nil
}

func (f *fakeRunner) called(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// pdftoppmWrites mimics pdftoppm by creating one png per requested page.
func pdftoppmWrites(args []string) {
	prefix := args[len(args)-1]
	first := 1
	for i, a := range args {
		if a == "-f" {
			_, _ = fmt.Sscanf(args[i+1], "%d", &first)
		}
	}
	_ = os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, first), []byte("png"), 0o600)
}

func scanRules() rules.ScanRules {
	return rules.ScanRules{MinTableLines: 3}
}

func electricityPage() string {
	return strings.Join([]string{
		"ПОТРЕБЛЕНИЕ ЭЛЕКТРОЭНЕРГИИ, кВт·ч",
		"",
		fmt.Sprintf("%-16s%10s%10s%10s", "Показатель", "Январь", "Февраль", "Март"),
		fmt.Sprintf("%-16s%10s%10s%10s", "Потребление", "1200", "1100", "1050"),
		fmt.Sprintf("%-16s%10s%10s%10s", "Тариф", "450", "450", "450"),
	}, "\n")
}

func TestRecoverTables_AlignedColumns(t *testing.T) {
	sheets, block := ocr.RecoverTables(ocr.Page{Number: 1, Text: electricityPage(), Origin: domain.OriginOCR}, scanRules())
	require.Len(t, sheets, 1)
	assert.Nil(t, block)

	s := sheets[0]
	assert.Equal(t, "page 1 table 1", s.Name)
	assert.Equal(t, domain.OriginOCR, s.Origin)
	assert.Equal(t, []string{"ПОТРЕБЛЕНИЕ ЭЛЕКТРОЭНЕРГИИ, кВт·ч"}, s.TitleRows)
	require.Len(t, s.Rows, 3)
	assert.Equal(t, []string{"Показатель", "Январь", "Февраль", "Март"}, s.Rows[0])
	assert.Equal(t, []string{"Потребление", "1200", "1100", "1050"}, s.Rows[1])
	assert.Equal(t, []string{"Тариф", "450", "450", "450"}, s.Rows[2])
}

func TestRecoverTables_MissingCellKeepsColumn(t *testing.T) {
	text := strings.Join([]string{
		fmt.Sprintf("%-16s%10s%10s%10s", "Ресурс", "I кв", "II кв", "III кв"),
		fmt.Sprintf("%-16s%10s%10s%10s", "Газ", "10", "", "30"),
		fmt.Sprintf("%-16s%10s%10s%10s", "Вода", "1", "2", "3"),
	}, "\n")
	sheets, _ := ocr.RecoverTables(ocr.Page{Number: 2, Text: text, Origin: domain.OriginPDFText}, scanRules())
	require.Len(t, sheets, 1)
	assert.Equal(t, []string{"Газ", "10", "", "30"}, sheets[0].Rows[1])
}

func TestRecoverTables_PipesAndRules(t *testing.T) {
	text := strings.Join([]string{
		"Узлы учета",
		"+-----+----------------+----------+",
		"| №   | Место установки | Ресурс   |",
		"+-----+----------------+----------+",
		"| 1   | Котельная      | газ      |",
		"| 2   | Цех 3          | электроэнергия |",
		"+-----+----------------+----------+",
	}, "\n")
	sheets, block := ocr.RecoverTables(ocr.Page{Number: 1, Text: text, Origin: domain.OriginOCR}, scanRules())
	require.Len(t, sheets, 1)
	assert.Nil(t, block)
	assert.Equal(t, []string{"Узлы учета"}, sheets[0].TitleRows)
	require.Len(t, sheets[0].Rows, 3)
	assert.Equal(t, []string{"№", "Место установки", "Ресурс"}, sheets[0].Rows[0])
	assert.Equal(t, []string{"2", "Цех 3", "электроэнергия"}, sheets[0].Rows[2])
}

func TestRecoverTables_ShortRunIsText(t *testing.T) {
	text := "Пояснительная записка\n\nA      B\nC      D\n\nКонец"
	sheets, block := ocr.RecoverTables(ocr.Page{Number: 4, Text: text, Origin: domain.OriginOCR}, scanRules())
	assert.Empty(t, sheets)
	require.NotNil(t, block)
	assert.Equal(t, "page 4", block.Section)
	assert.Contains(t, block.Text, "Пояснительная")
}

func TestRecoverTables_ProseBesideTableIsKept(t *testing.T) {
	note := "Примечание: здание отапливается котельной мощностью 2 МВт, работающей на природном газе."
	text := electricityPage() + "\n\n" + note + "\nОтопительный период 210 суток."
	sheets, block := ocr.RecoverTables(ocr.Page{Number: 3, Text: text, Origin: domain.OriginOCR}, scanRules())
	require.Len(t, sheets, 1)
	assert.Equal(t, []string{"ПОТРЕБЛЕНИЕ ЭЛЕКТРОЭНЕРГИИ, кВт·ч"}, sheets[0].TitleRows)
	require.Len(t, sheets[0].Rows, 3)

	require.NotNil(t, block)
	assert.Equal(t, "page 3", block.Section)
	assert.Equal(t, 3, block.Page)
	assert.Equal(t, domain.OriginOCR, block.Origin)
	assert.Equal(t, note+"\nОтопительный период 210 суток.", block.Text)
	assert.NotContains(t, block.Text, "Январь")
}

func TestRecoverTables_RaggedRunIsText(t *testing.T) {
	text := strings.Join([]string{
		"Адрес объекта    г. Москва",
		"Год постройки    1975    кирпич    5 этажей    подвал",
		"Собственник    ГБУ    Жилищник",
	}, "\n")
	sheets, block := ocr.RecoverTables(ocr.Page{Number: 1, Text: text, Origin: domain.OriginOCR}, scanRules())
	assert.Empty(t, sheets)
	require.NotNil(t, block)
	assert.Equal(t, text, block.Text)
}

func TestRecoverTables_SparseRowStaysInTable(t *testing.T) {
	text := strings.Join([]string{
		fmt.Sprintf("%-16s%10s%10s%10s%10s", "Ресурс", "I кв", "II кв", "III кв", "IV кв"),
		fmt.Sprintf("%-16s%10s%10s%10s%10s", "Газ", "10", "", "", "40"),
		fmt.Sprintf("%-16s%10s%10s%10s%10s", "Вода", "1", "2", "3", "4"),
	}, "\n")
	sheets, block := ocr.RecoverTables(ocr.Page{Number: 1, Text: text, Origin: domain.OriginOCR}, scanRules())
	require.Len(t, sheets, 1)
	assert.Nil(t, block)
	assert.Equal(t, []string{"Газ", "10", "", "", "40"}, sheets[0].Rows[1])
}

func TestRecoverTables_BlankPage(t *testing.T) {
	sheets, block := ocr.RecoverTables(ocr.Page{Number: 1, Text: "  \n\n"}, scanRules())
	assert.Empty(t, sheets)
	assert.Nil(t, block)
}

func TestEngine_PDFTextSplitsPages(t *testing.T) {
	runner := &fakeRunner{fn: func(name string, args []string) ([]byte, error) {
		return []byte("first page\fsecond page\f"), nil
	}}
	e := ocr.NewEngine(ocr.Config{}, runner, zap.NewNop())

	pages, err := e.PDFText(context.Background(), []byte("%PDF"), 5)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 2, pages[1].Number)
	assert.Equal(t, "second page", pages[1].Text)
	assert.Equal(t, domain.OriginPDFText, pages[0].Origin)
	assert.Equal(t, 1, runner.called("pdftotext -layout -enc UTF-8 -eol unix -l 5"))
}

func TestEngine_RecoverImage(t *testing.T) {
	runner := &fakeRunner{fn: func(name string, args []string) ([]byte, error) {
		require.Equal(t, "tesseract", name)
		return []byte(electricityPage()), nil
	}}
	e := ocr.NewEngine(ocr.Config{}, runner, zap.NewNop())

	content, err := e.Recover(context.Background(), []byte("img"), domain.FileTypePNG, domain.DocumentKindImage, scanRules())
	require.NoError(t, err)
	require.Len(t, content.Sheets, 1)
	assert.Equal(t, domain.OriginOCR, content.Sheets[0].Origin)
}

func TestEngine_RecoverHybridOCRsSparsePages(t *testing.T) {
	runner := &fakeRunner{fn: func(name string, args []string) ([]byte, error) {
		switch name {
		case "pdftotext":
			return []byte(electricityPage() + "\f \n\f"), nil
		case "pdftoppm":
			pdftoppmWrites(args)
			return nil, nil
		case "tesseract":
			return []byte("Scanned appendix without tables"), nil
		}
		return nil, errors.New("unexpected " + name)
	}}
	e := ocr.NewEngine(ocr.Config{}, runner, zap.NewNop())

	content, err := e.Recover(context.Background(), []byte("%PDF"), domain.FileTypePDF, domain.DocumentKindHybrid, scanRules())
	require.NoError(t, err)
	require.Len(t, content.Sheets, 1)
	assert.Equal(t, domain.OriginPDFText, content.Sheets[0].Origin)
	require.Len(t, content.Blocks, 1)
	assert.Equal(t, 2, content.Blocks[0].Page)
	assert.Equal(t, domain.OriginOCR, content.Blocks[0].Origin)
	assert.Equal(t, 1, runner.called("pdftoppm -r 300 -png -f 2 -l 2"))
}

// noisyRunner fails tesseract with stderr that names a temp path.
type noisyRunner struct{}

func (noisyRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	switch name {
	case "pdftotext":
		return []byte(electricityPage() + "\f \n\f"), nil, nil
	case "pdftoppm":
		pdftoppmWrites(args)
		return nil, nil, nil
	}
	return nil, []byte("Error in pixReadStream: " + args[0]), errors.New("exit status 1")
}

func TestEngine_FailedPageIssueOmitsStderr(t *testing.T) {
	e := ocr.NewEngine(ocr.Config{}, noisyRunner{}, zap.NewNop())

	content, err := e.Recover(context.Background(), []byte("%PDF"), domain.FileTypePDF, domain.DocumentKindHybrid, scanRules())
	require.NoError(t, err)
	require.Len(t, content.Issues, 1)
	issue := content.Issues[0]
	assert.Equal(t, domain.IssueExtractionFailure, issue.Kind)
	assert.Equal(t, 2, issue.Page)
	assert.Equal(t, "tesseract: exit status 1", issue.Message)
	assert.NotContains(t, issue.Message, "energodoc-ppm")
}

func TestEngine_RecoverFailedOCRIsUnreadable(t *testing.T) {
	runner := &fakeRunner{fn: func(name string, args []string) ([]byte, error) {
		return nil, errors.New("boom")
	}}
	e := ocr.NewEngine(ocr.Config{}, runner, zap.NewNop())

	_, err := e.Recover(context.Background(), []byte("%PDF"), domain.FileTypePDF, domain.DocumentKindImage, scanRules())
	assert.ErrorIs(t, err, domain.ErrUnreadableDocument)

	_, err = e.Recover(context.Background(), []byte("x"), domain.FileTypeCSV, domain.DocumentKindText, scanRules())
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}
