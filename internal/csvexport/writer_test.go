package csvexport

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energodoc/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func TestWriteHeader(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader())
	w.Flush()
	require.NoError(t, w.Error())

	row, err := csv.NewReader(&buf).Read()
	require.NoError(t, err)

	assert.Len(t, row, 11)
	assert.Equal(t, "Seq", row[0])
	assert.Equal(t, "Canonical Path", row[1])
	assert.Equal(t, "Note", row[10])
}

func TestExport_WinnersAndLosers(t *testing.T) {
	data := &domain.CanonicalSourceData{
		Provenance: []domain.FieldExtraction{
			{
				Seq: 0, Path: "resources.electricity.quarter[1]", Value: ptr(3000), Unit: "kWh",
				Method: domain.MethodDeterministic, Confidence: 0.55,
				Source: domain.SourceRef{Sheet: "Лист1", Rows: domain.CellSpan{From: 2, To: 2}, Cols: domain.CellSpan{From: 2, To: 2}},
			},
			{
				Seq: 1, Path: "resources.electricity.quarter[1]", Value: ptr(3000.5), Unit: "kWh",
				Method: domain.MethodAIFallback, Confidence: 0.8, Winner: true,
				Source: domain.SourceRef{Sheet: "Лист1", Rows: domain.CellSpan{From: 2, To: 2}, Cols: domain.CellSpan{From: 2, To: 3}},
				Note:   "proposed",
			},
			{
				Seq: 2, Path: "equipment[0].name", Text: "Котельная",
				Method: domain.MethodOCRHeuristic, Confidence: 0.7, Winner: true,
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, data))

	raw := buf.Bytes()
	require.True(t, bytes.HasPrefix(raw, BOM))

	rows, err := csv.NewReader(bytes.NewReader(raw[len(BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, []string{"0", "resources.electricity.quarter[1]", "3000", "", "kWh", "deterministic", "0.550", "No", "Лист1", "B2", ""}, rows[1])
	assert.Equal(t, "3000.5", rows[2][2])
	assert.Equal(t, "Yes", rows[2][7])
	assert.Equal(t, "B2:C2", rows[2][9])
	assert.Equal(t, "proposed", rows[2][10])

	assert.Equal(t, "", rows[3][2])
	assert.Equal(t, "Котельная", rows[3][3])
	assert.Equal(t, "", rows[3][9])
}

func TestExport_EmptyRecord(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, &domain.CanonicalSourceData{}))

	rows, err := csv.NewReader(bytes.NewReader(buf.Bytes()[len(BOM):])).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Q1 report", "Q1_report"},
		{"a//b??c", "a_b_c"},
		{"__x__", "x"},
		{"Отчёт 2024", "2024"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), tt.in)
	}
}

func TestBuildFilename(t *testing.T) {
	assert.Equal(t, "energy_2024_v3_provenance.csv", BuildFilename("energy 2024.xlsx", 3))
	assert.Equal(t, "submission_v1_provenance.csv", BuildFilename("Отчёт.xlsx", 1))
}
