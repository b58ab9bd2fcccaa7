package cli_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energodoc/internal/cli"
	"energodoc/internal/domain"
	"energodoc/internal/rules"
)

const consumptionCSV = "Показатель;I квартал;II квартал\nЭлектроэнергия, кВт·ч;3000;2800\n"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRules_PrintsVersionAndFingerprint(t *testing.T) {
	rs, err := rules.Default()
	require.NoError(t, err)

	out, err := execute(t, "rules", "--sections")
	require.NoError(t, err)

	assert.Contains(t, out, "version:     "+rs.Version)
	assert.Contains(t, out, "fingerprint: "+rs.Fingerprint())
	assert.Contains(t, out, "section electricity (min 0.60)")
}

func TestRules_MissingFile(t *testing.T) {
	_, err := execute(t, "rules", "--rules", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestClassify_CSV(t *testing.T) {
	path := writeFile(t, "q.csv", consumptionCSV)

	out, err := execute(t, "classify", path)
	require.NoError(t, err)

	var dc domain.DocumentClassification
	require.NoError(t, json.Unmarshal([]byte(out), &dc))
	assert.Equal(t, domain.DocumentKindText, dc.Kind)
	assert.Equal(t, 1, dc.PageCount)
}

func TestClassify_UnsupportedFormat(t *testing.T) {
	path := writeFile(t, "notes.docx", "x")

	_, err := execute(t, "classify", path)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestProcess_JSON(t *testing.T) {
	path := writeFile(t, "q.csv", consumptionCSV)

	out, err := execute(t, "process", path)
	require.NoError(t, err)

	var res struct {
		File      string                     `json:"file"`
		Trace     []domain.Stage             `json:"trace"`
		Canonical domain.CanonicalSourceData `json:"canonical"`
		Readiness []domain.ReadinessReport   `json:"readiness"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "q.csv", res.File)
	assert.Equal(t, domain.StageValidated, res.Trace[len(res.Trace)-1])
	assert.NotEmpty(t, res.Canonical.Provenance)
	assert.NotEmpty(t, res.Readiness)
}

func TestProcess_CSV(t *testing.T) {
	path := writeFile(t, "q.csv", consumptionCSV)

	out, err := execute(t, "process", "--format", "csv", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(out, "\ufeff")), "\n")
	require.Greater(t, len(lines), 1)
	assert.True(t, strings.HasPrefix(lines[0], "Seq,Canonical Path"))
	assert.Contains(t, out, "resources.electricity.quarter[1]")
}

func TestProcess_InvalidFormat(t *testing.T) {
	path := writeFile(t, "q.csv", consumptionCSV)

	_, err := execute(t, "process", "--format", "xml", path)
	assert.ErrorContains(t, err, "invalid output format")
}

func TestProcess_RequiresFile(t *testing.T) {
	_, err := execute(t, "process")
	assert.Error(t, err)
}
