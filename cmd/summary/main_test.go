package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicommart/pkg/contracts/domain"
)

func setup(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	doc := fmt.Sprintf(`source:
  driver: fs
  root: %[1]s/raw
paths:
  transformed_dir: %[1]s/transformed
  datamart_dir: %[1]s/Datamarts
  summary_file: %[1]s/Summary.csv
  ledger_file: ""
logging:
  level: error
  output: console
telemetry:
  tracing: none
`, filepath.ToSlash(dir))
	cfgPath = filepath.Join(dir, "dicommart.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(doc), 0o644))

	study := filepath.Join(dir, "transformed", "P1")
	require.NoError(t, os.MkdirAll(study, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(study, "S1.csv"),
		[]byte("PatientID,StudyInstanceUID,SliceThickness\nP1,S1,2.5\nP1,S1,2.5\n"), 0o644))
	return dir, cfgPath
}

func TestRun_WritesSummary(t *testing.T) {
	dir, cfgPath := setup(t)

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(context.Background(), []string{"-config", cfgPath}, &stdout, &stderr), stderr.String())

	var rec domain.SummaryRecord
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rec))
	assert.Equal(t, 1, rec.TotalStudies)
	assert.Equal(t, 2, rec.TotalInstances)
	assert.InDelta(t, 5.0, rec.TotalSliceThickness, 1e-9)
	assert.FileExists(t, filepath.Join(dir, "Summary.csv"))
}

func TestRun_DryRunLeavesSummaryFileAlone(t *testing.T) {
	dir, cfgPath := setup(t)

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(context.Background(), []string{"-config", cfgPath, "-dry-run"}, &stdout, &stderr), stderr.String())
	assert.NoFileExists(t, filepath.Join(dir, "Summary.csv"))
}
