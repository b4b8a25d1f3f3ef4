package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, driver string) string {
	t.Helper()
	doc := fmt.Sprintf(`source:
  driver: %s
  root: %s
  prefix: ""
paths:
  transformed_dir: %s
  datamart_dir: %s
  summary_file: %s
  workbook_file: %s
  ledger_file: %s
pipeline:
  workers: 2
logging:
  level: error
  output: console
telemetry:
  tracing: none
`, driver,
		filepath.Join(dir, "raw"),
		filepath.Join(dir, "transformed"),
		filepath.Join(dir, "Datamarts"),
		filepath.Join(dir, "Summary.csv"),
		filepath.Join(dir, "Datamarts.xlsx"),
		filepath.Join(dir, "runs.db"))
	path := filepath.Join(dir, "dicommart.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestRun_EmptySource(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "fs")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", cfgPath, "-workbook"}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "completed: succeeded=")
	assert.Contains(t, stdout.String(), "failed=0")
	assert.FileExists(t, filepath.Join(dir, "Summary.csv"))
	assert.FileExists(t, filepath.Join(dir, "Datamarts.xlsx"))
}

func TestRun_UndecodableObjectIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "fs")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "raw", "batch"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raw", "batch", "x.dcm"), []byte("garbage"), 0o644))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", cfgPath, "-prefix", "batch/"}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "failed=1")
}

func TestRun_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "ftp")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", cfgPath}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
	assert.NotEmpty(t, stderr.String())
}

func TestRun_BadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), []string{"-nope"}, &stdout, &stderr))
}
