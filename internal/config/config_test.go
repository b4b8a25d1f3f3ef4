package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "s3", cfg.Source.Driver)
	assert.Equal(t, DefaultRawBucket, cfg.Source.Bucket)
	assert.Equal(t, DefaultRootPrefix, cfg.Source.Prefix)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "none", cfg.Notify.Driver)
	assert.GreaterOrEqual(t, cfg.Pipeline.Workers, 1)
	assert.Len(t, cfg.Catalog.Datamarts, 8)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults only",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "data/transformed", cfg.Paths.TransformedDir)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
			},
		},
		{
			name: "file overrides defaults",
			file: `
source:
  driver: fs
  root: /srv/raw
  prefix: batch1/
pipeline:
  workers: 3
server:
  port: 9090
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "fs", cfg.Source.Driver)
				assert.Equal(t, "/srv/raw", cfg.Source.Root)
				assert.Equal(t, 3, cfg.Pipeline.Workers)
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, "data/Datamarts", cfg.Paths.DatamartDir, "untouched fields keep defaults")
			},
		},
		{
			name: "env overrides file",
			file: "server:\n  port: 9090\n",
			env: map[string]string{
				"DICOMMART_SERVER_PORT":          "7070",
				"DICOMMART_NOTIFY_DRIVER":        "kafka",
				"DICOMMART_NOTIFY_KAFKA_BROKERS": "a:9092,b:9092",
				"DICOMMART_NOTIFY_KAFKA_TOPIC":   "runs",
				"DICOMMART_PIPELINE_TIMEOUT":     "5m",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 7070, cfg.Server.Port)
				assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Notify.KafkaBrokers)
				assert.Equal(t, 5*time.Minute, cfg.Pipeline.Timeout)
			},
		},
		{
			name:    "kafka without brokers",
			env:     map[string]string{"DICOMMART_NOTIFY_DRIVER": "kafka"},
			wantErr: true,
		},
		{
			name:    "unknown source driver",
			file:    "source:\n  driver: ftp\n",
			wantErr: true,
		},
		{
			name:    "fs without root",
			file:    "source:\n  driver: fs\n",
			wantErr: true,
		},
		{
			name:    "zero workers",
			env:     map[string]string{"DICOMMART_PIPELINE_WORKERS": "0"},
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			file:    "server: [port",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := writeFile(t, "dicommart.yaml", tt.file)
			cfg, err := Load(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_CatalogFile(t *testing.T) {
	catalog := writeFile(t, "catalog.yaml", `
attributes: [PatientID, StudyInstanceUID, SliceThickness, Modality]
datamarts:
  - name: studyInfo
    columns: [StudyInstanceUID, PatientID]
    primary_key: StudyInstanceUID
  - name: misc
    columns: [Modality]
`)
	t.Setenv("DICOMMART_CATALOG_FILE", catalog)

	cfg, err := Load(writeFile(t, "dicommart.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"PatientID", "StudyInstanceUID", "SliceThickness", "Modality"}, cfg.Catalog.Attributes)
	require.Len(t, cfg.Catalog.Datamarts, 2)
	assert.Equal(t, map[string]string{"studyInfo": "StudyInstanceUID"}, cfg.Catalog.PrimaryKeys())
}

func TestCatalogValidate(t *testing.T) {
	valid := DefaultCatalog()
	require.NoError(t, valid.Validate())
	assert.Equal(t, map[string]string{
		"patientInfo": "PatientID",
		"studyInfo":   "StudyInstanceUID",
		"seriesInfo":  "SeriesInstanceUID",
		"imageInfo":   "SOPInstanceUID",
	}, valid.PrimaryKeys())

	tests := []struct {
		name   string
		mutate func(*CatalogConfig)
	}{
		{"no attributes", func(c *CatalogConfig) { c.Attributes = nil }},
		{"missing natural key", func(c *CatalogConfig) { c.Attributes = []string{"PatientID", "Modality"} }},
		{"duplicate datamart", func(c *CatalogConfig) { c.Datamarts = append(c.Datamarts, c.Datamarts[0]) }},
		{"unsafe name", func(c *CatalogConfig) { c.Datamarts[0].Name = "../up" }},
		{"key outside columns", func(c *CatalogConfig) { c.Datamarts[0].PrimaryKey = "Modality" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultCatalog()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestDefaultCatalog_IsACopy(t *testing.T) {
	a := DefaultCatalog()
	a.Attributes[0] = "changed"
	assert.Equal(t, "PatientID", DefaultCatalog().Attributes[0])
}
