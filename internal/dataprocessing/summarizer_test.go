package dataprocessing

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicommart/internal/errors"
	"dicommart/internal/table"
	"dicommart/pkg/contracts/domain"
)

func writeEntity(t *testing.T, root, patient, study string, thickness ...string) {
	t.Helper()
	tbl := table.New([]string{"PatientID", "StudyInstanceUID", "InstanceNumber", "SliceThickness"})
	for i, v := range thickness {
		tbl.AppendRow([]string{patient, study, string(rune('1' + i)), v})
	}
	data, err := tbl.Encode()
	require.NoError(t, err)
	path := filepath.Join(root, patient, study+table.Ext)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newTestSummarizer() *Summarizer {
	s := NewSummarizer(nil, DefaultSummarizerConfig())
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func TestSummarize_TwoStudies(t *testing.T) {
	root := t.TempDir()
	writeEntity(t, root, "P1", "S1", "1.0", "1.0", "2.0")
	writeEntity(t, root, "P2", "S2", "2.5", "2.5", "2.5", "2.5", "2.5")

	got, err := newTestSummarizer().Summarize(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 2, got.TotalStudies)
	assert.Equal(t, 8, got.TotalInstances)
	assert.InDelta(t, 4.0, got.AverageSlicesPerStudy, 1e-9)
	assert.InDelta(t, 16.5, got.TotalSliceThickness, 1e-9)

	assert.Equal(t, 8, got.ThicknessDistribution.Count)
	assert.InDelta(t, 16.5/8, got.ThicknessDistribution.Mean, 1e-9)
	assert.Equal(t, 1.0, got.ThicknessDistribution.Min)
	assert.Equal(t, 2.5, got.ThicknessDistribution.Max)

	// Last file in path order is P2/S2.
	assert.Equal(t, 5, got.LastFileThickness.Count)
	assert.Equal(t, 0.0, got.LastFileThickness.Std)

	assert.Equal(t, map[string]int{"1": 2, "2": 1, "2.5": 5}, got.ThicknessCounts)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), got.GeneratedAt)
}

func TestSummarize_SkipsNonNumericThickness(t *testing.T) {
	root := t.TempDir()
	writeEntity(t, root, "P1", "S1", "1.5", "n/a", "", "NaN")

	got, err := newTestSummarizer().Summarize(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 1, got.TotalStudies)
	assert.Equal(t, 4, got.TotalInstances)
	assert.Equal(t, 2, got.SkippedThickness)
	assert.Equal(t, 1, got.ThicknessDistribution.Count)
	assert.InDelta(t, 1.0, got.AverageSlicesPerStudy, 1e-9)
}

func TestSummarize_EmptyRoot(t *testing.T) {
	for _, root := range []string{t.TempDir(), filepath.Join(t.TempDir(), "missing")} {
		got, err := newTestSummarizer().Summarize(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, 0, got.TotalStudies)
		assert.Equal(t, 0.0, got.AverageSlicesPerStudy)
		assert.Equal(t, domain.Describe{}, got.ThicknessDistribution)
	}
}

func TestSummarize_StudyWithoutThicknessColumn(t *testing.T) {
	root := t.TempDir()
	writeEntity(t, root, "P1", "S1", "3.0", "3.0", "3.0")

	tbl := table.New([]string{"PatientID", "StudyInstanceUID"})
	tbl.AppendRow([]string{"P2", "S2"})
	data, err := tbl.Encode()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "P2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "P2", "S2.csv"), data, 0o644))

	got, err := newTestSummarizer().Summarize(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalStudies)
	assert.InDelta(t, 3.0, got.AverageSlicesPerStudy, 1e-9)
	assert.Equal(t, 3, got.LastFileThickness.Count, "last file carrying the column")
}

func TestSummarize_StudyWithEmptyThicknessCells(t *testing.T) {
	root := t.TempDir()
	writeEntity(t, root, "P1", "S1", "2.0", "2.0", "2.0", "2.0")
	writeEntity(t, root, "P2", "S2", "", "")

	got, err := newTestSummarizer().Summarize(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalStudies)
	assert.Equal(t, 6, got.TotalInstances)
	assert.InDelta(t, 2.0, got.AverageSlicesPerStudy, 1e-9, "empty study counts as zero slices")
	assert.Equal(t, 4, got.ThicknessDistribution.Count)
	assert.Equal(t, 4, got.LastFileThickness.Count)
	assert.Equal(t, 0, got.SkippedThickness)
}

func TestSummarize_MissingRequiredColumn(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "P1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "P1", "S1.csv"), []byte("PatientID,SliceThickness\nP1,1\n"), 0o644))

	_, err := newTestSummarizer().Summarize(context.Background(), root)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeAggregation))
}

func TestDescribe(t *testing.T) {
	d := Describe([]float64{4, 1, 3, 2})
	assert.Equal(t, 4, d.Count)
	assert.InDelta(t, 2.5, d.Mean, 1e-9)
	assert.InDelta(t, 1.2909944487, d.Std, 1e-9)
	assert.Equal(t, 1.0, d.Min)
	assert.InDelta(t, 1.75, d.Q25, 1e-9)
	assert.InDelta(t, 2.5, d.Q50, 1e-9)
	assert.InDelta(t, 3.25, d.Q75, 1e-9)
	assert.Equal(t, 4.0, d.Max)

	single := Describe([]float64{7})
	assert.Equal(t, domain.Describe{Count: 1, Mean: 7, Min: 7, Q25: 7, Q50: 7, Q75: 7, Max: 7}, single)
}

func TestWriteSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "Summary.csv")
	rec := domain.SummaryRecord{
		TotalStudies:          2,
		TotalInstances:        8,
		TotalSliceThickness:   16.5,
		AverageSlicesPerStudy: 4,
		ThicknessDistribution: Describe([]float64{1, 2}),
		ThicknessCounts:       map[string]int{"1": 1, "2": 1},
	}

	require.NoError(t, newTestSummarizer().WriteSummary(context.Background(), path, rec))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tbl, err := table.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Metric", "Value"}, tbl.Columns())
	require.Equal(t, 7, tbl.Len())
	assert.Equal(t, []string{domain.MetricTotalStudies, "2"}, tbl.Row(0))
	assert.Equal(t, []string{domain.MetricAverageSlicesPerStudy, "4"}, tbl.Row(3))

	var dist domain.Describe
	require.NoError(t, json.Unmarshal([]byte(tbl.Row(4)[1]), &dist))
	assert.Equal(t, 2, dist.Count)
}
