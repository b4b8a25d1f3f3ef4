package exporter

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"dicommart/internal/config"
	"dicommart/internal/dataprocessing"
	"dicommart/internal/datamart"
	"dicommart/internal/entitystore"
	"dicommart/internal/errors"
	"dicommart/pkg/contracts/domain"
)

var columns = []string{"PatientID", "StudyInstanceUID", "SOPInstanceUID", "SliceThickness"}

func record(values ...string) domain.AttributeRecord {
	m := make(map[string]string, len(values))
	for i, v := range values {
		if v != "" {
			m[columns[i]] = v
		}
	}
	return domain.NewAttributeRecord(columns, m)
}

func setup(t *testing.T) (*WorkbookExporter, *entitystore.Store, *datamart.Router) {
	t.Helper()
	dir := t.TempDir()
	store := entitystore.New(filepath.Join(dir, "transformed"), nil)
	router := datamart.NewRouter(filepath.Join(dir, "Datamarts"), []domain.DatamartCategory{
		{Name: "studyInfo", Columns: []string{"StudyInstanceUID", "PatientID"}, PrimaryKey: "StudyInstanceUID"},
		{Name: "imageInfo", Columns: []string{"SOPInstanceUID", "SliceThickness"}, PrimaryKey: "SOPInstanceUID"},
	}, nil)
	summarizer := dataprocessing.NewSummarizer(nil, dataprocessing.DefaultSummarizerConfig())
	return NewWorkbookExporter(store, router, summarizer, nil), store, router
}

func TestWriteWorkbook(t *testing.T) {
	exp, store, router := setup(t)
	ctx := context.Background()

	for _, rec := range []domain.AttributeRecord{
		record("P1", "S1", "I1", "1.0"),
		record("P1", "S1", "I2", "1.0"),
		record("P2", "S2", "I3", "2.5"),
	} {
		_, err := store.Merge(ctx, rec)
		require.NoError(t, err)
		for _, res := range router.Route(ctx, rec) {
			require.NoError(t, res.Err)
		}
	}

	path := filepath.Join(t.TempDir(), "out", "Datamarts.xlsx")
	require.NoError(t, exp.WriteWorkbook(ctx, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"studyInfo", "imageInfo", StudiesSheet, config.WorkbookSummarySheet}, f.GetSheetList())

	studies, err := f.GetRows("studyInfo")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"StudyInstanceUID", "PatientID"},
		{"S1", "P1"},
		{"S2", "P2"},
	}, studies)

	images, err := f.GetRows("imageInfo")
	require.NoError(t, err)
	assert.Len(t, images, 4)

	all, err := f.GetRows(StudiesSheet)
	require.NoError(t, err)
	assert.Equal(t, columns, all[0])
	assert.Len(t, all, 4)

	summary, err := f.GetRows(config.WorkbookSummarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Metric", "Value"}, summary[0])
	assert.Equal(t, []string{domain.MetricTotalStudies, "2"}, summary[1])
}

func TestWriteWorkbook_EmptyStores(t *testing.T) {
	exp, _, _ := setup(t)
	path := filepath.Join(t.TempDir(), "Datamarts.xlsx")
	require.NoError(t, exp.WriteWorkbook(context.Background(), path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("imageInfo")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"SOPInstanceUID", "SliceThickness"}}, rows, "header only")
}

func TestWriteWorkbook_Cancelled(t *testing.T) {
	exp, _, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "Datamarts.xlsx")
	err := exp.WriteWorkbook(ctx, path)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, path)
}

func TestWriteWorkbook_CorruptDatamart(t *testing.T) {
	exp, _, router := setup(t)
	require.NoError(t, router.EnsureRoot())
	require.NoError(t, writeRaw(router.Path("studyInfo"), "A,B\n1,2,3\n"))

	err := exp.WriteWorkbook(context.Background(), filepath.Join(t.TempDir(), "x.xlsx"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypePersistence))
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "studyInfo", SheetName("studyInfo"))
	long := strings.Repeat("x", 40)
	assert.Len(t, SheetName(long), 31)
}
