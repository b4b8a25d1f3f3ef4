package exporter

import (
	"context"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"dicommart/internal/config"
	"dicommart/internal/dataprocessing"
	"dicommart/internal/datamart"
	"dicommart/internal/entitystore"
	"dicommart/internal/errors"
	"dicommart/internal/files"
	"dicommart/internal/table"
)

// StudiesSheet holds every consolidated entity row.
const StudiesSheet = "Studies"

// maxSheetName is the longest sheet name Excel accepts.
const maxSheetName = 31

// WorkbookExporter writes Datamarts.xlsx.
type WorkbookExporter struct {
	store      *entitystore.Store
	router     *datamart.Router
	summarizer *dataprocessing.Summarizer
	files      *files.Manager
	logger     *slog.Logger
}

// NewWorkbookExporter creates an exporter over the given stores.
func NewWorkbookExporter(store *entitystore.Store, router *datamart.Router, summarizer *dataprocessing.Summarizer, logger *slog.Logger) *WorkbookExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkbookExporter{
		store:      store,
		router:     router,
		summarizer: summarizer,
		files:      files.NewManager(""),
		logger:     logger.With(slog.String("component", "workbook_exporter")),
	}
}

// WriteWorkbook builds the workbook and atomically replaces path. Categories
// without a datamart file yet get a header-only sheet.
func (w *WorkbookExporter) WriteWorkbook(ctx context.Context, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheets := 0
	for _, cat := range w.router.Categories() {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, err := w.router.Load(cat.Name)
		if errors.IsType(err, errors.ErrTypeNotFound) {
			t, err = table.New(cat.Columns), nil
		}
		if err != nil {
			return err
		}
		if err := writeSheet(f, cat.Name, t); err != nil {
			return errors.NewPersistenceError("write datamart sheet", err).WithContext("category", cat.Name)
		}
		sheets++
	}

	studies, err := w.store.LoadAll(ctx)
	if err != nil {
		return errors.NewPersistenceError("load entity files", err)
	}
	if err := writeSheet(f, StudiesSheet, studies); err != nil {
		return errors.NewPersistenceError("write studies sheet", err)
	}

	rec, err := w.summarizer.Summarize(ctx, w.store.Root())
	if err != nil {
		return err
	}
	summary, err := dataprocessing.SummaryTable(rec)
	if err != nil {
		return err
	}
	if err := writeSheet(f, config.WorkbookSummarySheet, summary); err != nil {
		return errors.NewPersistenceError("write summary sheet", err)
	}

	// NewFile starts with a default sheet none of ours replaced.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return errors.NewPersistenceError("drop default sheet", err)
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return errors.NewPersistenceError("encode workbook", err)
	}
	if err := w.files.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return errors.NewPersistenceError("write workbook", err).WithContext("path", path)
	}

	w.logger.InfoContext(ctx, "workbook written",
		slog.String("path", path),
		slog.Int("datamart_sheets", sheets),
		slog.Int("studies_rows", studies.Len()),
	)
	return nil
}

// writeSheet streams t into a new sheet named name: the header row, then
// one row per table row.
func writeSheet(f *excelize.File, name string, t *table.Table) error {
	name = SheetName(name)
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(name)
	if err != nil {
		return err
	}

	if err := setRow(sw, 1, t.Columns()); err != nil {
		return err
	}
	for i := 0; i < t.Len(); i++ {
		if err := setRow(sw, i+2, t.Row(i)); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func setRow(sw *excelize.StreamWriter, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return sw.SetRow(cell, cells)
}

// SheetName truncates name to the length Excel accepts.
func SheetName(name string) string {
	r := []rune(name)
	if len(r) > maxSheetName {
		return string(r[:maxSheetName])
	}
	return name
}
