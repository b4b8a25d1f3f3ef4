// Package exporter writes the datamart workbook.
//
// WorkbookExporter bundles every datamart category into one .xlsx file with
// a sheet per category, a Studies sheet holding the consolidated entity
// rows and a Summary sheet with the corpus metrics. Sheets are written with
// excelize stream writers so large datamarts are not held as cell maps.
//
// Example usage:
//
//	exp := exporter.NewWorkbookExporter(store, router, summarizer, logger)
//	err := exp.WriteWorkbook(ctx, "data/Datamarts.xlsx")
package exporter
