// Package app wires the consolidation service together.
//
// New builds every component from a config.Config: the object source, the
// entity store, the datamart router, the summarizer, the workbook exporter,
// the run ledger and the run event fan-out (websocket hub plus notifier).
// The commands under cmd/ are thin shells over it:
//
//	application, err := app.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer application.Close(context.Background())
//	report, err := application.Consolidate(ctx, operations.RunRequest{})
//
// Initialization errors are returned to the caller; the package never calls
// os.Exit.
package app
