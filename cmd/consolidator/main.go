// Command consolidator runs the pipeline once: every object under the prefix
// is merged into the entity store, fanned out into the datamarts and
// summarized. It exits non-zero only when the run could not proceed at all.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dicommart/internal/app"
	"dicommart/internal/config"
	"dicommart/internal/operations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("consolidator", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML configuration file")
	prefix := fs.String("prefix", "", "object key prefix to consolidate (defaults to source.prefix)")
	workers := fs.Int("workers", 0, "concurrent workers per phase (defaults to pipeline.workers)")
	workbook := fs.Bool("workbook", false, "also export the datamarts workbook")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "load configuration: %v\n", err)
		return 1
	}

	application, err := app.New(ctx, cfg, app.WithConsole(stderr))
	if err != nil {
		fmt.Fprintf(stderr, "initialize: %v\n", err)
		return 1
	}
	defer func() { _ = application.Close(context.Background()) }()

	report, err := application.Consolidate(ctx, operations.RunRequest{
		Prefix:   *prefix,
		Workers:  *workers,
		Workbook: *workbook || cfg.Pipeline.Workbook,
	})
	if report != nil {
		fmt.Fprintf(stdout, "run %s %s: succeeded=%d failed=%d duration=%s\n",
			report.ID, report.Status, report.Succeeded, report.Failed, report.Duration.Round(time.Millisecond))
	}
	if err != nil {
		fmt.Fprintf(stderr, "run failed: %v\n", err)
		return 1
	}
	return 0
}
