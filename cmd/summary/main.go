// Command summary recomputes the corpus summary over an existing entity
// store, writes it to the summary file and prints it as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"dicommart/internal/app"
	"dicommart/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML configuration file")
	dryRun := fs.Bool("dry-run", false, "print the summary without writing the summary file")
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

	summarize := application.WriteSummary
	if *dryRun {
		summarize = application.Summary
	}
	rec, err := summarize(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "summarize: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		fmt.Fprintf(stderr, "encode summary: %v\n", err)
		return 1
	}
	return 0
}
