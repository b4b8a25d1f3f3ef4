// Command web serves the HTTP control plane: run submission, the run
// ledger, the summary and datamart views, metrics and the live run event
// stream.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"dicommart/internal/app"
	"dicommart/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	serveErr := application.Serve(ctx)
	if err := application.Close(context.Background()); err != nil {
		application.Logger.Error("shutdown incomplete", slog.String("error", err.Error()))
	}
	if serveErr != nil {
		application.Logger.Error("server error", slog.String("error", serveErr.Error()))
		os.Exit(1)
	}
}
