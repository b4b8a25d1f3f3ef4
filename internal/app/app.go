package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"dicommart/internal/config"
	"dicommart/internal/datamart"
	"dicommart/internal/dataprocessing"
	"dicommart/internal/entitystore"
	"dicommart/internal/errors"
	"dicommart/internal/exporter"
	"dicommart/internal/files"
	"dicommart/internal/infrastructure"
	"dicommart/internal/middleware"
	"dicommart/internal/notify"
	"dicommart/internal/operations"
	"dicommart/internal/source"
	transport "dicommart/internal/transport/http"
	"dicommart/internal/websocket"
	"dicommart/pkg/contracts/domain"
)

// Application holds the wired components.
type Application struct {
	Config  *config.Config
	Logger  *slog.Logger
	OTel    *infrastructure.OTelProviders
	Metrics *infrastructure.PipelineMetrics

	Source      source.Source
	Store       *entitystore.Store
	Router      *datamart.Router
	Summarizer  *dataprocessing.Summarizer
	Workbook    *exporter.WorkbookExporter
	Runs        operations.RunStore
	Hub         *websocket.Hub
	Notifier    notify.Publisher
	Events      *operations.EventBroadcaster
	Coordinator *operations.Coordinator

	closers []io.Closer
}

// Option customizes New.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	console io.Writer
	source  source.Source
	decoder dataprocessing.Decoder
}

// WithLogger uses logger instead of building one from the logging config.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithConsole sets the console writer of the built logger. Defaults to
// stderr.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithSource replaces the configured object source.
func WithSource(src source.Source) Option {
	return func(o *options) { o.source = src }
}

// WithDecoder replaces the DICOM decoder.
func WithDecoder(d dataprocessing.Decoder) Option {
	return func(o *options) { o.decoder = d }
}

// New builds the application from cfg. On error every component opened so
// far is closed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Application, retErr error) {
	o := &options{console: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}

	a := &Application{Config: cfg}
	defer func() {
		if retErr != nil {
			_ = a.Close(context.Background())
		}
	}()

	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigError("invalid configuration", err)
	}

	if o.logger != nil {
		a.Logger = o.logger
	} else {
		logger, closers, err := infrastructure.NewLogger(cfg.Logging, o.console)
		if err != nil {
			return nil, errors.NewConfigError("initialize logger", err)
		}
		a.Logger = logger
		a.closers = append(a.closers, closers...)
	}

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, a.Logger)
	if err != nil {
		return nil, errors.NewConfigError("initialize telemetry", err)
	}
	a.OTel = providers
	if a.Metrics, err = infrastructure.NewPipelineMetrics(providers.Meter); err != nil {
		return nil, errors.NewConfigError("create pipeline metrics", err)
	}

	a.Source = o.source
	if a.Source == nil {
		if a.Source, err = source.Open(ctx, cfg.Source); err != nil {
			return nil, errors.NewSourceError("open object source", err)
		}
	}
	uploader, err := source.OpenUploader(ctx, cfg.Source, cfg.Paths.PublishBucket)
	if err != nil {
		return nil, errors.NewSourceError("open publish destination", err)
	}

	// Entity files and datamart files never share a path, but one lock
	// table keeps the invariant obvious.
	locks := files.NewPathLocks()
	a.Store = entitystore.New(cfg.Paths.TransformedDir, a.Logger, entitystore.WithLocks(locks))
	a.Router = datamart.NewRouter(cfg.Paths.DatamartDir, cfg.Catalog.Datamarts, a.Logger, datamart.WithLocks(locks))
	a.Summarizer = dataprocessing.NewSummarizer(a.Logger, dataprocessing.DefaultSummarizerConfig())
	a.Workbook = exporter.NewWorkbookExporter(a.Store, a.Router, a.Summarizer, a.Logger)

	if cfg.Paths.LedgerFile != "" {
		ledger, err := operations.NewSQLiteRunStore(cfg.Paths.LedgerFile)
		if err != nil {
			return nil, err
		}
		a.Runs = ledger
		a.closers = append(a.closers, ledger)
	} else {
		a.Runs = operations.NewMemoryRunStore(config.DefaultRunHistory)
	}

	if a.Hub, err = websocket.NewHub(a.Logger, providers.Meter); err != nil {
		return nil, errors.NewConfigError("create websocket hub", err)
	}
	a.Hub.Start()
	if a.Notifier, err = notify.New(ctx, cfg, a.Logger); err != nil {
		return nil, err
	}
	a.Events = operations.NewEventBroadcaster(a.Logger, a.Hub, a.Notifier)

	decoder := o.decoder
	if decoder == nil {
		decoder = dataprocessing.NewDICOMDecoder(a.Logger)
	}

	a.Coordinator, err = operations.NewCoordinator(operations.Dependencies{
		Source:     a.Source,
		Decoder:    decoder,
		Store:      a.Store,
		Router:     a.Router,
		Summarizer: a.Summarizer,
		Workbook:   a.Workbook,
		Uploader:   uploader,
		Runs:       a.Runs,
		Events:     a.Events,
		Metrics:    a.Metrics,
		Tracer:     providers.Tracer,
	}, operations.CoordinatorConfig{
		Attributes:    cfg.Catalog.Attributes,
		Prefix:        cfg.Source.Prefix,
		Workers:       cfg.Pipeline.Workers,
		Timeout:       cfg.Pipeline.Timeout,
		SummaryPath:   cfg.Paths.SummaryFile,
		WorkbookPath:  cfg.Paths.WorkbookFile,
		PublishPrefix: cfg.Paths.PublishPrefix,
	}, a.Logger)
	if err != nil {
		return nil, err
	}

	a.Logger.InfoContext(ctx, "application initialized",
		slog.String("version", config.AppVersion),
		slog.String("source_driver", cfg.Source.Driver),
		slog.String("transformed_dir", cfg.Paths.TransformedDir),
		slog.String("datamart_dir", cfg.Paths.DatamartDir),
		slog.String("ledger", cfg.Paths.LedgerFile),
		slog.String("notify_driver", cfg.Notify.Driver))
	return a, nil
}

// Consolidate runs the pipeline once and waits for it.
func (a *Application) Consolidate(ctx context.Context, req operations.RunRequest) (*operations.RunReport, error) {
	return a.Coordinator.Run(ctx, req)
}

// Summary recomputes the corpus summary from the entity store.
func (a *Application) Summary(ctx context.Context) (domain.SummaryRecord, error) {
	return a.Summarizer.Summarize(ctx, a.Store.Root())
}

// WriteSummary recomputes the summary and writes it to the summary file.
func (a *Application) WriteSummary(ctx context.Context) (domain.SummaryRecord, error) {
	rec, err := a.Summary(ctx)
	if err != nil {
		return rec, err
	}
	return rec, a.Summarizer.WriteSummary(ctx, a.Config.Paths.SummaryFile, rec)
}

// Handler builds the HTTP control plane.
func (a *Application) Handler() http.Handler {
	deps := transport.Dependencies{
		Runs:      a.Coordinator,
		Summary:   transport.SummaryFunc(a.Summary),
		Datamarts: a.Router,
		WebSocket: websocket.NewHandler(a.Hub, a.Config.Server.AllowedOrigins, a.Logger),
		Telemetry: middleware.NewTelemetry(a.OTel.Tracer, a.Metrics),
	}
	if a.OTel.PrometheusHTTP != nil {
		deps.Metrics = a.OTel.PrometheusHTTP
	}
	return transport.NewRouter(deps, a.Config.Server, a.Logger)
}

// Serve runs the HTTP control plane until ctx is done, then shuts the
// server down within the configured shutdown timeout.
func (a *Application) Serve(ctx context.Context) error {
	server := transport.NewServer(a.Config.Server, a.Handler())

	errCh := make(chan error, 1)
	go func() {
		a.Logger.InfoContext(ctx, "http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.InfoContext(ctx, "shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()
	// Stop the active run first so its final events reach the hub.
	if err := a.Coordinator.Shutdown(shutdownCtx); err != nil {
		a.Logger.WarnContext(ctx, "active run did not stop in time", slog.String("error", err.Error()))
	}
	a.Hub.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return <-errCh
}

// Close stops background work and releases every resource. Active runs are
// cancelled and awaited.
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	if a.Coordinator != nil {
		if err := a.Coordinator.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop runs: %w", err))
		}
	}
	if a.Events != nil {
		a.Events.Stop()
	}
	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.Notifier != nil {
		if err := a.Notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close notifier: %w", err))
		}
	}
	if a.OTel != nil {
		if err := a.OTel.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return stderrors.Join(errs...)
}
