package operations

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"dicommart/internal/config"
	"dicommart/internal/dataprocessing"
	"dicommart/internal/datamart"
	"dicommart/internal/entitystore"
	"dicommart/internal/errors"
	"dicommart/internal/files"
	"dicommart/internal/infrastructure"
	"dicommart/internal/source"
	"dicommart/pkg/contracts/domain"
)

// Dependencies are the collaborators of a Coordinator. Source, Decoder,
// Store, Router and Summarizer are required.
type Dependencies struct {
	Source     source.Source
	Decoder    dataprocessing.Decoder
	Store      *entitystore.Store
	Router     *datamart.Router
	Summarizer *dataprocessing.Summarizer
	Workbook   WorkbookWriter
	Uploader   source.Uploader
	Runs       RunStore
	Events     EventSink
	Metrics    *infrastructure.PipelineMetrics
	Tracer     trace.Tracer
}

// CoordinatorConfig tunes runs.
type CoordinatorConfig struct {
	Attributes    []string
	Prefix        string
	Workers       int
	Timeout       time.Duration
	SummaryPath   string
	WorkbookPath  string
	PublishPrefix string
}

// Coordinator drives the pipeline: ingest every object into the entity
// store, route every entity file into the datamarts, then summarize. Only
// one run is active at a time.
type Coordinator struct {
	deps   Dependencies
	cfg    CoordinatorConfig
	logger *slog.Logger
	files  *files.Manager
	now    func() time.Time

	mu     sync.Mutex
	active string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator validates deps and returns a coordinator.
func NewCoordinator(deps Dependencies, cfg CoordinatorConfig, logger *slog.Logger) (*Coordinator, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.NewConfigError("coordinator requires a source", nil)
	case deps.Decoder == nil:
		return nil, errors.NewConfigError("coordinator requires a decoder", nil)
	case deps.Store == nil:
		return nil, errors.NewConfigError("coordinator requires an entity store", nil)
	case deps.Router == nil:
		return nil, errors.NewConfigError("coordinator requires a datamart router", nil)
	case deps.Summarizer == nil:
		return nil, errors.NewConfigError("coordinator requires a summarizer", nil)
	case len(cfg.Attributes) == 0:
		return nil, errors.NewConfigError("coordinator requires an attribute list", nil)
	}

	if deps.Runs == nil {
		deps.Runs = NewMemoryRunStore(config.DefaultRunHistory)
	}
	if deps.Tracer == nil {
		deps.Tracer = tracenoop.NewTracerProvider().Tracer("")
	}
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		deps:   deps,
		cfg:    cfg,
		logger: infrastructure.WithComponent(logger, "coordinator"),
		files:  files.NewManager(""),
		now:    time.Now,
	}, nil
}

// Runs returns the run ledger.
func (c *Coordinator) Runs() RunStore { return c.deps.Runs }

// Active returns the ID of the run in progress.
func (c *Coordinator) Active() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.active != ""
}

// Run executes a run synchronously. The returned error is non-nil only for
// fatal conditions: the source cannot be listed, a storage root cannot be
// created, the run was cancelled or another run is in progress. Unit
// failures are reported in the RunReport.
func (c *Coordinator) Run(ctx context.Context, req RunRequest) (*RunReport, error) {
	run, runCtx, err := c.begin(ctx, ctx, req)
	if err != nil {
		return nil, err
	}
	return c.execute(runCtx, run, req)
}

// Start launches a run in the background and returns it in pending state.
// The run is not tied to ctx's cancellation; use Shutdown to stop it.
func (c *Coordinator) Start(ctx context.Context, req RunRequest) (*domain.Run, error) {
	run, runCtx, err := c.begin(ctx, context.WithoutCancel(ctx), req)
	if err != nil {
		return nil, err
	}
	snapshot := copyRun(run)

	go func() {
		_, _ = c.execute(runCtx, run, req)
	}()
	return snapshot, nil
}

// Wait blocks until no run is executing.
func (c *Coordinator) Wait() { c.wg.Wait() }

// Shutdown cancels the active run and waits for it to stop, or for ctx.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin registers a new run and derives its context from parent. The cancel
// func is installed before the lock is released so that Shutdown can stop a
// run that has not started executing yet.
func (c *Coordinator) begin(ctx, parent context.Context, req RunRequest) (*domain.Run, context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != "" {
		return nil, nil, errors.NewConflictError("a run is already in progress").WithContext("run_id", c.active)
	}

	prefix := req.Prefix
	if prefix == "" {
		prefix = c.cfg.Prefix
	}
	run := &domain.Run{
		ID:        uuid.New().String(),
		Prefix:    prefix,
		Status:    domain.RunStatusPending,
		CreatedAt: c.now().UTC(),
	}
	if err := c.deps.Runs.CreateRun(ctx, run); err != nil {
		return nil, nil, err
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if c.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(parent, c.cfg.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(parent)
	}

	c.active = run.ID
	c.cancel = cancel
	c.wg.Add(1)
	return run, runCtx, nil
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.active = ""
	c.cancel = nil
	c.mu.Unlock()
	c.wg.Done()
}

func (c *Coordinator) execute(ctx context.Context, run *domain.Run, req RunRequest) (*RunReport, error) {
	defer c.finish()

	ctx = infrastructure.WithRunID(infrastructure.EnsureTraceID(ctx), run.ID)
	ctx, span := c.deps.Tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("run.prefix", run.Prefix),
	))
	defer span.End()

	started := c.now().UTC()
	run.StartedAt = &started
	run.Status = domain.RunStatusRunning
	c.save(ctx, run)
	c.deps.Metrics.RunStarted(ctx)
	c.emit(ctx, domain.EventRunStarted, run, "", "run started")

	c.logger.InfoContext(ctx, "run started",
		slog.String("prefix", run.Prefix),
		slog.Int("workers", c.workers(req)),
	)

	report := &RunReport{}
	err := c.runPhases(ctx, run, req, report)

	completed := c.now().UTC()
	run.CompletedAt = &completed
	switch {
	case err == nil:
		run.Status = domain.RunStatusCompleted
	case stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded):
		run.Status = domain.RunStatusCancelled
		run.Error = err.Error()
	default:
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	duration := run.Duration()
	c.save(ctx, run)
	c.deps.Metrics.RunFinished(ctx, string(run.Status), duration)

	if run.Status == domain.RunStatusCompleted {
		c.emit(ctx, domain.EventRunCompleted, run, "", "run completed")
		c.logger.InfoContext(ctx, "run completed",
			slog.Int("succeeded", run.Succeeded),
			slog.Int("failed", run.Failed),
			slog.Duration("duration", duration),
		)
	} else {
		c.emit(ctx, domain.EventRunFailed, run, "", run.Error)
		c.logger.ErrorContext(ctx, "run did not complete",
			slog.String("status", string(run.Status)),
			slog.String("error", run.Error),
			slog.Int("succeeded", run.Succeeded),
			slog.Int("failed", run.Failed),
			slog.Duration("duration", duration),
		)
	}

	report.Run = *copyRun(run)
	report.Duration = duration
	return report, err
}

func (c *Coordinator) runPhases(ctx context.Context, run *domain.Run, req RunRequest, report *RunReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.deps.Store.EnsureRoot(); err != nil {
		return err
	}
	if err := c.deps.Router.EnsureRoot(); err != nil {
		return err
	}

	workers := c.workers(req)
	if err := c.phase(ctx, run, domain.PhaseIngest, func(ctx context.Context, p *phaseTracker) error {
		return c.ingest(ctx, run.Prefix, workers, p)
	}); err != nil {
		return err
	}

	if err := c.phase(ctx, run, domain.PhaseRoute, func(ctx context.Context, p *phaseTracker) error {
		return c.route(ctx, workers, p)
	}); err != nil {
		return err
	}

	if err := c.phase(ctx, run, domain.PhaseSummarize, func(ctx context.Context, p *phaseTracker) error {
		summary, ok := c.summarize(ctx, p)
		if ok {
			report.Summary = &summary
		}
		return ctx.Err()
	}); err != nil {
		return err
	}

	workbook := ""
	if req.Workbook && c.deps.Workbook != nil && c.cfg.WorkbookPath != "" {
		if err := c.phase(ctx, run, domain.PhaseExport, func(ctx context.Context, p *phaseTracker) error {
			if err := c.deps.Workbook.WriteWorkbook(ctx, c.cfg.WorkbookPath); err != nil {
				p.fail(filepath.Base(c.cfg.WorkbookPath), err)
				return ctx.Err()
			}
			p.succeed()
			workbook = c.cfg.WorkbookPath
			return nil
		}); err != nil {
			return err
		}
	}

	if c.deps.Uploader != nil {
		if err := c.phase(ctx, run, domain.PhasePublish, func(ctx context.Context, p *phaseTracker) error {
			return c.publish(ctx, workbook, p)
		}); err != nil {
			return err
		}
	}
	return nil
}

// phase runs fn as one traced and timed phase and folds its counts into run.
// An error from fn is fatal to the run.
func (c *Coordinator) phase(ctx context.Context, run *domain.Run, name string, fn func(context.Context, *phaseTracker) error) error {
	ctx, span := c.deps.Tracer.Start(ctx, "pipeline.phase."+name)
	defer span.End()

	c.logger.InfoContext(ctx, "phase started", slog.String("phase", name))
	tracker := newPhaseTracker(name, func() time.Time { return c.now().UTC() })
	start := c.now()
	err := fn(ctx, tracker)
	result, failures := tracker.result(c.now().Sub(start))

	if err != nil {
		result.Status = domain.RunStatusFailed
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			result.Status = domain.RunStatusCancelled
		}
		result.Message = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Int("phase.units", result.Units),
		attribute.Int("phase.failed", result.Failed),
	)

	run.Phases = append(run.Phases, result)
	run.Succeeded += result.Succeeded
	run.Failed += result.Failed
	run.Failures = append(run.Failures, failures...)

	c.deps.Metrics.RecordPhase(ctx, name, string(result.Status), result.Duration)
	c.save(ctx, run)

	msg := fmt.Sprintf("%s: %d succeeded, %d failed", name, result.Succeeded, result.Failed)
	if result.Message != "" {
		msg += ": " + result.Message
	}
	c.emitPhase(ctx, run, result, msg)

	c.logger.InfoContext(ctx, "phase finished",
		slog.String("phase", name),
		slog.String("status", string(result.Status)),
		slog.Int("units", result.Units),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", result.Duration),
	)
	return err
}

// ingest merges every listed object into the entity store. Listing is the
// only fatal step; each object succeeds or fails on its own.
func (c *Coordinator) ingest(ctx context.Context, prefix string, workers int, p *phaseTracker) error {
	listed, err := c.deps.Source.List(ctx, prefix)
	if err != nil {
		return errors.NewSourceError("enumerate objects", err).WithContext("prefix", prefix)
	}
	objects := source.Objects(listed)
	if skipped := len(listed) - len(objects); skipped > 0 {
		c.logger.DebugContext(ctx, "directory markers skipped", slog.Int("count", skipped))
	}
	c.logger.InfoContext(ctx, "objects listed", slog.Int("count", len(objects)))

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, obj := range objects {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			c.ingestObject(ctx, obj, p)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (c *Coordinator) ingestObject(ctx context.Context, obj source.Object, p *phaseTracker) {
	start := c.now()
	fail := func(err error) {
		p.fail(obj.Key, err)
		c.deps.Metrics.RecordObject(ctx, outcome(err), obj.Size, c.now().Sub(start))
		c.logger.WarnContext(ctx, "object failed",
			slog.String("key", obj.Key),
			slog.String("error_type", string(errors.TypeOf(err))),
			slog.String("error", err.Error()),
		)
	}

	raw, err := c.deps.Source.Fetch(ctx, obj.Key)
	if err != nil {
		if errors.TypeOf(err) == "" {
			err = errors.NewSourceError("fetch object", err)
		}
		fail(err)
		return
	}

	decoded, err := c.deps.Decoder.Decode(raw)
	if err != nil {
		if errors.TypeOf(err) == "" {
			err = errors.NewDecodeError("decode object", err)
		}
		fail(err)
		return
	}

	rec, err := dataprocessing.Extract(decoded, c.cfg.Attributes)
	if err != nil {
		fail(err)
		return
	}

	res, err := c.deps.Store.Merge(ctx, rec)
	if err != nil {
		c.deps.Metrics.RecordMerge(ctx, "error")
		fail(err)
		return
	}

	mergeResult := "appended"
	if res.Created {
		mergeResult = "created"
	}
	c.deps.Metrics.RecordMerge(ctx, mergeResult)
	c.deps.Metrics.RecordObject(ctx, "success", int64(len(raw)), c.now().Sub(start))
	p.succeed()

	c.logger.DebugContext(ctx, "object merged",
		slog.String("key", obj.Key),
		slog.String("entity", res.Key.String()),
		slog.Int("rows", res.Rows),
	)
}

// route fans every entity file out into the datamarts. It starts only after
// ingest has drained.
func (c *Coordinator) route(ctx context.Context, workers int, p *phaseTracker) error {
	found, err := c.deps.Store.List(ctx)
	if err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "entity files found", slog.Int("count", len(found)))

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, f := range found {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			c.routeFile(ctx, f.Path, p)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (c *Coordinator) routeFile(ctx context.Context, path string, p *phaseTracker) {
	unit := c.entityUnit(path)

	t, err := c.deps.Store.LoadFile(path)
	if err != nil {
		p.fail(unit, err)
		c.logger.WarnContext(ctx, "entity file unreadable",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}

	failed := false
	for _, res := range c.deps.Router.RouteTable(ctx, t) {
		if res.Err != nil {
			failed = true
			p.record(unit+"#"+res.Category, res.Err)
			c.deps.Metrics.RecordRouteFailure(ctx, res.Category)
			continue
		}
		c.deps.Metrics.RecordRowsAppended(ctx, res.Category, res.Appended)
	}
	if failed {
		p.countFailed()
		return
	}
	p.succeed()
}

// summarize computes and writes the summary. A failure is reported against
// the phase and leaves the run going.
func (c *Coordinator) summarize(ctx context.Context, p *phaseTracker) (domain.SummaryRecord, bool) {
	unit := filepath.Base(c.cfg.SummaryPath)
	if unit == "." || unit == "" {
		unit = "summary"
	}

	rec, err := c.deps.Summarizer.Summarize(ctx, c.deps.Store.Root())
	if err != nil {
		p.fail(unit, err)
		c.logger.ErrorContext(ctx, "summary failed", slog.String("error", err.Error()))
		return domain.SummaryRecord{}, false
	}

	if c.cfg.SummaryPath != "" {
		if err := c.deps.Summarizer.WriteSummary(ctx, c.cfg.SummaryPath, rec); err != nil {
			p.fail(unit, err)
			c.logger.ErrorContext(ctx, "summary write failed", slog.String("error", err.Error()))
			return rec, true
		}
	}
	p.succeed()
	return rec, true
}

// publish uploads the summary, every existing datamart file and the
// workbook (when written) through the uploader.
func (c *Coordinator) publish(ctx context.Context, workbook string, p *phaseTracker) error {
	type upload struct {
		key, path, contentType string
	}
	var uploads []upload

	if c.cfg.SummaryPath != "" {
		uploads = append(uploads, upload{
			key:         path.Join(c.cfg.PublishPrefix, filepath.Base(c.cfg.SummaryPath)),
			path:        c.cfg.SummaryPath,
			contentType: config.ObjectContentTypeCSV,
		})
	}
	martDir := filepath.Base(c.deps.Router.Root())
	for _, cat := range c.deps.Router.Categories() {
		local := c.deps.Router.Path(cat.Name)
		if !c.files.FileExists(local) {
			continue
		}
		uploads = append(uploads, upload{
			key:         path.Join(c.cfg.PublishPrefix, martDir, cat.Name, filepath.Base(local)),
			path:        local,
			contentType: config.ObjectContentTypeCSV,
		})
	}
	if workbook != "" {
		uploads = append(uploads, upload{
			key:         path.Join(c.cfg.PublishPrefix, filepath.Base(workbook)),
			path:        workbook,
			contentType: config.ObjectContentTypeXLS,
		})
	}

	for _, u := range uploads {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := c.files.ReadFile(u.path)
		if err != nil {
			p.fail(u.key, errors.NewPersistenceError("read artifact", err).WithContext("path", u.path))
			continue
		}
		if err := c.deps.Uploader.Upload(ctx, u.key, data, u.contentType); err != nil {
			p.fail(u.key, err)
			c.logger.WarnContext(ctx, "publish failed",
				slog.String("key", u.key),
				slog.String("error", err.Error()),
			)
			continue
		}
		p.succeed()
	}
	return nil
}

func (c *Coordinator) workers(req RunRequest) int {
	if req.Workers > 0 {
		return req.Workers
	}
	return c.cfg.Workers
}

func (c *Coordinator) entityUnit(path string) string {
	rel, err := filepath.Rel(c.deps.Store.Root(), path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// save persists run. A ledger failure is logged and never stops the run.
func (c *Coordinator) save(ctx context.Context, run *domain.Run) {
	if err := c.deps.Runs.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		c.logger.WarnContext(ctx, "run ledger update failed", slog.String("error", err.Error()))
	}
}

func (c *Coordinator) emit(ctx context.Context, eventType string, run *domain.Run, phase, message string) {
	if c.deps.Events == nil {
		return
	}
	event := domain.RunEvent{
		Type:      eventType,
		RunID:     run.ID,
		Phase:     phase,
		Message:   message,
		Succeeded: run.Succeeded,
		Failed:    run.Failed,
		Time:      c.now().UTC(),
	}
	if err := c.deps.Events.Publish(ctx, event); err != nil {
		c.logger.WarnContext(ctx, "run event not published",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Coordinator) emitPhase(ctx context.Context, run *domain.Run, result domain.PhaseResult, message string) {
	if c.deps.Events == nil {
		return
	}
	event := domain.RunEvent{
		Type:      domain.EventRunPhase,
		RunID:     run.ID,
		Phase:     result.Phase,
		Message:   message,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Time:      c.now().UTC(),
	}
	if err := c.deps.Events.Publish(ctx, event); err != nil {
		c.logger.WarnContext(ctx, "run event not published",
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
		)
	}
}

// outcome labels an object failure for metrics.
func outcome(err error) string {
	if t := errors.TypeOf(err); t != "" {
		return strings.ToLower(string(t))
	}
	return "error"
}
