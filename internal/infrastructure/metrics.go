package infrastructure

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// PipelineMetrics holds the instruments recorded by runs and the HTTP layer.
// A nil *PipelineMetrics records nothing.
type PipelineMetrics struct {
	ObjectsTotal      metric.Int64Counter
	EntityMerges      metric.Int64Counter
	RouteFailures     metric.Int64Counter
	ObjectBytes       metric.Int64Counter
	ObjectDuration    metric.Float64Histogram
	RowsAppended      metric.Int64Counter
	RunsTotal         metric.Int64Counter
	RunDuration       metric.Float64Histogram
	PhaseDuration     metric.Float64Histogram
	ActiveRuns        metric.Int64UpDownCounter
	HTTPRequestsTotal metric.Int64Counter
	HTTPDuration      metric.Float64Histogram
}

// NewPipelineMetrics creates every instrument on meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(MeterName)
	}
	m := &PipelineMetrics{}
	var err error

	if m.ObjectsTotal, err = meter.Int64Counter("objects_processed_total",
		metric.WithDescription("Objects processed, by outcome")); err != nil {
		return nil, err
	}
	if m.ObjectBytes, err = meter.Int64Counter("object_bytes_total",
		metric.WithDescription("Bytes fetched from the source"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.ObjectDuration, err = meter.Float64Histogram("object_duration_seconds",
		metric.WithDescription("Fetch, decode, extract and merge time per object"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.RowsAppended, err = meter.Int64Counter("datamart_rows_appended_total",
		metric.WithDescription("Rows appended to datamarts, by category")); err != nil {
		return nil, err
	}
	if m.EntityMerges, err = meter.Int64Counter("entity_merges_total",
		metric.WithDescription("Entity store merges, by result")); err != nil {
		return nil, err
	}
	if m.RouteFailures, err = meter.Int64Counter("datamart_route_failures_total",
		metric.WithDescription("Failed datamart writes, by category")); err != nil {
		return nil, err
	}
	if m.RunsTotal, err = meter.Int64Counter("pipeline_runs_total",
		metric.WithDescription("Completed runs, by status")); err != nil {
		return nil, err
	}
	if m.RunDuration, err = meter.Float64Histogram("pipeline_run_duration_seconds",
		metric.WithDescription("Run duration"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.PhaseDuration, err = meter.Float64Histogram("pipeline_phase_duration_seconds",
		metric.WithDescription("Run phase duration, by phase"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ActiveRuns, err = meter.Int64UpDownCounter("pipeline_active_runs",
		metric.WithDescription("Runs in progress")); err != nil {
		return nil, err
	}
	if m.HTTPRequestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests")); err != nil {
		return nil, err
	}
	if m.HTTPDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordObject records one processed object.
func (m *PipelineMetrics) RecordObject(ctx context.Context, outcome string, size int64, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.ObjectsTotal.Add(ctx, 1, attrs)
	m.ObjectDuration.Record(ctx, d.Seconds(), attrs)
	if size > 0 {
		m.ObjectBytes.Add(ctx, size)
	}
}

// RecordRowsAppended records rows added to one datamart.
func (m *PipelineMetrics) RecordRowsAppended(ctx context.Context, category string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.RowsAppended.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("category", category)))
}

// RecordMerge records one entity merge; result is created, updated or failed.
func (m *PipelineMetrics) RecordMerge(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.EntityMerges.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordRouteFailure records a failed write to one datamart.
func (m *PipelineMetrics) RecordRouteFailure(ctx context.Context, category string) {
	if m == nil {
		return
	}
	m.RouteFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}

// RecordPhase records one phase's duration.
func (m *PipelineMetrics) RecordPhase(ctx context.Context, phase, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("status", status),
	))
}

// RunStarted increments the active run gauge.
func (m *PipelineMetrics) RunStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveRuns.Add(ctx, 1)
}

// RunFinished records a completed run and decrements the active gauge.
func (m *PipelineMetrics) RunFinished(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.ActiveRuns.Add(ctx, -1)
	m.RunsTotal.Add(ctx, 1, attrs)
	m.RunDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordHTTPRequest records one served request.
func (m *PipelineMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPDuration.Record(ctx, d.Seconds(), attrs)
}
