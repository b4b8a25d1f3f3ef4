package infrastructure

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicommart/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestInitializeOTel_MetricsOnly(t *testing.T) {
	providers, err := InitializeOTel(config.TelemetryConfig{
		ServiceName:    "dicommart-test",
		Tracing:        "none",
		MetricsEnabled: true,
	}, quietLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	assert.Nil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer, "no-op tracer when tracing is off")
	require.NotNil(t, providers.MeterProvider)
	require.NotNil(t, providers.PrometheusHTTP)

	metrics, err := NewPipelineMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordObject(ctx, "ok", 1024, 20*time.Millisecond)
	metrics.RecordRowsAppended(ctx, "studyInfo", 3)
	metrics.RunStarted(ctx)
	metrics.RunFinished(ctx, "completed", time.Second)

	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "objects_processed_total")
	assert.Contains(t, body, `category="studyInfo"`)
	assert.Contains(t, body, "go_goroutines")
}

func TestInitializeOTel_StdoutTracing(t *testing.T) {
	providers, err := InitializeOTel(config.TelemetryConfig{Tracing: "stdout"}, quietLogger())
	require.NoError(t, err)
	require.NotNil(t, providers.TracerProvider)
	assert.Nil(t, providers.PrometheusHTTP)

	_, span := providers.Tracer.Start(context.Background(), "run")
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.SpanContext().IsSampled())
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestInitializeOTel_UnknownExporter(t *testing.T) {
	_, err := InitializeOTel(config.TelemetryConfig{Tracing: "jaeger"}, quietLogger())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported trace exporter"))
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		assert.Contains(t, sampler(tt.ratio).Description(), tt.want)
	}
}

func TestPipelineMetrics_NilSafe(t *testing.T) {
	var m *PipelineMetrics
	ctx := context.Background()
	m.RecordObject(ctx, "ok", 1, time.Millisecond)
	m.RecordRowsAppended(ctx, "x", 1)
	m.RecordMerge(ctx, "created")
	m.RecordRouteFailure(ctx, "x")
	m.RecordPhase(ctx, "ingest", "completed", time.Millisecond)
	m.RunStarted(ctx)
	m.RunFinished(ctx, "failed", time.Millisecond)
	m.RecordHTTPRequest(ctx, "GET", "/healthz", 200, time.Millisecond)

	noop, err := NewPipelineMetrics(nil)
	require.NoError(t, err)
	noop.RecordObject(ctx, "ok", 1, time.Millisecond)
}
