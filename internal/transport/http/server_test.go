package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicommart/internal/config"
	apierrors "dicommart/internal/errors"
	"dicommart/internal/operations"
	"dicommart/pkg/contracts/domain"
)

// fakeRuns records start requests into a memory run store.
type fakeRuns struct {
	mu       sync.Mutex
	store    *operations.MemoryRunStore
	active   string
	startErr error
	requests []operations.RunRequest
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{store: operations.NewMemoryRunStore(10)}
}

func (f *fakeRuns) Start(ctx context.Context, req operations.RunRequest) (*domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.requests = append(f.requests, req)
	run := &domain.Run{
		ID:        "run-" + string(rune('a'+len(f.requests)-1)),
		Prefix:    req.Prefix,
		Status:    domain.RunStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	f.active = run.ID
	return run, nil
}

func (f *fakeRuns) Active() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.active != ""
}

func (f *fakeRuns) Runs() operations.RunStore { return f.store }

type fakeDatamarts struct {
	infos []domain.DatamartInfo
	err   error
}

func (f fakeDatamarts) Describe(context.Context) ([]domain.DatamartInfo, error) {
	return f.infos, f.err
}

type serverFixture struct {
	runs    *fakeRuns
	summary domain.SummaryRecord
	sumErr  error
	handler http.Handler
}

func newServerFixture(t *testing.T, cfg config.ServerConfig) *serverFixture {
	t.Helper()
	f := &serverFixture{
		runs: newFakeRuns(),
		summary: domain.SummaryRecord{
			TotalStudies:   2,
			TotalInstances: 7,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.handler = NewRouter(Dependencies{
		Runs: f.runs,
		Summary: SummaryFunc(func(context.Context) (domain.SummaryRecord, error) {
			return f.summary, f.sumErr
		}),
		Datamarts: fakeDatamarts{infos: []domain.DatamartInfo{
			{Name: "patient", Columns: []string{"PatientID"}, PrimaryKey: "PatientID", Rows: 2, Exists: true},
			{Name: "equipment", Columns: []string{"Manufacturer"}},
		}},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "# HELP dicommart_up\n")
		}),
	}, cfg, logger)
	return f
}

func (f *serverFixture) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	f := newServerFixture(t, config.ServerConfig{})

	rec := f.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, config.AppVersion, body["version"])
	assert.NotContains(t, body, "active_run")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	f.do(http.MethodPost, "/api/v1/runs", "")
	body = decodeBody(t, f.do(http.MethodGet, "/healthz", ""))
	assert.Equal(t, "run-a", body["active_run"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newServerFixture(t, config.ServerConfig{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestStartRun(t *testing.T) {
	f := newServerFixture(t, config.ServerConfig{})

	rec := f.do(http.MethodPost, "/api/v1/runs", `{"prefix":"lidc/batch-1/","workbook":true,"workers":4}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/v1/runs/run-a", rec.Header().Get("Location"))

	body := decodeBody(t, rec)
	assert.Equal(t, "run-a", body["id"])
	assert.Equal(t, "pending", body["status"])

	require.Len(t, f.runs.requests, 1)
	assert.Equal(t, operations.RunRequest{Prefix: "lidc/batch-1/", Workbook: true, Workers: 4}, f.runs.requests[0])
}

func TestStartRun_EmptyBodyUsesDefaults(t *testing.T) {
	f := newServerFixture(t, config.ServerConfig{})

	rec := f.do(http.MethodPost, "/api/v1/runs", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, f.runs.requests, 1)
	assert.Equal(t, operations.RunRequest{}, f.runs.requests[0])
}

func TestStartRun_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		startErr   error
		wantStatus int
		wantType   string
	}{
		{"malformed json", `{"prefix":`, nil, http.StatusBadRequest, apierrors.TypeValidation},
		{"absolute prefix", `{"prefix":"/etc"}`, nil, http.StatusBadRequest, apierrors.TypeValidation},
		{"parent segment", `{"prefix":"a/../b"}`, nil, http.StatusBadRequest, apierrors.TypeValidation},
		{"too many workers", `{"workers":1000}`, nil, http.StatusBadRequest, apierrors.TypeValidation},
		{"run already active", `{}`, apierrors.NewConflictError("a run is already active"), http.StatusConflict, apierrors.TypeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServerFixture(t, config.ServerConfig{})
			f.runs.startErr = tt.startErr

			rec := f.do(http.MethodPost, "/api/v1/runs", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantType, decodeBody(t, rec)["type"])
			assert.Empty(t, f.runs.requests)
		})
	}
}

func TestListRuns(t *testing.T) {
	f := newServerFixture(t, config.ServerConfig{})
	for range 3 {
		require.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/api/v1/runs", "").Code)
		time.Sleep(2 * time.Millisecond)
	}

	rec := f.do(http.MethodGet, "/api/v1/runs?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RunListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Runs, 2)
	assert.Equal(t, "run-c", resp.Runs[0].ID)
	assert.Equal(t, "run-b", resp.Runs[1].ID)
	assert.Equal(t, "run-c", resp.ActiveRun)

	rec = f.do(http.MethodGet, "/api/v1/runs?status=completed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Runs)
	assert.Contains(t, rec.Body.String(), `"runs":[]`)
}

func TestListRuns_InvalidQuery(t *testing.T) {
	f := newServerFixture(t, config.ServerConfig{})
	for _, target := range []string{
		"/api/v1/runs?limit=0",
		"/api/v1/runs?limit=abc",
		"/api/v1/runs?status=exploded",
	} {
		rec := f.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestGetRun(t *testing.T) {
	f := newServerFixture(t, config.ServerConfig{})
	require.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/api/v1/runs", `{"prefix":"p/"}`).Code)

	rec := f.do(http.MethodGet, "/api/v1/runs/run-a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p/", decodeBody(t, rec)["prefix"])

	rec = f.do(http.MethodGet, "/api/v1/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierrors.TypeNotFound, decodeBody(t, rec)["type"])
}

func TestSummary(t *testing.T) {
	f := newServerFixture(t, config.ServerConfig{})

	rec := f.do(http.MethodGet, "/api/v1/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["total_studies"])
	assert.EqualValues(t, 7, body["total_instances"])

	f.sumErr = apierrors.NewAggregationError("missing required column SliceThickness", nil)
	rec = f.do(http.MethodGet, "/api/v1/summary", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, apierrors.TypeAggregation, decodeBody(t, rec)["type"])
}

func TestDatamarts(t *testing.T) {
	f := newServerFixture(t, config.ServerConfig{})

	rec := f.do(http.MethodGet, "/api/v1/datamarts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DatamartListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Datamarts, 2)
	assert.Equal(t, "patient", resp.Datamarts[0].Name)
	assert.Equal(t, 2, resp.Datamarts[0].Rows)
	assert.False(t, resp.Datamarts[1].Exists)
}

func TestMetricsAndUnknownRoutes(t *testing.T) {
	f := newServerFixture(t, config.ServerConfig{})

	rec := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dicommart_up")

	rec = f.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierrors.TypeNotFound, decodeBody(t, rec)["type"])

	rec = f.do(http.MethodDelete, "/api/v1/summary", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimit(t *testing.T) {
	f := newServerFixture(t, config.ServerConfig{RateLimit: 0.001, RateBurst: 1})

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/summary", "").Code)
	rec := f.do(http.MethodGet, "/api/v1/summary", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Health checks are not limited.
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newServerFixture(t, config.ServerConfig{AllowedOrigins: []string{"http://viewer.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	req.Header.Set("Origin", "http://viewer.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://viewer.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
