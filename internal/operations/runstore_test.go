package operations

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicommart/internal/errors"
	"dicommart/pkg/contracts/domain"
)

func runStores(t *testing.T) map[string]RunStore {
	t.Helper()
	ledger, err := NewSQLiteRunStore(filepath.Join(t.TempDir(), "ledger", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	return map[string]RunStore{
		"memory": NewMemoryRunStore(0),
		"sqlite": ledger,
	}
}

func sampleRun(id string, created time.Time) *domain.Run {
	return &domain.Run{
		ID:        id,
		Prefix:    "batch/",
		Status:    domain.RunStatusPending,
		CreatedAt: created.UTC(),
	}
}

func TestRunStore_Lifecycle(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for name, store := range runStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := sampleRun("run-1", base)
			require.NoError(t, store.CreateRun(ctx, run))

			err := store.CreateRun(ctx, run)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeConflict))

			started := base
			completed := base.Add(time.Minute)
			run.Status = domain.RunStatusCompleted
			run.StartedAt = &started
			run.CompletedAt = &completed
			run.Succeeded = 3
			run.Failed = 1
			run.Phases = []domain.PhaseResult{{
				Phase: domain.PhaseIngest, Status: domain.RunStatusCompleted,
				Units: 4, Succeeded: 3, Failed: 1, Duration: 2 * time.Second,
			}}
			run.Failures = []domain.UnitFailure{{
				Phase: domain.PhaseIngest, Unit: "batch/bad.dcm",
				ErrorType: "DECODE", Message: "parse dicom", At: started,
			}}
			require.NoError(t, store.UpdateRun(ctx, run))

			got, err := store.GetRun(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, domain.RunStatusCompleted, got.Status)
			assert.Equal(t, 3, got.Succeeded)
			assert.Equal(t, 1, got.Failed)
			assert.True(t, got.CreatedAt.Equal(base))
			require.NotNil(t, got.CompletedAt)
			assert.Equal(t, time.Minute, got.Duration())
			assert.Equal(t, run.Phases, got.Phases)
			require.Len(t, got.Failures, 1)
			assert.Equal(t, "batch/bad.dcm", got.Failures[0].Unit)
			assert.True(t, got.Failures[0].At.Equal(started))

			_, err = store.GetRun(ctx, "missing")
			assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
			err = store.UpdateRun(ctx, sampleRun("missing", base))
			assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
		})
	}
}

func TestRunStore_ReturnsCopies(t *testing.T) {
	for name, store := range runStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := sampleRun("run-1", time.Now())
			require.NoError(t, store.CreateRun(ctx, run))
			run.Status = domain.RunStatusFailed

			got, err := store.GetRun(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, domain.RunStatusPending, got.Status)
		})
	}
}

func TestRunStore_List(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for name, store := range runStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, status := range []domain.RunStatus{
				domain.RunStatusCompleted, domain.RunStatusFailed, domain.RunStatusCompleted,
			} {
				run := sampleRun(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
				run.Status = status
				require.NoError(t, store.CreateRun(ctx, run))
			}

			all, err := store.ListRuns(ctx, RunFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

			limited, err := store.ListRuns(ctx, RunFilter{Limit: 2})
			require.NoError(t, err)
			assert.Len(t, limited, 2)

			completed, err := store.ListRuns(ctx, RunFilter{Status: domain.RunStatusCompleted})
			require.NoError(t, err)
			assert.Len(t, completed, 2)
		})
	}
}

func TestMemoryRunStore_EvictsOldestFinished(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRunStore(2)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	running := sampleRun("running", base)
	running.Status = domain.RunStatusRunning
	require.NoError(t, store.CreateRun(ctx, running))

	done := sampleRun("done", base.Add(time.Minute))
	done.Status = domain.RunStatusCompleted
	require.NoError(t, store.CreateRun(ctx, done))

	require.NoError(t, store.CreateRun(ctx, sampleRun("new", base.Add(2*time.Minute))))

	_, err := store.GetRun(ctx, "done")
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	_, err = store.GetRun(ctx, "running")
	assert.NoError(t, err, "active runs are never evicted")
}

func TestSQLiteRunStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	store, err := NewSQLiteRunStore(path)
	require.NoError(t, err)
	require.NoError(t, store.CreateRun(ctx, sampleRun("kept", time.Now())))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteRunStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetRun(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, "batch/", got.Prefix)
	assert.Equal(t, path, reopened.Path())
}
