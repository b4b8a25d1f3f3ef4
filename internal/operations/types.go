package operations

import (
	"context"
	"time"

	"dicommart/pkg/contracts/domain"
)

// RunRequest selects what a single run processes.
type RunRequest struct {
	// Prefix limits ingestion to keys under it. Empty uses the coordinator default.
	Prefix string `json:"prefix"`
	// Workbook requests the workbook export phase.
	Workbook bool `json:"workbook"`
	// Workers overrides the configured pool size when positive.
	Workers int `json:"workers,omitempty"`
}

// RunReport is the final state of a run together with its summary.
type RunReport struct {
	domain.Run
	Summary  *domain.SummaryRecord `json:"summary,omitempty"`
	Duration time.Duration         `json:"duration"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status domain.RunStatus
	Limit  int
}

// RunStore persists runs. Implementations return copies; callers may not
// share run values with the store.
type RunStore interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	UpdateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*domain.Run, error)
}

// EventSink receives run events.
type EventSink interface {
	Publish(ctx context.Context, event domain.RunEvent) error
}

// WorkbookWriter writes the datamart workbook to path.
type WorkbookWriter interface {
	WriteWorkbook(ctx context.Context, path string) error
}

// copyRun deep-copies run.
func copyRun(run *domain.Run) *domain.Run {
	if run == nil {
		return nil
	}
	out := *run
	if run.Phases != nil {
		out.Phases = append([]domain.PhaseResult(nil), run.Phases...)
	}
	if run.Failures != nil {
		out.Failures = append([]domain.UnitFailure(nil), run.Failures...)
	}
	if run.StartedAt != nil {
		t := *run.StartedAt
		out.StartedAt = &t
	}
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
