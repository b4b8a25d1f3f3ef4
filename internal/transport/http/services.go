package http

import (
	"context"

	"dicommart/internal/operations"
	"dicommart/pkg/contracts/domain"
)

// RunService starts runs and exposes the run ledger. *operations.Coordinator
// implements it.
type RunService interface {
	Start(ctx context.Context, req operations.RunRequest) (*domain.Run, error)
	Active() (string, bool)
	Runs() operations.RunStore
}

// SummaryService computes the corpus summary on demand.
type SummaryService interface {
	Summary(ctx context.Context) (domain.SummaryRecord, error)
}

// SummaryFunc adapts a function to SummaryService.
type SummaryFunc func(ctx context.Context) (domain.SummaryRecord, error)

// Summary implements SummaryService.
func (f SummaryFunc) Summary(ctx context.Context) (domain.SummaryRecord, error) { return f(ctx) }

// DatamartService describes the datamart categories. *datamart.Router
// implements it.
type DatamartService interface {
	Describe(ctx context.Context) ([]domain.DatamartInfo, error)
}
