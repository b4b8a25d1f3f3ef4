package operations

import (
	"sync"
	"time"

	"dicommart/internal/errors"
	"dicommart/pkg/contracts/domain"
)

// phaseTracker counts the units of one phase. Workers report into it
// concurrently.
type phaseTracker struct {
	phase string
	now   func() time.Time

	mu        sync.Mutex
	units     int
	succeeded int
	failed    int
	failures  []domain.UnitFailure
}

func newPhaseTracker(phase string, now func() time.Time) *phaseTracker {
	return &phaseTracker{phase: phase, now: now}
}

func (p *phaseTracker) succeed() {
	p.mu.Lock()
	p.units++
	p.succeeded++
	p.mu.Unlock()
}

// fail counts a failed unit and records err against it.
func (p *phaseTracker) fail(unit string, err error) {
	p.mu.Lock()
	p.units++
	p.failed++
	p.failures = append(p.failures, p.failure(unit, err))
	p.mu.Unlock()
}

// record keeps err against unit without counting a unit. A unit may carry
// several failures, e.g. one per datamart category.
func (p *phaseTracker) record(unit string, err error) {
	p.mu.Lock()
	p.failures = append(p.failures, p.failure(unit, err))
	p.mu.Unlock()
}

// countFailed counts a unit whose failures were recorded separately.
func (p *phaseTracker) countFailed() {
	p.mu.Lock()
	p.units++
	p.failed++
	p.mu.Unlock()
}

func (p *phaseTracker) failure(unit string, err error) domain.UnitFailure {
	errType := string(errors.TypeOf(err))
	if errType == "" {
		errType = "UNKNOWN"
	}
	return domain.UnitFailure{
		Phase:     p.phase,
		Unit:      unit,
		ErrorType: errType,
		Message:   err.Error(),
		At:        p.now(),
	}
}

func (p *phaseTracker) result(d time.Duration) (domain.PhaseResult, []domain.UnitFailure) {
	p.mu.Lock()
	defer p.mu.Unlock()

	failures := make([]domain.UnitFailure, len(p.failures))
	copy(failures, p.failures)
	return domain.PhaseResult{
		Phase:     p.phase,
		Status:    domain.RunStatusCompleted,
		Units:     p.units,
		Succeeded: p.succeeded,
		Failed:    p.failed,
		Duration:  d,
	}, failures
}
