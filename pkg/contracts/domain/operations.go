package domain

import (
	"time"
)

// Run is one execution of the consolidation pipeline: ingest, route,
// summarize and the optional export steps.
type Run struct {
	ID          string        `json:"id" db:"id" validate:"required,uuid"`
	Prefix      string        `json:"prefix" db:"prefix"`
	Status      RunStatus     `json:"status" db:"status"`
	Phases      []PhaseResult `json:"phases,omitempty" db:"phases"`
	Succeeded   int           `json:"succeeded" db:"succeeded"`
	Failed      int           `json:"failed" db:"failed"`
	Failures    []UnitFailure `json:"failures,omitempty" db:"-"`
	Error       string        `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}

// Duration returns how long the run took, or has taken so far.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(*r.StartedAt)
	}
	return time.Since(*r.StartedAt)
}

// RunStatus represents the status of a run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether a run in status s has finished.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Phase identifiers, in execution order.
const (
	PhaseIngest    = "ingest"
	PhaseRoute     = "route"
	PhaseSummarize = "summarize"
	PhaseExport    = "export"
	PhasePublish   = "publish"
)

// PhaseResult records the outcome of one phase of a run.
type PhaseResult struct {
	Phase     string        `json:"phase"`
	Status    RunStatus     `json:"status"`
	Units     int           `json:"units"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Message   string        `json:"message,omitempty"`
}

// UnitFailure is one failed unit of work: an object, an entity file or a
// datamart category.
type UnitFailure struct {
	Phase     string    `json:"phase"`
	Unit      string    `json:"unit"`
	ErrorType string    `json:"error_type"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// RunEvent is published while a run progresses.
type RunEvent struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	Phase     string    `json:"phase,omitempty"`
	Message   string    `json:"message,omitempty"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Time      time.Time `json:"time"`
}

// Run event types
const (
	EventRunStarted   = "run:started"
	EventRunPhase     = "run:phase"
	EventRunCompleted = "run:completed"
	EventRunFailed    = "run:failed"
)
