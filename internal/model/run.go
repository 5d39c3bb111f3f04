package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Run status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusKilled    = "killed"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning: true,
		StatusFailed:  true,
		StatusKilled:  true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusKilled:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status is a final run status.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusKilled
}

// LogLine is a single captured output line of a run.
type LogLine struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	Stream    string    `json:"stream"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}

// Run is one recorded engine operation.
type Run struct {
	ID         string     `json:"id"`
	Operation  Operation  `json:"operation"`
	Strategy   Strategy   `json:"strategy,omitempty"`
	Status     string     `json:"status"`
	Input      string     `json:"input"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	ErrorKind  string     `json:"error_kind,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Request rebuilds the engine request the run was created for.
func (r *Run) Request() Request {
	switch r.Operation {
	case OpRunFile:
		return RunFile(r.Input)
	default:
		return Request{Operation: r.Operation, Code: r.Input}
	}
}

// NewID returns a new run identifier. ULIDs sort by creation time, which
// keeps the run history listable by ID.
func NewID() string {
	return ulid.Make().String()
}

// NewRun returns a pending run for req with a fresh ID.
func NewRun(req Request) *Run {
	return &Run{
		ID:        NewID(),
		Operation: req.Operation,
		Status:    StatusPending,
		Input:     req.Input(),
		CreatedAt: time.Now().UTC(),
	}
}
