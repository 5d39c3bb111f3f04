package backend

import (
	"context"

	"github.com/andy-broyles/matfree.app/internal/binding"
	"github.com/andy-broyles/matfree.app/internal/invoker"
	"github.com/andy-broyles/matfree.app/internal/model"
	"github.com/andy-broyles/matfree.app/internal/outcome"
)

// Backend is the interface both execution strategies implement.
type Backend interface {
	// Execute runs a bounded request (evaluate, run_file, version) and
	// returns its normalized outcome. The context carries cancellation.
	Execute(ctx context.Context, spec Spec) outcome.Outcome

	// Session runs an interactive engine session on the caller's terminal
	// and blocks until it ends.
	Session(ctx context.Context) outcome.Outcome

	// Get returns a workspace variable. Errors are *outcome.Failure.
	Get(ctx context.Context, name string) (binding.Value, error)

	// Set assigns a workspace variable. Errors are *outcome.Failure.
	Set(ctx context.Context, name string, v binding.Value) error

	// Capabilities reports how this backend reaches the engine.
	Capabilities() Capabilities
}

// Spec describes one bounded request.
type Spec struct {
	Request model.Request

	// LineWriter optionally receives output lines as they are captured.
	// It may be called concurrently for stdout and stderr.
	LineWriter invoker.LineFunc
}

// Capabilities describes a backend.
type Capabilities struct {
	Name          string            `json:"name"`
	Strategy      model.Strategy    `json:"strategy"`
	Binding       string            `json:"binding,omitempty"`
	Executable    string            `json:"executable"`
	SearchPath    []string          `json:"search_path,omitempty"`
	Operations    []model.Operation `json:"operations"`
	EvalTimeoutMS int64             `json:"eval_timeout_ms"`
	FileTimeoutMS int64             `json:"file_timeout_ms"`
}
