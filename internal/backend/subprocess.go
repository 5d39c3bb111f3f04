package backend

import (
	"context"
	"fmt"

	"github.com/andy-broyles/matfree.app/internal/binding"
	"github.com/andy-broyles/matfree.app/internal/invoker"
	"github.com/andy-broyles/matfree.app/internal/model"
	"github.com/andy-broyles/matfree.app/internal/outcome"
)

// SubprocessName is the backend name reported in capabilities.
const SubprocessName = "subprocess"

// Compile-time interface satisfaction check.
var _ Backend = (*Subprocess)(nil)

// Subprocess reaches the engine by launching its executable.
type Subprocess struct {
	inv *invoker.Invoker
}

// NewSubprocess returns a backend that runs requests through inv.
func NewSubprocess(inv *invoker.Invoker) *Subprocess {
	return &Subprocess{inv: inv}
}

// Execute launches the engine for a bounded request.
func (s *Subprocess) Execute(ctx context.Context, spec Spec) outcome.Outcome {
	req := spec.Request
	switch req.Operation {
	case model.OpSession, model.OpGet, model.OpSet:
		return outcome.Fail(outcome.Invalid(fmt.Errorf("%s cannot run as a bounded request", req.Operation)))
	}
	if err := req.Validate(); err != nil {
		return outcome.Fail(outcome.Invalid(err))
	}
	return outcome.FromProcess(req.Operation, s.inv.Run(ctx, req, spec.LineWriter))
}

// Session starts an interactive engine process. The context is not used to
// cancel it; the session lasts until the child exits.
func (s *Subprocess) Session(_ context.Context) outcome.Outcome {
	return outcome.FromSession(s.inv.Session())
}

// Get is not available without a native binding: the engine executable has
// no variable-inspection interface.
func (s *Subprocess) Get(_ context.Context, name string) (binding.Value, error) {
	return binding.Value{}, outcome.Unsupported(
		"reading variable %q requires the native binding; the engine executable cannot return workspace values", name)
}

// Set is not available without a native binding: every engine process
// starts with an empty workspace.
func (s *Subprocess) Set(_ context.Context, name string, _ binding.Value) error {
	return outcome.Unsupported(
		"assigning variable %q requires the native binding; an engine process keeps no workspace between calls", name)
}

// Capabilities reports the executable and timeouts in use.
func (s *Subprocess) Capabilities() Capabilities {
	return Capabilities{
		Name:          SubprocessName,
		Strategy:      model.StrategySubprocess,
		Executable:    s.inv.ExecutablePath(),
		SearchPath:    s.inv.SearchPath,
		Operations:    []model.Operation{model.OpEvaluate, model.OpRunFile, model.OpSession, model.OpVersion},
		EvalTimeoutMS: s.inv.Timeout(model.OpEvaluate).Milliseconds(),
		FileTimeoutMS: s.inv.Timeout(model.OpRunFile).Milliseconds(),
	}
}
