package outcome

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andy-broyles/matfree.app/internal/invoker"
	"github.com/andy-broyles/matfree.app/internal/model"
)

// Outcome is the uniform result of one engine operation.
type Outcome struct {
	Output   string
	ExitCode int
	Duration time.Duration
	Strategy model.Strategy
	Failure  *Failure
}

// OK reports whether the operation succeeded.
func (o Outcome) OK() bool {
	return o.Failure == nil
}

// Result returns the output text, or the failure as an error.
func (o Outcome) Result() (string, error) {
	if o.Failure != nil {
		return "", o.Failure
	}
	return o.Output, nil
}

// Err returns the failure as an error, or nil on success.
func (o Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure
}

// Success returns a successful outcome carrying text unchanged.
func Success(text string) Outcome {
	return Outcome{Output: text}
}

// Fail returns a failed outcome.
func Fail(f *Failure) Outcome {
	return Outcome{Failure: f}
}

// FromNative converts a native binding's direct return into an Outcome.
// Binding results are already validated, so a nil error is always success.
func FromNative(text string, err error) Outcome {
	if err == nil {
		return Outcome{Output: text, Strategy: model.StrategyNative}
	}
	o := Fail(&Failure{Kind: KindEvaluation, Message: strings.TrimSpace(err.Error()), Err: err})
	o.Strategy = model.StrategyNative
	if errors.Is(err, context.Canceled) {
		o.Failure.Kind = KindCanceled
	}
	return o
}

// FromProcess converts a captured engine process run into an Outcome.
func FromProcess(op model.Operation, r invoker.Result) Outcome {
	o := Outcome{
		ExitCode: r.ExitCode,
		Duration: r.Duration,
		Strategy: model.StrategySubprocess,
	}

	switch {
	case r.LaunchErr != nil:
		o.Failure = NotFound(r.Executable, r.LaunchErr)
	case errors.Is(r.Err, context.DeadlineExceeded):
		o.Failure = &Failure{
			Kind:    KindTimeout,
			Message: fmt.Sprintf("%s timed out after %s", describe(op), r.Timeout),
			Err:     r.Err,
		}
	case errors.Is(r.Err, context.Canceled):
		o.Failure = &Failure{
			Kind:    KindCanceled,
			Message: fmt.Sprintf("%s canceled", describe(op)),
			Err:     r.Err,
		}
	case r.ExitCode == 0:
		o.Output = r.Stdout
	default:
		msg := strings.TrimSpace(r.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("engine exited with status %d", r.ExitCode)
		}
		o.Failure = &Failure{Kind: KindEvaluation, Message: msg}
	}
	return o
}

// FromSession converts the end of an interactive session into an Outcome.
// Sessions are not captured, so only a launch failure is reported as failure;
// the child's exit code is passed through.
func FromSession(r invoker.Result) Outcome {
	o := Outcome{
		ExitCode: r.ExitCode,
		Duration: r.Duration,
		Strategy: model.StrategySubprocess,
	}
	if r.LaunchErr != nil {
		o.Failure = NotFound(r.Executable, r.LaunchErr)
	}
	return o
}

func describe(op model.Operation) string {
	switch op {
	case model.OpEvaluate:
		return "evaluation"
	case model.OpRunFile:
		return "script execution"
	default:
		return string(op)
	}
}
