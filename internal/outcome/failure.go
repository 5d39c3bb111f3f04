package outcome

import (
	"errors"
	"fmt"
)

// Kind classifies a failed operation.
type Kind string

// Failure kinds.
const (
	KindNotFound    Kind = "not_found"
	KindTimeout     Kind = "timeout"
	KindEvaluation  Kind = "evaluation"
	KindCanceled    Kind = "canceled"
	KindUnsupported Kind = "unsupported"
	KindInvalid     Kind = "invalid"
)

// Sentinel errors matched by Failure.Is, one per Kind.
var (
	ErrExecutableNotFound = errors.New("engine executable not found")
	ErrTimeout            = errors.New("engine timed out")
	ErrEvaluation         = errors.New("evaluation failed")
	ErrCanceled           = errors.New("operation canceled")
	ErrUnsupported        = errors.New("operation not supported")
	ErrInvalidRequest     = errors.New("invalid request")
)

var kindSentinels = map[Kind]error{
	KindNotFound:    ErrExecutableNotFound,
	KindTimeout:     ErrTimeout,
	KindEvaluation:  ErrEvaluation,
	KindCanceled:    ErrCanceled,
	KindUnsupported: ErrUnsupported,
	KindInvalid:     ErrInvalidRequest,
}

// Failure is the structured error carried by a failed Outcome.
type Failure struct {
	// Kind classifies the failure.
	Kind Kind

	// Message is the human-readable text shown to the caller.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error returns the failure message.
func (f *Failure) Error() string {
	return f.Message
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Is reports whether target is the sentinel for this failure's kind.
func (f *Failure) Is(target error) bool {
	s, ok := kindSentinels[f.Kind]
	return ok && s == target
}

// KindOf returns the failure kind of err, or "" if err is not a *Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// NotFound builds the failure reported when the engine executable cannot be
// launched at all. The message names the binary and tells the caller how to
// make an engine available.
func NotFound(executable string, cause error) *Failure {
	return &Failure{
		Kind: KindNotFound,
		Message: fmt.Sprintf("matfree engine executable %q not found. Either:\n"+
			"  1. Build the engine and set MATFREE_BIN to its path, or put it on PATH\n"+
			"  2. Build the native bindings so the engine runs in-process",
			executable),
		Err: cause,
	}
}

// Unsupported builds the failure for an operation the active strategy cannot perform.
func Unsupported(format string, args ...any) *Failure {
	return &Failure{Kind: KindUnsupported, Message: fmt.Sprintf(format, args...)}
}

// Invalid builds the failure for a malformed request.
func Invalid(err error) *Failure {
	return &Failure{Kind: KindInvalid, Message: err.Error(), Err: err}
}
