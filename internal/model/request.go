package model

import "fmt"

// Operation names the kind of work requested from the engine.
type Operation string

// Operation constants.
const (
	OpEvaluate Operation = "evaluate"
	OpRunFile  Operation = "run_file"
	OpSession  Operation = "session"
	OpGet      Operation = "get"
	OpSet      Operation = "set"
	OpVersion  Operation = "version"
)

// String implements fmt.Stringer.
func (o Operation) String() string {
	return string(o)
}

// Request is a single operation addressed to the engine. Only the field used by
// its Operation is set.
type Request struct {
	Operation Operation
	Code      string
	Path      string
}

// EvaluateText requests evaluation of inline code.
func EvaluateText(code string) Request {
	return Request{Operation: OpEvaluate, Code: code}
}

// RunFile requests execution of a script file.
func RunFile(path string) Request {
	return Request{Operation: OpRunFile, Path: path}
}

// StartSession requests an interactive session.
func StartSession() Request {
	return Request{Operation: OpSession}
}

// Version requests the engine's version banner.
func Version() Request {
	return Request{Operation: OpVersion}
}

// Validate reports whether the request carries the input its operation needs.
func (r Request) Validate() error {
	switch r.Operation {
	case OpEvaluate:
		return nil
	case OpRunFile:
		if r.Path == "" {
			return fmt.Errorf("run_file: path is required")
		}
		return nil
	case OpSession, OpVersion:
		return nil
	default:
		return fmt.Errorf("unsupported operation %q", r.Operation)
	}
}

// Input returns the operation's primary input for display and persistence.
func (r Request) Input() string {
	switch r.Operation {
	case OpEvaluate:
		return r.Code
	case OpRunFile:
		return r.Path
	default:
		return ""
	}
}
