package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/andy-broyles/matfree.app/internal/binding"
	"github.com/andy-broyles/matfree.app/internal/invoker"
	"github.com/andy-broyles/matfree.app/internal/model"
	"github.com/andy-broyles/matfree.app/internal/outcome"
)

// NativeName is the backend name reported in capabilities.
const NativeName = "native"

// Compile-time interface satisfaction check.
var _ Backend = (*Native)(nil)

// Native calls an in-process binding. Work the binding has no entry point
// for (script files without FileRunner, sessions, version) goes through the
// engine executable.
type Native struct {
	// mu serializes binding calls; the engine interpreter keeps one
	// workspace and is not safe for concurrent use.
	mu          sync.Mutex
	b           binding.Binding
	bindingName string
	fallback    *Subprocess
}

// NewNative returns a backend around b. fallback handles the requests b
// cannot serve.
func NewNative(b binding.Binding, bindingName string, fallback *Subprocess) *Native {
	return &Native{b: b, bindingName: bindingName, fallback: fallback}
}

// Execute runs a bounded request in-process where the binding supports it.
func (n *Native) Execute(ctx context.Context, spec Spec) outcome.Outcome {
	req := spec.Request
	if err := req.Validate(); err != nil {
		return outcome.Fail(outcome.Invalid(err))
	}

	var call func() (string, error)
	switch req.Operation {
	case model.OpEvaluate:
		call = func() (string, error) { return n.b.Eval(req.Code) }
	case model.OpRunFile:
		fr, ok := n.b.(binding.FileRunner)
		if !ok {
			return n.fallback.Execute(ctx, spec)
		}
		call = func() (string, error) { return fr.RunFile(req.Path) }
	default:
		return n.fallback.Execute(ctx, spec)
	}

	if err := ctx.Err(); err != nil {
		return outcome.FromNative("", err)
	}

	start := time.Now()
	text, err := n.call(call)
	o := outcome.FromNative(text, err)
	o.Duration = time.Since(start)

	if spec.LineWriter != nil && o.OK() {
		emitLines(spec.LineWriter, text)
	}
	return o
}

// Session always runs the engine executable; the binding has no interactive mode.
func (n *Native) Session(ctx context.Context) outcome.Outcome {
	return n.fallback.Session(ctx)
}

// Get reads a workspace variable from the binding.
func (n *Native) Get(ctx context.Context, name string) (binding.Value, error) {
	if err := ctx.Err(); err != nil {
		return binding.Value{}, outcome.FromNative("", err).Failure
	}
	var v binding.Value
	_, err := n.call(func() (string, error) {
		var err error
		v, err = n.b.Get(name)
		return "", err
	})
	if err != nil {
		return binding.Value{}, outcome.FromNative("", err).Failure
	}
	return v, nil
}

// Set assigns a workspace variable when the binding supports it.
func (n *Native) Set(ctx context.Context, name string, v binding.Value) error {
	s, ok := n.b.(binding.Setter)
	if !ok {
		return outcome.Unsupported("binding %q cannot assign variables", n.bindingName)
	}
	if err := ctx.Err(); err != nil {
		return outcome.FromNative("", err).Failure
	}
	_, err := n.call(func() (string, error) { return "", s.Set(name, v) })
	if err != nil {
		return outcome.FromNative("", err).Failure
	}
	return nil
}

// Capabilities reports the binding in use and the fallback executable.
func (n *Native) Capabilities() Capabilities {
	caps := n.fallback.Capabilities()
	caps.Name = NativeName
	caps.Strategy = model.StrategyNative
	caps.Binding = n.bindingName
	caps.Operations = []model.Operation{model.OpEvaluate, model.OpRunFile, model.OpSession, model.OpGet, model.OpVersion}
	if _, ok := n.b.(binding.Setter); ok {
		caps.Operations = append(caps.Operations, model.OpSet)
	}
	return caps
}

// call runs fn under the binding lock and turns a panic in the binding into
// an error.
func (n *Native) call(fn func() (string, error)) (text string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("native binding panic: %v", r)
		}
	}()
	return fn()
}

func emitLines(fn invoker.LineFunc, text string) {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return
	}
	for line := range strings.SplitSeq(text, "\n") {
		fn(invoker.StreamStdout, strings.TrimSuffix(line, "\r"))
	}
}
