package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/andy-broyles/matfree.app/internal/backend"
	"github.com/andy-broyles/matfree.app/internal/binding"
	"github.com/andy-broyles/matfree.app/internal/config"
	"github.com/andy-broyles/matfree.app/internal/invoker"
	"github.com/andy-broyles/matfree.app/internal/locator"
	"github.com/andy-broyles/matfree.app/internal/model"
	"github.com/andy-broyles/matfree.app/internal/outcome"
)

// Dispatcher owns the resolved strategy and routes operations to it.
// It is safe for concurrent use.
type Dispatcher struct {
	registry *binding.Registry
	cfg      config.Engine
	logger   *slog.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	once     sync.Once
	location locator.Location
	backend  backend.Backend
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStreams sets the streams an interactive session is attached to. Nil
// streams keep the current process's own.
func WithStreams(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(d *Dispatcher) {
		d.stdin, d.stdout, d.stderr = stdin, stdout, stderr
	}
}

// New returns a Dispatcher that will probe reg for a native binding on first
// use. cfg supplies the executable override, search path, timeouts and mode.
func New(reg *binding.Registry, cfg config.Engine, logger *slog.Logger, opts ...Option) *Dispatcher {
	if reg == nil {
		reg = binding.Default()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := &Dispatcher{
		registry: reg,
		cfg:      cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve runs strategy resolution if it has not happened yet. Concurrent
// callers block until the single resolution completes.
func (d *Dispatcher) Resolve() {
	d.once.Do(d.resolve)
}

func (d *Dispatcher) resolve() {
	loc := locator.Locate(d.registry, d.cfg, d.logger)

	inv := invoker.New(loc.Executable)
	inv.SearchPath = d.cfg.SearchPath
	if d.cfg.EvalTimeout > 0 {
		inv.EvalTimeout = d.cfg.EvalTimeout
	}
	if d.cfg.FileTimeout > 0 {
		inv.FileTimeout = d.cfg.FileTimeout
	}
	inv.Stdin, inv.Stdout, inv.Stderr = d.stdin, d.stdout, d.stderr

	sp := backend.NewSubprocess(inv)
	if loc.Native() {
		d.backend = backend.NewNative(loc.Binding, loc.BindingName, sp)
	} else {
		d.backend = sp
	}
	d.location = loc

	setStrategyInfo(loc.Strategy)
	d.logger.Info("engine strategy resolved",
		"strategy", loc.Strategy,
		"binding", loc.BindingName,
		"executable", loc.Executable,
	)
}

// Strategy returns the resolved strategy, resolving it if needed.
func (d *Dispatcher) Strategy() model.Strategy {
	d.Resolve()
	return d.location.Strategy
}

// Location returns the resolved engine location, resolving it if needed.
func (d *Dispatcher) Location() locator.Location {
	d.Resolve()
	return d.location
}

// Backend returns the backend selected by resolution.
func (d *Dispatcher) Backend() backend.Backend {
	d.Resolve()
	return d.backend
}

// Evaluate runs inline code and returns its outcome.
func (d *Dispatcher) Evaluate(ctx context.Context, code string) outcome.Outcome {
	return d.Execute(ctx, backend.Spec{Request: model.EvaluateText(code)})
}

// RunFile executes a script file and returns its outcome.
func (d *Dispatcher) RunFile(ctx context.Context, path string) outcome.Outcome {
	return d.Execute(ctx, backend.Spec{Request: model.RunFile(path)})
}

// Version returns the engine's version banner.
func (d *Dispatcher) Version(ctx context.Context) outcome.Outcome {
	return d.Execute(ctx, backend.Spec{Request: model.Version()})
}

// Execute runs a bounded request on the resolved backend.
func (d *Dispatcher) Execute(ctx context.Context, spec backend.Spec) outcome.Outcome {
	b := d.Backend()
	start := time.Now()
	o := b.Execute(ctx, spec)
	d.observe(spec.Request.Operation, o, time.Since(start))
	return o
}

// StartSession starts an interactive session and blocks until it ends.
func (d *Dispatcher) StartSession(ctx context.Context) outcome.Outcome {
	b := d.Backend()
	start := time.Now()
	o := b.Session(ctx)
	d.observe(model.OpSession, o, time.Since(start))
	return o
}

// Get reads a workspace variable. It fails with outcome.KindUnsupported
// unless the native strategy is active.
func (d *Dispatcher) Get(ctx context.Context, name string) (binding.Value, error) {
	b := d.Backend()
	start := time.Now()
	v, err := b.Get(ctx, name)

	o := outcome.Outcome{Strategy: d.location.Strategy}
	if err != nil {
		o.Failure = asFailure(err)
	}
	d.observe(model.OpGet, o, time.Since(start))
	return v, err
}

// Set assigns a workspace variable. Like Get it needs the native strategy,
// and the binding must also implement binding.Setter.
func (d *Dispatcher) Set(ctx context.Context, name string, v binding.Value) error {
	b := d.Backend()
	start := time.Now()
	err := b.Set(ctx, name, v)

	o := outcome.Outcome{Strategy: d.location.Strategy}
	if err != nil {
		o.Failure = asFailure(err)
	}
	d.observe(model.OpSet, o, time.Since(start))
	return err
}

func (d *Dispatcher) observe(op model.Operation, o outcome.Outcome, elapsed time.Duration) {
	strategy := o.Strategy
	if strategy == "" {
		strategy = d.location.Strategy
	}
	result := resultSuccess
	if o.Failure != nil {
		result = string(o.Failure.Kind)
	}
	recordDispatch(op, strategy, result, elapsed)

	if o.Failure != nil {
		d.logger.Debug("engine operation failed",
			"operation", op,
			"strategy", strategy,
			"kind", o.Failure.Kind,
			"error", o.Failure.Message,
			"duration_ms", elapsed.Milliseconds(),
		)
		return
	}
	d.logger.Debug("engine operation completed",
		"operation", op,
		"strategy", strategy,
		"exit_code", o.ExitCode,
		"duration_ms", elapsed.Milliseconds(),
	)
}

func asFailure(err error) *outcome.Failure {
	var f *outcome.Failure
	if errors.As(err, &f) {
		return f
	}
	return &outcome.Failure{Kind: outcome.KindEvaluation, Message: err.Error(), Err: err}
}
