package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/andy-broyles/matfree.app/internal/backend"
	"github.com/andy-broyles/matfree.app/internal/model"
	"github.com/andy-broyles/matfree.app/internal/outcome"
	"github.com/andy-broyles/matfree.app/internal/store"
)

// ErrNotActive is returned by Cancel when the run is not in flight.
var ErrNotActive = errors.New("run is not active")

// Executor runs one bounded engine request. *dispatch.Dispatcher implements it.
type Executor interface {
	Execute(ctx context.Context, spec backend.Spec) outcome.Outcome
}

// Runner drives runs through their lifecycle and records the results.
type Runner struct {
	store  store.Store
	exec   Executor
	logger *slog.Logger
	wg     sync.WaitGroup
	broker *LogBroker

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New creates a runner that executes through exec and records into s.
func New(s store.Store, exec Executor, logger *slog.Logger) *Runner {
	return &Runner{
		store:   s,
		exec:    exec,
		logger:  logger,
		broker:  NewLogBroker(),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Broker returns the runner's log broker for SSE subscription.
func (r *Runner) Broker() *LogBroker {
	return r.broker
}

// Execute records run, executes it and returns the final record. Canceling
// ctx kills the run. The returned error reports persistence failures only;
// engine failures are recorded on the run.
func (r *Runner) Execute(ctx context.Context, run *model.Run) (*model.Run, error) {
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.track(run.ID, cancel)
	defer r.untrack(run.ID)

	return r.execute(runCtx, run), nil
}

// Submit creates a pending run and executes it in a goroutine. The goroutine
// operates on a copy of the run to avoid data races with the caller.
func (r *Runner) Submit(ctx context.Context, run *model.Run) error {
	if err := r.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.track(run.ID, cancel)

	runCopy := *run
	r.wg.Go(func() {
		defer r.untrack(runCopy.ID)
		r.execute(runCtx, &runCopy)
	})
	return nil
}

// Cancel stops an in-flight run. The run ends in the killed status.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if !ok {
		return ErrNotActive
	}
	cancel()
	r.logger.Info("run cancel requested", "run_id", id)
	return nil
}

// Active reports whether the run is in flight.
func (r *Runner) Active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cancels[id]
	return ok
}

// Wait blocks until all submitted runs complete.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) track(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.cancels[id] = cancel
	r.mu.Unlock()
}

func (r *Runner) untrack(id string) {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	delete(r.cancels, id)
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// execute takes a stored pending run through running to its terminal status.
func (r *Runner) execute(ctx context.Context, run *model.Run) *model.Run {
	// Close the log stream when execution finishes, regardless of outcome.
	defer r.broker.Close(run.ID)

	if err := r.store.UpdateRunStatus(context.Background(), run.ID, model.StatusRunning); err != nil {
		r.logger.Error("failed to transition to running", "run_id", run.ID, "error", err)
		return r.finishFailed(run, nil, &outcome.Failure{
			Kind:    outcome.KindInvalid,
			Message: fmt.Sprintf("failed to start: %v", err),
		})
	}
	start := time.Now().UTC()

	// Lines are persisted for history and published for live subscribers.
	// stdout and stderr call in concurrently; publish order must match seq.
	var (
		lineMu sync.Mutex
		seq    int
	)
	spec := backend.Spec{
		Request: run.Request(),
		LineWriter: func(stream, line string) {
			lineMu.Lock()
			defer lineMu.Unlock()
			n := seq
			seq++
			if err := r.store.InsertLogLine(context.Background(), run.ID, n, stream, line); err != nil {
				r.logger.Error("failed to persist log line", "run_id", run.ID, "seq", n, "error", err)
			}
			if dropped := r.broker.Publish(run.ID, model.LogLine{RunID: run.ID, Seq: n, Stream: stream, Line: line}); dropped > 0 {
				logLinesDropped.Add(float64(dropped))
			}
		},
	}

	o := r.exec.Execute(ctx, spec)

	if o.Failure != nil {
		return r.finishFailed(run, &start, o.Failure, withOutcome(o))
	}

	now := time.Now().UTC()
	dur := durationMS(o, start)
	exitCode := o.ExitCode
	completed := *run
	completed.Strategy = o.Strategy
	completed.Status = model.StatusCompleted
	completed.Output = o.Output
	completed.ExitCode = &exitCode
	completed.DurationMS = &dur
	completed.StartedAt = &start
	completed.FinishedAt = &now

	if err := r.store.UpdateRun(context.Background(), &completed); err != nil {
		r.logger.Error("failed to update completed run", "run_id", run.ID, "error", err)
	}
	r.logger.Info("run completed",
		"run_id", run.ID,
		"operation", run.Operation,
		"strategy", o.Strategy,
		"duration_ms", dur,
	)
	return &completed
}

type finishOption func(*model.Run)

func withOutcome(o outcome.Outcome) finishOption {
	return func(run *model.Run) {
		run.Strategy = o.Strategy
		run.Output = o.Output
		if o.Strategy == model.StrategySubprocess && o.Failure.Kind == outcome.KindEvaluation {
			code := o.ExitCode
			run.ExitCode = &code
		}
	}
}

// finishFailed records a failure. A canceled run ends as killed; anything else
// as failed. startedAt is nil if execution never started.
func (r *Runner) finishFailed(run *model.Run, startedAt *time.Time, f *outcome.Failure, opts ...finishOption) *model.Run {
	now := time.Now().UTC()
	var dur int
	if startedAt != nil {
		dur = int(now.Sub(*startedAt).Milliseconds())
	}

	failed := *run
	failed.Status = model.StatusFailed
	if f.Kind == outcome.KindCanceled {
		failed.Status = model.StatusKilled
	}
	failed.Error = f.Message
	failed.ErrorKind = string(f.Kind)
	failed.DurationMS = &dur
	failed.StartedAt = startedAt
	failed.FinishedAt = &now
	for _, opt := range opts {
		opt(&failed)
	}

	if err := r.store.UpdateRun(context.Background(), &failed); err != nil {
		r.logger.Error("failed to update failed run", "run_id", run.ID, "error", err)
	}
	r.logger.Info("run failed",
		"run_id", run.ID,
		"operation", run.Operation,
		"status", failed.Status,
		"kind", f.Kind,
		"error", f.Message,
	)
	return &failed
}

func durationMS(o outcome.Outcome, start time.Time) int {
	if o.Duration > 0 {
		return int(o.Duration.Milliseconds())
	}
	return int(time.Since(start).Milliseconds())
}
