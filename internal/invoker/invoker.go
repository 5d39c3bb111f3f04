package invoker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"time"

	"github.com/andy-broyles/matfree.app/internal/model"
)

// Invoker defaults.
const (
	// DefaultExecutable is the engine name resolved through PATH when no
	// override is configured.
	DefaultExecutable = "matfree"

	// DefaultEvalTimeout bounds inline evaluation.
	DefaultEvalTimeout = 30 * time.Second

	// DefaultFileTimeout bounds script file execution.
	DefaultFileTimeout = 60 * time.Second

	// waitDelay is how long Wait keeps reading pipes after the process was
	// killed, in case a grandchild inherited them.
	waitDelay = time.Second
)

// Engine command-line flags.
const (
	flagEval    = "-e"
	flagPath    = "-p"
	flagVersion = "--version"
)

// Stream names passed to a LineFunc.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// LineFunc observes captured output one line at a time. It may be called
// concurrently for stdout and stderr.
type LineFunc func(stream, line string)

// Invoker launches the engine executable.
type Invoker struct {
	// Executable is the engine path or name. Empty means DefaultExecutable.
	Executable string

	// SearchPath directories are passed to the engine as -p flags for
	// evaluate and run_file.
	SearchPath []string

	// EvalTimeout and FileTimeout bound evaluate and run_file. Zero selects
	// the defaults.
	EvalTimeout time.Duration
	FileTimeout time.Duration

	// Dir is the child's working directory. Empty means the caller's.
	Dir string

	// Env is appended to the caller's environment.
	Env []string

	// Stdin, Stdout and Stderr are inherited by sessions. Nil selects the
	// process's own standard streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Result is the raw record of one engine process run.
type Result struct {
	Executable string
	Args       []string
	ExitCode   int
	Stdout     string
	Stderr     string
	Duration   time.Duration

	// Timeout is the bound the run was subject to; zero for sessions.
	Timeout time.Duration

	// LaunchErr is set when the process could not be started at all.
	LaunchErr error

	// Err is the context error that ended the run early:
	// context.DeadlineExceeded when the bound fired, context.Canceled when
	// the caller gave up.
	Err error
}

// New returns an Invoker for the given executable with default timeouts.
func New(executable string) *Invoker {
	return &Invoker{
		Executable:  executable,
		EvalTimeout: DefaultEvalTimeout,
		FileTimeout: DefaultFileTimeout,
	}
}

// ExecutablePath returns the executable that will be launched.
func (inv *Invoker) ExecutablePath() string {
	if inv.Executable == "" {
		return DefaultExecutable
	}
	return inv.Executable
}

// Timeout returns the bound applied to op. Sessions are unbounded.
func (inv *Invoker) Timeout(op model.Operation) time.Duration {
	switch op {
	case model.OpRunFile:
		if inv.FileTimeout > 0 {
			return inv.FileTimeout
		}
		return DefaultFileTimeout
	case model.OpSession:
		return 0
	default:
		if inv.EvalTimeout > 0 {
			return inv.EvalTimeout
		}
		return DefaultEvalTimeout
	}
}

// Args returns the engine arguments for req.
func (inv *Invoker) Args(req model.Request) []string {
	switch req.Operation {
	case model.OpEvaluate:
		return append(inv.searchArgs(), flagEval, req.Code)
	case model.OpRunFile:
		return append(inv.searchArgs(), req.Path)
	case model.OpVersion:
		return []string{flagVersion}
	default:
		return nil
	}
}

func (inv *Invoker) searchArgs() []string {
	args := make([]string, 0, 2*len(inv.SearchPath)+2)
	for _, dir := range inv.SearchPath {
		args = append(args, flagPath, dir)
	}
	return args
}

// Run executes a bounded request, capturing stdout and stderr. onLine, when
// non-nil, additionally receives every captured line as it is written.
func (inv *Invoker) Run(ctx context.Context, req model.Request, onLine LineFunc) Result {
	res := Result{
		Executable: inv.ExecutablePath(),
		Args:       inv.Args(req),
		Timeout:    inv.Timeout(req.Operation),
	}

	ctx, cancel := context.WithTimeout(ctx, res.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, res.Executable, res.Args...)
	cmd.WaitDelay = waitDelay
	inv.prepare(cmd)

	var stdout, stderr bytes.Buffer
	var stdoutLines, stderrLines *lineWriter
	if onLine != nil {
		stdoutLines = &lineWriter{stream: StreamStdout, fn: onLine}
		stderrLines = &lineWriter{stream: StreamStderr, fn: onLine}
		cmd.Stdout = io.MultiWriter(&stdout, stdoutLines)
		cmd.Stderr = io.MultiWriter(&stderr, stderrLines)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		// Start refuses a done context before it looks for the program.
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Err = ctxErr
			return res
		}
		res.LaunchErr = err
		return res
	}
	waitErr := cmd.Wait()
	res.Duration = time.Since(start)

	if onLine != nil {
		stdoutLines.Flush()
		stderrLines.Flush()
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.ExitCode = exitCode(cmd, waitErr)

	if waitErr != nil && !errors.Is(waitErr, exec.ErrWaitDelay) {
		res.Err = ctx.Err()
	}
	return res
}

// Session runs the engine with no arguments, wired to the caller's terminal,
// and blocks until the child exits. There is no timeout and no capture.
func (inv *Invoker) Session() Result {
	res := Result{Executable: inv.ExecutablePath()}

	cmd := exec.Command(res.Executable)
	inv.prepare(cmd)
	cmd.Stdin = orReader(inv.Stdin, os.Stdin)
	cmd.Stdout = orWriter(inv.Stdout, os.Stdout)
	cmd.Stderr = orWriter(inv.Stderr, os.Stderr)

	// The terminal delivers Ctrl-C to the whole foreground group; the
	// child handles it, so keep it from terminating this process.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		res.LaunchErr = err
		return res
	}
	waitErr := cmd.Wait()
	res.Duration = time.Since(start)
	res.ExitCode = exitCode(cmd, waitErr)
	return res
}

func (inv *Invoker) prepare(cmd *exec.Cmd) {
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
}

// exitCode extracts the child's exit status. A child killed by a signal
// reports -1.
func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

func orReader(r, fallback io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return fallback
}

func orWriter(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
