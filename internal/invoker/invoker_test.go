package invoker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andy-broyles/matfree.app/internal/model"
)

// writeEngine writes a fake engine shell script into a temp dir and returns its path.
func writeEngine(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engines are POSIX shell scripts")
	}
	path := filepath.Join(t.TempDir(), "matfree")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}
	return path
}

func TestArgs(t *testing.T) {
	inv := New("matfree")

	tests := []struct {
		name string
		req  model.Request
		want []string
	}{
		{"evaluate", model.EvaluateText("x = 1"), []string{"-e", "x = 1"}},
		{"run file", model.RunFile("/tmp/a.m"), []string{"/tmp/a.m"}},
		{"session", model.StartSession(), nil},
		{"version", model.Version(), []string{"--version"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inv.Args(tt.req); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Args() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArgsWithSearchPath(t *testing.T) {
	inv := New("matfree")
	inv.SearchPath = []string{"/lib/a", "/lib/b"}

	got := inv.Args(model.EvaluateText("disp(1)"))
	want := []string{"-p", "/lib/a", "-p", "/lib/b", "-e", "disp(1)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args(evaluate) = %q, want %q", got, want)
	}

	got = inv.Args(model.RunFile("s.m"))
	want = []string{"-p", "/lib/a", "-p", "/lib/b", "s.m"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args(run_file) = %q, want %q", got, want)
	}

	if got := inv.Args(model.StartSession()); len(got) != 0 {
		t.Errorf("Args(session) = %q, want none", got)
	}
}

func TestTimeoutDefaults(t *testing.T) {
	inv := &Invoker{}
	if got := inv.Timeout(model.OpEvaluate); got != 30*time.Second {
		t.Errorf("evaluate timeout = %v, want 30s", got)
	}
	if got := inv.Timeout(model.OpRunFile); got != 60*time.Second {
		t.Errorf("run_file timeout = %v, want 60s", got)
	}
	if got := inv.Timeout(model.OpSession); got != 0 {
		t.Errorf("session timeout = %v, want 0", got)
	}
	if got := inv.ExecutablePath(); got != DefaultExecutable {
		t.Errorf("ExecutablePath() = %q, want %q", got, DefaultExecutable)
	}
}

func TestRunCapturesStdoutVerbatim(t *testing.T) {
	engine := writeEngine(t, `printf '%s' "$2"`)
	inv := New(engine)

	code := "x = [1 2 3];\n  disp(x)  \n"
	res := inv.Run(context.Background(), model.EvaluateText(code), nil)

	if res.LaunchErr != nil {
		t.Fatalf("LaunchErr = %v", res.LaunchErr)
	}
	if res.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.Stdout != code {
		t.Errorf("Stdout = %q, want %q", res.Stdout, code)
	}
	if res.Err != nil {
		t.Errorf("Err = %v, want nil", res.Err)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	engine := writeEngine(t, `echo "  Runtime error: Undefined variable: y  " >&2
exit 3`)
	inv := New(engine)

	res := inv.Run(context.Background(), model.EvaluateText("y"), nil)

	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "Undefined variable: y") {
		t.Errorf("Stderr = %q, want engine diagnostic", res.Stderr)
	}
	if res.Err != nil {
		t.Errorf("Err = %v, want nil for a plain non-zero exit", res.Err)
	}
}

func TestRunEvalTimeout(t *testing.T) {
	engine := writeEngine(t, `exec sleep 5`)
	inv := New(engine)
	inv.EvalTimeout = 200 * time.Millisecond

	start := time.Now()
	res := inv.Run(context.Background(), model.EvaluateText("pause(5)"), nil)
	elapsed := time.Since(start)

	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("Err = %v, want context.DeadlineExceeded", res.Err)
	}
	if res.Timeout != 200*time.Millisecond {
		t.Errorf("Timeout = %v, want 200ms", res.Timeout)
	}
	if elapsed > 4*time.Second {
		t.Errorf("Run took %v, expected the timeout to cut it short", elapsed)
	}
}

func TestRunFileUsesFileTimeout(t *testing.T) {
	engine := writeEngine(t, `sleep 1
echo done`)
	inv := New(engine)
	inv.EvalTimeout = 300 * time.Millisecond
	inv.FileTimeout = 10 * time.Second

	res := inv.Run(context.Background(), model.RunFile("slow.m"), nil)
	if res.Err != nil {
		t.Fatalf("run_file Err = %v, want nil under the file bound", res.Err)
	}
	if res.Stdout != "done\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "done\n")
	}

	res = inv.Run(context.Background(), model.EvaluateText("slow"), nil)
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("evaluate Err = %v, want context.DeadlineExceeded under the eval bound", res.Err)
	}
}

func TestRunCallerCanceled(t *testing.T) {
	engine := writeEngine(t, `exec sleep 5`)
	inv := New(engine)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	res := inv.Run(ctx, model.EvaluateText("pause(5)"), nil)
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", res.Err)
	}
}

func TestRunAlreadyCanceledIsNotLaunchFailure(t *testing.T) {
	inv := New(filepath.Join(t.TempDir(), "missing"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := inv.Run(ctx, model.EvaluateText("1"), nil)
	if res.LaunchErr != nil {
		t.Errorf("LaunchErr = %v, want nil", res.LaunchErr)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", res.Err)
	}
}

func TestRunExecutableMissing(t *testing.T) {
	tests := []struct {
		name       string
		executable string
	}{
		{"absolute path", filepath.Join(t.TempDir(), "no-such-engine")},
		{"bare name", "matfree-engine-that-does-not-exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := New(tt.executable)
			res := inv.Run(context.Background(), model.EvaluateText("1"), nil)
			if res.LaunchErr == nil {
				t.Fatal("LaunchErr = nil, want launch failure")
			}
			if res.Executable != tt.executable {
				t.Errorf("Executable = %q, want %q", res.Executable, tt.executable)
			}
		})
	}

	inv := New("matfree-engine-that-does-not-exist")
	res := inv.Run(context.Background(), model.EvaluateText("1"), nil)
	if !errors.Is(res.LaunchErr, exec.ErrNotFound) {
		t.Errorf("LaunchErr = %v, want exec.ErrNotFound", res.LaunchErr)
	}
}

func TestRunLineHook(t *testing.T) {
	engine := writeEngine(t, `echo first
echo oops >&2
printf 'last'`)
	inv := New(engine)

	var mu sync.Mutex
	var got []string
	res := inv.Run(context.Background(), model.EvaluateText("x"), func(stream, line string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, stream+":"+line)
	})

	if res.Stdout != "first\nlast" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "first\nlast")
	}
	sort.Strings(got)
	want := []string{"stderr:oops", "stdout:first", "stdout:last"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %q, want %q", got, want)
	}
}

func TestRunPassesEnvAndDir(t *testing.T) {
	engine := writeEngine(t, `echo "$MATFREE_TEST_VALUE"; pwd`)
	dir := t.TempDir()
	inv := New(engine)
	inv.Env = []string{"MATFREE_TEST_VALUE=42"}
	inv.Dir = dir

	res := inv.Run(context.Background(), model.EvaluateText(""), nil)
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) != 2 || lines[0] != "42" {
		t.Fatalf("Stdout = %q, want env value then working dir", res.Stdout)
	}
	wantDir, _ := filepath.EvalSymlinks(dir)
	gotDir, _ := filepath.EvalSymlinks(lines[1])
	if gotDir != wantDir {
		t.Errorf("working dir = %q, want %q", gotDir, wantDir)
	}
}

func TestSessionInheritsStreams(t *testing.T) {
	engine := writeEngine(t, `read line
echo "got $line"
echo "$#" >&2
exit 0`)
	inv := New(engine)
	var stdout, stderr bytes.Buffer
	inv.Stdin = strings.NewReader("a = 1\n")
	inv.Stdout = &stdout
	inv.Stderr = &stderr

	res := inv.Session()

	if res.LaunchErr != nil {
		t.Fatalf("LaunchErr = %v", res.LaunchErr)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if stdout.String() != "got a = 1\n" {
		t.Errorf("session stdout = %q", stdout.String())
	}
	if strings.TrimSpace(stderr.String()) != "0" {
		t.Errorf("session received %q arguments, want 0", strings.TrimSpace(stderr.String()))
	}
	if res.Stdout != "" || res.Stderr != "" {
		t.Error("session output must not be captured into the result")
	}
}

func TestSessionExitCodePassedThrough(t *testing.T) {
	engine := writeEngine(t, `exit 4`)
	inv := New(engine)
	inv.Stdin = strings.NewReader("")
	inv.Stdout = &bytes.Buffer{}
	inv.Stderr = &bytes.Buffer{}

	res := inv.Session()
	if res.LaunchErr != nil {
		t.Fatalf("LaunchErr = %v", res.LaunchErr)
	}
	if res.ExitCode != 4 {
		t.Errorf("ExitCode = %d, want 4", res.ExitCode)
	}
}

func TestSessionExecutableMissing(t *testing.T) {
	inv := New(filepath.Join(t.TempDir(), "missing"))
	res := inv.Session()
	if res.LaunchErr == nil {
		t.Error("LaunchErr = nil, want launch failure")
	}
}
