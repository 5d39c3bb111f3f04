// matfree-go reaches the matfree engine through its native binding when one is
// linked in, and through the engine executable otherwise.
//
// Usage:
//
//	matfree-go [flags] [command] [args]
//
// Commands:
//
//	eval <code>   evaluate code and print its output
//	run <file>    execute a script file
//	repl          start an interactive session (the default)
//	get <name>    print a workspace variable (native binding only)
//	version       print the engine version banner
//	info          print the resolved strategy and engine settings as JSON
//	serve         serve the HTTP API
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/andy-broyles/matfree.app/internal/api"
	"github.com/andy-broyles/matfree.app/internal/binding"
	"github.com/andy-broyles/matfree.app/internal/config"
	"github.com/andy-broyles/matfree.app/internal/dispatch"
	"github.com/andy-broyles/matfree.app/internal/outcome"
	"github.com/andy-broyles/matfree.app/internal/runner"
	"github.com/andy-broyles/matfree.app/internal/store"
)

const usage = `usage: matfree-go [flags] [command] [args]

commands:
  eval <code>   evaluate code and print its output
  run <file>    execute a script file
  repl          start an interactive session (default)
  get <name>    print a workspace variable (native binding only)
  version       print the engine version banner
  info          print the resolved strategy and engine settings
  serve         serve the HTTP API

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "matfree-go: %v\n", err)
		return 1
	}

	fs := flag.NewFlagSet("matfree-go", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	bin := fs.String("bin", cfg.Engine.Executable, "engine executable (overrides MATFREE_BIN)")
	strategy := fs.String("strategy", cfg.Engine.Mode, "strategy mode: auto, native or subprocess")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	cfg.Engine.Executable = *bin
	cfg.Engine.Mode = *strategy

	cmd, rest := "repl", fs.Args()
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	level := cfg.LogLevel
	if cmd != "serve" && level >= slog.LevelInfo {
		// Keep the terminal for engine output unless debugging.
		level = max(level, slog.LevelWarn)
	}
	logger := config.NewLogger(stderr, level)

	d := dispatch.New(binding.Default(), cfg.Engine, logger, dispatch.WithStreams(stdin, stdout, stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch cmd {
	case "eval":
		if len(rest) == 0 {
			return usageError(stderr, "eval needs code to evaluate")
		}
		return printOutcome(stdout, stderr, d.Evaluate(ctx, strings.Join(rest, " ")))
	case "run":
		if len(rest) != 1 {
			return usageError(stderr, "run needs exactly one script file")
		}
		return printOutcome(stdout, stderr, d.RunFile(ctx, rest[0]))
	case "repl":
		// The session owns Ctrl-C; the child decides what it means.
		stop()
		o := d.StartSession(context.Background())
		if err := o.Err(); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return o.ExitCode
	case "get":
		if len(rest) != 1 {
			return usageError(stderr, "get needs exactly one variable name")
		}
		v, err := d.Get(ctx, rest[0])
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintln(stdout, v.String())
		return 0
	case "version":
		return printOutcome(stdout, stderr, d.Version(ctx))
	case "info":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d.Backend().Capabilities()); err != nil {
			fmt.Fprintf(stderr, "matfree-go: %v\n", err)
			return 1
		}
		return 0
	case "serve":
		stop()
		if err := serve(cfg, d, logger); err != nil {
			logger.Error("serve", "error", err)
			return 1
		}
		return 0
	default:
		return usageError(stderr, fmt.Sprintf("unknown command %q", cmd))
	}
}

// printOutcome writes a successful outcome's output verbatim, or its failure
// message, and returns the exit code.
func printOutcome(stdout, stderr io.Writer, o outcome.Outcome) int {
	text, err := o.Result()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprint(stdout, text)
	return 0
}

func usageError(stderr io.Writer, msg string) int {
	fmt.Fprintf(stderr, "matfree-go: %s\n\n%s", msg, usage)
	return 2
}

func serve(cfg config.Config, d *dispatch.Dispatcher, logger *slog.Logger) error {
	logger.Info("matfree: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Resolve before accepting traffic so the first request does not probe.
	d.Resolve()

	rn := runner.New(db, d, logger)
	defer rn.Wait()

	return api.NewServer(cfg.ListenAddr, db, d, rn, logger).Run()
}
