// Package locator performs the one-time capability detection that decides
// whether the engine is reached through a native binding or through its
// executable.
package locator

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/andy-broyles/matfree.app/internal/binding"
	"github.com/andy-broyles/matfree.app/internal/config"
	"github.com/andy-broyles/matfree.app/internal/invoker"
	"github.com/andy-broyles/matfree.app/internal/model"
)

// Location is the tagged result of detection: Native(Binding) or
// Subprocess(Executable). Executable is always filled in because native
// builds still launch the executable for interactive sessions.
type Location struct {
	Strategy model.Strategy

	// Binding and BindingName are set when Strategy is StrategyNative.
	Binding     binding.Binding
	BindingName string

	// Executable is the engine program to launch.
	Executable string
}

// Native reports whether the location holds an in-process binding.
func (l Location) Native() bool {
	return l.Strategy == model.StrategyNative && l.Binding != nil
}

// Locate resolves the engine location. It never fails: an unavailable binding
// only selects the subprocess strategy.
func Locate(reg *binding.Registry, cfg config.Engine, logger *slog.Logger) Location {
	loc := Location{
		Strategy:   model.StrategySubprocess,
		Executable: ResolveExecutable(cfg.Executable),
	}

	if cfg.Mode == model.ModeSubprocess {
		logger.Debug("native binding probe skipped", "mode", cfg.Mode)
		return loc
	}

	b, name, err := reg.Open()
	if err != nil {
		level := slog.LevelDebug
		if cfg.Mode == model.ModeNative {
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, "native binding unavailable, using engine executable",
			"executable", loc.Executable,
			"error", err,
		)
		return loc
	}

	loc.Strategy = model.StrategyNative
	loc.Binding = b
	loc.BindingName = name
	return loc
}

// ResolveExecutable returns the executable to launch for the given override.
// A bare name (the default included) is looked up on PATH; if the lookup
// fails the name is kept so the failure surfaces when an operation runs.
func ResolveExecutable(override string) string {
	name := override
	if name == "" {
		name = invoker.DefaultExecutable
	}
	if strings.ContainsAny(name, `/\`) {
		return name
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return name
}
