// testserver starts a matfree API server backed by a stub native binding for
// E2E testing.
// Usage: go run ./cmd/testserver
package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/andy-broyles/matfree.app/internal/api"
	"github.com/andy-broyles/matfree.app/internal/binding"
	"github.com/andy-broyles/matfree.app/internal/config"
	"github.com/andy-broyles/matfree.app/internal/dispatch"
	"github.com/andy-broyles/matfree.app/internal/model"
	"github.com/andy-broyles/matfree.app/internal/runner"
	"github.com/andy-broyles/matfree.app/internal/store"
)

// stubBinding understands "name = number" assignments, bare variable names,
// error('msg') and pause(seconds). Everything else is echoed back.
type stubBinding struct {
	mu   sync.Mutex
	vars map[string]binding.Value
}

func (s *stubBinding) Eval(code string) (string, error) {
	code = strings.TrimSpace(code)

	if msg, ok := strings.CutPrefix(code, "error('"); ok {
		return "", errors.New(strings.TrimSuffix(msg, "')"))
	}
	if arg, ok := strings.CutPrefix(code, "pause("); ok {
		secs, err := strconv.ParseFloat(strings.TrimSuffix(arg, ")"), 64)
		if err != nil {
			return "", fmt.Errorf("pause: %v", err)
		}
		time.Sleep(time.Duration(secs * float64(time.Second)))
		return "", nil
	}
	if name, expr, ok := strings.Cut(code, "="); ok {
		name = strings.TrimSpace(name)
		f, err := strconv.ParseFloat(strings.TrimSpace(expr), 64)
		if err != nil {
			return "", fmt.Errorf("cannot evaluate %q", strings.TrimSpace(expr))
		}
		if err := s.Set(name, binding.Scalar(f)); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s\n", name, binding.Scalar(f)), nil
	}
	if v, err := s.Get(code); err == nil {
		return fmt.Sprintf("%s = %s\n", code, v), nil
	}
	return "ans = " + code + "\n", nil
}

func (s *stubBinding) RunFile(path string) (string, error) {
	return "", fmt.Errorf("cannot open script %q", path)
}

func (s *stubBinding) Get(name string) (binding.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[name]
	if !ok {
		return binding.Value{}, fmt.Errorf("Undefined variable: %s", name)
	}
	return v, nil
}

func (s *stubBinding) Set(name string, v binding.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = v
	return nil
}

func main() {
	addr := ":8080"
	if v := os.Getenv("MATFREE_LISTEN_ADDR"); v != "" {
		addr = v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	reg := binding.NewRegistry()
	reg.Register("stub", func() (binding.Binding, error) {
		return &stubBinding{vars: map[string]binding.Value{"pi": binding.Scalar(3.14159)}}, nil
	})

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	d := dispatch.New(reg, config.Engine{Mode: model.ModeNative}, logger)
	rn := runner.New(db, d, logger)
	srv := api.NewServer(addr, db, d, rn, logger)

	logger.Info("testserver: starting", "addr", addr)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	rn.Wait()
}
