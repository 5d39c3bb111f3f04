package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/andy-broyles/matfree.app/internal/model"
)

// clearEnv blanks every variable Load reads and points the dotenv file at a
// path that does not exist.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{envBin, envPath, envStrategy, envEvalTimeout, envFileTimeout, envListenAddr, envDBPath, envLogLevel} {
		t.Setenv(k, "")
	}
	t.Setenv(envEnvFile, filepath.Join(t.TempDir(), "absent.env"))
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Engine.Executable != "" {
		t.Errorf("Executable = %q, want empty", cfg.Engine.Executable)
	}
	if cfg.Engine.Mode != model.ModeAuto {
		t.Errorf("Mode = %q, want %q", cfg.Engine.Mode, model.ModeAuto)
	}
	if cfg.Engine.EvalTimeout != 30*time.Second {
		t.Errorf("EvalTimeout = %v, want 30s", cfg.Engine.EvalTimeout)
	}
	if cfg.Engine.FileTimeout != 60*time.Second {
		t.Errorf("FileTimeout = %v, want 60s", cfg.Engine.FileTimeout)
	}
	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.DBPath != defaultDBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, defaultDBPath)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(envBin, "/opt/matfree/bin/matfree")
	t.Setenv(envPath, "/srv/m"+string(os.PathListSeparator)+"/srv/toolbox")
	t.Setenv(envStrategy, "subprocess")
	t.Setenv(envEvalTimeout, "5s")
	t.Setenv(envFileTimeout, "90")
	t.Setenv(envListenAddr, ":9090")
	t.Setenv(envDBPath, "/tmp/test.db")
	t.Setenv(envLogLevel, "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Engine.Executable != "/opt/matfree/bin/matfree" {
		t.Errorf("Executable = %q", cfg.Engine.Executable)
	}
	if want := []string{"/srv/m", "/srv/toolbox"}; !reflect.DeepEqual(cfg.Engine.SearchPath, want) {
		t.Errorf("SearchPath = %q, want %q", cfg.Engine.SearchPath, want)
	}
	if cfg.Engine.Mode != model.ModeSubprocess {
		t.Errorf("Mode = %q, want subprocess", cfg.Engine.Mode)
	}
	if cfg.Engine.EvalTimeout != 5*time.Second {
		t.Errorf("EvalTimeout = %v, want 5s", cfg.Engine.EvalTimeout)
	}
	if cfg.Engine.FileTimeout != 90*time.Second {
		t.Errorf("FileTimeout = %v, want 90s", cfg.Engine.FileTimeout)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "matfree.env")
	if err := os.WriteFile(path, []byte("MATFREE_BIN=/from/dotenv\nMATFREE_LOG_LEVEL=warn\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(envEnvFile, path)
	t.Setenv(envLogLevel, "error")
	// godotenv treats an empty variable as already set, so drop MATFREE_BIN;
	// clearEnv's t.Setenv restores the original value afterwards.
	os.Unsetenv(envBin)
	t.Cleanup(func() { os.Unsetenv(envBin) })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Executable != "/from/dotenv" {
		t.Errorf("Executable = %q, want value from dotenv file", cfg.Engine.Executable)
	}
	if cfg.LogLevel != slog.LevelError {
		t.Errorf("LogLevel = %v, want the already-set environment to win", cfg.LogLevel)
	}
}

func TestParseTimeout(t *testing.T) {
	def := 30 * time.Second
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"45s", 45 * time.Second},
		{"1m30s", 90 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"12", 12 * time.Second},
		{"0", def},
		{"-5s", def},
		{"soon", def},
		{"", def},
	}
	for _, tt := range tests {
		if got := parseTimeout(tt.input, def); got != tt.want {
			t.Errorf("parseTimeout(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"native", model.ModeNative},
		{"SUBPROCESS", model.ModeSubprocess},
		{" auto ", model.ModeAuto},
		{"cgo", model.ModeAuto},
	}
	for _, tt := range tests {
		if got := parseMode(tt.input); got != tt.want {
			t.Errorf("parseMode(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseSearchPath(t *testing.T) {
	sep := string(os.PathListSeparator)
	got := parseSearchPath("/a" + sep + sep + " /b " + sep)
	if want := []string{"/a", "/b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("parseSearchPath = %q, want %q", got, want)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		got := parseLogLevel(tt.input)
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("logger output is not valid JSON: %v\noutput: %s", err, buf.String())
	}

	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("JSON output missing expected key %q", key)
		}
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want %q", entry["key"], "value")
	}
}
