package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/andy-broyles/matfree.app/internal/invoker"
	"github.com/andy-broyles/matfree.app/internal/model"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "matfree.db"
	defaultEnvFile    = ".env"

	envEnvFile     = "MATFREE_ENV_FILE"
	envBin         = "MATFREE_BIN"
	envPath        = "MATFREE_PATH"
	envStrategy    = "MATFREE_STRATEGY"
	envEvalTimeout = "MATFREE_EVAL_TIMEOUT"
	envFileTimeout = "MATFREE_FILE_TIMEOUT"
	envListenAddr  = "MATFREE_LISTEN_ADDR"
	envDBPath      = "MATFREE_DB_PATH"
	envLogLevel    = "MATFREE_LOG_LEVEL"
)

// Engine holds the settings that decide how the engine is reached.
type Engine struct {
	// Executable is the MATFREE_BIN override. Empty means the default name
	// resolved through PATH.
	Executable string

	// SearchPath lists directories handed to the engine with -p.
	SearchPath []string

	// Mode is one of model.ModeAuto, model.ModeNative, model.ModeSubprocess.
	Mode string

	EvalTimeout time.Duration
	FileTimeout time.Duration
}

// Config holds application configuration loaded from environment variables.
type Config struct {
	Engine     Engine
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
}

// Load reads configuration from environment variables with sensible defaults.
// The dotenv file named by MATFREE_ENV_FILE (default .env) is loaded first
// without overriding variables already set; a missing file is ignored.
func Load() (Config, error) {
	envFile := defaultEnvFile
	if v := os.Getenv(envEnvFile); v != "" {
		envFile = v
	}
	if err := loadDotEnv(envFile); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Engine: Engine{
			Mode:        model.ModeAuto,
			EvalTimeout: invoker.DefaultEvalTimeout,
			FileTimeout: invoker.DefaultFileTimeout,
		},
		ListenAddr: defaultListenAddr,
		DBPath:     defaultDBPath,
		LogLevel:   slog.LevelInfo,
	}

	if v := os.Getenv(envBin); v != "" {
		cfg.Engine.Executable = v
	}
	if v := os.Getenv(envPath); v != "" {
		cfg.Engine.SearchPath = parseSearchPath(v)
	}
	if v := os.Getenv(envStrategy); v != "" {
		cfg.Engine.Mode = parseMode(v)
	}
	if v := os.Getenv(envEvalTimeout); v != "" {
		cfg.Engine.EvalTimeout = parseTimeout(v, invoker.DefaultEvalTimeout)
	}
	if v := os.Getenv(envFileTimeout); v != "" {
		cfg.Engine.FileTimeout = parseTimeout(v, invoker.DefaultFileTimeout)
	}
	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}

	return cfg, nil
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func parseSearchPath(s string) []string {
	var dirs []string
	for _, dir := range filepath.SplitList(s) {
		if dir = strings.TrimSpace(dir); dir != "" {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func parseMode(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case model.ModeNative:
		return model.ModeNative
	case model.ModeSubprocess:
		return model.ModeSubprocess
	default:
		return model.ModeAuto
	}
}

// parseTimeout accepts a Go duration ("45s", "1m30s") or whole seconds ("45").
// Non-positive or malformed values yield def.
func parseTimeout(s string, def time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		if d > 0 {
			return d
		}
		return def
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
