// Package logging provides structured logging with slog for meetingd.
//
// Features:
//   - JSON and text output formats
//   - Per-component child loggers
//   - Sync run IDs carried through context
//   - Redaction of credentials (API tokens, keys)
//   - Size and daily log rotation
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Level represents a logging level.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format represents the output format for logs.
type Format int

const (
	// FormatText outputs human-readable text logs.
	FormatText Format = iota
	// FormatJSON outputs JSON-structured logs.
	FormatJSON
)

// Config holds the logging configuration.
type Config struct {
	Level  Level
	Format Format

	// Output is "stdout", "stderr", "file" or "both" (stderr and file).
	Output string

	// FilePath is the log file used when Output includes a file.
	FilePath   string
	MaxSizeMB  int64
	MaxAgeDays int
	MaxBackups int
	Compress   bool

	AddSource bool

	// Component is attached to every record as "component".
	Component string
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		MaxSizeMB:  50,
		MaxAgeDays: 14,
		MaxBackups: 5,
		Compress:   true,
		Component:  "meetingd",
	}
}

// Logger wraps slog.Logger with rotation and component helpers.
type Logger struct {
	*slog.Logger
	rotator *FileRotator
}

var (
	defaultLogger *Logger
	defaultMu     sync.Mutex
)

// Default returns the process-wide logger, creating a stderr logger on first use.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		l, err := New(DefaultConfig())
		if err != nil {
			l = &Logger{Logger: slog.Default()}
		}
		defaultLogger = l
	}
	return defaultLogger
}

// SetDefault replaces the process-wide logger and slog's default.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	slog.SetDefault(l.Logger)
}

// New creates a new Logger with the given configuration.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{}
	w, err := l.openOutput(cfg)
	if err != nil {
		return nil, fmt.Errorf("setup writers: %w", err)
	}

	l.Logger = slog.New(newHandler(w, cfg))
	return l, nil
}

// NewWriter creates a Logger writing to w. Tests use it to capture output.
func NewWriter(w io.Writer, cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Logger{Logger: slog.New(newHandler(w, cfg))}
}

// Discard returns a Logger that drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: LevelError + 1}))}
}

func newHandler(w io.Writer, cfg *Config) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if shouldRedact(a.Key) {
				a.Value = slog.StringValue("[REDACTED]")
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	if cfg.Component != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}
	return handler
}

func (l *Logger) openOutput(cfg *Config) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		return os.Stdout, nil
	case "file", "both":
		rotator, err := NewFileRotator(cfg)
		if err != nil {
			return nil, err
		}
		l.rotator = rotator
		if strings.EqualFold(cfg.Output, "both") {
			return io.MultiWriter(os.Stderr, rotator), nil
		}
		return rotator, nil
	default:
		return os.Stderr, nil
	}
}

// sensitiveKeys are attribute key fragments whose values are never logged.
var sensitiveKeys = []string{
	"password", "secret", "token", "api_key", "apikey",
	"authorization", "bearer", "credential",
}

func shouldRedact(key string) bool {
	keyLower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			return true
		}
	}
	return false
}

// WithComponent returns a child logger tagged with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(slog.String("component", name)),
		rotator: l.rotator,
	}
}

// WithContext returns a logger carrying the run ID stored in ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id := RunIDFromContext(ctx); id != "" {
		return &Logger{
			Logger:  l.Logger.With(slog.String("run_id", id)),
			rotator: l.rotator,
		}
	}
	return l
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

type contextKey int

const runIDKey contextKey = iota

// NewRunID returns a fresh identifier for one sync or resolution run.
func NewRunID() string {
	return uuid.NewString()
}

// ContextWithRunID returns a new context carrying id.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run ID from ctx.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// ParseLevel parses a string into a log level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// ParseFormat parses "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}
