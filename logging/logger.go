package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a textual level ("debug", "info", ...) to a LogLevel.
// Unrecognized values fall back to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface used throughout Parley.
// Arguments follow the slog key/value convention. Users can provide their own
// implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// LoggerConfig configures construction of a ChatLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr}
}

// ChatLogger wraps slog.Logger adding contextual cloning helpers and domain
// convenience methods. It is cheap to copy via the With* methods; each clone
// carries its accumulated attributes.
type ChatLogger struct {
	logger *slog.Logger
	level  LogLevel
}

// NewChatLogger builds a ChatLogger from a config (or defaults if nil).
func NewChatLogger(cfg *LoggerConfig) *ChatLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &ChatLogger{logger: slog.New(handler), level: cfg.Level}
}

// NewSlogLogger creates a ChatLogger with the given level and format.
func NewSlogLogger(level LogLevel, format string, addSource bool) *ChatLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewChatLogger(cfg)
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a clone carrying the logical component (orchestrator,
// provider, delegate, store) on every entry.
func (l *ChatLogger) WithComponent(c string) *ChatLogger {
	return &ChatLogger{logger: l.logger.With(slog.String("component", c)), level: l.level}
}

// WithSession returns a clone carrying session key and turn identifiers.
func (l *ChatLogger) WithSession(sessionKey, turnID string) *ChatLogger {
	return &ChatLogger{
		logger: l.logger.With(slog.String("session_key", sessionKey), slog.String("turn_id", turnID)),
		level:  l.level,
	}
}

// With returns a clone carrying an arbitrary key/value attribute.
func (l *ChatLogger) With(key string, value any) *ChatLogger {
	return &ChatLogger{logger: l.logger.With(slog.Any(key, value)), level: l.level}
}

// Debug logs at debug level.
func (l *ChatLogger) Debug(msg string, args ...any) {
	if l.level <= LogLevelDebug {
		l.logger.Debug(msg, args...)
	}
}

// Info logs at info level.
func (l *ChatLogger) Info(msg string, args ...any) {
	if l.level <= LogLevelInfo {
		l.logger.Info(msg, args...)
	}
}

// Warn logs at warn level.
func (l *ChatLogger) Warn(msg string, args ...any) {
	if l.level <= LogLevelWarn {
		l.logger.Warn(msg, args...)
	}
}

// Error logs at error level.
func (l *ChatLogger) Error(msg string, args ...any) {
	if l.level <= LogLevelError {
		l.logger.Error(msg, args...)
	}
}

// LogProviderCall records latency and outcome of one model provider call.
func (l *ChatLogger) LogProviderCall(providerID string, dur time.Duration, success bool, err error) {
	attrs := []any{
		slog.String("provider", providerID),
		slog.Duration("duration", dur),
		slog.Bool("success", success),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	level := slog.LevelInfo
	msg := "Provider call completed"
	if !success {
		level = slog.LevelError
		msg = "Provider call failed"
	}
	l.logger.Log(context.Background(), level, msg, attrs...)
}

// LogDelegation records a delegation round to another agent.
func (l *ChatLogger) LogDelegation(agent string, dur time.Duration, success bool, err error) {
	attrs := []any{
		slog.String("agent", agent),
		slog.Duration("duration", dur),
		slog.Bool("success", success),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	level := slog.LevelInfo
	msg := "Delegation completed"
	if !success {
		level = slog.LevelError
		msg = "Delegation failed"
	}
	l.logger.Log(context.Background(), level, msg, attrs...)
}

// LogPersistence records the outcome of a history store operation. Failures
// log at warn level since the conversational outcome is unaffected.
func (l *ChatLogger) LogPersistence(op, sessionKey string, err error) {
	attrs := []any{slog.String("op", op), slog.String("session_key", sessionKey)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		l.logger.Log(context.Background(), slog.LevelWarn, "History store operation failed", attrs...)
		return
	}
	l.logger.Log(context.Background(), slog.LevelDebug, "History store operation completed", attrs...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}
