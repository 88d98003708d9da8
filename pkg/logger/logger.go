package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// Logger wraps slog for structured logging
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration
type Config struct {
	Level       string
	Format      string // json or text
	AddSource   bool
	Service     string
	Version     string
	Environment string
}

// New creates a new structured logger
func New(cfg Config) *Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("version", cfg.Version),
		slog.String("environment", cfg.Environment),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewDefault creates a default logger
func NewDefault() *Logger {
	return New(Config{
		Level:       "info",
		Format:      "json",
		AddSource:   true,
		Service:     "socks5gate",
		Version:     "1.0.0",
		Environment: getEnv("ENVIRONMENT", "development"),
	})
}

// WithConnID adds a connection ID to the logger
func (l *Logger) WithConnID(connID uuid.UUID) *Logger {
	return &Logger{
		Logger: l.With(slog.String("conn_id", connID.String())),
	}
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.With(slog.String("error", err.Error())),
	}
}

// WithField adds a custom field to the logger
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{
		Logger: l.With(slog.Any(key, value)),
	}
}

// WithFields adds multiple custom fields to the logger
func (l *Logger) WithFields(fields map[string]any) *Logger {
	attrs := make([]any, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return &Logger{
		Logger: l.With(attrs...),
	}
}

// LogRequest logs an admin HTTP request (metrics/health endpoints)
func (l *Logger) LogRequest(method, path, ip string, statusCode int, duration time.Duration) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("ip", ip),
		slog.Int("status", statusCode),
		slog.Duration("duration", duration),
	)
}

// LogError logs an error with contextual fields
func (l *Logger) LogError(msg string, err error, fields ...any) {
	attrs := append([]any{slog.String("error", err.Error())}, fields...)
	l.Error(msg, attrs...)
}

// LogPanic logs a recovered panic
func (l *Logger) LogPanic(r any) {
	l.Error("panic_recovered",
		slog.Any("panic", r),
	)
}

// LogConnection logs a connection lifecycle event (accepted or closed).
func (l *Logger) LogConnection(event string, connID uuid.UUID, remote string, fields ...any) {
	attrs := append([]any{
		slog.String("event", event),
		slog.String("conn_id", connID.String()),
		slog.String("remote", remote),
	}, fields...)
	l.Info("connection_event", attrs...)
}

// LogHandshake logs the outcome of method negotiation and, if
// applicable, username/password sub-negotiation for a connection.
func (l *Logger) LogHandshake(connID uuid.UUID, method string, success bool, duration time.Duration) {
	l.Info("handshake",
		slog.String("conn_id", connID.String()),
		slog.String("method", method),
		slog.Bool("success", success),
		slog.Duration("duration", duration),
	)
}

// LogRelay logs the end of a relayed connection.
func (l *Logger) LogRelay(connID uuid.UUID, clientToUpstream, upstreamToClient int64, duration time.Duration, err error) {
	attrs := []any{
		slog.String("conn_id", connID.String()),
		slog.Int64("bytes_out", clientToUpstream),
		slog.Int64("bytes_in", upstreamToClient),
		slog.Duration("duration", duration),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.Info("relay_closed", attrs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Global logger instance
var global *Logger

func init() {
	global = NewDefault()
}

// Global returns the global logger instance
func Global() *Logger {
	return global
}

// SetGlobal sets the global logger instance
func SetGlobal(l *Logger) {
	global = l
}

// Helper functions for global logger
func Debug(msg string, args ...any) {
	global.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	global.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	global.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	global.Error(msg, args...)
}

func Fatal(msg string, args ...any) {
	global.Error(msg, args...)
	os.Exit(1)
}
