// Package observability provides the gateway's structured logging,
// Prometheus metrics, and OpenTelemetry tracing, threaded through the
// engine, tool registry, channel adapters, and worker pool.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger wraps slog with request/session/user/channel correlation
// pulled from context and redaction of sensitive values before they
// reach the underlying handler.
type Logger struct {
	logger  *slog.Logger
	config  LogConfig
	redacts []*regexp.Regexp
}

// LogConfig configures a Logger.
type LogConfig struct {
	Level          string // debug|info|warn|error, defaults to info
	Format         string // json|text, defaults to json
	Output         io.Writer
	AddSource      bool
	RedactPatterns []string
}

// ContextKey is the type of the context keys WithContext reads.
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	SessionIDKey ContextKey = "session_id"
	UserIDKey    ContextKey = "user_id"
	ChannelKey   ContextKey = "channel"
)

// DefaultRedactPatterns covers the secret shapes most likely to end up
// in a log line: provider API keys, bearer tokens, and JWTs.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["']?([^\s"']{8,})["']?`,
	`sk-ant-[a-zA-Z0-9_-]{95,}`,
	`sk-[a-zA-Z0-9]{48,}`,
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
}

// NewLogger builds a Logger. An empty Level defaults to info, an empty
// Format defaults to json, and a nil Output defaults to os.Stdout.
func NewLogger(config LogConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Level == "" {
		config.Level = "info"
	}
	if config.Format == "" {
		config.Format = "json"
	}

	var level slog.Level
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: config.AddSource}
	var handler slog.Handler
	if config.Format == "text" {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	redacts := make([]*regexp.Regexp, 0, len(DefaultRedactPatterns)+len(config.RedactPatterns))
	for _, pattern := range append(append([]string{}, DefaultRedactPatterns...), config.RedactPatterns...) {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), config: config, redacts: redacts}
}

// Slog returns the underlying *slog.Logger, for handing to code that
// takes a plain slog.Logger rather than this package's wrapper.
func (l *Logger) Slog() *slog.Logger { return l.logger }

// WithContext returns a logger annotated with request_id/session_id/
// user_id/channel pulled from ctx, when present.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var attrs []any
	if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
		attrs = append(attrs, "request_id", v)
	}
	if v, ok := ctx.Value(SessionIDKey).(string); ok && v != "" {
		attrs = append(attrs, "session_id", v)
	}
	if v, ok := ctx.Value(UserIDKey).(string); ok && v != "" {
		attrs = append(attrs, "user_id", v)
	}
	if v, ok := ctx.Value(ChannelKey).(string); ok && v != "" {
		attrs = append(attrs, "channel", v)
	}
	if len(attrs) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(attrs...), config: l.config, redacts: l.redacts}
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	l.logger.Log(ctx, level, l.redact(msg), l.redactArgs(args)...)
}

func (l *Logger) redact(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// sensitiveArgKeys are slog attribute keys whose values are redacted
// outright, regardless of whether they match a DefaultRedactPatterns shape.
var sensitiveArgKeys = map[string]bool{
	"api_key": true, "apikey": true, "token": true, "bearer": true,
	"secret": true, "password": true, "passwd": true, "pwd": true,
	"authorization": true,
}

// redactArgs redacts string-valued args in place; args is a flat
// key, value, key, value... slice as accepted by slog.
func (l *Logger) redactArgs(args []any) []any {
	for i := 1; i < len(args); i += 2 {
		s, ok := args[i].(string)
		if !ok {
			continue
		}
		if key, ok := args[i-1].(string); ok && sensitiveArgKeys[strings.ToLower(key)] {
			args[i] = "[REDACTED]"
			continue
		}
		args[i] = l.redact(s)
	}
	return args
}
