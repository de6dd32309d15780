package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

type ctxKey struct{}

// Initialize sets up the global logger writing to stdout.
func Initialize(level, format string) {
	InitializeWithWriter(level, format, os.Stdout)
}

// InitializeWithWriter sets up the global logger on w. Tests use it to capture output.
func InitializeWithWriter(level, format string, w io.Writer) {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Get returns the default logger
func Get() *slog.Logger {
	if defaultLogger == nil {
		Initialize("info", "text")
	}
	return defaultLogger
}

func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

// WithRequestID returns a context whose log lines carry the request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContext returns the default logger, tagged with the request id when ctx has one.
func FromContext(ctx context.Context) *slog.Logger {
	if id := RequestID(ctx); id != "" {
		return Get().With("request_id", id)
	}
	return Get()
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).InfoContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).ErrorContext(ctx, msg, args...)
}

// emit writes one tracking line, keyed by event kind.
func emit(level slog.Level, msg, event string, fixed []any, args []any) {
	attrs := make([]any, 0, 2+len(fixed)+len(args))
	attrs = append(attrs, "event", event)
	attrs = append(attrs, fixed...)
	attrs = append(attrs, args...)
	Get().Log(context.Background(), level, msg, attrs...)
}

// EnterMethod traces entry into a service or repository method.
func EnterMethod(methodName string, args ...any) {
	emit(slog.LevelDebug, "→ "+methodName, "enter", []any{"method", methodName}, args)
}

func ExitMethod(methodName string, args ...any) {
	emit(slog.LevelDebug, "← "+methodName, "exit", []any{"method", methodName}, args)
}

// ExitMethodWithError is ExitMethod for the failure path. Expected domain
// errors (validation, permission) are logged too, so the level is warn.
func ExitMethodWithError(methodName string, err error, args ...any) {
	emit(slog.LevelWarn, "← "+methodName+" failed", "exit", []any{"method", methodName, "error", err}, args)
}

// StateTransition records a lifecycle change of a session, transfer, leave or
// transaction. Every state machine logs through here.
func StateTransition(ctx context.Context, entity string, id any, from, to string, args ...any) {
	allArgs := append([]any{"entity", entity, "id", fmt.Sprint(id), "from", from, "to", to}, args...)
	FromContext(ctx).InfoContext(ctx, "State transition", allArgs...)
}

// DatabaseCall traces a statement before it runs.
func DatabaseCall(operation, query string, args ...any) {
	emit(slog.LevelDebug, "→ db "+operation, "db_call", []any{"operation", operation, "query", query}, args)
}

// DatabaseResult traces the outcome of the statement logged by DatabaseCall.
func DatabaseResult(operation string, rowsAffected int64, err error, args ...any) {
	if err != nil {
		emit(slog.LevelError, "← db "+operation+" failed", "db_result",
			[]any{"operation", operation, "rows_affected", rowsAffected, "error", err}, args)
		return
	}
	emit(slog.LevelDebug, "← db "+operation, "db_result", []any{"operation", operation, "rows_affected", rowsAffected}, args)
}

// ExternalServiceCall traces a call to the chat platform or mail provider.
func ExternalServiceCall(service, operation string, args ...any) {
	emit(slog.LevelDebug, "→ "+service+" "+operation, "external_call", []any{"service", service, "operation", operation}, args)
}

// ExternalServiceResult traces the outcome of an external call. Failures are
// warnings: collaborators never abort a committed mutation.
func ExternalServiceResult(service, operation string, err error, args ...any) {
	fixed := []any{"service", service, "operation", operation}
	if err != nil {
		emit(slog.LevelWarn, "← "+service+" "+operation+" failed", "external_result", append(fixed, "error", err), args)
		return
	}
	emit(slog.LevelDebug, "← "+service+" "+operation, "external_result", fixed, args)
}
