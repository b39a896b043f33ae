package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
)

// Options configures a Logger.
type Options struct {
	Base        *slog.Logger
	Environment string
	// Forward ships warn, error and auth events to Sink.
	Forward bool
	Sink    Sink
	Metrics *Metrics
}

// Logger is the application logger. It writes through slog and mirrors
// warn/error/auth events to the telemetry sink.
type Logger struct {
	base    *slog.Logger
	env     string
	forward bool
	sink    Sink
	metrics *Metrics
	now     func() time.Time
}

func NewLogger(opts Options) *Logger {
	base := opts.Base
	if base == nil {
		base = slog.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = NoOpSink{}
	}
	return &Logger{
		base:    base.With("environment", opts.Environment),
		env:     opts.Environment,
		forward: opts.Forward,
		sink:    sink,
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

// Discard returns a logger that writes nowhere.
func Discard() *Logger {
	return NewLogger(Options{Base: slog.New(slog.DiscardHandler), Environment: "test"})
}

// NewSlog builds the process slog.Logger from level and format strings.
func NewSlog(w io.Writer, level, format string) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Slog exposes the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.base
}

// Metrics returns the collectors events are counted on, possibly nil.
func (l *Logger) Metrics() *Metrics {
	if l == nil {
		return nil
	}
	return l.metrics
}

// With returns a logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return nil
	}
	cp := *l
	cp.base = l.base.With(args...)
	return &cp
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	if l == nil {
		return
	}
	l.withTrace(ctx).DebugContext(ctx, msg, args...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	if l == nil {
		return
	}
	l.withTrace(ctx).InfoContext(ctx, msg, args...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	if l == nil {
		return
	}
	l.withTrace(ctx).WarnContext(ctx, msg, args...)
	l.ship(ctx, Event{Level: LevelWarn, Message: msg, Context: argsToMap(args)})
}

// Error logs msg with err's name, message, stack and code.
func (l *Logger) Error(ctx context.Context, msg string, err error, args ...any) {
	if l == nil {
		return
	}
	info := DescribeError(err)
	attrs := append([]any{}, args...)
	if info != nil {
		attrs = append(attrs, slog.Group("error",
			"name", info.Name,
			"message", info.Message,
			"code", info.Code,
		))
	}
	l.withTrace(ctx).ErrorContext(ctx, msg, attrs...)
	l.ship(ctx, Event{Level: LevelError, Message: msg, Context: argsToMap(args), Error: info})
}

// AuthEvent records an authentication lifecycle event such as login_success.
func (l *Logger) AuthEvent(ctx context.Context, event, userID string, args ...any) {
	if l == nil {
		return
	}
	attrs := append([]any{"event", event, "user_id", userID}, args...)
	l.withTrace(ctx).InfoContext(ctx, "Auth event: "+event, attrs...)
	if l.metrics != nil {
		l.metrics.ObserveAuthEvent(event)
	}
	l.ship(ctx, Event{
		Level:     LevelInfo,
		Message:   "Auth event: " + event,
		AuthEvent: event,
		UserID:    userID,
		Context:   argsToMap(args),
	})
}

// Performance logs how long an operation took.
func (l *Logger) Performance(ctx context.Context, metric string, d time.Duration, args ...any) {
	if l == nil {
		return
	}
	attrs := append([]any{"metric", metric, "duration_ms", d.Milliseconds()}, args...)
	l.withTrace(ctx).DebugContext(ctx, "Performance: "+metric, attrs...)
}

func (l *Logger) ship(ctx context.Context, e Event) {
	if l.metrics != nil {
		l.metrics.ObserveEvent(e.Level)
	}
	if !l.forward {
		return
	}
	e.Timestamp = l.now().UTC()
	e.Environment = l.env
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		if e.Context == nil {
			e.Context = map[string]any{}
		}
		e.Context["trace_id"] = sc.TraceID().String()
		e.Context["span_id"] = sc.SpanID().String()
	}
	l.sink.Emit(ctx, e)
}

// withTrace attaches the active span identifiers, if any.
func (l *Logger) withTrace(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return l.base
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l.base
	}
	return l.base.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

type coder interface {
	ErrorCode() string
}

// DescribeError extracts name, message, stack and code from err. It returns nil for a nil error.
func DescribeError(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{
		Name:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
	var c coder
	if errors.As(err, &c) {
		info.Code = c.ErrorCode()
	}
	var st stackTracer
	if errors.As(err, &st) {
		info.Stack = strings.TrimSpace(fmt.Sprintf("%+v", st.StackTrace()))
	}
	return info
}

func argsToMap(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	m := make(map[string]any, len(args)/2)
	for i := 0; i < len(args); i++ {
		switch v := args[i].(type) {
		case slog.Attr:
			m[v.Key] = v.Value.Any()
		case string:
			if i+1 < len(args) {
				m[v] = args[i+1]
				i++
			} else {
				m["!BADKEY"] = v
			}
		default:
			m["!BADKEY"] = v
		}
	}
	return m
}
