package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	Format      string // "json" or "console"
	Output      io.Writer
}

type Logger struct {
	base *zerolog.Logger
}

type ctxKey struct{}

func New(opts Options) *Logger {
	if opts.Level == zerolog.NoLevel {
		opts.Level = zerolog.InfoLevel
	}

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	if opts.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	l := zerolog.New(output).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger().
		Level(opts.Level)

	return &Logger{base: &l}
}

// Nop returns a logger that discards everything. Used by tests and optional wiring.
func Nop() *Logger {
	l := zerolog.Nop()
	return &Logger{base: &l}
}

func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *Logger {
	child := l.base.With().Str("component", name).Logger()
	return &Logger{base: &child}
}

func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	fields := fieldsFrom(ctx)
	if len(fields) == 0 {
		return l.base
	}
	entry := l.base.With().Fields(fields).Logger()
	return &entry
}

func fieldsFrom(ctx context.Context) map[string]any {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(ctxKey{}).(map[string]any)
	return fields
}

// WithFields returns a context whose log lines carry fields, in addition to
// any fields already attached.
func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	merged := make(map[string]any, len(fields))
	for k, v := range fieldsFrom(ctx) {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return context.WithValue(ctx, ctxKey{}, merged)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.WithFields(ctx, map[string]any{key: value})
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithActor(ctx context.Context, actorID, role string) context.Context {
	return l.WithFields(ctx, map[string]any{"actor_id": actorID, "actor_role": role})
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...map[string]any) {
	emit(l.from(ctx).Debug(), msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...map[string]any) {
	emit(l.from(ctx).Info(), msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...map[string]any) {
	emit(l.from(ctx).Warn(), msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, err error, fields ...map[string]any) {
	event := l.from(ctx).Error()
	if err != nil {
		event = event.Err(err)
	}
	emit(event, msg, fields)
}

// Fatal logs and exits. Only for process bootstrap.
func (l *Logger) Fatal(msg string, err error) {
	l.base.Fatal().Err(err).Msg(msg)
}

func emit(event *zerolog.Event, msg string, fields []map[string]any) {
	for _, f := range fields {
		for k, v := range f {
			event = event.Interface(k, v)
		}
	}
	event.Msg(msg)
}
