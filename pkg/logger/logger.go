package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/angelmondragon/minierp-console/pkg/env"
)

const redacted = "[redacted]"

// sensitiveKeys never reach the log output with their value.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"access_token":  {},
	"authorization": {},
	"seal_key":      {},
}

// Options configures the structured logger. Format is "json" or "console";
// empty falls back to MINIERP_LOG_FORMAT.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	Output      io.Writer
	Format      string
}

// Logger carries its fields in the context so every layer below a request
// logs with the same request, profile and actor. A nil *Logger discards.
type Logger struct {
	base      *zerolog.Logger
	warnStack bool
}

type ctxKey struct{}

func New(opts Options) *Logger {
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = env.First("json", "MINIERP_LOG_FORMAT")
	}
	if strings.EqualFold(format, "console") {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	base := zerolog.New(output).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger().
		Level(opts.Level)

	return &Logger{base: &base, warnStack: opts.WarnStack}
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	if lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value))); err == nil && lvl != zerolog.NoLevel {
		return lvl
	}
	return zerolog.InfoLevel
}

func (l *Logger) entry(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
			return entry
		}
	}
	return l.base
}

func (l *Logger) attach(ctx context.Context, entry zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, &entry)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	if l == nil {
		return ctx
	}
	return l.attach(ctx, l.entry(ctx).With().Interface(key, scrub(key, value)).Logger())
}

// WithFields adds fields in key order so output is stable.
func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	if l == nil {
		return ctx
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	builder := l.entry(ctx).With()
	for _, k := range keys {
		builder = builder.Interface(k, scrub(k, fields[k]))
	}
	return l.attach(ctx, builder.Logger())
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithProfileID(ctx context.Context, profileID string) context.Context {
	return l.WithField(ctx, "profile_id", profileID)
}

func (l *Logger) WithUsername(ctx context.Context, username string) context.Context {
	return l.WithField(ctx, "username", username)
}

func (l *Logger) WithActorRole(ctx context.Context, role string) context.Context {
	return l.WithField(ctx, "actor_role", role)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	if l == nil {
		return
	}
	l.entry(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	if l == nil {
		return
	}
	l.entry(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	if l == nil {
		return
	}
	event := l.entry(ctx).Warn()
	if l.warnStack {
		event = event.Str("stack", stackTrace())
	}
	event.Msg(msg)
}

func (l *Logger) Error(ctx context.Context, msg string, err error) {
	if l == nil {
		return
	}
	event := l.entry(ctx).Error()
	if err != nil {
		event = event.Err(err)
	}
	event.Str("stack", stackTrace()).Msg(msg)
}

func scrub(key string, value any) any {
	if _, ok := sensitiveKeys[strings.ToLower(key)]; ok {
		return redacted
	}
	return value
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
