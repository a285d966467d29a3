package log

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/YuminosukeSato/medpipe/pkg/errors"
)

// ZerologProvider is the default LoggerProvider, backed by rs/zerolog.
// SetLevel takes effect on loggers already handed out.
type ZerologProvider struct {
	base  zerolog.Logger
	level atomic.Int32
}

// NewZerologProvider creates a provider writing JSON lines to out.
func NewZerologProvider(out io.Writer, level Level) *ZerologProvider {
	return newZerologProvider(zerolog.New(out).With().Timestamp().Logger(), level)
}

// NewConsoleZerologProvider creates a provider writing human readable lines to out.
func NewConsoleZerologProvider(out io.Writer, level Level) *ZerologProvider {
	w := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	return newZerologProvider(zerolog.New(w).With().Timestamp().Logger(), level)
}

func newZerologProvider(base zerolog.Logger, level Level) *ZerologProvider {
	p := &ZerologProvider{base: base}
	p.level.Store(int32(level))
	return p
}

// GetLogger implements LoggerProvider.
func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{zl: p.base, provider: p}
}

// GetLoggerWithName implements LoggerProvider.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{zl: p.base.With().Str(ComponentKey, name).Logger(), provider: p}
}

// SetLevel implements LoggerProvider.
func (p *ZerologProvider) SetLevel(level Level) {
	p.level.Store(int32(level))
}

// RouteWarnings sends library warnings raised through pkg/errors.Warn to this
// provider as WARN records.
func (p *ZerologProvider) RouteWarnings() {
	perrors.SetZerologWarnFunc(func(w error) {
		if Level(p.level.Load()) > LevelWarn {
			return
		}
		ev := p.base.Warn().Str(ComponentKey, "warnings")
		var m zerolog.LogObjectMarshaler
		if perrors.As(w, &m) {
			ev = ev.EmbedObject(m)
		}
		ev.Msg(w.Error())
	})
}

type zerologLogger struct {
	zl       zerolog.Logger
	provider *ZerologProvider
}

func (l *zerologLogger) Debug(msg string, fields ...any) {
	l.emit(LevelDebug, l.zl.Debug(), msg, fields)
}

func (l *zerologLogger) Info(msg string, fields ...any) {
	l.emit(LevelInfo, l.zl.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields ...any) {
	l.emit(LevelWarn, l.zl.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, fields ...any) {
	l.emit(LevelError, l.zl.Error(), msg, fields)
}

func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ctx = ctx.AnErr(ErrAttrKey, err)
			fields = fields[1:]
		}
	}
	ctx = ctx.Fields(normalizeFields(fields))
	return &zerologLogger{zl: ctx.Logger(), provider: l.provider}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return level >= Level(l.provider.level.Load())
}

func (l *zerologLogger) emit(level Level, ev *zerolog.Event, msg string, fields []any) {
	if !l.Enabled(context.Background(), level) || ev == nil {
		return
	}
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = ev.AnErr(ErrAttrKey, err)
			if st := extractStacktrace(err); st != "" {
				ev = ev.Str(StacktraceKey, st)
			}
			var m zerolog.LogObjectMarshaler
			if perrors.As(err, &m) {
				ev = ev.Object("detail", m)
			}
			fields = fields[1:]
		}
	}
	ev.Fields(normalizeFields(fields)).Msg(msg)
}

// normalizeFields turns alternating key/value pairs into a map, stringifying
// non-string keys and dropping a dangling key.
func normalizeFields(fields []any) map[string]any {
	out := make(map[string]any, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprint(fields[i])
		}
		if err, ok := fields[i+1].(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = fields[i+1]
	}
	return out
}
