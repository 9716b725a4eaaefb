package finalize

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the printf-style logging contract used across the finalizer.
// Correlation ids travel as fields, see WithLoggerFields.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// FieldsLogger is implemented by loggers that carry structured fields.
type FieldsLogger interface {
	WithFields(map[string]any) Logger
}

// FmtLogger writes one plain-text line per entry. It backs every component
// that was built without a logger.
type FmtLogger struct {
	w      *lineWriter
	fields map[string]any
	suffix string
}

type lineWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewFmtLogger writes to out, or to stderr when out is nil.
func NewFmtLogger(out io.Writer) *FmtLogger {
	if out == nil {
		out = os.Stderr
	}
	return &FmtLogger{w: &lineWriter{out: out}}
}

func (l *FmtLogger) Debug(msg string, args ...any) { l.write("DEBUG", msg, args) }
func (l *FmtLogger) Info(msg string, args ...any)  { l.write("INFO", msg, args) }
func (l *FmtLogger) Warn(msg string, args ...any)  { l.write("WARN", msg, args) }
func (l *FmtLogger) Error(msg string, args ...any) { l.write("ERROR", msg, args) }

// WithContext returns l; the plain-text format has nothing to lift from ctx.
func (l *FmtLogger) WithContext(context.Context) Logger { return l }

// WithFields returns a copy carrying fields on top of the existing ones.
func (l *FmtLogger) WithFields(fields map[string]any) Logger {
	if len(fields) == 0 {
		return l
	}
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &FmtLogger{w: l.w, fields: merged, suffix: renderFields(merged)}
}

func (l *FmtLogger) write(level, msg string, args []any) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	var b strings.Builder
	b.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, " %-5s %s", level, strings.TrimSpace(msg))
	if l.suffix != "" {
		b.WriteByte(' ')
		b.WriteString(l.suffix)
	}
	b.WriteByte('\n')

	l.w.mu.Lock()
	defer l.w.mu.Unlock()
	_, _ = io.WriteString(l.w.out, b.String())
}

func renderFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%v", k, fields[k])
	}
	return strings.Join(pairs, " ")
}

// GlogLogger adapts a go-logger glog.Logger.
type GlogLogger struct {
	base glog.Logger
}

// NewGlogLogger wraps base. A nil base yields an FmtLogger.
func NewGlogLogger(base glog.Logger) Logger {
	if base == nil {
		return NewFmtLogger(nil)
	}
	return GlogLogger{base: base}
}

func (g GlogLogger) Debug(msg string, args ...any) { g.base.Debug(msg, args...) }
func (g GlogLogger) Info(msg string, args ...any)  { g.base.Info(msg, args...) }
func (g GlogLogger) Warn(msg string, args ...any)  { g.base.Warn(msg, args...) }
func (g GlogLogger) Error(msg string, args ...any) { g.base.Error(msg, args...) }

func (g GlogLogger) WithContext(ctx context.Context) Logger {
	return GlogLogger{base: g.base.WithContext(ctx)}
}

func (g GlogLogger) WithFields(fields map[string]any) Logger {
	if fl, ok := g.base.(glog.FieldsLogger); ok {
		return GlogLogger{base: fl.WithFields(fields)}
	}
	return g
}

// NormalizeLogger returns logger, or an FmtLogger when it is nil.
func NormalizeLogger(logger Logger) Logger {
	if logger == nil {
		return NewFmtLogger(nil)
	}
	return logger
}

// WithLoggerFields attaches fields when logger supports them and returns it
// unchanged otherwise.
func WithLoggerFields(logger Logger, fields map[string]any) Logger {
	logger = NormalizeLogger(logger)
	if fl, ok := logger.(FieldsLogger); ok {
		return fl.WithFields(fields)
	}
	return logger
}
