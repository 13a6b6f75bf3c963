// Package telemetry provides the gateway's structured logging convention:
// every line carries a dotted "event" field (tool.execute.start,
// circuit_breaker.open, health_check.failed, ...) the way the original
// Python service's logging.getLogger(__name__) calls did.
package telemetry

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a *zap.SugaredLogger with an Event helper. Components log
// through this type rather than importing zap directly, matching the
// teacher's practice of wrapping its logging library behind a thin facade.
type Logger struct {
	base *zap.SugaredLogger
}

// NewLogger builds a Logger at the given level ("debug", "info", "warn",
// "error"). Unrecognized levels fall back to info, mirroring the Python
// service's getattr(logging, level, logging.INFO) fallback.
func NewLogger(level string) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(strings.ToLower(level)); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	return &Logger{base: l.Sugar()}
}

// Event logs a structured line under the given dotted event name with
// key=value pairs appended as zap fields (kvs must be an even count of
// key, value, key, value, ...).
func (l *Logger) Event(level zapcore.Level, event string, kvs ...any) {
	args := append([]any{"event", event}, kvs...)
	switch level {
	case zapcore.DebugLevel:
		l.base.Debugw(event, args...)
	case zapcore.WarnLevel:
		l.base.Warnw(event, args...)
	case zapcore.ErrorLevel:
		l.base.Errorw(event, args...)
	default:
		l.base.Infow(event, args...)
	}
}

func (l *Logger) Info(event string, kvs ...any)  { l.Event(zapcore.InfoLevel, event, kvs...) }
func (l *Logger) Warn(event string, kvs ...any)  { l.Event(zapcore.WarnLevel, event, kvs...) }
func (l *Logger) Error(event string, kvs ...any) { l.Event(zapcore.ErrorLevel, event, kvs...) }
func (l *Logger) Debug(event string, kvs ...any) { l.Event(zapcore.DebugLevel, event, kvs...) }

func (l *Logger) Sync() { _ = l.base.Sync() }

// NewStdioProtocolLogger returns a logrus logger dedicated to the stdio
// transport. The stdio transport's stdout is a wire protocol (one JSON
// response per line); it must never be polluted with log output, so the
// stdio transport logs exclusively through this logger, which writes to
// stderr with a plain text formatter — a separate ambient logging idiom
// from the zap-based Logger used everywhere else, kept distinct on purpose.
func NewStdioProtocolLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
