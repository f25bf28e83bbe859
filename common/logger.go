package common

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	confLoggerLevel = "relay.log.level"
)

const (
	defaultLoggerLevel = Info
)

func FormatLogger(logger Logger, format fmt.Stringer, args ...interface{}) Logger {
	return NewFormattedLogger(logger, format, args...)
}

// Logger is threaded through every component via common.Context, the same
// way ctx.Logger() is threaded through msg/message/micro. The default
// implementation is backed by a structured logger (go.uber.org/zap)
// rather than a hand-rolled log.Println sink.
type Logger interface {
	Debug(format string, vals ...interface{})
	Info(format string, vals ...interface{})
	Warn(format string, vals ...interface{})
	Error(format string, vals ...interface{})
}

type LoggerLevel int

const (
	Error LoggerLevel = iota
	Warn
	Info
	Debug
)

func (l LoggerLevel) zapLevel() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Info:
		return zapcore.InfoLevel
	case Warn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

type standardLogger struct {
	level LoggerLevel
	inner *zap.SugaredLogger
}

// NewStandardLogger builds the default logger, reading its level from config
// key "relay.log.level" (common.Error..common.Debug).
func NewStandardLogger(c Config) Logger {
	level := LoggerLevel(c.OptionalInt(confLoggerLevel, int(defaultLoggerLevel)))

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.Encoding = "console"

	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}

	return &standardLogger{level: level, inner: z.Sugar()}
}

// NewLogger wraps an already-constructed zap logger, for callers that want
// to control the sink/encoding themselves.
func NewLogger(z *zap.Logger, level LoggerLevel) Logger {
	return &standardLogger{level: level, inner: z.Sugar()}
}

func (s *standardLogger) Debug(format string, vals ...interface{}) {
	if s.level >= Debug {
		s.inner.Debugf(format, vals...)
	}
}

func (s *standardLogger) Info(format string, vals ...interface{}) {
	if s.level >= Info {
		s.inner.Infof(format, vals...)
	}
}

func (s *standardLogger) Warn(format string, vals ...interface{}) {
	if s.level >= Warn {
		s.inner.Warnf(format, vals...)
	}
}

func (s *standardLogger) Error(format string, vals ...interface{}) {
	if s.level >= Error {
		s.inner.Errorf(format, vals...)
	}
}

type formattedLogger struct {
	log Logger
	fmt string
}

// NewFormattedLogger prefixes every message with a fixed tag, the way a
// connection description is prefixed onto every supervisor/client/server log
// line in this module.
func NewFormattedLogger(base Logger, format fmt.Stringer, vals ...interface{}) Logger {
	return &formattedLogger{base, fmt.Sprintf(format.String(), vals...)}
}

func (s *formattedLogger) Debug(format string, vals ...interface{}) {
	s.log.Debug(fmt.Sprintf("%v: %v", s.fmt, format), vals...)
}

func (s *formattedLogger) Info(format string, vals ...interface{}) {
	s.log.Info(fmt.Sprintf("%v: %v", s.fmt, format), vals...)
}

func (s *formattedLogger) Warn(format string, vals ...interface{}) {
	s.log.Warn(fmt.Sprintf("%v: %v", s.fmt, format), vals...)
}

func (s *formattedLogger) Error(format string, vals ...interface{}) {
	s.log.Error(fmt.Sprintf("%v: %v", s.fmt, format), vals...)
}
