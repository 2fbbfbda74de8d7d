package xfer

import (
	log "github.com/sirupsen/logrus"
)

// Logger is the interface for engine protocol logging.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// NoopLogger does nothing.
type NoopLogger struct{}

func (NoopLogger) Debug(format string, args ...interface{}) {}
func (NoopLogger) Info(format string, args ...interface{})  {}
func (NoopLogger) Error(format string, args ...interface{}) {}

// LogrusLogger adapts a logrus logger to the engine's Logger interface.
type LogrusLogger struct {
	L *log.Logger
}

// NewLogrusLogger wraps the given logrus logger. A nil logger uses the
// logrus standard logger.
func NewLogrusLogger(l *log.Logger) *LogrusLogger {
	if l == nil {
		l = log.StandardLogger()
	}
	return &LogrusLogger{L: l}
}

func (l *LogrusLogger) Debug(format string, args ...interface{}) {
	l.L.Debugf(format, args...)
}

func (l *LogrusLogger) Info(format string, args ...interface{}) {
	l.L.Infof(format, args...)
}

func (l *LogrusLogger) Error(format string, args ...interface{}) {
	l.L.Errorf(format, args...)
}
