// Package logging adapts logrus to the narrow Logger interface shared by
// every core component, so tests can substitute a no-op or recording
// fake.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the minimal logging contract every core component depends on.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// logrusLogger wraps a *logrus.Entry, letting callers attach structured
// fields (component, olt_id, job_id, ...) without changing the interface.
type logrusLogger struct {
	entry *logrus.Entry
}

// New returns a production Logger backed by logrus, tagged with a
// "component" field.
func New(component string) Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{entry: base.WithField("component", component)}
}

// With returns a derived Logger with additional structured fields.
func With(l Logger, fields map[string]any) Logger {
	ll, ok := l.(*logrusLogger)
	if !ok {
		return l
	}
	e := ll.entry
	for k, v := range fields {
		e = e.WithField(k, v)
	}
	return &logrusLogger{entry: e}
}

func (l *logrusLogger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// Nop returns a Logger that discards everything, for tests that don't care
// about log output.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
