package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	logger := New("test-component")
	assert.NotNil(t, logger)
	assert.Implements(t, (*Logger)(nil), logger)
}

func captureOutput(l Logger, emit func(Logger)) string {
	ll := l.(*logrusLogger)
	var buf bytes.Buffer
	base := ll.entry.Logger
	prev := base.Out
	base.SetOutput(&buf)
	defer base.SetOutput(prev)
	emit(l)
	return buf.String()
}

func TestLogrusLoggerInfof(t *testing.T) {
	logger := New("pollerd")
	output := captureOutput(logger, func(l Logger) { l.Infof("tick started for %d jobs", 5) })
	assert.Contains(t, output, "tick started for 5 jobs")
	assert.Contains(t, output, "component=pollerd")
}

func TestLogrusLoggerWarnf(t *testing.T) {
	logger := New("scheduler")
	output := captureOutput(logger, func(l Logger) { l.Warnf("job %s deferred by quota gate", "job-1") })
	assert.Contains(t, output, "job job-1 deferred by quota gate")
}

func TestLogrusLoggerErrorf(t *testing.T) {
	logger := New("poller")
	output := captureOutput(logger, func(l Logger) { l.Errorf("worker failed: %v", assert.AnError) })
	assert.Contains(t, output, "worker failed")
}

func TestWithAddsStructuredFields(t *testing.T) {
	logger := New("scheduler")
	derived := With(logger, map[string]any{"olt_id": "olt-1", "job_id": "job-9"})

	output := captureOutput(derived, func(l Logger) { l.Infof("submitted") })
	assert.Contains(t, output, "olt_id=olt-1")
	assert.Contains(t, output, "job_id=job-9")
	assert.Contains(t, output, "component=scheduler")
}

func TestWithOnNonLogrusLoggerReturnsUnchanged(t *testing.T) {
	n := Nop()
	derived := With(n, map[string]any{"anything": "value"})
	assert.Equal(t, n, derived)
}

func TestNopDiscardsEverything(t *testing.T) {
	n := Nop()
	assert.NotPanics(t, func() {
		n.Infof("ignored")
		n.Warnf("ignored")
		n.Errorf("ignored")
	})
}

func TestLoggerEntryUsesTextFormatter(t *testing.T) {
	logger := New("x").(*logrusLogger)
	_, ok := logger.entry.Logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok, "expected a *logrus.TextFormatter")
}
