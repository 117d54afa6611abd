package logger

import (
	"time"

	"github.com/harrison/gradewalker/internal/models"
)

// RunLogger is the full set of events emitted during a run.
type RunLogger interface {
	LogTrace(message string)
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
	LogRunStart(runner, start, end int)
	LogDiscovery(total int, discovered bool)
	LogQuestionStart(index, attempt int)
	LogQuestionRetry(index, attempt int, err error)
	LogQuestionResult(result models.QuestionResult)
	LogCooldown(remaining time.Duration)
	LogSummary(summary models.Summary, state string, reportPath string)
}

// MultiLogger fans every event out to several loggers.
type MultiLogger struct {
	loggers []RunLogger
}

// NewMultiLogger skips nil entries.
func NewMultiLogger(loggers ...RunLogger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

func (m *MultiLogger) LogTrace(message string) {
	for _, l := range m.loggers {
		l.LogTrace(message)
	}
}

func (m *MultiLogger) LogDebug(message string) {
	for _, l := range m.loggers {
		l.LogDebug(message)
	}
}

func (m *MultiLogger) LogInfo(message string) {
	for _, l := range m.loggers {
		l.LogInfo(message)
	}
}

func (m *MultiLogger) LogWarn(message string) {
	for _, l := range m.loggers {
		l.LogWarn(message)
	}
}

func (m *MultiLogger) LogError(message string) {
	for _, l := range m.loggers {
		l.LogError(message)
	}
}

func (m *MultiLogger) LogRunStart(runner, start, end int) {
	for _, l := range m.loggers {
		l.LogRunStart(runner, start, end)
	}
}

func (m *MultiLogger) LogDiscovery(total int, discovered bool) {
	for _, l := range m.loggers {
		l.LogDiscovery(total, discovered)
	}
}

func (m *MultiLogger) LogQuestionStart(index, attempt int) {
	for _, l := range m.loggers {
		l.LogQuestionStart(index, attempt)
	}
}

func (m *MultiLogger) LogQuestionRetry(index, attempt int, err error) {
	for _, l := range m.loggers {
		l.LogQuestionRetry(index, attempt, err)
	}
}

func (m *MultiLogger) LogQuestionResult(result models.QuestionResult) {
	for _, l := range m.loggers {
		l.LogQuestionResult(result)
	}
}

func (m *MultiLogger) LogCooldown(remaining time.Duration) {
	for _, l := range m.loggers {
		l.LogCooldown(remaining)
	}
}

func (m *MultiLogger) LogSummary(summary models.Summary, state string, reportPath string) {
	for _, l := range m.loggers {
		l.LogSummary(summary, state, reportPath)
	}
}

// NoOpLogger discards all log messages.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogTrace(string)                           {}
func (n *NoOpLogger) LogDebug(string)                           {}
func (n *NoOpLogger) LogInfo(string)                            {}
func (n *NoOpLogger) LogWarn(string)                            {}
func (n *NoOpLogger) LogError(string)                           {}
func (n *NoOpLogger) LogRunStart(int, int, int)                 {}
func (n *NoOpLogger) LogDiscovery(int, bool)                    {}
func (n *NoOpLogger) LogQuestionStart(int, int)                 {}
func (n *NoOpLogger) LogQuestionRetry(int, int, error)          {}
func (n *NoOpLogger) LogQuestionResult(models.QuestionResult)   {}
func (n *NoOpLogger) LogCooldown(time.Duration)                 {}
func (n *NoOpLogger) LogSummary(models.Summary, string, string) {}

var (
	_ RunLogger = (*ConsoleLogger)(nil)
	_ RunLogger = (*FileLogger)(nil)
	_ RunLogger = (*MultiLogger)(nil)
	_ RunLogger = (*NoOpLogger)(nil)
)
