package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/gradewalker/internal/models"
)

// FileLogger logs run events to files in the log directory.
// It creates a timestamped per-run log file, per-question detail logs,
// and maintains a latest.log symlink pointing to the most recent run.
type FileLogger struct {
	logDir       string
	runLog       *os.File
	runFile      string
	questionsDir string
	logLevel     string
	mu           sync.Mutex
}

// NewFileLogger creates a FileLogger writing to .gradewalker/logs/ at level info.
func NewFileLogger() (*FileLogger, error) {
	return NewFileLoggerWithDirAndLevel(filepath.Join(".gradewalker", "logs"), "info")
}

// NewFileLoggerWithDirAndLevel creates a FileLogger with a custom log directory and level.
// Runner-specific loggers pass a per-runner directory so concurrent runners never
// share a run log.
func NewFileLoggerWithDirAndLevel(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	questionsDir := filepath.Join(logDir, "questions")
	if err := os.MkdirAll(questionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create questions directory: %w", err)
	}

	// run-YYYYMMDD-HHMMSS.log
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	logger := &FileLogger{
		logDir:       logDir,
		runLog:       file,
		runFile:      runFile,
		questionsDir: questionsDir,
		logLevel:     normalizeLogLevel(logLevel),
	}

	logger.writeRunLog("=== gradewalker Run Log ===\n")
	logger.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))

	return logger, nil
}

// RunFile returns the path of the current run log.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (fl *FileLogger) LogTrace(message string) {
	fl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (fl *FileLogger) LogDebug(message string) {
	fl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) {
	fl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (fl *FileLogger) LogWarn(message string) {
	fl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (fl *FileLogger) LogError(message string) {
	fl.logWithLevel("ERROR", message)
}

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message))
}

// LogRunStart records the runner and its ordinal range.
func (fl *FileLogger) LogRunStart(runner, start, end int) {
	fl.LogInfo(fmt.Sprintf("Run start: runner=%d start=%d end=%d", runner, start, end))
}

// LogDiscovery records the discovered question count.
func (fl *FileLogger) LogDiscovery(total int, discovered bool) {
	fl.LogInfo(fmt.Sprintf("Discovery: total=%d discovered=%t", total, discovered))
}

// LogQuestionStart records the start of an attempt.
func (fl *FileLogger) LogQuestionStart(index, attempt int) {
	fl.LogDebug(fmt.Sprintf("Question %d: attempt %d", index, attempt))
}

// LogQuestionRetry records a failed attempt that will be retried.
func (fl *FileLogger) LogQuestionRetry(index, attempt int, err error) {
	fl.LogWarn(fmt.Sprintf("Question %d: attempt %d failed: %v", index, attempt, err))
}

// LogQuestionResult writes a one-line entry to the run log and the full
// extracted content to questions/question-N.log.
func (fl *FileLogger) LogQuestionResult(result models.QuestionResult) {
	fl.LogInfo(fmt.Sprintf("Question %d: %s | classifier: %s | attempts: %d",
		result.Index, result.Outcome, result.ClassifierVerdict, result.Attempts))

	if err := fl.writeQuestionLog(result); err != nil {
		fl.LogError(err.Error())
	}
}

func (fl *FileLogger) writeQuestionLog(result models.QuestionResult) error {
	path := filepath.Join(fl.questionsDir, fmt.Sprintf("question-%d.log", result.Index))

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Question %d ===\n", result.Index)
	fmt.Fprintf(&sb, "Outcome: %s\n", result.Outcome)
	fmt.Fprintf(&sb, "Attempts: %d\n", result.Attempts)
	fmt.Fprintf(&sb, "Extracted at: %s\n\n", result.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Question:\n%s\n\n", result.QuestionText)
	for _, u := range result.Units {
		fmt.Fprintf(&sb, "--- %s ---\n%s\n\n", u.Label, u.Text)
	}
	if result.ClassifierVerdict != "" {
		fmt.Fprintf(&sb, "Classifier verdict: %s\n", result.ClassifierVerdict)
		if result.ClassifierRemarks != "" {
			fmt.Fprintf(&sb, "Remarks:\n%s\n", result.ClassifierRemarks)
		}
		for _, req := range result.SuggestedRequirements {
			fmt.Fprintf(&sb, "  - %s\n", req)
		}
		sb.WriteString("\n")
	}
	if result.ErrorDetail != "" {
		fmt.Fprintf(&sb, "Error:\n%s\n", result.ErrorDetail)
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write question log: %w", err)
	}
	return nil
}

// LogCooldown records cooldown progress at DEBUG level.
func (fl *FileLogger) LogCooldown(remaining time.Duration) {
	fl.LogDebug(fmt.Sprintf("Classifier cooldown: %s remaining", formatDuration(remaining)))
}

// LogSummary records the final summary.
func (fl *FileLogger) LogSummary(summary models.Summary, state string, reportPath string) {
	var sb strings.Builder
	sb.WriteString("\n=== Run Summary ===\n")
	fmt.Fprintf(&sb, "State: %s\n", state)
	fmt.Fprintf(&sb, "Total: %d\n", summary.Total)
	fmt.Fprintf(&sb, "Passed: %d\n", summary.Passed)
	fmt.Fprintf(&sb, "Failed: %d\n", summary.Failed)
	fmt.Fprintf(&sb, "Skipped: %d\n", summary.Skipped)
	fmt.Fprintf(&sb, "Pass rate: %s%%\n", summary.PassRateString())
	if reportPath != "" {
		fmt.Fprintf(&sb, "Report: %s\n", reportPath)
	}
	fmt.Fprintf(&sb, "Finished at: %s\n", time.Now().Format(time.RFC3339))
	fl.writeRunLog(sb.String())
}

// Close flushes and closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		if err := fl.runLog.Sync(); err != nil {
			return fmt.Errorf("failed to sync run log: %w", err)
		}
		if err := fl.runLog.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		fl.runLog = nil
	}
	return nil
}

func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
		fl.runLog.Sync()
	}
}
