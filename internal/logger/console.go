// Package logger provides logging implementations for grading runs.
//
// Loggers record run-level events (discovery, per-question results, cooldowns,
// the final summary) plus leveled free-form messages. Implementations are
// thread-safe and write to the console, to run log files, or both.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/gradewalker/internal/models"
	"github.com/mattn/go-isatty"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs run progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps.
// Color output is enabled for terminal output (os.Stdout/os.Stderr).
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
	progress    *ProgressBar
	prefix      string
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	useColor := isTerminal(writer)
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: useColor,
		progress:    NewProgressBar(0, 20, useColor),
	}
}

// WithRunnerPrefix tags every line with the runner id, for multi-runner output.
func (cl *ConsoleLogger) WithRunnerPrefix(runner int) *ConsoleLogger {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	cl.prefix = fmt.Sprintf("[R%d] ", runner)
	return cl
}

// isTerminal checks if the writer is a TTY that supports colors.
// NO_COLOR (honoured by fatih/color) disables colors even on a TTY.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	if f != os.Stdout && f != os.Stderr {
		return false
	}
	return !color.NoColor && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

// logWithLevel writes "[HH:MM:SS] [LEVEL] message" if filtering allows it.
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	label := level
	if cl.colorOutput {
		label = levelColor(level).Sprint(level)
	}
	cl.write(fmt.Sprintf("[%s] %s[%s] %s\n", timestamp(), cl.prefix, label, message))
}

// LogRunStart announces the ordinal range a runner is about to process.
func (cl *ConsoleLogger) LogRunStart(runner, start, end int) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	rangeText := fmt.Sprintf("%d..%d", start, end)
	if end <= 0 {
		rangeText = fmt.Sprintf("%d..end", start)
	}
	header := "Starting run"
	if cl.colorOutput {
		header = color.New(color.Bold).Sprint(header)
	}
	cl.write(fmt.Sprintf("[%s] %s%s: runner %d, questions %s\n", timestamp(), cl.prefix, header, runner, rangeText))
}

// LogDiscovery reports how many questions were found. When no markers matched,
// the count is the configured default.
func (cl *ConsoleLogger) LogDiscovery(total int, discovered bool) {
	if cl.progress != nil {
		cl.progress.SetTotal(total)
	}
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	msg := fmt.Sprintf("Discovered %d questions", total)
	if !discovered {
		msg = fmt.Sprintf("No question markers found, assuming %d questions", total)
		if cl.colorOutput {
			msg = color.New(color.FgYellow).Sprint(msg)
		}
	}
	cl.write(fmt.Sprintf("[%s] %s%s\n", timestamp(), cl.prefix, msg))
}

// LogQuestionStart logs the start of an attempt at DEBUG level.
func (cl *ConsoleLogger) LogQuestionStart(index, attempt int) {
	if attempt > 1 {
		cl.LogDebug(fmt.Sprintf("Question %d: attempt %d", index, attempt))
		return
	}
	cl.LogDebug(fmt.Sprintf("Question %d: extracting", index))
}

// LogQuestionRetry logs a failed attempt that will be retried.
func (cl *ConsoleLogger) LogQuestionRetry(index, attempt int, err error) {
	cl.LogWarn(fmt.Sprintf("Question %d: attempt %d failed, retrying: %v", index, attempt, err))
}

// LogQuestionResult logs a recorded result and refreshes the progress bar.
// Format: "[HH:MM:SS] Question <n>: <OUTCOME> | classifier: <VERDICT>"
func (cl *ConsoleLogger) LogQuestionResult(result models.QuestionResult) {
	if cl.progress != nil {
		cl.progress.Record(result.Outcome)
	}
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	outcome := string(result.Outcome)
	verdict := string(result.ClassifierVerdict)
	if verdict == "" {
		verdict = "-"
	}
	if cl.colorOutput {
		outcome = outcomeColor(result.Outcome).Sprint(outcome)
		verdict = verdictColor(result.ClassifierVerdict).Sprint(verdict)
	}

	line := fmt.Sprintf("[%s] %sQuestion %d: %s | classifier: %s", timestamp(), cl.prefix, result.Index, outcome, verdict)
	if result.IsMultiFile() {
		line += fmt.Sprintf(" (%d files)", len(result.Units))
	}
	if result.ErrorDetail != "" {
		line += fmt.Sprintf(" | error: %s", truncate(result.ErrorDetail, 120))
	}
	out := line + "\n"
	if cl.progress != nil && cl.progress.Total() > 0 {
		out += fmt.Sprintf("[%s] %sProgress: %s\n", timestamp(), cl.prefix, cl.progress.Render())
	}
	cl.write(out)
}

// LogCooldown announces the remaining classifier cooldown.
func (cl *ConsoleLogger) LogCooldown(remaining time.Duration) {
	msg := fmt.Sprintf("Classifier cooldown: %s remaining", formatDuration(remaining))
	if remaining <= 0 {
		msg = "Classifier cooldown complete"
	}
	cl.LogInfo(msg)
}

// LogSummary logs the run summary at INFO level.
func (cl *ConsoleLogger) LogSummary(summary models.Summary, state string, reportPath string) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	ts := timestamp()
	var sb strings.Builder
	if cl.colorOutput {
		scheme := newColorScheme()
		fmt.Fprintf(&sb, "[%s] %s%s\n", ts, cl.prefix, color.New(color.Bold).Sprint("=== Run Summary ==="))
		fmt.Fprintf(&sb, "[%s] %s%s\n", ts, cl.prefix, formatColorizedMetric("State", state, scheme))
		fmt.Fprintf(&sb, "[%s] %s%s\n", ts, cl.prefix, formatColorizedMetric("Total", summary.Total, scheme))
		fmt.Fprintf(&sb, "[%s] %s%s\n", ts, cl.prefix, scheme.success.Sprintf("Passed: %d", summary.Passed))
		if summary.Failed > 0 {
			fmt.Fprintf(&sb, "[%s] %s%s\n", ts, cl.prefix, scheme.fail.Sprintf("Failed: %d", summary.Failed))
		} else {
			fmt.Fprintf(&sb, "[%s] %sFailed: %d\n", ts, cl.prefix, summary.Failed)
		}
		fmt.Fprintf(&sb, "[%s] %s%s\n", ts, cl.prefix, scheme.warn.Sprintf("Skipped: %d", summary.Skipped))
		fmt.Fprintf(&sb, "[%s] %s%s\n", ts, cl.prefix, formatColorizedMetric("Pass rate", summary.PassRateString()+"%", scheme))
	} else {
		fmt.Fprintf(&sb, "[%s] %s=== Run Summary ===\n", ts, cl.prefix)
		fmt.Fprintf(&sb, "[%s] %sState: %s\n", ts, cl.prefix, state)
		fmt.Fprintf(&sb, "[%s] %sTotal: %d\n", ts, cl.prefix, summary.Total)
		fmt.Fprintf(&sb, "[%s] %sPassed: %d\n", ts, cl.prefix, summary.Passed)
		fmt.Fprintf(&sb, "[%s] %sFailed: %d\n", ts, cl.prefix, summary.Failed)
		fmt.Fprintf(&sb, "[%s] %sSkipped: %d\n", ts, cl.prefix, summary.Skipped)
		fmt.Fprintf(&sb, "[%s] %sPass rate: %s%%\n", ts, cl.prefix, summary.PassRateString())
	}
	if reportPath != "" {
		fmt.Fprintf(&sb, "[%s] %sReport: %s\n", ts, cl.prefix, reportPath)
	}
	cl.write(sb.String())
}

func (cl *ConsoleLogger) write(s string) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	cl.writer.Write([]byte(s))
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		minutes := (d % time.Hour) / time.Minute
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	case d >= time.Minute:
		minutes := d / time.Minute
		seconds := (d % time.Minute) / time.Second
		if seconds == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
