package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrison/gradewalker/internal/models"
)

func TestFileLogger_CreatesRunLogAndSymlink(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	fl, err := NewFileLoggerWithDirAndLevel(logDir, "info")
	if err != nil {
		t.Fatalf("NewFileLoggerWithDirAndLevel() error = %v", err)
	}
	defer fl.Close()

	if !strings.HasPrefix(filepath.Base(fl.RunFile()), "run-") {
		t.Errorf("unexpected run file name %s", fl.RunFile())
	}

	target, err := os.Readlink(filepath.Join(logDir, "latest.log"))
	if err != nil {
		t.Fatalf("latest.log symlink missing: %v", err)
	}
	if target != filepath.Base(fl.RunFile()) {
		t.Errorf("latest.log -> %s, want %s", target, filepath.Base(fl.RunFile()))
	}
}

func TestFileLogger_QuestionLog(t *testing.T) {
	logDir := t.TempDir()
	fl, err := NewFileLoggerWithDirAndLevel(logDir, "debug")
	if err != nil {
		t.Fatalf("NewFileLoggerWithDirAndLevel() error = %v", err)
	}

	fl.LogQuestionResult(models.QuestionResult{
		Index:                 12,
		QuestionText:          "Reverse a list",
		Units:                 []models.SourceUnit{{Label: "main.py", Text: "print(x[::-1])"}},
		Outcome:               models.OutcomePassed,
		ClassifierVerdict:     models.VerdictPartial,
		ClassifierRemarks:     "does not handle empty input",
		SuggestedRequirements: []string{"handle empty list"},
		CreatedAt:             time.Now(),
		Attempts:              2,
	})
	fl.LogSummary(models.Summary{Total: 1, Passed: 1, PassRate: 100}, "Done", "")
	fl.Close()

	detail, err := os.ReadFile(filepath.Join(logDir, "questions", "question-12.log"))
	if err != nil {
		t.Fatalf("question log missing: %v", err)
	}
	for _, want := range []string{"=== Question 12 ===", "Outcome: PASSED", "--- main.py ---", "Classifier verdict: PARTIAL", "  - handle empty list"} {
		if !strings.Contains(string(detail), want) {
			t.Errorf("question log missing %q", want)
		}
	}

	run, _ := os.ReadFile(fl.RunFile())
	for _, want := range []string{"Question 12: PASSED | classifier: PARTIAL | attempts: 2", "=== Run Summary ===", "Pass rate: 100.00%"} {
		if !strings.Contains(string(run), want) {
			t.Errorf("run log missing %q", want)
		}
	}
}

func TestFileLogger_LevelFiltering(t *testing.T) {
	logDir := t.TempDir()
	fl, err := NewFileLoggerWithDirAndLevel(logDir, "warn")
	if err != nil {
		t.Fatalf("NewFileLoggerWithDirAndLevel() error = %v", err)
	}
	fl.LogInfo("quiet")
	fl.LogWarn("loud")
	fl.Close()

	run, _ := os.ReadFile(fl.RunFile())
	if strings.Contains(string(run), "quiet") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(string(run), "[WARN] loud") {
		t.Error("warn message should be written")
	}
}
