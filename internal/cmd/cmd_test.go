package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/gradewalker/internal/config"
	"github.com/harrison/gradewalker/internal/history"
	"github.com/harrison/gradewalker/internal/logger"
	"github.com/harrison/gradewalker/internal/models"
	"github.com/harrison/gradewalker/internal/report"
	"github.com/harrison/gradewalker/internal/runner"
	"github.com/harrison/gradewalker/internal/traversal"
)

// executeCommand runs the root command with args and returns its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvStart, config.EnvEnd, config.EnvAppURL, config.EnvQuestionSet,
		config.EnvRunners, config.EnvRunnerID,
	} {
		t.Setenv(key, "")
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"run", "fanout", "login", "merge", "history"} {
		found, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, found.Name())
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
app_url: https://lms.example.edu
start: 5
end: 40
report:
  format: xlsx
`)
	t.Setenv(config.EnvStart, "7")
	t.Setenv(config.EnvEnd, "30")

	cmd := &cobra.Command{Use: "test"}
	addRunFlags(cmd)
	cmd.Flags().Int("runners", 0, "")
	cmd.Flags().Int("runner-id", 0, "")
	require.NoError(t, cmd.ParseFlags([]string{
		"--config", path, "--end", "20", "--format", "csv", "--headed", "--timeout", "90m", "--runners", "2", "--runner-id", "2",
	}))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "https://lms.example.edu", cfg.AppURL)
	assert.Equal(t, 7, cfg.Start, "environment overrides the file")
	assert.Equal(t, 20, cfg.End, "flags override the environment")
	assert.Equal(t, "csv", cfg.Report.Format)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 90*time.Minute, cfg.Timeout)
	assert.Equal(t, 2, cfg.Runners)
	assert.Equal(t, 2, cfg.RunnerID)
	assert.False(t, cfg.IsLeader())
}

func TestLoadConfig_Errors(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "app_url: https://lms.example.edu\n")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"bad timeout", []string{"--config", path, "--timeout", "soon"}, "invalid timeout format"},
		{"end before start", []string{"--config", path, "--start", "9", "--end", "3"}, "invalid configuration"},
		{"bad format", []string{"--config", path, "--format", "pdf"}, "invalid report.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "test"}
			addRunFlags(cmd)
			require.NoError(t, cmd.ParseFlags(tt.args))
			_, err := loadConfig(cmd)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestRunCommand_RequiresAppURL(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "log_level: info\n")

	_, err := executeCommand(t, "run", "--config", path)
	assert.ErrorContains(t, err, "app_url is required")

	_, err = executeCommand(t, "login", "--config", path)
	assert.ErrorContains(t, err, "app_url is required")
}

func TestFinishRun(t *testing.T) {
	var buf bytes.Buffer
	err := finishRun(&buf, runner.Result{State: "done", ReportPath: "/tmp/r.xlsx"}, nil)
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "/tmp/r.xlsx")

	err = finishRun(&buf, runner.Result{State: "aborted", Summary: models.Summary{Total: 5}}, nil)
	assert.ErrorContains(t, err, "aborted after 5")

	interrupted := fmt.Errorf("%w at question 6", traversal.ErrInterrupted)
	err = finishRun(&buf, runner.Result{State: "aborted"}, interrupted)
	assert.ErrorContains(t, err, "run interrupted")
	assert.True(t, errors.Is(err, traversal.ErrInterrupted))

	err = finishRun(&buf, runner.Result{}, errors.New("boom"))
	assert.ErrorContains(t, err, "run failed: boom")
}

func TestWindowFunc(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Runners = 3
	cfg.RunnerID = 2

	start, end := windowFunc(cfg, logger.NewNoOpLogger())(90)
	assert.Equal(t, 31, start)
	assert.Equal(t, 60, end)

	cfg.Start, cfg.End = 11, 40
	cfg.RunnerID = 3
	start, end = windowFunc(cfg, logger.NewNoOpLogger())(90)
	assert.Equal(t, 31, start)
	assert.Equal(t, 40, end)

	// Fewer questions than runners leaves runner 3 with nothing.
	cfg.Start, cfg.End = 1, 0
	start, end = windowFunc(cfg, logger.NewNoOpLogger())(2)
	assert.Greater(t, start, end)
	assert.Positive(t, end)
}

func TestReportHint(t *testing.T) {
	env := &runEnv{stamp: "20261018-101500"}
	cfg := config.DefaultConfig()
	assert.Equal(t, "grading-report-20261018-101500", env.reportHint(cfg))

	cfg.Runners, cfg.RunnerID = 3, 2
	assert.Equal(t, "grading-report-r2-20261018-101500", env.reportHint(cfg))
}

func sampleResults(indices ...int) []models.QuestionResult {
	var out []models.QuestionResult
	for _, i := range indices {
		outcome := models.OutcomePassed
		if i%2 == 0 {
			outcome = models.OutcomeFailed
		}
		out = append(out, models.QuestionResult{
			Index:        i,
			QuestionText: fmt.Sprintf("Question %d", i),
			Units:        []models.SourceUnit{{Label: "main", Text: "print(1)"}},
			Outcome:      outcome,
			CreatedAt:    time.Date(2026, 10, 18, 10, 0, i, 0, time.UTC),
		})
	}
	return out
}

func TestMergeCommand(t *testing.T) {
	dir := t.TempDir()
	sink := report.NewCSVSink(report.Options{Dir: dir})
	second, err := sink.Write(sampleResults(4, 5, 6), "runner-2")
	require.NoError(t, err)
	first, err := sink.Write(sampleResults(1, 2, 3), "runner-1")
	require.NoError(t, err)

	out, err := executeCommand(t, "merge", second, first, "--name", "combined")
	require.NoError(t, err)
	assert.Contains(t, out, "Merged 2 report(s)")
	assert.Contains(t, out, "6 question(s): 3 passed, 3 failed, 0 skipped")

	merged, err := report.ReadFile(filepath.Join(dir, "combined.csv"))
	require.NoError(t, err)
	require.Len(t, merged, 6)
	for i, r := range merged {
		assert.Equal(t, i+1, r.Index)
	}
}

func TestMergeCommand_Directory(t *testing.T) {
	dir := t.TempDir()
	sink := report.NewCSVSink(report.Options{Dir: dir})
	_, err := sink.Write(sampleResults(3, 4), "grading-report-r2")
	require.NoError(t, err)
	_, err = sink.Write(sampleResults(1, 2), "grading-report-r1")
	require.NoError(t, err)

	out, err := executeCommand(t, "merge", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Merged 2 report(s)")

	// The first merge output is not merged again.
	out, err = executeCommand(t, "merge", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Merged 2 report(s)")
	assert.Contains(t, out, "merged-report-1.csv")
	assert.Contains(t, out, "4 question(s)")
}

func TestMergeCommand_MissingFile(t *testing.T) {
	_, err := executeCommand(t, "merge", filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorContains(t, err, "failed to access")
}

func TestWithoutOutput(t *testing.T) {
	files := []string{"/r/merged-report.csv", "/r/merged-report-2.xlsx", "/r/merged-report-final.csv", "/r/grading-report-r1.csv"}
	assert.Equal(t, []string{"/r/merged-report-final.csv", "/r/grading-report-r1.csv"}, withoutOutput(files, "merged-report"))
}

func TestHistoryCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	cfgPath := writeConfig(t, fmt.Sprintf("history:\n  db_path: %s\n", dbPath))

	out, err := executeCommand(t, "history", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded yet.")

	store, err := history.NewStore(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	run := &history.Run{ID: "0f3e9a7c-1111-2222-3333-444455556666", Runner: 1, Start: 1, End: 3, AppURL: "https://lms.example.edu"}
	require.NoError(t, store.StartRun(ctx, run))
	results := sampleResults(1, 2)
	results[0].ClassifierVerdict = models.VerdictMatch
	results[1].ErrorDetail = "run control not found"
	for _, r := range results {
		require.NoError(t, store.RecordResult(ctx, run.ID, r))
	}
	require.NoError(t, store.FinishRun(ctx, run.ID, "done", models.Summarize(results), "reports/grading-report.xlsx"))
	require.NoError(t, store.Close())

	out, err = executeCommand(t, "history", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "0f3e9a7c")
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "1/2 passed")

	exportDir := t.TempDir()
	out, err = executeCommand(t, "history", "show", "0f3e", "--config", cfgPath, "--export", "csv", "--out-dir", exportDir)
	require.NoError(t, err)
	assert.Contains(t, out, run.ID)
	assert.Contains(t, out, "Question 1")
	assert.Contains(t, out, "MATCH")
	assert.Contains(t, out, "run control not found")
	assert.Contains(t, out, "Exported 2 result(s)")

	exported, err := report.ReadFile(filepath.Join(exportDir, "history-0f3e9a7c.csv"))
	require.NoError(t, err)
	assert.Len(t, exported, 2)

	_, err = executeCommand(t, "history", "show", "ffff", "--config", cfgPath)
	assert.ErrorIs(t, err, history.ErrRunNotFound)
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n  b\tc", 10))
	assert.Equal(t, "abc...", oneLine("abcdef", 3))
}
