package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/gradewalker/internal/config"
	"github.com/harrison/gradewalker/internal/history"
	"github.com/harrison/gradewalker/internal/models"
	"github.com/harrison/gradewalker/internal/report"
)

// NewHistoryCommand creates the 'gradewalker history' command group
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect archived runs",
		Long: `Every runner records its run and each question result in a local SQLite
archive (.gradewalker/history/runs.db). Use these subcommands to list past runs,
show one run's results, or export them as a report.`,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .gradewalker/config.yaml)")

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())

	return cmd
}

func newHistoryListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 = all)")
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the results of one run",
		Long: `Show the results of one run. The run id may be abbreviated to any unique prefix.
With --export the results are also written as a report.`,
		Args: cobra.ExactArgs(1),
		RunE: runHistoryShow,
	}
	cmd.Flags().String("export", "", "Also write the results as a report: xlsx or csv")
	cmd.Flags().String("out-dir", ".", "Directory for the exported report")
	return cmd
}

// openHistory opens the archive named by configuration. ok is false when no
// archive exists yet.
func openHistory(cmd *cobra.Command) (store *history.Store, ok bool, err error) {
	configPath, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
	} else {
		cfg, err = config.LoadConfigFromDir(".")
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load config: %w", err)
	}

	dbPath, err := historyPath(cfg)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get history database path: %w", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, false, nil
	}

	store, err = history.NewStore(dbPath)
	if err != nil {
		return nil, false, fmt.Errorf("open history store: %w", err)
	}
	return store, true, nil
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	store, ok, err := openHistory(cmd)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.ListRuns(context.Background(), limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	printRunList(out, runs)
	return nil
}

// printRunList prints one line per run, most recent first.
func printRunList(w io.Writer, runs []*history.Run) {
	cyan := color.New(color.FgCyan, color.Bold)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintf(w, "%-8s  %-19s  %-6s  %-9s  %-8s  %s\n", "RUN", "STARTED", "RUNNER", "RANGE", "STATE", "RESULT")
	for _, run := range runs {
		fmt.Fprintf(w, "%-8s  %-19s  %-6d  %-9s  ", shortID(run.ID), formatTimestamp(run.StartedAt), run.Runner, formatRange(run.Start, run.End))
		stateColor(run.State).Fprintf(w, "%-8s", run.State)
		fmt.Fprintf(w, "  %d/%d passed", run.Summary.Passed, run.Summary.Total)
		if !run.FinishedAt.IsZero() {
			gray.Fprintf(w, " (%s)", formatDuration(run.FinishedAt.Sub(run.StartedAt)))
		}
		fmt.Fprintln(w)
	}
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	store, ok, err := openHistory(cmd)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", history.ErrRunNotFound, args[0])
	}
	defer store.Close()

	ctx := context.Background()
	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	results, err := store.Results(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}

	printRun(out, run, results)

	format, _ := cmd.Flags().GetString("export")
	if format == "" {
		return nil
	}
	outDir, _ := cmd.Flags().GetString("out-dir")
	sink, err := report.NewSink(format, report.Options{Dir: outDir})
	if err != nil {
		return err
	}
	path, err := sink.Write(results, "history-"+shortID(run.ID))
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}
	fmt.Fprintf(out, "\nExported %d result(s) to %s\n", len(results), path)
	return nil
}

// printRun prints a run header followed by one line per result.
func printRun(w io.Writer, run *history.Run, results []models.QuestionResult) {
	cyan := color.New(color.FgCyan, color.Bold)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintf(w, "\n=== Run %s ===\n\n", run.ID)
	fmt.Fprintf(w, "  Runner: %d\n", run.Runner)
	fmt.Fprintf(w, "  Range: %s\n", formatRange(run.Start, run.End))
	if run.AppURL != "" {
		fmt.Fprintf(w, "  App: %s\n", run.AppURL)
	}
	fmt.Fprintf(w, "  Started: %s ", formatTimestamp(run.StartedAt))
	gray.Fprintf(w, "(%s ago)\n", formatDuration(time.Since(run.StartedAt)))
	fmt.Fprintf(w, "  State: ")
	stateColor(run.State).Fprintf(w, "%s\n", run.State)
	if run.ReportPath != "" {
		fmt.Fprintf(w, "  Report: %s\n", run.ReportPath)
	}
	fmt.Fprintln(w)

	if len(results) == 0 {
		fmt.Fprintln(w, "No results recorded.")
		return
	}

	for _, r := range results {
		fmt.Fprintf(w, "  Q%-4d ", r.Index)
		outcomeColor(r.Outcome).Fprintf(w, "%-8s", r.Outcome)
		if r.ClassifierVerdict != "" {
			fmt.Fprintf(w, "  %-15s", r.ClassifierVerdict)
		}
		if text := oneLine(r.QuestionText, 60); text != "" {
			gray.Fprintf(w, "  %s", text)
		}
		fmt.Fprintln(w)
		if r.ErrorDetail != "" {
			fmt.Fprintf(w, "         error: %s\n", oneLine(r.ErrorDetail, 100))
		}
	}

	summary := models.Summarize(results)
	fmt.Fprintln(w)
	cyan.Fprintf(w, "Summary:\n")
	fmt.Fprintf(w, "  %d passed, %d failed, %d skipped (%s%% pass rate)\n",
		summary.Passed, summary.Failed, summary.Skipped, summary.PassRateString())
}

func stateColor(state string) *color.Color {
	switch state {
	case "done":
		return color.New(color.FgGreen)
	case "aborted":
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

func outcomeColor(outcome models.Outcome) *color.Color {
	switch outcome {
	case models.OutcomePassed:
		return color.New(color.FgGreen)
	case models.OutcomeFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatRange(start, end int) string {
	if end <= 0 {
		return fmt.Sprintf("%d..", start)
	}
	return fmt.Sprintf("%d..%d", start, end)
}

// oneLine collapses whitespace and truncates s to limit runes.
func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return s
}

// formatTimestamp formats a timestamp for display
func formatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

// formatDuration formats a duration for human-readable display
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	days := int(d.Hours() / 24)
	return fmt.Sprintf("%dd", days)
}
