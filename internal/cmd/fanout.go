package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/gradewalker/internal/models"
	"github.com/harrison/gradewalker/internal/report"
	"github.com/harrison/gradewalker/internal/runner"
	"github.com/harrison/gradewalker/internal/traversal"
)

// NewFanoutCommand creates the fanout command
func NewFanoutCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fanout",
		Short: "Grade a question set with several runners in one process",
		Long: `Split the question set among --runners runners and grade the shares side by
side. Every runner opens its own browser; runner 1 logs in and the others reuse
its saved session. When all runners have finished, their reports are merged
into one report ordered by question number.

Examples:
  gradewalker fanout --runners 3
  gradewalker fanout --runners 4 --start 1 --end 80 --format csv`,
		Args: cobra.NoArgs,
		RunE: runFanout,
	}

	addRunFlags(cmd)
	cmd.Flags().Int("runners", 2, "Number of runners")

	return cmd
}

func runFanout(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := requireAppURL(cfg); err != nil {
		return err
	}
	if !cmd.Flags().Changed("runners") && cfg.Runners < 2 {
		cfg.Runners, _ = cmd.Flags().GetInt("runners")
	}
	cfg.RunnerID = 1

	ctx, stop := runContext(cmd.Context(), cfg.Timeout)
	defer stop()

	out := cmd.OutOrStdout()
	env, closeEnv, err := newRunEnv(ctx, out, cfg)
	if err != nil {
		return err
	}
	defer closeEnv()

	fmt.Fprintf(out, "Starting %d runners...\n", cfg.Runners)
	results, runErr := runner.Fanout(ctx, cfg.Runners, func(ctx context.Context, id int) (runner.Result, error) {
		return env.runOne(ctx, id)
	})
	printRunnerResults(out, results)

	sink, err := report.NewSink(cfg.Report.Format, report.Options{Dir: cfg.Report.Dir})
	if err != nil {
		return err
	}
	path, merged, mergeErr := runner.MergeResults(sink, results, fmt.Sprintf("%s-%s", cfg.Report.Name, env.stamp))
	if mergeErr == nil {
		summary := models.Summarize(merged)
		fmt.Fprintf(out, "\nMerged report: %s\n", path)
		fmt.Fprintf(out, "  %d question(s): %d passed, %d failed, %d skipped (%s%% pass rate)\n",
			summary.Total, summary.Passed, summary.Failed, summary.Skipped, summary.PassRateString())
	}

	if runErr != nil {
		return fmt.Errorf("fanout failed: %w", errors.Join(runErr, mergeErr))
	}
	if mergeErr != nil {
		return fmt.Errorf("failed to merge reports: %w", mergeErr)
	}
	for _, r := range results {
		if r.State == traversal.StateAborted.String() {
			return fmt.Errorf("runner %d aborted", r.ID)
		}
	}
	return nil
}

// printRunnerResults prints one line per runner.
func printRunnerResults(w io.Writer, results []runner.Result) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	fmt.Fprintf(w, "\nRunners:\n")
	for _, r := range results {
		state := r.State
		if state == "" {
			state = "not started"
		}
		line := fmt.Sprintf("  Runner %d: %s, %d question(s), %d passed", r.ID, state, r.Summary.Total, r.Summary.Passed)
		if r.Err != nil || r.State == traversal.StateAborted.String() {
			red.Fprintln(w, line)
			if r.Err != nil {
				fmt.Fprintf(w, "    %v\n", r.Err)
			}
			continue
		}
		green.Fprintln(w, line)
	}
}
