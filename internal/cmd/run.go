package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/harrison/gradewalker/internal/runner"
	"github.com/harrison/gradewalker/internal/traversal"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Grade a question set with a single runner",
		Long: `Walk the question set from --start to --end (or until it runs out), grading
each question and writing one report row per question.

When several processes share one question set, start each with --runners N and
a distinct --runner-id K (or GRADEWALKER_RUNNERS / GRADEWALKER_RUNNER_ID).
Runner 1 performs the login; the others wait for its saved session. Each
process computes its own share once the question total is known.

Examples:
  gradewalker run --app-url https://lms.example.edu --question-set /sets/42
  gradewalker run --start 10 --end 30 --format csv
  gradewalker run --runners 3 --runner-id 2
  gradewalker run --timeout 2h --verbose`,
		Args: cobra.NoArgs,
		RunE: runCommand,
	}

	addRunFlags(cmd)
	cmd.Flags().Int("runners", 0, "Number of cooperating runner processes")
	cmd.Flags().Int("runner-id", 0, "This process's runner id (1-based)")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := requireAppURL(cfg); err != nil {
		return err
	}

	ctx, stop := runContext(cmd.Context(), cfg.Timeout)
	defer stop()

	env, closeEnv, err := newRunEnv(ctx, cmd.OutOrStdout(), cfg)
	if err != nil {
		return err
	}
	defer closeEnv()

	result, runErr := env.runOne(ctx, cfg.RunnerID)
	return finishRun(cmd.OutOrStdout(), result, runErr)
}

// finishRun reports the outcome of one runner and turns an aborted run into
// a non-zero exit.
func finishRun(w io.Writer, result runner.Result, runErr error) error {
	if result.ReportPath != "" {
		fmt.Fprintf(w, "Report written to: %s\n", result.ReportPath)
	}
	if runErr != nil {
		if traversal.IsInterrupted(runErr) {
			return fmt.Errorf("run interrupted: %w", runErr)
		}
		return fmt.Errorf("run failed: %w", runErr)
	}
	if result.State == traversal.StateAborted.String() {
		return fmt.Errorf("run aborted after %d question(s)", result.Summary.Total)
	}
	return nil
}
