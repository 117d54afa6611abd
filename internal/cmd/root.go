package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for gradewalker
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gradewalker",
		Short: "Walk a coding-exercise question set and record every grade",
		Long: `gradewalker drives a browser through a web coding-exercise grader.

For each question in a set it opens the question, captures the question text
and the submitted code, triggers the platform's grading, asks a language-model
classifier whether the code actually answers the question, and records one
result row per question in an xlsx or csv report.

Configuration is loaded from .gradewalker/config.yaml if present, then from
GRADEWALKER_* environment variables, then from command-line flags.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewFanoutCommand())
	cmd.AddCommand(NewLoginCommand())
	cmd.AddCommand(NewMergeCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
