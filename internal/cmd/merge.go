package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/gradewalker/internal/fileutil"
	"github.com/harrison/gradewalker/internal/models"
	"github.com/harrison/gradewalker/internal/report"
)

// NewMergeCommand creates the merge command
func NewMergeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge <report-file-or-directory>...",
		Short: "Merge runner reports into one report",
		Long: `Read xlsx or csv reports (for example one per runner process) and write a
single report with every row ordered by question number. A directory argument
contributes every report file in it; --pattern narrows that to file names
matching a regular expression.

Examples:
  gradewalker merge reports/grading-report-r1.xlsx reports/grading-report-r2.xlsx
  gradewalker merge reports/ --pattern '-r[0-9]+-20261018'
  gradewalker merge reports/*.csv --format xlsx --name combined`,
		Args: cobra.MinimumNArgs(1),
		RunE: runMerge,
	}

	cmd.Flags().String("format", "", "Output format: xlsx or csv (default: format of the first input)")
	cmd.Flags().String("out-dir", "", "Output directory (default: directory of the first input)")
	cmd.Flags().String("name", "merged-report", "Output file name without extension")
	cmd.Flags().String("pattern", "", "Regex for report names found in directories")
	cmd.Flags().Bool("recursive", false, "Search directories recursively")

	return cmd
}

func runMerge(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	outDir, _ := cmd.Flags().GetString("out-dir")
	name, _ := cmd.Flags().GetString("name")
	pattern, _ := cmd.Flags().GetString("pattern")
	recursive, _ := cmd.Flags().GetBool("recursive")

	files, err := fileutil.Collect(args, fileutil.CollectOptions{Pattern: pattern, Recursive: recursive})
	if err != nil {
		return err
	}
	files = withoutOutput(files, name)
	if len(files) == 0 {
		return fmt.Errorf("no reports to merge besides %s", name)
	}

	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(files[0])), ".")
	}
	if outDir == "" {
		outDir = filepath.Dir(files[0])
	}

	sink, err := report.NewSink(format, report.Options{Dir: outDir})
	if err != nil {
		return err
	}

	path, merged, err := report.Merge(sink, files, name)
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	summary := models.Summarize(merged)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Merged %d report(s) into %s\n", len(files), path)
	fmt.Fprintf(out, "  %d question(s): %d passed, %d failed, %d skipped (%s%% pass rate)\n",
		summary.Total, summary.Passed, summary.Failed, summary.Skipped, summary.PassRateString())
	return nil
}

// withoutOutput drops earlier merge outputs (name, name-1, name-2, ...) so
// merging a directory twice does not count rows twice.
func withoutOutput(files []string, name string) []string {
	var out []string
	for _, f := range files {
		base := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		if base == name {
			continue
		}
		if suffix, ok := strings.CutPrefix(base, name+"-"); ok && isDigits(suffix) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
