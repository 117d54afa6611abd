package report

import (
	"fmt"
	"sort"

	"github.com/harrison/gradewalker/internal/models"
)

// Merge reads every report in paths, orders the rows by ordinal and writes
// them through sink as one report. Rows with equal ordinals keep input order.
func Merge(sink Sink, paths []string, hint string) (string, []models.QuestionResult, error) {
	if len(paths) == 0 {
		return "", nil, fmt.Errorf("no reports to merge")
	}

	var merged []models.QuestionResult
	for _, path := range paths {
		results, err := ReadFile(path)
		if err != nil {
			return "", nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		merged = append(merged, results...)
	}

	SortByOrdinal(merged)

	out, err := sink.Write(merged, hint)
	if err != nil {
		return "", nil, err
	}
	return out, merged, nil
}

// SortByOrdinal stable-sorts results by question ordinal.
func SortByOrdinal(results []models.QuestionResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Index < results[j].Index
	})
}
