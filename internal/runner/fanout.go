package runner

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/harrison/gradewalker/internal/models"
	"github.com/harrison/gradewalker/internal/report"
)

// Result is what one runner produced.
type Result struct {
	ID         int
	ReportPath string
	State      string
	Summary    models.Summary
	Err        error
}

// Work runs one runner to completion. id is 1-based.
type Work func(ctx context.Context, id int) (Result, error)

// Fanout runs n runners concurrently and waits for all of them. A failing
// runner does not stop the others; cancelling ctx stops all of them. The
// returned error joins every runner error.
func Fanout(ctx context.Context, n int, work Work) ([]Result, error) {
	if n < 1 {
		return nil, fmt.Errorf("runners must be >= 1, got %d", n)
	}

	g := new(errgroup.Group)
	g.SetLimit(n)

	results := make([]Result, n)
	for i := 0; i < n; i++ {
		id := i + 1
		g.Go(func() error {
			res, err := work(ctx, id)
			res.ID = id
			if err != nil {
				res.Err = fmt.Errorf("runner %d: %w", id, err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

// MergeResults merges the reports of every runner that produced one into a
// single report ordered by ordinal.
func MergeResults(sink report.Sink, results []Result, hint string) (string, []models.QuestionResult, error) {
	var paths []string
	for _, r := range results {
		if r.ReportPath != "" {
			paths = append(paths, r.ReportPath)
		}
	}
	if len(paths) == 0 {
		return "", nil, fmt.Errorf("no runner produced a report")
	}
	return report.Merge(sink, paths, hint)
}
