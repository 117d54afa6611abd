// Package report accumulates question results during a run and writes them
// to tabular report files.
package report

import (
	"errors"

	"github.com/harrison/gradewalker/internal/models"
)

// ErrEmptyLedger is returned by ReplaceLast on a ledger with no records.
var ErrEmptyLedger = errors.New("ledger is empty")

// Ledger is the insertion-ordered record of a run. It changes only by
// appending or by replacing its last element. A ledger has a single writer.
type Ledger struct {
	results []models.QuestionResult
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append adds r at the end.
func (l *Ledger) Append(r models.QuestionResult) {
	l.results = append(l.results, r)
}

// ReplaceLast overwrites the most recent record.
func (l *Ledger) ReplaceLast(r models.QuestionResult) error {
	if len(l.results) == 0 {
		return ErrEmptyLedger
	}
	l.results[len(l.results)-1] = r
	return nil
}

// Record replaces the last record when it belongs to the same ordinal and
// appends otherwise, so an ordinal is never recorded twice in a row.
func (l *Ledger) Record(r models.QuestionResult) {
	if last, ok := l.Last(); ok && last.Index == r.Index {
		_ = l.ReplaceLast(r)
		return
	}
	l.Append(r)
}

// Discard removes the last record if it belongs to index. It reports whether
// a record was removed.
func (l *Ledger) Discard(index int) bool {
	last, ok := l.Last()
	if !ok || last.Index != index {
		return false
	}
	l.results = l.results[:len(l.results)-1]
	return true
}

// Last returns the most recent record.
func (l *Ledger) Last() (models.QuestionResult, bool) {
	if len(l.results) == 0 {
		return models.QuestionResult{}, false
	}
	return l.results[len(l.results)-1], true
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	return len(l.results)
}

// Snapshot returns a deep copy that later ledger changes cannot affect.
func (l *Ledger) Snapshot() []models.QuestionResult {
	out := make([]models.QuestionResult, len(l.results))
	for i, r := range l.results {
		r.Units = append([]models.SourceUnit(nil), r.Units...)
		r.SuggestedRequirements = append([]string(nil), r.SuggestedRequirements...)
		out[i] = r
	}
	return out
}

// Summary counts outcomes over the current records.
func (l *Ledger) Summary() models.Summary {
	return models.Summarize(l.results)
}
