package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/harrison/gradewalker/internal/models"
	"github.com/harrison/gradewalker/internal/traversal"
)

// Recorder archives results as a run produces them. It implements
// traversal.Observer.
type Recorder struct {
	store *Store
	runID string
	warn  func(string)

	mu   sync.Mutex
	errs int
}

// NewRecorder creates a Recorder for runID. warn receives write failures
// and may be nil.
func NewRecorder(store *Store, runID string, warn func(string)) *Recorder {
	if warn == nil {
		warn = func(string) {}
	}
	return &Recorder{store: store, runID: runID, warn: warn}
}

// ObserveQuestion stores a recorded result.
func (r *Recorder) ObserveQuestion(result models.QuestionResult) {
	if err := r.store.RecordResult(context.Background(), r.runID, result); err != nil {
		r.mu.Lock()
		r.errs++
		r.mu.Unlock()
		r.warn(fmt.Sprintf("History: failed to store question %d: %v", result.Index, err))
	}
}

func (r *Recorder) ObserveRetry(int, traversal.Phase) {}

func (r *Recorder) ObserveRun(traversal.State, models.Summary) {}

// Errors returns the number of failed writes.
func (r *Recorder) Errors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs
}
