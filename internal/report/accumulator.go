package report

import (
	"fmt"
	"sync"

	"github.com/harrison/gradewalker/internal/models"
)

// Accumulator binds a ledger to a sink. Flush writes checkpoints while the run
// is in progress; Finalize writes the final report exactly once.
type Accumulator struct {
	ledger *Ledger
	sink   Sink
	hint   string

	mu        sync.Mutex
	finalized bool
	lastPath  string
	flushes   int
}

// NewAccumulator creates an Accumulator writing ledger to sink under hint.
func NewAccumulator(ledger *Ledger, sink Sink, hint string) *Accumulator {
	if ledger == nil {
		ledger = NewLedger()
	}
	return &Accumulator{ledger: ledger, sink: sink, hint: hint}
}

// Ledger returns the underlying ledger.
func (a *Accumulator) Ledger() *Ledger {
	return a.ledger
}

// Flush writes a checkpoint of the current records. It does nothing when the
// ledger is empty or the accumulator has been finalized.
func (a *Accumulator) Flush() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized || a.ledger.Len() == 0 {
		return a.lastPath, nil
	}
	return a.writeLocked()
}

// Finalize writes the final report. Only the first call writes; later calls
// return the path of that report.
func (a *Accumulator) Finalize() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return a.lastPath, nil
	}
	a.finalized = true
	return a.writeLocked()
}

// Finalized reports whether Finalize has run.
func (a *Accumulator) Finalized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finalized
}

// Flushes returns the number of successful writes.
func (a *Accumulator) Flushes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushes
}

// Path returns the most recently written report path.
func (a *Accumulator) Path() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastPath
}

// Summary counts outcomes over the current records.
func (a *Accumulator) Summary() models.Summary {
	return a.ledger.Summary()
}

func (a *Accumulator) writeLocked() (string, error) {
	if a.sink == nil {
		return "", fmt.Errorf("no report sink configured")
	}
	path, err := a.sink.Write(a.ledger.Snapshot(), a.hint)
	if err != nil {
		return a.lastPath, fmt.Errorf("failed to write report: %w", err)
	}
	a.lastPath = path
	a.flushes++
	return path, nil
}
