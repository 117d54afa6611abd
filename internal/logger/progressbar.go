package logger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/harrison/gradewalker/internal/models"
)

// ProgressBar renders question progress with per-outcome tallies.
type ProgressBar struct {
	current     int
	total       int
	width       int
	enableColor bool
	prefix      string
	tallies     map[models.Outcome]int
	mu          sync.RWMutex
}

// NewProgressBar creates a new progress bar
func NewProgressBar(total, width int, enableColor bool) *ProgressBar {
	if width < 1 {
		width = 10
	}
	return &ProgressBar{
		total:       total,
		width:       width,
		enableColor: enableColor,
		tallies:     make(map[models.Outcome]int),
	}
}

// SetTotal changes the expected number of questions.
func (pb *ProgressBar) SetTotal(total int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.total = total
}

// Update sets the current progress value
func (pb *ProgressBar) Update(current int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = current
}

// Record counts one finished question with its outcome.
func (pb *ProgressBar) Record(outcome models.Outcome) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current++
	pb.tallies[outcome]++
}

// Current returns the current progress value
func (pb *ProgressBar) Current() int {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.current
}

// Total returns the total progress value
func (pb *ProgressBar) Total() int {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.total
}

// Percentage returns the progress percentage (0-100)
func (pb *ProgressBar) Percentage() int {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.percentage()
}

func (pb *ProgressBar) percentage() int {
	if pb.total <= 0 {
		return 0
	}
	perc := (pb.current * 100) / pb.total
	if perc > 100 {
		perc = 100
	}
	if perc < 0 {
		perc = 0
	}
	return perc
}

// SetPrefix sets a custom prefix for the progress bar
func (pb *ProgressBar) SetPrefix(prefix string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.prefix = prefix
}

// Render generates the bar, e.g. "[=====     ] 5/10 (50%) P:3 F:1 S:1".
// The tally suffix is omitted until something has been recorded.
func (pb *ProgressBar) Render() string {
	pb.mu.RLock()
	defer pb.mu.RUnlock()

	perc := pb.percentage()
	filled := (perc * pb.width) / 100

	var sb strings.Builder
	sb.WriteString(pb.prefix)
	sb.WriteString("[")
	sb.WriteString(strings.Repeat("=", filled))
	sb.WriteString(strings.Repeat(" ", pb.width-filled))
	sb.WriteString("]")
	fmt.Fprintf(&sb, " %d/%d (%d%%)", pb.current, pb.total, perc)

	if len(pb.tallies) > 0 {
		fmt.Fprintf(&sb, " P:%d F:%d S:%d",
			pb.tallies[models.OutcomePassed],
			pb.tallies[models.OutcomeFailed],
			pb.tallies[models.OutcomeSkipped])
	}

	result := sb.String()
	if pb.enableColor {
		if perc < 100 {
			result = color.New(color.FgCyan).Sprint(result)
		} else {
			result = color.New(color.FgGreen).Sprint(result)
		}
	}
	return result
}
