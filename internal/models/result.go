package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// NotCaptured is the sentinel stored when question text or code could not be extracted.
const NotCaptured = "not captured"

// DefaultUnitLabel labels the only source unit of a single-file question.
const DefaultUnitLabel = "main"

// SourceUnit is one named piece of submitted source code.
type SourceUnit struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// IsSentinel reports whether the unit carries no real code.
func (u SourceUnit) IsSentinel() bool {
	text := strings.TrimSpace(u.Text)
	return text == "" || text == NotCaptured
}

// QuestionResult is one row per attempted question.
type QuestionResult struct {
	Index                 int          // Question ordinal, unique per run per runner
	QuestionText          string       // Extracted prompt, or NotCaptured
	Units                 []SourceUnit // One unit for single-file questions, two or more otherwise
	Outcome               Outcome      // Ground truth read back from the platform
	ErrorDetail           string       // Set only when an error interrupted processing
	ClassifierVerdict     Verdict      // Empty until classification runs
	ClassifierRemarks     string       // Free text from the classifier
	SuggestedRequirements []string     // Only when the verdict is not MATCH
	CreatedAt             time.Time    // Extraction time
	Attempts              int          // Attempts used to reach a terminal state
	Runner                int          // Runner that produced the row (0 when single runner)
}

// IsMultiFile reports whether the result holds more than one source unit.
func (r QuestionResult) IsMultiFile() bool {
	return len(r.Units) > 1
}

// HasCode reports whether at least one unit carries real code.
func (r QuestionResult) HasCode() bool {
	for _, u := range r.Units {
		if !u.IsSentinel() {
			return true
		}
	}
	return false
}

// Code renders the combined code field used by reports.
//
// A single unit renders as its text. Multiple units render as a "[N files]" header
// followed by one "=== label ===" section per unit.
func (r QuestionResult) Code() string {
	switch len(r.Units) {
	case 0:
		return NotCaptured
	case 1:
		return r.Units[0].Text
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d files]\n", len(r.Units))
	for i, u := range r.Units {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "=== %s ===\n", u.Label)
		sb.WriteString(u.Text)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ParseCode is the inverse of Code. Text without a "[N files]" header yields a
// single unit labelled DefaultUnitLabel.
func ParseCode(code string) []SourceUnit {
	header, rest, found := strings.Cut(code, "\n")
	var n int
	if !found || !strings.HasPrefix(header, "[") {
		return []SourceUnit{{Label: DefaultUnitLabel, Text: code}}
	}
	if _, err := fmt.Sscanf(header, "[%d files]", &n); err != nil || n < 2 {
		return []SourceUnit{{Label: DefaultUnitLabel, Text: code}}
	}

	var units []SourceUnit
	var current *SourceUnit
	var body []string
	closeUnit := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimRight(strings.Join(body, "\n"), "\n")
		units = append(units, *current)
		body = nil
	}
	for _, line := range strings.Split(rest, "\n") {
		if strings.HasPrefix(line, "=== ") && strings.HasSuffix(line, " ===") && len(line) >= 8 {
			closeUnit()
			current = &SourceUnit{Label: strings.TrimSuffix(strings.TrimPrefix(line, "=== "), " ===")}
			continue
		}
		body = append(body, line)
	}
	closeUnit()

	if len(units) == 0 {
		return []SourceUnit{{Label: DefaultUnitLabel, Text: code}}
	}
	return units
}

// Summary aggregates outcome counts for a run.
type Summary struct {
	Total    int
	Passed   int
	Failed   int
	Skipped  int
	PassRate float64 // Percentage, rounded to two decimals
}

// Summarize computes a Summary over results.
func Summarize(results []QuestionResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Outcome {
		case OutcomePassed:
			s.Passed++
		case OutcomeFailed:
			s.Failed++
		default:
			s.Skipped++
		}
	}
	s.PassRate = passRate(s.Passed, s.Total)
	return s
}

// SummaryFromCounts builds a Summary from stored outcome counts.
func SummaryFromCounts(passed, failed, skipped int) Summary {
	total := passed + failed + skipped
	return Summary{
		Total:    total,
		Passed:   passed,
		Failed:   failed,
		Skipped:  skipped,
		PassRate: passRate(passed, total),
	}
}

func passRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(passed)/float64(total)*10000) / 100
}

// PassRateString formats the pass rate with two decimals.
func (s Summary) PassRateString() string {
	return fmt.Sprintf("%.2f", s.PassRate)
}
