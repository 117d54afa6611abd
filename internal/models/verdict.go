package models

import "strings"

// Outcome is the platform's own grading result for a question.
type Outcome string

// Outcome constants
const (
	OutcomePassed  Outcome = "PASSED"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeSkipped Outcome = "SKIPPED" // Grading signal ambiguous or undetectable
)

// ParseOutcome normalizes s into an Outcome. Unknown values map to OutcomeSkipped.
func ParseOutcome(s string) Outcome {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(OutcomePassed):
		return OutcomePassed
	case string(OutcomeFailed):
		return OutcomeFailed
	default:
		return OutcomeSkipped
	}
}

// Verdict is the secondary judgment on whether code matches its question.
type Verdict string

// Verdict constants
const (
	VerdictMatch       Verdict = "MATCH"
	VerdictNoMatch     Verdict = "NO_MATCH"
	VerdictPartial     Verdict = "PARTIAL"
	VerdictNeedsReview Verdict = "NEEDS_REVIEW"
	VerdictError       Verdict = "ERROR"
	VerdictSkipped     Verdict = "SKIPPED"
)

var verdictAliases = map[string]Verdict{
	"MATCH":         VerdictMatch,
	"MATCHES":       VerdictMatch,
	"NO_MATCH":      VerdictNoMatch,
	"NOMATCH":       VerdictNoMatch,
	"NOT_MATCH":     VerdictNoMatch,
	"MISMATCH":      VerdictNoMatch,
	"PARTIAL":       VerdictPartial,
	"PARTIAL_MATCH": VerdictPartial,
	"NEEDS_REVIEW":  VerdictNeedsReview,
	"REVIEW":        VerdictNeedsReview,
	"ERROR":         VerdictError,
	"SKIPPED":       VerdictSkipped,
}

// ParseVerdict normalizes case, spaces and dashes before lookup.
// "no match", "No-Match" and "NO_MATCH" all parse to VerdictNoMatch.
func ParseVerdict(s string) (Verdict, bool) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	v, ok := verdictAliases[key]
	return v, ok
}
