package traversal

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInterrupted is returned by Run when the context is cancelled. The
	// ledger has been flushed and the in-flight question was dropped.
	ErrInterrupted = errors.New("run interrupted")

	// ErrAborted is returned by Run when the engine cannot reach the next question.
	ErrAborted = errors.New("run aborted")

	// ErrControlNotFound marks a required page control that no locator found.
	ErrControlNotFound = errors.New("control not found")
)

// Phase is the part of a question attempt where an error occurred.
type Phase int

const (
	// PhaseNavigate covers re-navigation before a retry.
	PhaseNavigate Phase = iota
	// PhaseExtract covers question text and code extraction.
	PhaseExtract
	// PhaseGrade covers the run control and the result poll.
	PhaseGrade
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	switch p {
	case PhaseNavigate:
		return "navigate"
	case PhaseExtract:
		return "extract"
	case PhaseGrade:
		return "grade"
	default:
		return "unknown"
	}
}

// QuestionError is a failed question attempt. Attempts that end in a
// QuestionError are retried; a FAILED grade is not an error.
type QuestionError struct {
	Index int   // Question ordinal
	Phase Phase // Where the attempt failed
	Err   error // Underlying error
}

// Error implements the error interface for QuestionError.
func (e *QuestionError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("question %d: %s failed", e.Index, e.Phase))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error wrapping support.
func (e *QuestionError) Unwrap() error {
	return e.Err
}

// AsQuestionError returns the QuestionError err is or wraps.
func AsQuestionError(err error) (*QuestionError, bool) {
	if err == nil {
		return nil, false
	}
	var qe *QuestionError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

// IsInterrupted checks if the error is an interruption or a context cancellation.
func IsInterrupted(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled)
}
