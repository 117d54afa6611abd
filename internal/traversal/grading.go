package traversal

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/harrison/gradewalker/internal/models"
	"github.com/harrison/gradewalker/internal/strategy"
)

// GradeStatus is the reading of one result-indicator poll.
type GradeStatus int

const (
	// GradeUnknown is text that carries no recognised keyword.
	GradeUnknown GradeStatus = iota
	GradeProcessing
	GradePassed
	GradeFailed
)

// String returns the string representation of GradeStatus.
func (s GradeStatus) String() string {
	switch s {
	case GradeProcessing:
		return "processing"
	case GradePassed:
		return "passed"
	case GradeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome maps a terminal status to a question outcome.
func (s GradeStatus) Outcome() models.Outcome {
	switch s {
	case GradePassed:
		return models.OutcomePassed
	case GradeFailed:
		return models.OutcomeFailed
	default:
		return models.OutcomeSkipped
	}
}

// GradeKeywords holds the keyword families read from the result indicator.
type GradeKeywords struct {
	Passed     []string
	Failed     []string
	Processing []string
}

// passCount matches test tallies such as "3/5 passed" or "passed 3 of 5".
var passCount = regexp.MustCompile(`(\d+)\s*(?:/|out of|of)\s*(\d+)`)

// ClassifyGradeText maps indicator text to a status. Matching is
// case-insensitive. Failed keywords are checked before passed keywords so
// "incorrect" never reads as "correct", and both before processing keywords.
// A pass tally ("N/M ... passed") is passed only when every test passed.
func ClassifyGradeText(text string, kw GradeKeywords) GradeStatus {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if normalized == "" {
		return GradeUnknown
	}
	if containsAny(normalized, kw.Failed) {
		return GradeFailed
	}
	if status, ok := tallyStatus(normalized); ok {
		return status
	}
	switch {
	case containsAny(normalized, kw.Passed):
		return GradePassed
	case containsAny(normalized, kw.Processing):
		return GradeProcessing
	default:
		return GradeUnknown
	}
}

// tallyStatus reads a "N/M passed" count. ok is false when the text carries
// no pass tally.
func tallyStatus(text string) (GradeStatus, bool) {
	if !strings.Contains(text, "pass") {
		return GradeUnknown, false
	}
	m := passCount.FindStringSubmatch(text)
	if m == nil {
		return GradeUnknown, false
	}
	passed, err1 := strconv.Atoi(m[1])
	total, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || total == 0 {
		return GradeUnknown, false
	}
	if passed == total {
		return GradePassed, true
	}
	return GradeFailed, true
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Grade activates the run control and reads back the platform's verdict.
// A missing run control is an error; an unreadable verdict is SKIPPED.
func (e *Engine) Grade(ctx context.Context, index int) (models.Outcome, error) {
	run, name, ok := strategy.First(ctx, e.visibleChain(e.opts.Layout.RunButton))
	if !ok {
		if ctx.Err() != nil {
			return models.OutcomeSkipped, ctx.Err()
		}
		return models.OutcomeSkipped, fmt.Errorf("%w: run button", ErrControlNotFound)
	}
	if err := e.driver.Click(ctx, run); err != nil {
		return models.OutcomeSkipped, fmt.Errorf("run button %s: %w", name, err)
	}
	e.log.LogDebug(fmt.Sprintf("Question %d: grading triggered via %s", index, name))

	indicatorSeen := false
	for poll := 1; poll <= e.opts.Grading.PollAttempts; poll++ {
		if err := e.driver.Wait(ctx, e.opts.Grading.PollInterval); err != nil {
			return models.OutcomeSkipped, err
		}

		text, found := e.readIndicator(ctx)
		if !found {
			continue
		}
		indicatorSeen = true

		status := ClassifyGradeText(text, e.opts.Grading.Keywords)
		switch status {
		case GradeProcessing:
			e.log.LogTrace(fmt.Sprintf("Question %d: still processing (poll %d/%d)", index, poll, e.opts.Grading.PollAttempts))
			continue
		case GradeUnknown:
			e.log.LogDebug(fmt.Sprintf("Question %d: unrecognised result text %q", index, truncateText(text, 80)))
		}
		return status.Outcome(), nil
	}

	if ctx.Err() != nil {
		return models.OutcomeSkipped, ctx.Err()
	}
	if indicatorSeen {
		e.log.LogDebug(fmt.Sprintf("Question %d: grading still processing after %d polls", index, e.opts.Grading.PollAttempts))
		return models.OutcomeSkipped, nil
	}
	return e.scanPageContent(ctx, index), nil
}

// readIndicator returns the first non-empty result indicator text.
func (e *Engine) readIndicator(ctx context.Context) (string, bool) {
	chain := strategy.Map(e.opts.Layout.ResultIndicator, selectorName, func(ctx context.Context, sel string) (string, bool) {
		for _, el := range e.driver.FindAll(ctx, sel) {
			if text, ok := e.driver.ReadText(ctx, el); ok && strings.TrimSpace(text) != "" {
				return text, true
			}
		}
		return "", false
	})
	text, _, ok := strategy.First(ctx, chain)
	return text, ok
}

// scanPageContent looks for a terminal keyword anywhere on the page.
func (e *Engine) scanPageContent(ctx context.Context, index int) models.Outcome {
	chain := strategy.Map(e.opts.Layout.PageContent, selectorName, func(ctx context.Context, sel string) (GradeStatus, bool) {
		for _, el := range e.driver.FindAll(ctx, sel) {
			text, ok := e.driver.ReadText(ctx, el)
			if !ok {
				continue
			}
			if status := ClassifyGradeText(text, e.opts.Grading.Keywords); status == GradePassed || status == GradeFailed {
				return status, true
			}
		}
		return GradeUnknown, false
	})

	status, name, ok := strategy.First(ctx, chain)
	if !ok {
		e.log.LogDebug(fmt.Sprintf("Question %d: no result indicator or page verdict found", index))
		return models.OutcomeSkipped
	}
	e.log.LogDebug(fmt.Sprintf("Question %d: verdict read from page content (%s)", index, name))
	return status.Outcome()
}

func truncateText(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

