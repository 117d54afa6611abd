package traversal

import (
	"context"
	"fmt"
	"strings"

	"github.com/harrison/gradewalker/internal/browser"
	"github.com/harrison/gradewalker/internal/models"
	"github.com/harrison/gradewalker/internal/strategy"
)

// Submission is what was read off a question page.
type Submission struct {
	QuestionText string
	Units        []models.SourceUnit

	// NoFiles is set when the page shows a file tab strip without any tabs.
	NoFiles bool
}

// Extract reads the question text and the submitted code of the current
// question. Content that cannot be found is recorded as "not captured"; only
// a failed file tab click is an error.
func (e *Engine) Extract(ctx context.Context, i int) (Submission, error) {
	sub := Submission{QuestionText: models.NotCaptured}
	if text, name, ok := strategy.First(ctx, e.textChain(e.opts.Layout.QuestionText)); ok {
		sub.QuestionText = text
		e.log.LogTrace(fmt.Sprintf("Question %d: text via %s", i, name))
	}

	if !e.hasFileTabs(ctx) {
		sub.Units = []models.SourceUnit{{Label: models.DefaultUnitLabel, Text: e.readCode(ctx)}}
		return sub, ctx.Err()
	}

	tabs, _, _ := strategy.First(ctx, strategy.Map(e.opts.Layout.FileTabs, selectorName, func(ctx context.Context, sel string) ([]browser.Element, bool) {
		found := e.driver.FindAll(ctx, sel)
		return found, len(found) > 0
	}))
	if len(tabs) == 0 {
		sub.NoFiles = true
		sub.Units = []models.SourceUnit{{Label: models.DefaultUnitLabel, Text: models.NotCaptured}}
		return sub, ctx.Err()
	}

	for n, tab := range tabs {
		label := fmt.Sprintf("file%d", n+1)
		if text, ok := e.driver.ReadText(ctx, tab); ok && browser.NormalizeLabel(text) != "" {
			label = browser.NormalizeLabel(text)
		}
		if err := e.driver.Click(ctx, tab); err != nil {
			return sub, fmt.Errorf("file tab %q: %w", label, err)
		}
		if err := e.driver.Wait(ctx, e.opts.SettleDelay); err != nil {
			return sub, err
		}
		sub.Units = append(sub.Units, models.SourceUnit{Label: label, Text: e.readCode(ctx)})
	}
	e.log.LogDebug(fmt.Sprintf("Question %d: extracted %d files", i, len(sub.Units)))
	return sub, ctx.Err()
}

func (e *Engine) hasFileTabs(ctx context.Context) bool {
	for _, sel := range e.opts.Layout.FileTabContainer {
		if len(e.driver.FindAll(ctx, sel)) > 0 {
			return true
		}
	}
	return false
}

// readCode returns the code in the first visible editor, preferring the
// form value over rendered text.
func (e *Engine) readCode(ctx context.Context) string {
	chain := strategy.Map(e.opts.Layout.Editor, selectorName, func(ctx context.Context, sel string) (string, bool) {
		for _, el := range e.driver.FindAll(ctx, sel) {
			if !e.driver.IsVisible(ctx, el, e.opts.VisibilityTimeout) {
				continue
			}
			if v, ok := e.driver.ReadValue(ctx, el); ok && strings.TrimSpace(v) != "" {
				return strings.TrimRight(v, " \t\n"), true
			}
			if v, ok := e.driver.ReadText(ctx, el); ok && strings.TrimSpace(v) != "" {
				return strings.TrimRight(v, " \t\n"), true
			}
		}
		return "", false
	})
	code, _, ok := strategy.First(ctx, chain)
	if !ok {
		return models.NotCaptured
	}
	return code
}

// textChain yields the first non-empty text of each selector in order.
func (e *Engine) textChain(selectors []string) []strategy.Strategy[string] {
	return strategy.Map(selectors, selectorName, func(ctx context.Context, sel string) (string, bool) {
		for _, el := range e.driver.FindAll(ctx, sel) {
			if text, ok := e.driver.ReadText(ctx, el); ok {
				if text = strings.TrimSpace(text); text != "" {
					return text, true
				}
			}
		}
		return "", false
	})
}
