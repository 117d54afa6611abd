package traversal

import (
	"context"
	"fmt"
	"strconv"

	"github.com/harrison/gradewalker/internal/browser"
	"github.com/harrison/gradewalker/internal/strategy"
)

// Discover counts the questions in the set from the navigation markers. When
// no marker is recognised it returns the configured default and false.
func (e *Engine) Discover(ctx context.Context) (int, bool) {
	highest := 0
	for _, sel := range e.opts.Layout.QuestionMarkers {
		if ctx.Err() != nil {
			break
		}
		for _, el := range e.driver.FindAll(ctx, sel) {
			text, ok := e.driver.ReadText(ctx, el)
			if !ok {
				continue
			}
			if n, ok := e.markerOrdinal(text); ok && n > highest {
				highest = n
			}
		}
	}
	if highest == 0 {
		return e.opts.DefaultQuestionCount, false
	}
	return highest, true
}

// markerOrdinal parses the ordinal of a marker whose whole text matches the
// marker format.
func (e *Engine) markerOrdinal(text string) (int, bool) {
	m := e.marker.FindStringSubmatch(browser.NormalizeLabel(text))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// NavigateTo opens question i by clicking its marker. It reports false when
// no visible marker carries exactly the label of i.
func (e *Engine) NavigateTo(ctx context.Context, i int) bool {
	label := e.Label(i)
	el, name, ok := strategy.First(ctx, e.markerChain(label, true))
	if !ok {
		e.log.LogDebug(fmt.Sprintf("Marker %s not found", label))
		return false
	}
	if err := e.driver.Click(ctx, el); err != nil {
		e.log.LogDebug(fmt.Sprintf("Marker %s (%s) click failed: %v", label, name, err))
		return false
	}
	e.log.LogTrace(fmt.Sprintf("Opened %s via %s", label, name))
	return e.driver.Wait(ctx, e.opts.SettleDelay) == nil
}

// ExistsNext reports whether the marker of question i+1 is on the page.
// "Q2" never matches "Q20".
func (e *Engine) ExistsNext(ctx context.Context, i int) bool {
	return e.markerExists(ctx, i+1)
}

func (e *Engine) markerExists(ctx context.Context, i int) bool {
	_, _, ok := strategy.First(ctx, e.markerChain(e.Label(i), false))
	return ok
}

// markerChain locates the marker whose whole text equals label: first by the
// driver's exact-text lookup, then by enumerating the marker selectors.
func (e *Engine) markerChain(label string, visible bool) []strategy.Strategy[browser.Element] {
	accept := func(ctx context.Context, el browser.Element) bool {
		text, ok := e.driver.ReadText(ctx, el)
		if !ok || browser.NormalizeLabel(text) != label {
			return false
		}
		return !visible || e.driver.IsVisible(ctx, el, e.opts.VisibilityTimeout)
	}

	chain := []strategy.Strategy[browser.Element]{{
		Name: "exact text",
		Probe: func(ctx context.Context) (browser.Element, bool) {
			el, ok := e.driver.FindByExactText(ctx, label)
			if !ok || !accept(ctx, el) {
				return browser.Element{}, false
			}
			return el, true
		},
	}}

	return append(chain, strategy.Map(e.opts.Layout.QuestionMarkers, selectorName, func(ctx context.Context, sel string) (browser.Element, bool) {
		for _, el := range e.driver.FindAll(ctx, sel) {
			if accept(ctx, el) {
				return el, true
			}
		}
		return browser.Element{}, false
	})...)
}

// visibleChain yields the first visible element of each selector in order.
func (e *Engine) visibleChain(selectors []string) []strategy.Strategy[browser.Element] {
	return strategy.Map(selectors, selectorName, func(ctx context.Context, sel string) (browser.Element, bool) {
		for _, el := range e.driver.FindAll(ctx, sel) {
			if e.driver.IsVisible(ctx, el, e.opts.VisibilityTimeout) {
				return el, true
			}
		}
		return browser.Element{}, false
	})
}

func selectorName(sel string) string {
	return sel
}
