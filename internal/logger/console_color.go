package logger

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/harrison/gradewalker/internal/models"
)

// colorScheme defines consistent colors for summary metrics.
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
	value   *color.Color
}

func newColorScheme() *colorScheme {
	return &colorScheme{
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
		value:   color.New(color.FgWhite),
	}
}

// formatColorizedMetric formats "label: value" with a cyan label.
func formatColorizedMetric(label string, value interface{}, scheme *colorScheme) string {
	return fmt.Sprintf("%s: %s", scheme.label.Sprint(label), scheme.value.Sprintf("%v", value))
}

func levelColor(level string) *color.Color {
	switch strings.ToUpper(level) {
	case "TRACE":
		return color.New(color.FgHiBlack)
	case "DEBUG":
		return color.New(color.FgCyan)
	case "INFO":
		return color.New(color.FgBlue)
	case "WARN":
		return color.New(color.FgYellow)
	case "ERROR":
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}

func outcomeColor(o models.Outcome) *color.Color {
	switch o {
	case models.OutcomePassed:
		return color.New(color.FgGreen)
	case models.OutcomeFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

func verdictColor(v models.Verdict) *color.Color {
	switch v {
	case models.VerdictMatch:
		return color.New(color.FgGreen)
	case models.VerdictNoMatch, models.VerdictError:
		return color.New(color.FgRed)
	case models.VerdictPartial, models.VerdictNeedsReview:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgHiBlack)
	}
}
