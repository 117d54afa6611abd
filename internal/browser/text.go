package browser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	blankRun      = regexp.MustCompile(`\n{3,}`)
	blockElements = "div, p, li, tr, pre, h1, h2, h3, h4, h5, h6, section, article, header, footer, blockquote"
)

// HTMLToText renders an HTML fragment as plain text. Block elements and <br>
// become line breaks so code rendered one line per element keeps its shape,
// and non-breaking spaces become spaces so indentation survives. Only blank
// lines are trimmed; the first line keeps its indentation.
func HTMLToText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}

	doc.Find("script, style, noscript").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	// Only innermost blocks end a line; wrappers would add blank lines.
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		if s.Find(blockElements).Length() == 0 {
			s.AppendHtml("\n")
		}
	})

	text := strings.ReplaceAll(doc.Text(), "\u00a0", " ")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")
	text = blankRun.ReplaceAllString(text, "\n\n")
	return strings.Trim(text, "\n")
}

// NormalizeLabel collapses whitespace for exact label comparison.
func NormalizeLabel(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}
