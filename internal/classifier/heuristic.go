package classifier

import (
	"fmt"
	"strings"

	"github.com/harrison/gradewalker/internal/config"
	"github.com/harrison/gradewalker/internal/models"
)

// KeywordRule assigns Verdict when any keyword occurs in the normalized text.
// When Negated is set, an occurrence preceded by a negation ("not", "isn't",
// "fails to") within a few words counts for Negated instead.
type KeywordRule struct {
	Verdict  models.Verdict
	Negated  models.Verdict
	Keywords []string
}

// KeywordTable is tried in order; the first matching rule wins.
type KeywordTable []KeywordRule

// DefaultKeywordTable lists negative phrases before the positive phrases they contain.
func DefaultKeywordTable() KeywordTable {
	return KeywordTable{
		{Verdict: models.VerdictNoMatch, Keywords: []string{
			"does not match", "doesn't match", "do not match", "not match", "no match",
			"mismatch", "does not implement", "doesn't implement", "unrelated",
		}},
		{Verdict: models.VerdictPartial, Keywords: []string{
			"partial", "partially", "incomplete", "some requirements",
		}},
		{Verdict: models.VerdictNeedsReview, Keywords: []string{
			"needs review", "manual review", "unclear", "cannot determine", "unable to determine",
		}},
		{Verdict: models.VerdictMatch, Negated: models.VerdictNoMatch, Keywords: []string{
			"matches", "match", "fully implements", "correctly implements",
		}},
	}
}

// KeywordTableFromConfig converts configured rules. Empty input yields the default table.
func KeywordTableFromConfig(rules []config.KeywordRule) (KeywordTable, error) {
	if len(rules) == 0 {
		return DefaultKeywordTable(), nil
	}
	table := make(KeywordTable, 0, len(rules))
	for _, r := range rules {
		verdict, ok := models.ParseVerdict(r.Verdict)
		if !ok {
			return nil, fmt.Errorf("unknown verdict %q in keyword table", r.Verdict)
		}
		rule := KeywordRule{Verdict: verdict, Keywords: r.Keywords}
		if r.Negated != "" {
			if rule.Negated, ok = models.ParseVerdict(r.Negated); !ok {
				return nil, fmt.Errorf("unknown negated verdict %q in keyword table", r.Negated)
			}
		}
		table = append(table, rule)
	}
	return table, nil
}

// HeuristicVerdict maps free text to a verdict. Text matching no rule needs review.
func HeuristicVerdict(text string, table KeywordTable) models.Verdict {
	normalized := normalizeText(text)
	if normalized == "" {
		return models.VerdictNeedsReview
	}
	for _, rule := range table {
		found, negatedOnly := rule.match(normalized)
		switch {
		case !found:
			continue
		case negatedOnly:
			return rule.Negated
		default:
			return rule.Verdict
		}
	}
	return models.VerdictNeedsReview
}

// match reports whether a keyword of r occurs in text and whether every
// occurrence was negated. Negation is only considered when r.Negated is set.
func (r KeywordRule) match(text string) (found, negatedOnly bool) {
	for _, kw := range r.Keywords {
		kw = normalizeText(kw)
		if kw == "" {
			continue
		}
		for from := 0; from < len(text); {
			at := strings.Index(text[from:], kw)
			if at < 0 {
				break
			}
			at += from
			if r.Negated == "" || !negatedAt(text, at) {
				return true, false
			}
			found = true
			from = at + len(kw)
		}
	}
	return found, found
}

// negationWindow is how many words before a keyword may negate it.
const negationWindow = 3

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "cannot": true, "nor": true,
	"fail": true, "fails": true, "failed": true, "neither": true,
}

// negatedAt reports whether a negation appears within negationWindow words
// before position at.
func negatedAt(text string, at int) bool {
	words := strings.Fields(text[:at])
	for i := len(words) - 1; i >= 0 && i >= len(words)-negationWindow; i-- {
		w := strings.Trim(words[i], `.,;:!?"()`)
		if negators[w] || strings.HasSuffix(w, "n't") {
			return true
		}
	}
	return false
}

var textNormalizer = strings.NewReplacer("’", "'", "‘", "'", "_", " ", "-", " ")

// normalizeText lowercases, unifies apostrophes and collapses whitespace.
func normalizeText(s string) string {
	s = textNormalizer.Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}
