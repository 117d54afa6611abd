package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/gradewalker/internal/config"
	"github.com/harrison/gradewalker/internal/models"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantVerdict models.Verdict
		wantRemarks string
		wantReqs    []string
	}{
		{
			name:        "plain object",
			raw:         `{"verdict":"NO_MATCH","remarks":"Sorts instead of summing.","suggested_requirements":["sort a list"]}`,
			wantVerdict: models.VerdictNoMatch,
			wantRemarks: "Sorts instead of summing.",
			wantReqs:    []string{"sort a list"},
		},
		{
			name:        "fenced json block with prose",
			raw:         "Here is my review.\n\n```json\n{\"verdict\": \"partial\", \"remarks\": \"Missing edge cases.\", \"suggested_requirements\": [\"adds positives\", \"  \"]}\n```\n",
			wantVerdict: models.VerdictPartial,
			wantRemarks: "Missing edge cases.",
			wantReqs:    []string{"adds positives"},
		},
		{
			name:        "object embedded in text with braces inside strings",
			raw:         `Result: {"verdict": "MATCH", "remarks": "Uses {braces} in a format string."} Thanks!`,
			wantVerdict: models.VerdictMatch,
			wantRemarks: "Uses {braces} in a format string.",
		},
		{
			name:        "match drops suggested requirements",
			raw:         `{"verdict":"MATCH","remarks":"ok","suggested_requirements":["extra"]}`,
			wantVerdict: models.VerdictMatch,
			wantRemarks: "ok",
		},
		{
			name:        "trailing comma repaired",
			raw:         `{"verdict": "NEEDS_REVIEW", "remarks": "Ambiguous question.",}`,
			wantVerdict: models.VerdictNeedsReview,
			wantRemarks: "Ambiguous question.",
		},
		{
			name:        "spaced verdict spelling",
			raw:         `{"verdict": "No Match", "remarks": "Different task."}`,
			wantVerdict: models.VerdictNoMatch,
			wantRemarks: "Different task.",
		},
		{
			name:        "no object falls back to heuristic",
			raw:         "The code does not match the question at all.",
			wantVerdict: models.VerdictNoMatch,
			wantRemarks: "The code does not match the question at all.",
		},
		{
			name:        "unknown verdict falls back to heuristic",
			raw:         `{"verdict": "MAYBE", "remarks": "partially done"}`,
			wantVerdict: models.VerdictPartial,
			wantRemarks: `{"verdict": "MAYBE", "remarks": "partially done"}`,
		},
		{
			name:        "missing verdict falls back to heuristic",
			raw:         `{"remarks": "It matches."}`,
			wantVerdict: models.VerdictMatch,
			wantRemarks: `{"remarks": "It matches."}`,
		},
		{
			name:        "empty remarks use raw text",
			raw:         `{"verdict":"PARTIAL"}`,
			wantVerdict: models.VerdictPartial,
			wantRemarks: `{"verdict":"PARTIAL"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ParseResponse(tt.raw, DefaultKeywordTable())
			assert.Equal(t, tt.wantVerdict, resp.Verdict)
			assert.Equal(t, tt.wantRemarks, resp.Remarks)
			assert.Equal(t, tt.wantReqs, resp.SuggestedRequirements)
		})
	}
}

func TestFirstObject(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{`prefix {"a": {"b": 1}} suffix {"c": 2}`, `{"a": {"b": 1}}`, true},
		{`{"s": "a \"quoted\" } brace"}`, `{"s": "a \"quoted\" } brace"}`, true},
		{`{"open": true`, `{"open": true`, true},
		{`no braces here`, "", false},
	}
	for _, tt := range tests {
		got, ok := FirstObject(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFencedBlocksIgnoresOtherLanguages(t *testing.T) {
	raw := "```python\nprint('{}')\n```\n\n```json\n{\"verdict\":\"MATCH\"}\n```"
	assert.Equal(t, []string{`{"verdict":"MATCH"}`}, fencedBlocks(raw))
}

func TestHeuristicVerdict(t *testing.T) {
	tests := []struct {
		text string
		want models.Verdict
	}{
		{"The submission matches the question.", models.VerdictMatch},
		{"This doesn’t match what was asked.", models.VerdictNoMatch},
		{"NO_MATCH", models.VerdictNoMatch},
		{"There is a mismatch between code and prompt.", models.VerdictNoMatch},
		{"The code partially implements the task.", models.VerdictPartial},
		{"Unclear what the question wants.", models.VerdictNeedsReview},
		{"The code is not a match for the question.", models.VerdictNoMatch},
		{"The submission does not fully match the requirements.", models.VerdictNoMatch},
		{"This code fails to match what was asked.", models.VerdictNoMatch},
		{"It isn't a match.", models.VerdictNoMatch},
		{"Not a match at first glance, but the code matches the question.", models.VerdictMatch},
		{"It correctly implements the task.", models.VerdictMatch},
		{"Lorem ipsum.", models.VerdictNeedsReview},
		{"   ", models.VerdictNeedsReview},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HeuristicVerdict(tt.text, DefaultKeywordTable()), tt.text)
	}
}

func TestHeuristicVerdictCustomTable(t *testing.T) {
	table := KeywordTable{
		{Verdict: models.VerdictMatch, Keywords: []string{"LGTM"}},
	}
	assert.Equal(t, models.VerdictMatch, HeuristicVerdict("lgtm, ship it", table))
	assert.Equal(t, models.VerdictNeedsReview, HeuristicVerdict("does not match", table))
}

func TestKeywordTableFromConfig_Negated(t *testing.T) {
	table, err := KeywordTableFromConfig([]config.KeywordRule{
		{Verdict: "MATCH", Negated: "NEEDS_REVIEW", Keywords: []string{"lgtm"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.VerdictMatch, HeuristicVerdict("LGTM", table))
	assert.Equal(t, models.VerdictNeedsReview, HeuristicVerdict("not lgtm yet", table))

	_, err = KeywordTableFromConfig([]config.KeywordRule{
		{Verdict: "MATCH", Negated: "MAYBE", Keywords: []string{"lgtm"}},
	})
	assert.ErrorContains(t, err, "unknown negated verdict")
}

func TestBuildPrompt(t *testing.T) {
	req := Request{
		QuestionText: "  Build a page.  ",
		Units: []models.SourceUnit{
			{Label: "index.html", Text: "<h1>Hi</h1>"},
			{Label: "style.css", Text: "h1 { color: red; }"},
		},
	}
	prompt := BuildPrompt(req, NewTruncator(0))

	assert.Contains(t, prompt, "QUESTION:\nBuild a page.\n")
	assert.Contains(t, prompt, "SUBMITTED CODE (2 files):")
	assert.Contains(t, prompt, "--- index.html ---\n<h1>Hi</h1>")
	assert.Contains(t, prompt, "--- style.css ---\nh1 { color: red; }")
}

func TestTruncator(t *testing.T) {
	long := strings.Repeat("token ", 5000)

	got := NewTruncator(50).Truncate(long)
	assert.Less(t, len(got), len(long))
	assert.True(t, strings.HasSuffix(got, "... [truncated]"))

	assert.Equal(t, "short", NewTruncator(50).Truncate("short"))
	assert.Equal(t, long, NewTruncator(0).Truncate(long))
}

func TestCacheKeyDistinguishesUnits(t *testing.T) {
	a := Request{QuestionText: "q", Units: []models.SourceUnit{{Label: "ab", Text: "c"}}}
	b := Request{QuestionText: "q", Units: []models.SourceUnit{{Label: "a", Text: "bc"}}}
	assert.NotEqual(t, CacheKey(a), CacheKey(b))
	assert.Equal(t, CacheKey(a), CacheKey(a))
}
