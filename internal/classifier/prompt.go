package classifier

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// ResponseSchema is the JSON schema the model reply must satisfy.
const ResponseSchema = `{"type":"object","properties":{"verdict":{"type":"string","enum":["MATCH","NO_MATCH","PARTIAL","NEEDS_REVIEW"]},"remarks":{"type":"string"},"suggested_requirements":{"type":"array","items":{"type":"string"}}},"required":["verdict","remarks"]}`

const promptTemplate = `You are reviewing a student's code submission for a programming exercise.
Decide whether the submitted code implements what the question asks.

QUESTION:
%s

SUBMITTED CODE (%d %s):
%s

Answer with one JSON object and nothing else:
{"verdict": "MATCH" | "NO_MATCH" | "PARTIAL" | "NEEDS_REVIEW", "remarks": "<short explanation>", "suggested_requirements": ["<what the code actually implements>", ...]}

Use MATCH only when the code fully implements the question. When the verdict is not MATCH,
list in suggested_requirements the requirements the code appears to satisfy instead.
Leave suggested_requirements empty for MATCH.`

// BuildPrompt renders req, truncating each unit with t.
func BuildPrompt(req Request, t *Truncator) string {
	var code strings.Builder
	for i, u := range req.Units {
		if i > 0 {
			code.WriteString("\n")
		}
		label := u.Label
		if label == "" {
			label = fmt.Sprintf("file %d", i+1)
		}
		fmt.Fprintf(&code, "--- %s ---\n%s\n", label, t.Truncate(u.Text))
	}

	noun := "file"
	if len(req.Units) != 1 {
		noun = "files"
	}
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(req.QuestionText), len(req.Units), noun, strings.TrimRight(code.String(), "\n"))
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// loadEncoding initializes cl100k_base once. A nil encoding selects the rune heuristic.
func loadEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// Truncator caps text at a token budget.
type Truncator struct {
	maxTokens int
}

// NewTruncator creates a Truncator. maxTokens <= 0 disables truncation.
func NewTruncator(maxTokens int) *Truncator {
	return &Truncator{maxTokens: maxTokens}
}

// Truncate returns text cut to the budget with a trailing marker.
func (t *Truncator) Truncate(text string) string {
	if t == nil || t.maxTokens <= 0 {
		return text
	}

	if enc := loadEncoding(); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= t.maxTokens {
			return text
		}
		return enc.Decode(tokens[:t.maxTokens]) + "\n... [truncated]"
	}

	runes := []rune(text)
	limit := t.maxTokens * 4
	if limit >= len(runes) {
		return text
	}
	return string(runes[:limit]) + "\n... [truncated]"
}
