package classifier

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/harrison/gradewalker/internal/models"
)

var markdown = goldmark.New()

// reply is the object the model is asked to return.
type reply struct {
	Verdict               string   `json:"verdict"`
	Remarks               string   `json:"remarks"`
	SuggestedRequirements []string `json:"suggested_requirements"`
}

// ParseResponse turns raw model text into a Response.
//
// Candidates are fenced json blocks first, then the first top-level object in
// the text. Each candidate is decoded as-is and, failing that, after repair.
// Without a recognisable verdict the keyword table decides and the raw text
// becomes the remarks.
func ParseResponse(raw string, table KeywordTable) Response {
	raw = strings.TrimSpace(raw)

	for _, candidate := range jsonCandidates(raw) {
		r, ok := decodeReply(candidate)
		if !ok {
			continue
		}
		verdict, ok := models.ParseVerdict(r.Verdict)
		if !ok || verdict == models.VerdictError || verdict == models.VerdictSkipped {
			continue
		}
		resp := Response{Verdict: verdict, Remarks: strings.TrimSpace(r.Remarks)}
		if resp.Remarks == "" {
			resp.Remarks = raw
		}
		if verdict != models.VerdictMatch {
			resp.SuggestedRequirements = cleanList(r.SuggestedRequirements)
		}
		return resp
	}

	return Response{Verdict: HeuristicVerdict(raw, table), Remarks: raw}
}

// jsonCandidates lists the strings that may hold the reply object, best first.
func jsonCandidates(raw string) []string {
	var out []string
	out = append(out, fencedBlocks(raw)...)
	if obj, ok := FirstObject(raw); ok {
		out = append(out, obj)
	}
	return out
}

// fencedBlocks returns the bodies of ```json (or untagged) fenced blocks.
func fencedBlocks(raw string) []string {
	if !strings.Contains(raw, "```") {
		return nil
	}
	source := []byte(raw)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var blocks []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lang := strings.ToLower(string(block.Language(source)))
		if lang != "" && lang != "json" {
			return ast.WalkSkipChildren, nil
		}
		var buf bytes.Buffer
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		if body := strings.TrimSpace(buf.String()); body != "" {
			blocks = append(blocks, body)
		}
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

// FirstObject returns the first balanced top-level {...} in s. Braces inside
// JSON strings are ignored.
func FirstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	// Unbalanced: hand the tail to the repair pass.
	return s[start:], true
}

func decodeReply(candidate string) (reply, bool) {
	var r reply
	if err := json.Unmarshal([]byte(candidate), &r); err == nil {
		return r, true
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return reply{}, false
	}
	if err := json.Unmarshal([]byte(repaired), &r); err != nil {
		return reply{}, false
	}
	return r, true
}

func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
