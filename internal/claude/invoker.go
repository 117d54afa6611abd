package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultSystemPrompt keeps the CLI's reply to a single JSON object.
const DefaultSystemPrompt = "You review student code submissions. Your ONLY output must be a single JSON object matching the requested fields. No markdown, no prose outside the JSON."

// ErrEmptyResponse is returned when the CLI produced no usable content.
var ErrEmptyResponse = errors.New("empty response from claude")

// Invoker is a reusable client for invoking the claude CLI.
// Create once, use many times. Safe for concurrent use.
type Invoker struct {
	// ClaudePath is the path to the claude CLI binary. Defaults to "claude".
	ClaudePath string

	// Timeout is the default timeout for invocations (0 = caller's context only).
	Timeout time.Duration

	// SystemPrompt defaults to DefaultSystemPrompt when empty.
	SystemPrompt string

	// run executes the command; replaced in tests.
	run func(cmd *exec.Cmd) ([]byte, error)
}

// Request holds per-invocation configuration.
type Request struct {
	// Prompt is the user prompt (required).
	Prompt string

	// Model selects the model via --model (optional).
	Model string

	// Schema is a JSON schema passed via --json-schema (optional).
	Schema string
}

// Response holds the text content extracted from the CLI output envelope.
type Response struct {
	Content   string
	SessionID string
	RawOutput []byte
}

// NewInvoker creates a new Invoker with default settings.
func NewInvoker() *Invoker {
	return &Invoker{
		ClaudePath:   "claude",
		SystemPrompt: DefaultSystemPrompt,
	}
}

// Invoke runs one CLI call. Rate limits and other failures are returned as
// errors carrying the CLI output so callers can classify them.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, inv.binary(), inv.args(req)...)
	SetCleanEnv(cmd)

	run := inv.run
	if run == nil {
		run = func(c *exec.Cmd) ([]byte, error) { return c.CombinedOutput() }
	}

	output, err := run(cmd)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("claude invocation timeout: %w", ctx.Err())
		}
		return nil, fmt.Errorf("claude invocation failed: %w (output: %s)", err, truncate(string(output), 500))
	}

	resp, err := ParseResponse(output)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (inv *Invoker) binary() string {
	if inv.ClaudePath == "" {
		return "claude"
	}
	return inv.ClaudePath
}

// args always includes --system-prompt, -p, --output-format json and
// --settings with hooks disabled.
func (inv *Invoker) args(req Request) []string {
	systemPrompt := inv.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	args := []string{"--system-prompt", systemPrompt, "-p", req.Prompt}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.Schema != "" {
		args = append(args, "--json-schema", req.Schema)
	}
	args = append(args, "--output-format", "json")
	args = append(args, "--settings", `{"disableAllHooks": true}`)
	return args
}

// envelope is the --output-format json result object.
type envelope struct {
	Type             string          `json:"type"`
	Result           string          `json:"result"`
	Content          string          `json:"content"`
	StructuredOutput json.RawMessage `json:"structured_output"`
	SessionID        string          `json:"session_id"`
	IsError          bool            `json:"is_error"`
}

// ParseResponse extracts the reply text from CLI output. structured_output
// wins over result, which wins over content. Output that is not an envelope
// (prose, or the model's JSON printed directly) is returned as-is.
func ParseResponse(raw []byte) (*Response, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, ErrEmptyResponse
	}

	resp := &Response{RawOutput: raw}

	// Warnings may precede the envelope on the combined stream.
	candidate := text
	if i := strings.Index(text, "{"); i > 0 {
		candidate = text[i:]
	}

	var env envelope
	if err := json.Unmarshal([]byte(candidate), &env); err != nil || !env.looksLikeEnvelope() {
		resp.Content = text
		return resp, nil
	}

	resp.SessionID = env.SessionID
	if env.IsError {
		return nil, fmt.Errorf("claude reported an error: %s", truncate(firstNonEmpty(env.Result, env.Content), 500))
	}

	switch {
	case len(env.StructuredOutput) > 0 && string(env.StructuredOutput) != "null":
		resp.Content = string(env.StructuredOutput)
	case env.Result != "":
		resp.Content = env.Result
	case env.Content != "":
		resp.Content = env.Content
	default:
		return nil, ErrEmptyResponse
	}
	return resp, nil
}

func (e envelope) looksLikeEnvelope() bool {
	return e.Type != "" || e.SessionID != "" || e.Result != "" || e.Content != "" || len(e.StructuredOutput) > 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// truncate returns s truncated to maxLen bytes with "..." suffix if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
