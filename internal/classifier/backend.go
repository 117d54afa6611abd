package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harrison/gradewalker/internal/claude"
)

// Backend performs a single model call and returns the raw reply text.
type Backend interface {
	Name() string
	Complete(ctx context.Context, model, prompt string) (string, error)
}

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"

	// maxErrorBody bounds how much of an error body is kept in StatusError.
	maxErrorBody = 512
)

// GeminiBackend calls the generateContent REST endpoint.
type GeminiBackend struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewGeminiBackend creates a GeminiBackend with a per-request timeout.
func NewGeminiBackend(apiKey, baseURL string, timeout time.Duration) *GeminiBackend {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiBackend{APIKey: apiKey, BaseURL: strings.TrimRight(baseURL, "/"), Client: &http.Client{Timeout: timeout}}
}

func (g *GeminiBackend) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature      float64 `json:"temperature"`
		ResponseMIMEType string  `json:"responseMimeType,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Complete implements Backend.
func (g *GeminiBackend) Complete(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = "gemini-2.0-flash"
	}

	var body geminiRequest
	body.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}
	body.GenerationConfig.Temperature = 0
	body.GenerationConfig.ResponseMIMEType = "application/json"

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.BaseURL, url.PathEscape(model), url.QueryEscape(g.APIKey))

	var out geminiResponse
	if err := postJSON(ctx, g.client(), g.Name(), endpoint, nil, body, &out); err != nil {
		return "", err
	}

	if out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini blocked the prompt: %s", out.PromptFeedback.BlockReason)
	}
	var sb strings.Builder
	for _, cand := range out.Candidates {
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}
	return sb.String(), nil
}

func (g *GeminiBackend) client() *http.Client {
	if g.Client == nil {
		return http.DefaultClient
	}
	return g.Client
}

// OpenAIBackend calls any OpenAI-compatible chat completions endpoint.
type OpenAIBackend struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewOpenAIBackend creates an OpenAIBackend with a per-request timeout.
func NewOpenAIBackend(apiKey, baseURL string, timeout time.Duration) *OpenAIBackend {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIBackend{APIKey: apiKey, BaseURL: strings.TrimRight(baseURL, "/"), Client: &http.Client{Timeout: timeout}}
}

func (o *OpenAIBackend) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete implements Backend.
func (o *OpenAIBackend) Complete(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = "gpt-4o-mini"
	}
	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: claude.DefaultSystemPrompt},
			{Role: "user", Content: prompt},
		},
	}
	headers := map[string]string{"Authorization": "Bearer " + o.APIKey}

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}

	var out chatResponse
	if err := postJSON(ctx, client, o.Name(), o.BaseURL+"/chat/completions", headers, body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}

// postJSON sends body as JSON and decodes a 2xx answer into out.
// Non-2xx answers become a *StatusError.
func postJSON(ctx context.Context, client *http.Client, provider, endpoint string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := strings.TrimSpace(string(respBody))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody] + "..."
		}
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: text}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", provider, err)
	}
	return nil
}

// ClaudeBackend shells out to the claude CLI.
type ClaudeBackend struct {
	Invoker *claude.Invoker
}

// NewClaudeBackend creates a ClaudeBackend for the binary at path.
func NewClaudeBackend(path string, timeout time.Duration) *ClaudeBackend {
	inv := claude.NewInvoker()
	if path != "" {
		inv.ClaudePath = path
	}
	inv.Timeout = timeout
	return &ClaudeBackend{Invoker: inv}
}

func (c *ClaudeBackend) Name() string { return "claude-cli" }

// Complete implements Backend.
func (c *ClaudeBackend) Complete(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.Invoker.Invoke(ctx, claude.Request{Prompt: prompt, Model: model, Schema: ResponseSchema})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

var (
	_ Backend = (*GeminiBackend)(nil)
	_ Backend = (*OpenAIBackend)(nil)
	_ Backend = (*ClaudeBackend)(nil)
)
