package classifier

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/harrison/gradewalker/internal/config"
)

// New builds the classifier described by cfg. A missing credential or binary
// yields a Disabled classifier rather than an error, so the run can continue.
func New(cfg config.ClassifierConfig, opts Options) (Classifier, error) {
	table, err := KeywordTableFromConfig(cfg.Keywords)
	if err != nil {
		return nil, err
	}

	var backend Backend
	switch cfg.Provider {
	case "gemini":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return Disabled{Reason: "no gemini API key configured"}, nil
		}
		backend = NewGeminiBackend(cfg.APIKey, cfg.BaseURL, cfg.Timeout)
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return Disabled{Reason: "no openai API key configured"}, nil
		}
		backend = NewOpenAIBackend(cfg.APIKey, cfg.BaseURL, cfg.Timeout)
	case "claude-cli":
		path := cfg.ClaudePath
		if path == "" {
			path = "claude"
		}
		if _, err := exec.LookPath(path); err != nil {
			return Disabled{Reason: fmt.Sprintf("claude CLI not available: %v", err)}, nil
		}
		backend = NewClaudeBackend(path, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}

	opts.Models = modelsFor(cfg.Provider, cfg.Models)
	opts.MaxAttempts = cfg.MaxAttempts
	opts.InitialBackoff = cfg.InitialBackoff
	opts.MaxUnitTokens = cfg.MaxUnitTokens
	opts.CacheSize = cfg.CacheSize
	opts.Keywords = table

	return NewClient(backend, opts), nil
}

var providerDefaults = map[string][]string{
	"gemini":     {"gemini-2.0-flash", "gemini-1.5-flash"},
	"openai":     {"gpt-4o-mini"},
	"claude-cli": {""},
}

// modelsFor drops gemini model names when another provider is selected, which
// happens when only the provider is overridden on the command line.
func modelsFor(provider string, models []string) []string {
	var out []string
	for _, m := range models {
		if provider != "gemini" && strings.HasPrefix(m, "gemini") {
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return providerDefaults[provider]
	}
	return out
}
