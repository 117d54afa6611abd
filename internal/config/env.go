package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variable names read by ApplyEnv.
const (
	EnvStart       = "GRADEWALKER_START"
	EnvEnd         = "GRADEWALKER_END"
	EnvAppURL      = "GRADEWALKER_APP_URL"
	EnvQuestionSet = "GRADEWALKER_QUESTION_SET"
	EnvRunners     = "GRADEWALKER_RUNNERS"
	EnvRunnerID    = "GRADEWALKER_RUNNER_ID"
	EnvAPIKey      = "GRADEWALKER_API_KEY"
)

// providerKeyEnv lists provider-specific credential fallbacks.
var providerKeyEnv = map[string]string{
	"gemini": "GEMINI_API_KEY",
	"openai": "OPENAI_API_KEY",
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables onto the configuration.
// Set but empty variables are ignored. Malformed integers are an error.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvStart, &c.Start},
		{EnvEnd, &c.End},
		{EnvRunners, &c.Runners},
		{EnvRunnerID, &c.RunnerID},
	}
	for _, it := range ints {
		raw, ok := get(it.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", it.key, raw, err)
		}
		*it.dst = n
	}

	if v, ok := get(EnvAppURL); ok {
		c.AppURL = v
	}
	if v, ok := get(EnvQuestionSet); ok {
		c.QuestionSetPath = v
	}

	if v, ok := get(EnvAPIKey); ok {
		c.Classifier.APIKey = v
	} else if c.Classifier.APIKey == "" {
		if name, known := providerKeyEnv[c.Classifier.Provider]; known {
			if v, ok := get(name); ok {
				c.Classifier.APIKey = v
			}
		}
	}

	return nil
}
