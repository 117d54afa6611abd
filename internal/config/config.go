package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BrowserConfig configures the Chrome instance behind the page driver.
type BrowserConfig struct {
	// Headless runs Chrome without a window. Interactive login always runs headed.
	Headless bool `yaml:"headless"`

	// ChromePath overrides the Chrome executable.
	ChromePath string `yaml:"chrome_path"`

	// CDPURL attaches to an already running browser instead of launching one.
	CDPURL string `yaml:"cdp_url"`

	// UserDataDir holds per-runner Chrome profiles.
	UserDataDir string `yaml:"user_data_dir"`

	// QueryTimeout bounds every element query.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// NavigationTimeout bounds page loads.
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
}

// SessionConfig configures login and session sharing.
type SessionConfig struct {
	// Path is the session artifact location. Empty means <home>/session/storage-state.json.
	Path string `yaml:"path"`

	// DashboardMarker is the URL fragment that proves a login succeeded.
	DashboardMarker string `yaml:"dashboard_marker"`

	LoginTimeout time.Duration `yaml:"login_timeout"`
	LoginPoll    time.Duration `yaml:"login_poll"`

	// WaitTimeout and WaitPoll govern followers waiting on the leader's login.
	WaitTimeout time.Duration `yaml:"wait_timeout"`
	WaitPoll    time.Duration `yaml:"wait_poll"`

	// Grace is an optional extra delay after the handshake completes.
	Grace time.Duration `yaml:"grace"`
}

// TraversalConfig configures the question loop.
type TraversalConfig struct {
	// MarkerFormat renders a question ordinal into its navigation label.
	MarkerFormat string `yaml:"marker_format"`

	// DefaultQuestionCount is used when discovery finds no markers.
	DefaultQuestionCount int `yaml:"default_question_count"`

	// MaxAttempts is the total number of attempts per question.
	MaxAttempts int `yaml:"max_attempts"`

	SettleDelay       time.Duration `yaml:"settle_delay"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
}

// GradingConfig configures how the platform verdict is read back.
type GradingConfig struct {
	PollAttempts int           `yaml:"poll_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// Keyword families, matched case-insensitively as substrings.
	Passed     []string `yaml:"passed"`
	Failed     []string `yaml:"failed"`
	Processing []string `yaml:"processing"`
}

// KeywordRule maps phrases to a classifier verdict for the heuristic fallback.
type KeywordRule struct {
	Verdict  string   `yaml:"verdict"`
	// Negated is the verdict for negated keyword occurrences ("not a match").
	// Empty means negation is ignored.
	Negated  string   `yaml:"negated"`
	Keywords []string `yaml:"keywords"`
}

// ClassifierConfig configures the secondary code/question classifier.
type ClassifierConfig struct {
	// Provider selects the backend: gemini, openai, claude-cli.
	Provider string `yaml:"provider"`

	// APIKey is the provider credential. Empty disables classification.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url"`

	// ClaudePath is the claude binary for the claude-cli provider.
	ClaudePath string `yaml:"claude_path"`

	// Models is tried in order; a model is abandoned after MaxAttempts failures.
	Models []string `yaml:"models"`

	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	Timeout        time.Duration `yaml:"timeout"`

	// BatchSize classifier calls are followed by a Cooldown pause.
	BatchSize int           `yaml:"batch_size"`
	Cooldown  time.Duration `yaml:"cooldown"`

	MaxUnitTokens int `yaml:"max_unit_tokens"`
	CacheSize     int `yaml:"cache_size"`

	// Keywords overrides the heuristic verdict table. Rules are tried in order.
	Keywords []KeywordRule `yaml:"keywords"`
}

// ReportConfig configures report output.
type ReportConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"` // xlsx or csv
	Name   string `yaml:"name"`
}

// HistoryConfig configures the sqlite run archive.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// DBPath is the database location. Empty means <home>/history/runs.db.
	DBPath string `yaml:"db_path"`
}

// LayoutConfig lists selectors per page role, tried in order.
// Plain values are CSS selectors; an "xpath:" prefix selects XPath.
type LayoutConfig struct {
	QuestionMarkers  []string `yaml:"question_markers"`
	QuestionText     []string `yaml:"question_text"`
	Editor           []string `yaml:"editor"`
	FileTabContainer []string `yaml:"file_tab_container"`
	FileTabs         []string `yaml:"file_tabs"`
	RunButton        []string `yaml:"run_button"`
	NextButton       []string `yaml:"next_button"`
	ResultIndicator  []string `yaml:"result_indicator"`
	PageContent      []string `yaml:"page_content"`
}

// Config represents gradewalker configuration options
type Config struct {
	// AppURL is the learning-management system root.
	AppURL string `yaml:"app_url"`

	// QuestionSetPath is appended to AppURL to open the question set.
	QuestionSetPath string `yaml:"question_set_path"`

	// Start and End bound the ordinal range (End 0 = until exhausted).
	Start int `yaml:"start"`
	End   int `yaml:"end"`

	// Runners is the number of cooperating runners; RunnerID is 1-based.
	Runners  int `yaml:"runners"`
	RunnerID int `yaml:"runner_id"`

	// Timeout bounds a whole run (0 = no limit).
	Timeout time.Duration `yaml:"timeout"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where logs will be written
	LogDir string `yaml:"log_dir"`

	// MetricsAddr exposes prometheus metrics when set (e.g. ":9464").
	MetricsAddr string `yaml:"metrics_addr"`

	Browser    BrowserConfig    `yaml:"browser"`
	Session    SessionConfig    `yaml:"session"`
	Traversal  TraversalConfig  `yaml:"traversal"`
	Grading    GradingConfig    `yaml:"grading"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Report     ReportConfig     `yaml:"report"`
	History    HistoryConfig    `yaml:"history"`
	Layout     LayoutConfig     `yaml:"layout"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Start:    1,
		End:      0,
		Runners:  1,
		RunnerID: 1,
		Timeout:  0,
		LogLevel: "info",
		LogDir:   ".gradewalker/logs",
		Browser: BrowserConfig{
			Headless:          true,
			QueryTimeout:      2 * time.Second,
			NavigationTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			DashboardMarker: "dashboard",
			LoginTimeout:    180 * time.Second,
			LoginPoll:       1 * time.Second,
			WaitTimeout:     5 * time.Minute,
			WaitPoll:        2 * time.Second,
		},
		Traversal: TraversalConfig{
			MarkerFormat:         "Q%d",
			DefaultQuestionCount: 90,
			MaxAttempts:          3,
			SettleDelay:          750 * time.Millisecond,
			VisibilityTimeout:    2 * time.Second,
		},
		Grading: GradingConfig{
			PollAttempts: 15,
			PollInterval: 1 * time.Second,
			Passed:       []string{"all test cases passed", "all tests passed", "accepted", "correct answer", "success"},
			Failed: []string{
				"wrong answer", "incorrect", "failed", "not accepted", "rejected", "compilation error", "runtime error",
				"time limit exceeded", "memory limit exceeded", "output limit exceeded",
			},
			Processing: []string{"processing", "running", "evaluating", "compiling", "judging", "pending", "queued"},
		},
		Classifier: ClassifierConfig{
			Provider:       "gemini",
			ClaudePath:     "claude",
			Models:         []string{"gemini-2.0-flash", "gemini-1.5-flash"},
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			Timeout:        45 * time.Second,
			BatchSize:      10,
			Cooldown:       30 * time.Second,
			MaxUnitTokens:  4000,
			CacheSize:      256,
		},
		Report: ReportConfig{
			Dir:    ".gradewalker/reports",
			Format: "xlsx",
			Name:   "grading-report",
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Layout: LayoutConfig{
			QuestionMarkers:  []string{"[data-question-index]", ".question-nav button", ".question-nav a", "nav [role='tab']", "button", "a"},
			QuestionText:     []string{"[data-testid='question-text']", ".question-description", ".problem-statement", ".question-content", ".question"},
			Editor:           []string{".monaco-editor .view-lines", ".CodeMirror-code", ".ace_content", "textarea.code-input", "textarea", "pre code"},
			FileTabContainer: []string{".file-tabs", "[data-testid='file-tabs']"},
			FileTabs:         []string{".file-tabs [role='tab']", ".file-tabs button", ".file-tab"},
			RunButton: []string{
				"button[data-action='run']",
				"button.run-code",
				"xpath://button[normalize-space(.)='Run']",
				"xpath://button[normalize-space(.)='Submit']",
				"xpath://button[contains(normalize-space(.), 'Run Code')]",
			},
			NextButton: []string{
				"button[data-action='next']",
				"button.next-question",
				"xpath://button[normalize-space(.)='Next']",
				"xpath://a[normalize-space(.)='Next']",
			},
			ResultIndicator: []string{"[data-testid='result']", ".result-status", ".test-result", ".output-panel .status"},
			PageContent:     []string{"main", "body"},
		},
	}
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration without error.
// Keys present in the file override defaults; absent keys keep them.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// yaml.v3 only assigns keys present in the document, so decoding onto the
	// defaults merges them. Durations accept Go syntax ("30s", "5m").
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .gradewalker/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, HomeDirName, "config.yaml"))
}

// FlagOverrides carries CLI flag values. Nil fields were not set on the command line.
type FlagOverrides struct {
	AppURL       *string
	QuestionSet  *string
	Start        *int
	End          *int
	Runners      *int
	RunnerID     *int
	Timeout      *time.Duration
	LogDir       *string
	LogLevel     *string
	Headless     *bool
	ReportFormat *string
	ReportDir    *string
	SessionPath  *string
	Provider     *string
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(f FlagOverrides) {
	if f.AppURL != nil {
		c.AppURL = *f.AppURL
	}
	if f.QuestionSet != nil {
		c.QuestionSetPath = *f.QuestionSet
	}
	if f.Start != nil {
		c.Start = *f.Start
	}
	if f.End != nil {
		c.End = *f.End
	}
	if f.Runners != nil {
		c.Runners = *f.Runners
	}
	if f.RunnerID != nil {
		c.RunnerID = *f.RunnerID
	}
	if f.Timeout != nil {
		c.Timeout = *f.Timeout
	}
	if f.LogDir != nil {
		c.LogDir = *f.LogDir
	}
	if f.LogLevel != nil {
		c.LogLevel = *f.LogLevel
	}
	if f.Headless != nil {
		c.Browser.Headless = *f.Headless
	}
	if f.ReportFormat != nil {
		c.Report.Format = *f.ReportFormat
	}
	if f.ReportDir != nil {
		c.Report.Dir = *f.ReportDir
	}
	if f.SessionPath != nil {
		c.Session.Path = *f.SessionPath
	}
	if f.Provider != nil {
		c.Classifier.Provider = *f.Provider
	}
}

// QuestionSetURL joins AppURL and QuestionSetPath.
func (c *Config) QuestionSetURL() string {
	if c.QuestionSetPath == "" {
		return c.AppURL
	}
	if strings.HasPrefix(c.QuestionSetPath, "http://") || strings.HasPrefix(c.QuestionSetPath, "https://") {
		return c.QuestionSetPath
	}
	return strings.TrimRight(c.AppURL, "/") + "/" + strings.TrimLeft(c.QuestionSetPath, "/")
}

// IsLeader reports whether this runner performs the interactive login.
func (c *Config) IsLeader() bool {
	return c.Runners <= 1 || c.RunnerID <= 1
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.Start < 1 {
		return fmt.Errorf("start must be >= 1, got %d", c.Start)
	}
	if c.End != 0 && c.End < c.Start {
		return fmt.Errorf("end must be 0 or >= start (%d), got %d", c.Start, c.End)
	}
	if c.Runners < 1 {
		return fmt.Errorf("runners must be >= 1, got %d", c.Runners)
	}
	if c.RunnerID < 1 || c.RunnerID > c.Runners {
		return fmt.Errorf("runner_id must be between 1 and %d, got %d", c.Runners, c.RunnerID)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}

	if !strings.Contains(c.Traversal.MarkerFormat, "%d") {
		return fmt.Errorf("traversal.marker_format must contain %%d, got %q", c.Traversal.MarkerFormat)
	}
	if c.Traversal.MaxAttempts < 1 {
		return fmt.Errorf("traversal.max_attempts must be >= 1, got %d", c.Traversal.MaxAttempts)
	}
	if c.Traversal.DefaultQuestionCount < 1 {
		return fmt.Errorf("traversal.default_question_count must be >= 1, got %d", c.Traversal.DefaultQuestionCount)
	}

	if c.Grading.PollAttempts < 1 {
		return fmt.Errorf("grading.poll_attempts must be >= 1, got %d", c.Grading.PollAttempts)
	}
	if len(c.Grading.Passed) == 0 || len(c.Grading.Failed) == 0 {
		return fmt.Errorf("grading.passed and grading.failed keyword lists cannot be empty")
	}

	switch c.Classifier.Provider {
	case "gemini", "openai", "claude-cli":
	default:
		return fmt.Errorf("invalid classifier.provider %q, must be one of: gemini, openai, claude-cli", c.Classifier.Provider)
	}
	if len(c.Classifier.Models) == 0 && c.Classifier.Provider != "claude-cli" {
		return fmt.Errorf("classifier.models cannot be empty")
	}
	if c.Classifier.MaxAttempts < 1 {
		return fmt.Errorf("classifier.max_attempts must be >= 1, got %d", c.Classifier.MaxAttempts)
	}
	// The cooldown is mandatory: both knobs must be positive.
	if c.Classifier.BatchSize < 1 {
		return fmt.Errorf("classifier.batch_size must be >= 1, got %d", c.Classifier.BatchSize)
	}
	if c.Classifier.Cooldown <= 0 {
		return fmt.Errorf("classifier.cooldown must be > 0, got %v", c.Classifier.Cooldown)
	}
	for _, rule := range c.Classifier.Keywords {
		if rule.Verdict == "" || len(rule.Keywords) == 0 {
			return fmt.Errorf("classifier.keywords entries need a verdict and at least one keyword")
		}
	}

	switch c.Report.Format {
	case "xlsx", "csv":
	default:
		return fmt.Errorf("invalid report.format %q, must be xlsx or csv", c.Report.Format)
	}
	if c.Report.Name == "" {
		return fmt.Errorf("report.name cannot be empty")
	}

	if len(c.Layout.QuestionMarkers) == 0 || len(c.Layout.Editor) == 0 || len(c.Layout.RunButton) == 0 {
		return fmt.Errorf("layout.question_markers, layout.editor and layout.run_button need at least one selector")
	}

	return nil
}
