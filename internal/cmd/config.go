package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/gradewalker/internal/config"
)

// addRunFlags registers the flags shared by run and fanout.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to config file (default: .gradewalker/config.yaml)")
	cmd.Flags().String("app-url", "", "Learning-management system root URL")
	cmd.Flags().String("question-set", "", "Question set path or URL, relative to --app-url")
	cmd.Flags().Int("start", 0, "First question ordinal (1-based)")
	cmd.Flags().Int("end", 0, "Last question ordinal (0 = until the set is exhausted)")
	cmd.Flags().String("timeout", "", "Maximum run time (e.g., 30m, 2h)")
	cmd.Flags().Bool("verbose", false, "Show debug output")
	cmd.Flags().String("log-dir", "", "Directory for log files")
	cmd.Flags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.Flags().Bool("headed", false, "Show the browser window")
	cmd.Flags().String("format", "", "Report format: xlsx or csv")
	cmd.Flags().String("report-dir", "", "Directory for reports")
	cmd.Flags().String("session", "", "Session artifact path")
	cmd.Flags().String("provider", "", "Classifier provider: gemini, openai, claude-cli")
}

// loadConfig resolves configuration in order: defaults, config file,
// environment, flags. The result is validated.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	overrides, err := flagOverrides(cmd)
	if err != nil {
		return nil, err
	}
	cfg.MergeWithFlags(overrides)

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// flagOverrides collects the flags that were set on the command line.
func flagOverrides(cmd *cobra.Command) (config.FlagOverrides, error) {
	var f config.FlagOverrides
	flags := cmd.Flags()

	stringFlag := func(name string) *string {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}
	intFlag := func(name string) *int {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetInt(name)
		return &v
	}

	f.AppURL = stringFlag("app-url")
	f.QuestionSet = stringFlag("question-set")
	f.Start = intFlag("start")
	f.End = intFlag("end")
	f.Runners = intFlag("runners")
	f.RunnerID = intFlag("runner-id")
	f.LogDir = stringFlag("log-dir")
	f.LogLevel = stringFlag("log-level")
	f.ReportFormat = stringFlag("format")
	f.ReportDir = stringFlag("report-dir")
	f.SessionPath = stringFlag("session")
	f.Provider = stringFlag("provider")

	if timeoutStr := stringFlag("timeout"); timeoutStr != nil {
		timeout, err := time.ParseDuration(*timeoutStr)
		if err != nil {
			return f, fmt.Errorf("invalid timeout format %q: %w", *timeoutStr, err)
		}
		f.Timeout = &timeout
	}

	if flags.Lookup("headed") != nil && flags.Changed("headed") {
		headed, _ := flags.GetBool("headed")
		headless := !headed
		f.Headless = &headless
	}

	return f, nil
}

// sessionPath returns the configured session artifact path or the default.
func sessionPath(cfg *config.Config) (string, error) {
	if cfg.Session.Path != "" {
		return cfg.Session.Path, nil
	}
	return config.GetSessionPath()
}

// historyPath returns the configured history database path or the default.
func historyPath(cfg *config.Config) (string, error) {
	if cfg.History.DBPath != "" {
		return cfg.History.DBPath, nil
	}
	return config.GetHistoryDBPath()
}
