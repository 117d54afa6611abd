package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/gradewalker/internal/browser"
	"github.com/harrison/gradewalker/internal/logger"
	"github.com/harrison/gradewalker/internal/session"
)

// NewLoginCommand creates the login command
func NewLoginCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in interactively and save the session",
		Long: `Open a browser window on the platform and wait until the login reaches the
dashboard, then save the session cookies for later runs. An existing saved
session is replaced.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .gradewalker/config.yaml)")
	cmd.Flags().String("app-url", "", "Learning-management system root URL")
	cmd.Flags().String("session", "", "Session artifact path")
	cmd.Flags().String("timeout", "", "How long to wait for the login (e.g., 5m)")
	cmd.Flags().Bool("verbose", false, "Show debug output")

	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := requireAppURL(cfg); err != nil {
		return err
	}

	path, err := sessionPath(cfg)
	if err != nil {
		return fmt.Errorf("failed to resolve session path: %w", err)
	}

	opts := session.OptionsFromConfig(cfg)
	opts.Leader = true
	if cmd.Flags().Changed("timeout") {
		opts.LoginTimeout = cfg.Timeout
	}

	ctx, stop := runContext(cmd.Context(), 0)
	defer stop()

	log := logger.NewConsoleLogger(cmd.OutOrStdout(), cfg.LogLevel)
	store := session.NewStore(path)
	coordinator := session.NewCoordinator(store, opts, log)

	manager := browser.NewManager(cfg.Browser, "runner-1").Headed()
	defer manager.Close()
	driver, closeTab, err := manager.NewTab(ctx)
	if err != nil {
		return err
	}
	defer closeTab()

	state, err := coordinator.ForceLogin(ctx, driver)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Session saved to %s (%d cookies)\n", store.Path(), len(state.Cookies))
	return nil
}
