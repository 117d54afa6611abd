package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/harrison/gradewalker/internal/config"
)

// Manager owns one Chrome process (or a remote CDP connection) and hands out tabs.
// Call Close to terminate Chrome on shutdown.
type Manager struct {
	cfg      config.BrowserConfig
	headless bool
	profile  string

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewManager creates a Manager. profile names the Chrome user-data
// subdirectory so parallel runners never share a profile lock.
func NewManager(cfg config.BrowserConfig, profile string) *Manager {
	return &Manager{cfg: cfg, headless: cfg.Headless, profile: profile}
}

// Headed returns a copy of the manager configured to show the browser window.
func (m *Manager) Headed() *Manager {
	return &Manager{cfg: m.cfg, headless: false, profile: m.profile}
}

// ensureAllocator lazily starts Chrome. Must be called with m.mu held.
func (m *Manager) ensureAllocator() {
	if m.allocCtx != nil && m.allocCtx.Err() == nil {
		return
	}
	if m.allocCancel != nil {
		m.allocCancel()
	}

	base := context.Background()
	if cdpURL := strings.TrimSpace(m.cfg.CDPURL); cdpURL != "" {
		m.allocCtx, m.allocCancel = chromedp.NewRemoteAllocator(base, cdpURL)
		return
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.headless),
		chromedp.Flag("disable-gpu", m.headless),
		chromedp.WindowSize(1440, 900),
	)
	if path := strings.TrimSpace(m.cfg.ChromePath); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	if dir := strings.TrimSpace(m.cfg.UserDataDir); dir != "" {
		profile := m.profile
		if profile == "" {
			profile = "default"
		}
		userDataDir := filepath.Join(dir, profile)
		if err := os.MkdirAll(userDataDir, 0o755); err == nil {
			opts = append(opts, chromedp.UserDataDir(userDataDir))
		}
	}
	m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(base, opts...)
}

// NewTab opens a tab and returns a driver for it. The tab closes when parent
// is cancelled or the returned cleanup is called.
func (m *Manager) NewTab(parent context.Context) (*ChromeDriver, func(), error) {
	m.mu.Lock()
	m.ensureAllocator()
	allocCtx := m.allocCtx
	m.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start browser tab: %w", err)
	}

	stop := context.AfterFunc(parent, cancel)
	cleanup := func() {
		stop()
		cancel()
	}
	return NewChromeDriver(tabCtx, m.cfg.QueryTimeout, m.cfg.NavigationTimeout), cleanup, nil
}

// Close terminates Chrome.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allocCancel != nil {
		m.allocCancel()
		m.allocCancel = nil
		m.allocCtx = nil
	}
}
