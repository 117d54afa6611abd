package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/harrison/gradewalker/internal/browser"
	"github.com/harrison/gradewalker/internal/config"
)

var (
	// ErrLoginTimeout is returned when the dashboard never appeared during an
	// interactive login.
	ErrLoginTimeout = errors.New("login timed out")

	// ErrWaitTimeout is returned when a follower gave up waiting for the
	// leader's session.
	ErrWaitTimeout = errors.New("timed out waiting for session")

	errNotYet = errors.New("not yet")
)

// Browser is the part of a page driver the coordinator needs.
type Browser interface {
	browser.CookieJar
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) string
}

// Logger receives coordinator progress.
type Logger interface {
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
}

// Options configures a Coordinator.
type Options struct {
	AppURL          string
	DashboardMarker string

	// Leader performs the interactive login; followers wait for its artifact.
	Leader bool
	Runner int

	LoginTimeout time.Duration
	LoginPoll    time.Duration
	WaitTimeout  time.Duration
	WaitPoll     time.Duration
	Grace        time.Duration
}

// OptionsFromConfig maps configuration onto coordinator options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AppURL:          cfg.AppURL,
		DashboardMarker: cfg.Session.DashboardMarker,
		Leader:          cfg.IsLeader(),
		Runner:          cfg.RunnerID,
		LoginTimeout:    cfg.Session.LoginTimeout,
		LoginPoll:       cfg.Session.LoginPoll,
		WaitTimeout:     cfg.Session.WaitTimeout,
		WaitPoll:        cfg.Session.WaitPoll,
		Grace:           cfg.Session.Grace,
	}
}

// Coordinator establishes an authenticated browser for one runner.
//
// The leader holds the artifact lock from the moment it decides to log in
// until the artifact has been renamed into place. Followers poll for the
// artifact, then take and release the same lock, which cannot succeed before
// the leader is done writing.
type Coordinator struct {
	store *Store
	opts  Options
	log   Logger
}

// NewCoordinator creates a Coordinator. logger may be nil.
func NewCoordinator(store *Store, opts Options, logger Logger) *Coordinator {
	if opts.LoginPoll <= 0 {
		opts.LoginPoll = time.Second
	}
	if opts.WaitPoll <= 0 {
		opts.WaitPoll = 2 * time.Second
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Coordinator{store: store, opts: opts, log: logger}
}

// Establish makes b authenticated, either from the saved artifact or, for
// the leader, through an interactive login when none exists.
func (c *Coordinator) Establish(ctx context.Context, b Browser) error {
	if c.opts.Leader {
		return c.lead(ctx, b)
	}
	return c.follow(ctx, b)
}

// ForceLogin performs an interactive login and replaces any saved artifact.
func (c *Coordinator) ForceLogin(ctx context.Context, b Browser) (*State, error) {
	lock := c.store.lock()
	if err := lock.LockContext(ctx, c.opts.LoginPoll); err != nil {
		return nil, err
	}
	defer lock.Unlock()

	return c.login(ctx, b)
}

func (c *Coordinator) lead(ctx context.Context, b Browser) error {
	lock := c.store.lock()
	if err := lock.LockContext(ctx, c.opts.LoginPoll); err != nil {
		return err
	}
	defer lock.Unlock()

	if c.store.Exists() {
		st, err := c.store.Load()
		if err == nil {
			c.log.LogInfo(fmt.Sprintf("Reusing saved session from %s", st.SavedAt.Format(time.RFC3339)))
			return c.apply(ctx, b, st)
		}
		c.log.LogWarn(fmt.Sprintf("Saved session unusable, logging in again: %v", err))
	}

	_, err := c.login(ctx, b)
	return err
}

func (c *Coordinator) follow(ctx context.Context, b Browser) error {
	c.log.LogInfo(fmt.Sprintf("Runner %d waiting for the leader's session", c.opts.Runner))
	if err := c.waitForArtifact(ctx); err != nil {
		return err
	}

	// Handshake: the leader releases the lock only after the rename.
	lock := c.store.lock()
	if err := lock.LockContext(ctx, c.opts.WaitPoll); err != nil {
		return err
	}
	if err := lock.Unlock(); err != nil {
		return err
	}

	if c.opts.Grace > 0 {
		if err := browser.Sleep(ctx, c.opts.Grace); err != nil {
			return err
		}
	}

	st, err := c.store.Load()
	if err != nil {
		return err
	}
	return c.apply(ctx, b, st)
}

// waitForArtifact polls until the session file appears.
func (c *Coordinator) waitForArtifact(ctx context.Context) error {
	waitCtx := ctx
	if c.opts.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.opts.WaitTimeout)
		defer cancel()
	}

	err := c.poll(waitCtx, c.opts.WaitPoll, func() error {
		if c.store.Exists() {
			return nil
		}
		return errNotYet
	})
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrWaitTimeout, c.opts.WaitTimeout)
	}
	return err
}

// login waits for the user to reach the dashboard, then saves the cookies.
func (c *Coordinator) login(ctx context.Context, b Browser) (*State, error) {
	if err := b.Navigate(ctx, c.opts.AppURL); err != nil {
		return nil, fmt.Errorf("failed to open login page: %w", err)
	}
	c.log.LogInfo(fmt.Sprintf("Log in through the browser window (waiting up to %s)", c.opts.LoginTimeout))

	loginCtx := ctx
	if c.opts.LoginTimeout > 0 {
		var cancel context.CancelFunc
		loginCtx, cancel = context.WithTimeout(ctx, c.opts.LoginTimeout)
		defer cancel()
	}

	var url string
	err := c.poll(loginCtx, c.opts.LoginPoll, func() error {
		url = b.CurrentURL(loginCtx)
		if strings.Contains(url, c.opts.DashboardMarker) {
			return nil
		}
		return errNotYet
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrLoginTimeout, c.opts.LoginTimeout)
		}
		return nil, err
	}

	cookies, err := b.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export cookies: %w", err)
	}
	st := &State{URL: url, SavedAt: time.Now().UTC(), Cookies: cookies}
	if err := c.store.Save(st); err != nil {
		return nil, err
	}
	c.log.LogInfo(fmt.Sprintf("Login detected, session saved to %s", c.store.Path()))
	return st, nil
}

func (c *Coordinator) apply(ctx context.Context, b Browser, st *State) error {
	if err := b.SetCookies(ctx, st.Cookies); err != nil {
		return fmt.Errorf("failed to import session: %w", err)
	}
	c.log.LogDebug(fmt.Sprintf("Imported %d cookies", len(st.Cookies)))
	return nil
}

// poll runs check every interval until it succeeds or ctx is done.
func (c *Coordinator) poll(ctx context.Context, interval time.Duration, check func() error) error {
	err := backoff.Retry(check, backoff.WithContext(backoff.NewConstantBackOff(interval), ctx))
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

type nopLogger struct{}

func (nopLogger) LogDebug(string) {}
func (nopLogger) LogInfo(string)  {}
func (nopLogger) LogWarn(string)  {}
