package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harrison/gradewalker/internal/browser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBrowser reaches the dashboard after a number of URL polls.
type fakeBrowser struct {
	mu        sync.Mutex
	loginAt   int
	polls     int
	navigated []string
	exported  []browser.Cookie
	imported  []browser.Cookie
}

func (b *fakeBrowser) Navigate(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navigated = append(b.navigated, url)
	return nil
}

func (b *fakeBrowser) CurrentURL(context.Context) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if b.loginAt > 0 && b.polls >= b.loginAt {
		return "https://lms.example/dashboard"
	}
	return "https://lms.example/login"
}

func (b *fakeBrowser) Cookies(context.Context) ([]browser.Cookie, error) {
	return b.exported, nil
}

func (b *fakeBrowser) SetCookies(_ context.Context, cookies []browser.Cookie) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.imported = cookies
	return nil
}

func (b *fakeBrowser) importedCookies() []browser.Cookie {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.imported
}

func testOptions(leader bool) Options {
	return Options{
		AppURL:          "https://lms.example",
		DashboardMarker: "dashboard",
		Leader:          leader,
		Runner:          2,
		LoginTimeout:    time.Second,
		LoginPoll:       5 * time.Millisecond,
		WaitTimeout:     time.Second,
		WaitPoll:        5 * time.Millisecond,
	}
}

var sessionCookie = browser.Cookie{Name: "sid", Value: "abc123", Domain: "lms.example", Path: "/", HTTPOnly: true, Secure: true}

func TestStore_SaveLoad(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "session", "storage-state.json"))
	assert.False(t, store.Exists())

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoSession)

	saved := &State{URL: "https://lms.example/dashboard", SavedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Cookies: []browser.Cookie{sessionCookie}}
	require.NoError(t, store.Save(saved))
	assert.True(t, store.Exists())

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)

	require.NoError(t, store.Remove())
	assert.False(t, store.Exists())
	assert.NoError(t, store.Remove())
}

func TestLeader_LogsInWhenNoArtifact(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	b := &fakeBrowser{loginAt: 3, exported: []browser.Cookie{sessionCookie}}

	err := NewCoordinator(store, testOptions(true), nil).Establish(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://lms.example"}, b.navigated)
	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://lms.example/dashboard", st.URL)
	assert.Equal(t, []browser.Cookie{sessionCookie}, st.Cookies)
}

func TestLeader_ReusesArtifact(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, store.Save(&State{Cookies: []browser.Cookie{sessionCookie}}))
	b := &fakeBrowser{}

	err := NewCoordinator(store, testOptions(true), nil).Establish(context.Background(), b)
	require.NoError(t, err)
	assert.Empty(t, b.navigated)
	assert.Equal(t, []browser.Cookie{sessionCookie}, b.importedCookies())
}

func TestLeader_LoginTimeout(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	opts := testOptions(true)
	opts.LoginTimeout = 30 * time.Millisecond

	err := NewCoordinator(store, opts, nil).Establish(context.Background(), &fakeBrowser{})
	assert.ErrorIs(t, err, ErrLoginTimeout)
	assert.False(t, store.Exists())
}

func TestLeader_Cancelled(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewCoordinator(store, testOptions(true), nil).Establish(ctx, &fakeBrowser{})
	assert.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFollower_WaitsForLeader(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	leader := &fakeBrowser{loginAt: 5, exported: []browser.Cookie{sessionCookie}}
	follower := &fakeBrowser{}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = NewCoordinator(store, testOptions(true), nil).Establish(context.Background(), leader)
	}()
	go func() {
		defer wg.Done()
		errs[1] = NewCoordinator(store, testOptions(false), nil).Establish(context.Background(), follower)
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Empty(t, follower.navigated)
	assert.Equal(t, []browser.Cookie{sessionCookie}, follower.importedCookies())
}

func TestFollower_HandshakeWaitsForLock(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, store.Save(&State{Cookies: []browser.Cookie{sessionCookie}}))

	lock := store.lock()
	require.NoError(t, lock.Lock())

	follower := &fakeBrowser{}
	done := make(chan error, 1)
	go func() {
		done <- NewCoordinator(store, testOptions(false), nil).Establish(context.Background(), follower)
	}()

	select {
	case err := <-done:
		t.Fatalf("follower finished while the lock was held: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, follower.importedCookies())

	require.NoError(t, lock.Unlock())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("follower did not finish after the lock was released")
	}
	assert.Equal(t, []browser.Cookie{sessionCookie}, follower.importedCookies())
}

func TestFollower_Timeout(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	opts := testOptions(false)
	opts.WaitTimeout = 30 * time.Millisecond

	err := NewCoordinator(store, opts, nil).Establish(context.Background(), &fakeBrowser{})
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestForceLogin_ReplacesArtifact(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, store.Save(&State{URL: "old"}))
	b := &fakeBrowser{loginAt: 1, exported: []browser.Cookie{sessionCookie}}

	st, err := NewCoordinator(store, testOptions(true), nil).ForceLogin(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, "https://lms.example/dashboard", st.URL)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, st.URL, loaded.URL)
}
