// Package browser provides the page driver used to walk the exercise site.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNavigation is returned when a URL cannot be loaded at all.
var ErrNavigation = errors.New("navigation failed")

// Element is an opaque reference to a node on the current page.
type Element struct {
	// Key identifies the element for logging and in fakes.
	Key string

	// Handle is the driver-specific node reference.
	Handle any
}

// Driver is the page automation contract. Queries are bounded: a timeout or a
// missing element comes back as false or empty, never as an error. Only
// Navigate and Click report failures.
type Driver interface {
	// FindByExactText returns a clickable element whose whole trimmed text is label.
	FindByExactText(ctx context.Context, label string) (Element, bool)

	// FindAll returns every element matching selector. Selectors are CSS
	// unless prefixed with "xpath:".
	FindAll(ctx context.Context, selector string) []Element

	IsVisible(ctx context.Context, el Element, timeout time.Duration) bool
	Click(ctx context.Context, el Element) error
	ReadText(ctx context.Context, el Element) (string, bool)
	ReadValue(ctx context.Context, el Element) (string, bool)
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) string
	Wait(ctx context.Context, d time.Duration) error
}

// Cookie is a browser cookie in a driver-neutral form.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// CookieJar reads and writes the cookies of a browsing context.
type CookieJar interface {
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
