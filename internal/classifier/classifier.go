// Package classifier judges whether submitted code implements what its question asks.
//
// The Client wraps a Backend (a single model call) with per-model retry and
// exponential backoff, ordered model fallback, response parsing with a keyword
// heuristic fallback, per-unit token caps and an in-process result cache.
// Classify never returns an error: every failure path resolves to a Response
// whose verdict is ERROR or SKIPPED so the caller can always record a row.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/harrison/gradewalker/internal/models"
)

// Classifier is the contract consumed by the traversal engine.
type Classifier interface {
	Classify(ctx context.Context, req Request) Response
}

// Request is one question/code pair.
type Request struct {
	QuestionText string
	Units        []models.SourceUnit
}

// HasCode reports whether any unit carries real code.
func (r Request) HasCode() bool {
	for _, u := range r.Units {
		if !u.IsSentinel() {
			return true
		}
	}
	return false
}

// Response is the classifier's judgment.
type Response struct {
	Verdict               models.Verdict
	Remarks               string
	SuggestedRequirements []string

	// Model that produced the response; empty for local verdicts.
	Model string

	// Attempts counts backend calls made across all models.
	Attempts int

	// Cached is true when the response came from the cache.
	Cached bool
}

// Observer receives per-call telemetry. Implemented by the metrics package.
type Observer interface {
	ObserveClassification(verdict models.Verdict, model string, attempts int, elapsed time.Duration)
}

// Options configures a Client.
type Options struct {
	// Models is tried in order. An empty entry lets the backend pick its default.
	Models []string

	// MaxAttempts is the number of calls per model, including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt; each later delay doubles.
	InitialBackoff time.Duration

	// MaxUnitTokens caps each unit before transmission (0 = no cap).
	MaxUnitTokens int

	// CacheSize bounds the response cache (0 disables caching).
	CacheSize int

	// Keywords drives the heuristic fallback. Nil uses DefaultKeywordTable.
	Keywords KeywordTable

	Observer Observer

	// Notify is called before each backoff delay.
	Notify func(model string, err error, delay time.Duration)

	// NewTimer replaces the backoff timer. Tests use it to observe delays.
	NewTimer func() backoff.Timer
}

// Client implements Classifier on top of a Backend.
type Client struct {
	backend   Backend
	opts      Options
	cache     *Cache
	truncator *Truncator
}

// NewClient creates a Client for backend.
func NewClient(backend Backend, opts Options) *Client {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 2 * time.Second
	}
	if len(opts.Models) == 0 {
		opts.Models = []string{""}
	}
	if opts.Keywords == nil {
		opts.Keywords = DefaultKeywordTable()
	}

	c := &Client{
		backend:   backend,
		opts:      opts,
		truncator: NewTruncator(opts.MaxUnitTokens),
	}
	if opts.CacheSize > 0 {
		c.cache = NewCache(opts.CacheSize)
	}
	return c
}

// Classify returns a verdict for req. It never returns an error.
func (c *Client) Classify(ctx context.Context, req Request) Response {
	if !req.HasCode() {
		return Response{Verdict: models.VerdictSkipped, Remarks: "no code captured"}
	}

	start := time.Now()
	key := CacheKey(req)
	if cached, ok := c.cache.Get(key); ok {
		cached.Cached = true
		return cached
	}

	prompt := BuildPrompt(req, c.truncator)

	var (
		lastErr  error
		attempts int
	)
	for _, model := range c.opts.Models {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		raw, n, err := c.callWithRetry(ctx, model, prompt)
		attempts += n
		if err != nil {
			lastErr = err
			continue
		}

		resp := ParseResponse(raw, c.opts.Keywords)
		resp.Model = model
		resp.Attempts = attempts
		c.cache.Add(key, resp)
		c.observe(resp, start)
		return resp
	}

	resp := Response{
		Verdict:  models.VerdictError,
		Remarks:  errorRemarks(lastErr),
		Attempts: attempts,
	}
	c.observe(resp, start)
	return resp
}

// callWithRetry calls one model until it succeeds, fails permanently or runs
// out of attempts. It returns the number of calls made.
func (c *Client) callWithRetry(ctx context.Context, model, prompt string) (string, int, error) {
	var (
		raw   string
		calls int
	)

	operation := func() error {
		calls++
		text, err := c.backend.Complete(ctx, model, prompt)
		if err != nil {
			if ctx.Err() != nil || !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if strings.TrimSpace(text) == "" {
			return ErrEmptyReply
		}
		raw = text
		return nil
	}

	notify := func(err error, delay time.Duration) {
		if c.opts.Notify != nil {
			c.opts.Notify(model, err, delay)
		}
	}

	var timer backoff.Timer
	if c.opts.NewTimer != nil {
		timer = c.opts.NewTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, c.policy(ctx), notify, timer)
	return raw, calls, err
}

// policy doubles the delay after each failure, without jitter.
func (c *Client) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.opts.InitialBackoff << 6
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxAttempts-1)), ctx)
}

func (c *Client) observe(resp Response, start time.Time) {
	if c.opts.Observer != nil {
		c.opts.Observer.ObserveClassification(resp.Verdict, resp.Model, resp.Attempts, time.Since(start))
	}
}

func errorRemarks(err error) string {
	switch {
	case err == nil:
		return "classification failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("classification interrupted: %v", err)
	default:
		return fmt.Sprintf("classification failed: %v", err)
	}
}

// Disabled always answers SKIPPED. It stands in when no credential is configured.
type Disabled struct {
	Reason string
}

// Classify implements Classifier.
func (d Disabled) Classify(context.Context, Request) Response {
	reason := d.Reason
	if reason == "" {
		reason = "classifier disabled"
	}
	return Response{Verdict: models.VerdictSkipped, Remarks: reason}
}

var (
	_ Classifier = (*Client)(nil)
	_ Classifier = Disabled{}
)
