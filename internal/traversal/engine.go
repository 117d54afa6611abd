// Package traversal walks a question set in order: it navigates to each
// question, extracts the submission, triggers the platform's grading, asks the
// classifier for a second opinion and records one result per question.
package traversal

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/harrison/gradewalker/internal/browser"
	"github.com/harrison/gradewalker/internal/classifier"
	"github.com/harrison/gradewalker/internal/config"
	"github.com/harrison/gradewalker/internal/models"
	"github.com/harrison/gradewalker/internal/report"
	"github.com/harrison/gradewalker/internal/strategy"
)

// State is the engine's position in the question loop.
type State int32

const (
	StateDiscovering State = iota
	StateNavigating
	StateExtracting
	StateGrading
	StateClassifying
	StateAdvancing
	StateDone
	StateAborted
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateDiscovering:
		return "discovering"
	case StateNavigating:
		return "navigating"
	case StateExtracting:
		return "extracting"
	case StateGrading:
		return "grading"
	case StateClassifying:
		return "classifying"
	case StateAdvancing:
		return "advancing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the run has stopped.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// Logger defines the interface for logging run progress and results.
type Logger interface {
	LogTrace(message string)
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
	LogRunStart(runner, start, end int)
	LogDiscovery(total int, discovered bool)
	LogQuestionStart(index, attempt int)
	LogQuestionRetry(index, attempt int, err error)
	LogQuestionResult(result models.QuestionResult)
	LogSummary(summary models.Summary, state string, reportPath string)
}

// Observer receives run telemetry. Implementations must not block.
type Observer interface {
	ObserveQuestion(result models.QuestionResult)
	ObserveRetry(index int, phase Phase)
	ObserveRun(state State, summary models.Summary)
}

// Pacer is consulted after every network classification.
type Pacer interface {
	Tick(ctx context.Context) (bool, error)
}

// Options configures an Engine.
type Options struct {
	// Start and End bound the ordinals to process. End <= 0 runs until the
	// question set is exhausted.
	Start int
	End   int

	// Range, when set, replaces Start/End once the total is known. Used by
	// runners that split a question set among themselves.
	Range func(total int) (start, end int)

	Runner int

	// QuestionSetURL is opened before discovery. Empty keeps the current page.
	QuestionSetURL string

	MarkerFormat         string
	DefaultQuestionCount int
	MaxAttempts          int
	SettleDelay          time.Duration
	VisibilityTimeout    time.Duration

	// ClassifyTimeout bounds one classification including all retries.
	ClassifyTimeout time.Duration

	Grading GradingOptions
	Layout  config.LayoutConfig

	// Now stamps results. Defaults to time.Now.
	Now func() time.Time
}

// GradingOptions configures the result poll.
type GradingOptions struct {
	PollAttempts int
	PollInterval time.Duration
	Keywords     GradeKeywords
}

// OptionsFromConfig maps configuration onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	runner := 0
	if cfg.Runners > 1 {
		runner = cfg.RunnerID
	}
	return Options{
		Start:                cfg.Start,
		End:                  cfg.End,
		Runner:               runner,
		QuestionSetURL:       cfg.QuestionSetURL(),
		MarkerFormat:         cfg.Traversal.MarkerFormat,
		DefaultQuestionCount: cfg.Traversal.DefaultQuestionCount,
		MaxAttempts:          cfg.Traversal.MaxAttempts,
		SettleDelay:          cfg.Traversal.SettleDelay,
		VisibilityTimeout:    cfg.Traversal.VisibilityTimeout,
		ClassifyTimeout:      cfg.Classifier.Timeout,
		Grading: GradingOptions{
			PollAttempts: cfg.Grading.PollAttempts,
			PollInterval: cfg.Grading.PollInterval,
			Keywords: GradeKeywords{
				Passed:     cfg.Grading.Passed,
				Failed:     cfg.Grading.Failed,
				Processing: cfg.Grading.Processing,
			},
		},
		Layout: cfg.Layout,
	}
}

// Deps are the collaborators of an Engine. Driver and Report are required.
type Deps struct {
	Driver     browser.Driver
	Classifier classifier.Classifier
	Report     *report.Accumulator
	Logger     Logger
	Pacer      Pacer
	Observers  []Observer
}

// RunResult describes a finished run.
type RunResult struct {
	State      State
	Total      int
	Discovered bool
	Start      int
	End        int
	Summary    models.Summary
	ReportPath string
}

// Engine is the question traversal state machine. An Engine runs once.
type Engine struct {
	opts       Options
	driver     browser.Driver
	classifier classifier.Classifier
	acc        *report.Accumulator
	log        Logger
	pacer      Pacer
	observers  []Observer

	marker *regexp.Regexp
	state  atomic.Int32

	// inFlight is the ordinal whose result is not final yet (0 when none).
	inFlight int
}

// New creates an Engine.
func New(opts Options, deps Deps) (*Engine, error) {
	if deps.Driver == nil {
		return nil, fmt.Errorf("page driver cannot be nil")
	}
	if deps.Report == nil {
		return nil, fmt.Errorf("report accumulator cannot be nil")
	}

	if opts.MarkerFormat == "" {
		opts.MarkerFormat = "Q%d"
	}
	marker, err := markerPattern(opts.MarkerFormat)
	if err != nil {
		return nil, err
	}
	if opts.Start < 1 {
		opts.Start = 1
	}
	if opts.DefaultQuestionCount < 1 {
		opts.DefaultQuestionCount = 90
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		opts:       opts,
		driver:     deps.Driver,
		classifier: deps.Classifier,
		acc:        deps.Report,
		log:        deps.Logger,
		pacer:      deps.Pacer,
		marker:     marker,
	}
	if e.classifier == nil {
		e.classifier = classifier.Disabled{Reason: "no classifier configured"}
	}
	if e.log == nil {
		e.log = nopLogger{}
	}
	for _, o := range deps.Observers {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
	e.setState(StateDiscovering)
	return e, nil
}

// markerPattern turns a marker format such as "Q%d" into ^Q(\d+)$.
func markerPattern(format string) (*regexp.Regexp, error) {
	parts := strings.Split(format, "%d")
	if len(parts) != 2 {
		return nil, fmt.Errorf("marker format %q must contain exactly one %%d", format)
	}
	return regexp.Compile("^" + regexp.QuoteMeta(parts[0]) + `(\d+)` + regexp.QuoteMeta(parts[1]) + "$")
}

// State returns the current state. Safe for concurrent use.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Label renders the marker label of ordinal i.
func (e *Engine) Label(i int) string {
	return fmt.Sprintf(e.opts.MarkerFormat, i)
}

func (e *Engine) ledger() *report.Ledger {
	return e.acc.Ledger()
}

// Run processes the configured range and writes the final report. The final
// flush happens exactly once whatever way Run exits, panics included.
func (e *Engine) Run(ctx context.Context) (res *RunResult, err error) {
	res = &RunResult{}

	defer func() {
		rec := recover()
		if rec != nil {
			e.dropInFlight()
			e.setState(StateAborted)
		}

		path, ferr := e.acc.Finalize()
		if ferr != nil {
			e.log.LogError(fmt.Sprintf("Final report flush failed: %v", ferr))
			if err == nil && rec == nil {
				err = ferr
			}
		}

		res.State = e.State()
		res.Summary = e.acc.Summary()
		res.ReportPath = path
		e.log.LogSummary(res.Summary, res.State.String(), path)
		for _, o := range e.observers {
			o.ObserveRun(res.State, res.Summary)
		}

		if rec != nil {
			panic(rec)
		}
	}()

	if e.opts.QuestionSetURL != "" {
		if err := e.driver.Navigate(ctx, e.opts.QuestionSetURL); err != nil {
			if ctx.Err() != nil {
				return res, e.interrupt(0)
			}
			e.setState(StateAborted)
			return res, fmt.Errorf("failed to open question set: %w", err)
		}
		if err := e.driver.Wait(ctx, e.opts.SettleDelay); err != nil {
			return res, e.interrupt(0)
		}
	}

	e.setState(StateDiscovering)
	res.Total, res.Discovered = e.Discover(ctx)
	if ctx.Err() != nil {
		return res, e.interrupt(0)
	}
	e.log.LogDiscovery(res.Total, res.Discovered)

	res.Start, res.End = e.bounds(res.Total, res.Discovered)
	e.log.LogRunStart(e.opts.Runner, res.Start, res.End)
	if res.End > 0 && res.Start > res.End {
		e.log.LogInfo(fmt.Sprintf("Nothing to do: start %d is past end %d", res.Start, res.End))
		e.setState(StateDone)
		return res, nil
	}

	e.setState(StateNavigating)
	if !e.NavigateTo(ctx, res.Start) {
		if ctx.Err() != nil {
			return res, e.interrupt(0)
		}
		switch {
		case res.Start == 1:
			e.log.LogDebug("First marker not clickable, assuming the question set opened on question 1")
		case !e.markerExists(ctx, res.Start):
			e.log.LogInfo(fmt.Sprintf("Question %d does not exist", res.Start))
			e.setState(StateDone)
			return res, nil
		default:
			e.setState(StateAborted)
			return res, fmt.Errorf("%w: could not open question %d", ErrAborted, res.Start)
		}
	}

	for i := res.Start; ; i++ {
		if ctx.Err() != nil {
			return res, e.interrupt(i)
		}

		if err := e.processQuestion(ctx, i); err != nil {
			return res, e.interrupt(i)
		}

		if res.End > 0 && i >= res.End {
			e.setState(StateDone)
			return res, nil
		}

		e.setState(StateAdvancing)
		next, err := e.advance(ctx, i)
		if err != nil {
			if ctx.Err() != nil {
				return res, e.interrupt(i + 1)
			}
			e.setState(StateAborted)
			return res, err
		}
		if !next {
			e.setState(StateDone)
			return res, nil
		}
	}
}

// bounds resolves the ordinal range once the total is known. A discovered
// total caps the end; a default total does not, existence checks stop the run.
func (e *Engine) bounds(total int, discovered bool) (int, int) {
	if e.opts.Range != nil {
		return e.opts.Range(total)
	}
	start, end := e.opts.Start, e.opts.End
	if end <= 0 {
		end = total
	}
	if discovered && end > total {
		end = total
	}
	return start, end
}

// interrupt abandons the in-flight question and marks the run aborted.
func (e *Engine) interrupt(index int) error {
	e.dropInFlight()
	e.setState(StateAborted)
	if index > 0 {
		e.log.LogWarn(fmt.Sprintf("Interrupted at question %d", index))
		return fmt.Errorf("%w at question %d", ErrInterrupted, index)
	}
	return ErrInterrupted
}

func (e *Engine) dropInFlight() {
	if e.inFlight > 0 {
		e.ledger().Discard(e.inFlight)
		e.inFlight = 0
	}
}

// processQuestion takes ordinal i to a recorded result. It returns an error
// only when the context is done.
func (e *Engine) processQuestion(ctx context.Context, i int) error {
	e.inFlight = i

	result, err := e.attemptWithRetry(ctx, i)
	if err != nil {
		return err
	}

	e.setState(StateClassifying)
	resp, networked := e.classify(ctx, result)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	result.ClassifierVerdict = resp.Verdict
	result.ClassifierRemarks = resp.Remarks
	if resp.Verdict != models.VerdictMatch {
		result.SuggestedRequirements = resp.SuggestedRequirements
	}

	e.ledger().Record(result)
	e.inFlight = 0
	if _, err := e.acc.Flush(); err != nil {
		e.log.LogWarn(fmt.Sprintf("Checkpoint flush failed: %v", err))
	}

	e.log.LogQuestionResult(result)
	for _, o := range e.observers {
		o.ObserveQuestion(result)
	}

	if networked && e.pacer != nil {
		if _, err := e.pacer.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// attemptWithRetry runs up to MaxAttempts attempts. Exhausted attempts yield
// a SKIPPED result carrying the last error.
func (e *Engine) attemptWithRetry(ctx context.Context, i int) (models.QuestionResult, error) {
	var (
		last    models.QuestionResult
		lastErr error
	)
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return last, ctx.Err()
		}
		e.log.LogQuestionStart(i, attempt)

		if attempt > 1 {
			e.ledger().Discard(i)
			e.setState(StateNavigating)
			if !e.NavigateTo(ctx, i) {
				if ctx.Err() != nil {
					return last, ctx.Err()
				}
				lastErr = &QuestionError{Index: i, Phase: PhaseNavigate, Err: fmt.Errorf("%w: marker %s", ErrControlNotFound, e.Label(i))}
				e.noteRetry(i, attempt, lastErr)
				continue
			}
		}

		result, err := e.attempt(ctx, i, attempt)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if result.Index == i {
			last = result
		}
		lastErr = err
		e.noteRetry(i, attempt, err)
	}

	if last.Index != i {
		last = models.QuestionResult{
			Index:        i,
			QuestionText: models.NotCaptured,
			Units:        []models.SourceUnit{{Label: models.DefaultUnitLabel, Text: models.NotCaptured}},
			CreatedAt:    e.opts.Now(),
			Runner:       e.opts.Runner,
		}
	}
	last.Outcome = models.OutcomeSkipped
	last.Attempts = e.opts.MaxAttempts
	if lastErr != nil {
		last.ErrorDetail = lastErr.Error()
	}
	e.log.LogWarn(fmt.Sprintf("Question %d: giving up after %d attempts", i, e.opts.MaxAttempts))
	return last, nil
}

func (e *Engine) noteRetry(i, attempt int, err error) {
	if attempt < e.opts.MaxAttempts {
		e.log.LogQuestionRetry(i, attempt, err)
	}
	phase := PhaseExtract
	if qe, ok := AsQuestionError(err); ok {
		phase = qe.Phase
	}
	for _, o := range e.observers {
		o.ObserveRetry(i, phase)
	}
}

// attempt extracts and grades ordinal i once. The extracted submission is
// recorded provisionally so a retry can discard it.
func (e *Engine) attempt(ctx context.Context, i, attempt int) (models.QuestionResult, error) {
	e.setState(StateExtracting)
	sub, err := e.Extract(ctx, i)
	if err != nil {
		return models.QuestionResult{}, &QuestionError{Index: i, Phase: PhaseExtract, Err: err}
	}

	result := models.QuestionResult{
		Index:        i,
		QuestionText: sub.QuestionText,
		Units:        sub.Units,
		Outcome:      models.OutcomeSkipped,
		CreatedAt:    e.opts.Now(),
		Attempts:     attempt,
		Runner:       e.opts.Runner,
	}
	e.ledger().Record(result)

	if sub.NoFiles {
		e.log.LogDebug(fmt.Sprintf("Question %d: file tabs present but no files, skipping grading", i))
		return result, nil
	}

	e.setState(StateGrading)
	outcome, err := e.Grade(ctx, i)
	if err != nil {
		return result, &QuestionError{Index: i, Phase: PhaseGrade, Err: err}
	}
	result.Outcome = outcome
	return result, nil
}

// classify asks the classifier under the engine's own timeout. The bool is
// true when the classifier was consulted over the network.
func (e *Engine) classify(ctx context.Context, result models.QuestionResult) (classifier.Response, bool) {
	if !result.HasCode() {
		return classifier.Response{Verdict: models.VerdictSkipped, Remarks: "no code captured"}, false
	}

	cctx := ctx
	cancel := func() {}
	if e.opts.ClassifyTimeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, e.opts.ClassifyTimeout)
	}
	defer cancel()

	done := make(chan classifier.Response, 1)
	go func() {
		done <- e.classifier.Classify(cctx, classifier.Request{QuestionText: result.QuestionText, Units: result.Units})
	}()

	select {
	case resp := <-done:
		return resp, resp.Attempts > 0 && !resp.Cached
	case <-cctx.Done():
		if ctx.Err() != nil {
			return classifier.Response{Verdict: models.VerdictError, Remarks: "classification interrupted"}, false
		}
		return classifier.Response{
			Verdict: models.VerdictError,
			Remarks: fmt.Sprintf("classification timed out after %s", e.opts.ClassifyTimeout),
		}, true
	}
}

// advance moves from ordinal i to i+1. It returns false when i is the last
// question and ErrAborted when the next question cannot be reached.
func (e *Engine) advance(ctx context.Context, i int) (bool, error) {
	if !e.ExistsNext(ctx, i) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}

	if next, name, ok := strategy.First(ctx, e.visibleChain(e.opts.Layout.NextButton)); ok {
		if err := e.driver.Click(ctx, next); err == nil {
			e.log.LogTrace(fmt.Sprintf("Question %d: advanced via %s", i, name))
			return true, e.driver.Wait(ctx, e.opts.SettleDelay)
		}
	}

	e.setState(StateNavigating)
	if e.NavigateTo(ctx, i+1) {
		e.log.LogDebug(fmt.Sprintf("Question %d: next control failed, navigated to %s directly", i, e.Label(i+1)))
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return false, fmt.Errorf("%w: cannot reach question %d", ErrAborted, i+1)
}

// nopLogger is used when no logger is configured.
type nopLogger struct{}

func (nopLogger) LogTrace(string)                           {}
func (nopLogger) LogDebug(string)                           {}
func (nopLogger) LogInfo(string)                            {}
func (nopLogger) LogWarn(string)                            {}
func (nopLogger) LogError(string)                           {}
func (nopLogger) LogRunStart(int, int, int)                 {}
func (nopLogger) LogDiscovery(int, bool)                    {}
func (nopLogger) LogQuestionStart(int, int)                 {}
func (nopLogger) LogQuestionRetry(int, int, error)          {}
func (nopLogger) LogQuestionResult(models.QuestionResult)   {}
func (nopLogger) LogSummary(models.Summary, string, string) {}
