package traversal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrison/gradewalker/internal/browser"
	"github.com/harrison/gradewalker/internal/classifier"
	"github.com/harrison/gradewalker/internal/config"
	"github.com/harrison/gradewalker/internal/models"
	"github.com/harrison/gradewalker/internal/report"
	"github.com/stretchr/testify/require"
)

var errClickFailed = errors.New("element detached")

// fakeQuestion is one page of the simulated question set.
type fakeQuestion struct {
	text string
	code string

	// tabs maps tab labels to code, in order; tabStrip shows the tab container.
	tabs     []fakeTab
	tabStrip bool

	// result is the indicator text once the run control was clicked.
	result string
	// processing polls before result appears.
	processing int
	// bodyOnly puts the result in the page body instead of the indicator.
	bodyOnly bool

	// missingRun hides the run control for this many attempts.
	missingRun int
}

type fakeTab struct {
	label string
	code  string
}

// fakeSite is a browser.Driver over an in-memory question set with markers
// Q1..Q<total>.
type fakeSite struct {
	mu sync.Mutex

	total     int
	questions map[int]*fakeQuestion
	current   int
	activeTab int
	polls     int
	graded    bool

	nextButton  bool
	failMarkers map[int]bool

	// onRun is called with the ordinal whenever the run control is clicked.
	onRun func(index int)

	clicks     []string
	runClicks  map[int]int
	runLookups map[int]int
}

func newFakeSite(total int) *fakeSite {
	s := &fakeSite{
		total:       total,
		questions:   map[int]*fakeQuestion{},
		current:     1,
		nextButton:  true,
		failMarkers: map[int]bool{},
		runClicks:   map[int]int{},
		runLookups:  map[int]int{},
	}
	for i := 1; i <= total; i++ {
		s.questions[i] = &fakeQuestion{
			text:   fmt.Sprintf("Write function number %d", i),
			code:   fmt.Sprintf("def f%d():\n    return %d", i, i),
			result: "All test cases passed",
		}
	}
	return s
}

func (s *fakeSite) question() *fakeQuestion {
	if q, ok := s.questions[s.current]; ok {
		return q
	}
	return &fakeQuestion{}
}

func el(key string) browser.Element { return browser.Element{Key: key} }

// FindByExactText is deliberately sloppy: it returns the highest-numbered
// marker whose label starts with the requested one, so "Q2" finds "Q20".
func (s *fakeSite) FindByExactText(ctx context.Context, label string) (browser.Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := s.total; i >= 1; i-- {
		if strings.HasPrefix(fmt.Sprintf("Q%d", i), label) {
			return el("marker:" + strconv.Itoa(i)), true
		}
	}
	return browser.Element{}, false
}

func (s *fakeSite) FindAll(ctx context.Context, selector string) []browser.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return nil
	}

	q := s.question()
	switch selector {
	case ".marker":
		out := make([]browser.Element, 0, s.total)
		for i := 1; i <= s.total; i++ {
			out = append(out, el("marker:"+strconv.Itoa(i)))
		}
		return out
	case ".qtext":
		if q.text != "" {
			return []browser.Element{el("qtext")}
		}
	case ".editor":
		if q.code != "" || len(q.tabs) > 0 {
			return []browser.Element{el("editor")}
		}
	case ".tabs":
		if q.tabStrip {
			return []browser.Element{el("tabs")}
		}
	case ".tab":
		var out []browser.Element
		for n := range q.tabs {
			out = append(out, el("tab:"+strconv.Itoa(n)))
		}
		return out
	case ".run":
		s.runLookups[s.current]++
		if s.runLookups[s.current] > q.missingRun {
			return []browser.Element{el("run")}
		}
	case ".next":
		if s.nextButton && s.current < s.total {
			return []browser.Element{el("next")}
		}
	case ".result":
		if s.graded && !q.bodyOnly {
			return []browser.Element{el("result")}
		}
	case "body":
		return []browser.Element{el("body")}
	}
	return nil
}

func (s *fakeSite) IsVisible(ctx context.Context, _ browser.Element, _ time.Duration) bool {
	return ctx.Err() == nil
}

func (s *fakeSite) Click(ctx context.Context, e browser.Element) error {
	s.mu.Lock()
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.clicks = append(s.clicks, e.Key)

	var hook func(int)
	switch {
	case strings.HasPrefix(e.Key, "marker:"):
		n, _ := strconv.Atoi(strings.TrimPrefix(e.Key, "marker:"))
		if s.failMarkers[n] {
			s.mu.Unlock()
			return errClickFailed
		}
		s.open(n)
	case strings.HasPrefix(e.Key, "tab:"):
		s.activeTab, _ = strconv.Atoi(strings.TrimPrefix(e.Key, "tab:"))
	case e.Key == "next":
		s.open(s.current + 1)
	case e.Key == "run":
		s.runClicks[s.current]++
		s.graded = true
		s.polls = 0
		hook = s.onRun
	}
	current := s.current
	s.mu.Unlock()

	if hook != nil {
		hook(current)
	}
	return nil
}

func (s *fakeSite) open(n int) {
	s.current = n
	s.activeTab = 0
	s.graded = false
}

func (s *fakeSite) ReadText(ctx context.Context, e browser.Element) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return "", false
	}

	q := s.question()
	switch {
	case strings.HasPrefix(e.Key, "marker:"):
		return "Q" + strings.TrimPrefix(e.Key, "marker:"), true
	case strings.HasPrefix(e.Key, "tab:"):
		n, _ := strconv.Atoi(strings.TrimPrefix(e.Key, "tab:"))
		return " " + q.tabs[n].label + " ", true
	case e.Key == "qtext":
		return q.text, true
	case e.Key == "editor":
		if len(q.tabs) > 0 {
			return q.tabs[s.activeTab].code, true
		}
		return q.code, true
	case e.Key == "result":
		s.polls++
		if s.polls <= q.processing {
			return "Processing...", true
		}
		return q.result, true
	case e.Key == "body":
		if s.graded && q.bodyOnly {
			return "Question page\n" + q.result, true
		}
		return "Question page", true
	}
	return "", false
}

// ReadValue reports no form value so code is read as text.
func (s *fakeSite) ReadValue(context.Context, browser.Element) (string, bool) {
	return "", false
}

func (s *fakeSite) Navigate(ctx context.Context, _ string) error {
	return ctx.Err()
}

func (s *fakeSite) CurrentURL(context.Context) string {
	return "https://lms.example/questions"
}

func (s *fakeSite) Wait(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func (s *fakeSite) clicked(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.clicks {
		if c == key {
			n++
		}
	}
	return n
}

// stubClassifier returns a fixed verdict after an optional hook.
type stubClassifier struct {
	mu     sync.Mutex
	calls  int
	before func(ctx context.Context, req classifier.Request)
}

func (c *stubClassifier) Classify(ctx context.Context, req classifier.Request) classifier.Response {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.before != nil {
		c.before(ctx, req)
	}
	if ctx.Err() != nil {
		return classifier.Response{Verdict: models.VerdictError, Remarks: ctx.Err().Error(), Attempts: 1}
	}
	return classifier.Response{
		Verdict:               models.VerdictPartial,
		Remarks:               "misses edge cases",
		SuggestedRequirements: []string{"handle empty input"},
		Model:                 "stub",
		Attempts:              1,
	}
}

func (c *stubClassifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type countingPacer struct {
	ticks int
}

func (p *countingPacer) Tick(ctx context.Context) (bool, error) {
	p.ticks++
	return false, ctx.Err()
}

type recordingObserver struct {
	questions []int
	retries   []Phase
	states    []State
}

func (o *recordingObserver) ObserveQuestion(r models.QuestionResult) {
	o.questions = append(o.questions, r.Index)
}

func (o *recordingObserver) ObserveRetry(_ int, phase Phase) {
	o.retries = append(o.retries, phase)
}

func (o *recordingObserver) ObserveRun(state State, _ models.Summary) {
	o.states = append(o.states, state)
}

func testLayout() config.LayoutConfig {
	return config.LayoutConfig{
		QuestionMarkers:  []string{".marker"},
		QuestionText:     []string{".missing", ".qtext"},
		Editor:           []string{".editor"},
		FileTabContainer: []string{".tabs"},
		FileTabs:         []string{".tab"},
		RunButton:        []string{".run"},
		NextButton:       []string{".next"},
		ResultIndicator:  []string{".result"},
		PageContent:      []string{"body"},
	}
}

func testOptions() Options {
	return Options{
		Start:                1,
		MarkerFormat:         "Q%d",
		DefaultQuestionCount: 90,
		MaxAttempts:          3,
		Grading: GradingOptions{
			PollAttempts: 5,
			Keywords: GradeKeywords{
				Passed:     []string{"passed", "accepted", "correct"},
				Failed:     []string{"incorrect", "wrong answer", "failed"},
				Processing: []string{"processing", "running"},
			},
		},
		Layout: testLayout(),
		Now:    func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

// harness wires an engine over a fake site with a real csv report.
type harness struct {
	site       *fakeSite
	classifier *stubClassifier
	pacer      *countingPacer
	observer   *recordingObserver
	acc        *report.Accumulator
	sink       report.Sink
	dir        string
	engine     *Engine
}

func newHarness(t *testing.T, site *fakeSite, opts Options) *harness {
	t.Helper()
	h := &harness{
		site:       site,
		classifier: &stubClassifier{},
		pacer:      &countingPacer{},
		observer:   &recordingObserver{},
		dir:        t.TempDir(),
	}
	sink, err := report.NewSink("csv", report.Options{Dir: h.dir, Overwrite: true})
	require.NoError(t, err)
	h.sink = sink
	h.acc = report.NewAccumulator(report.NewLedger(), sink, "grading-report")

	h.engine, err = New(opts, Deps{
		Driver:     site,
		Classifier: h.classifier,
		Report:     h.acc,
		Pacer:      h.pacer,
		Observers:  []Observer{h.observer},
	})
	require.NoError(t, err)
	return h
}

func (h *harness) indices() []int {
	var out []int
	for _, r := range h.acc.Ledger().Snapshot() {
		out = append(out, r.Index)
	}
	return out
}
