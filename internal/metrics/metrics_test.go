package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/gradewalker/internal/models"
	"github.com/harrison/gradewalker/internal/traversal"
)

type stubPacer struct {
	ticks int
	err   error
}

func (p *stubPacer) Tick(context.Context) (bool, error) {
	p.ticks++
	return p.ticks%2 == 0, p.err
}

func TestMetrics_Observers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveQuestion(models.QuestionResult{Index: 1, Outcome: models.OutcomePassed, Runner: 2})
	m.ObserveQuestion(models.QuestionResult{Index: 2, Outcome: models.OutcomePassed, Runner: 2})
	m.ObserveQuestion(models.QuestionResult{Index: 3, Outcome: models.OutcomeSkipped, Runner: 2})
	m.ObserveRetry(3, traversal.PhaseGrade)
	m.ObserveRun(traversal.StateDone, models.Summary{})
	m.ObserveClassification(models.VerdictMatch, "sonnet", 2, 1500*time.Millisecond)
	m.ObserveClassification(models.VerdictError, "", 0, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.questions.WithLabelValues("PASSED", "2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.questions.WithLabelValues("SKIPPED", "2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues(traversal.PhaseGrade.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(traversal.StateDone.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verdicts.WithLabelValues(string(models.VerdictMatch))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verdicts.WithLabelValues(string(models.VerdictError))))
	assert.Equal(t, 2, testutil.CollectAndCount(m.classifyDuration))
}

func TestNew_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)
	second, err := New(reg)
	require.NoError(t, err)

	first.ObserveRun(traversal.StateAborted, models.Summary{})
	second.ObserveRun(traversal.StateAborted, models.Summary{})

	assert.Equal(t, 2.0, testutil.ToFloat64(first.runs.WithLabelValues(traversal.StateAborted.String())))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuestion(models.QuestionResult{})
		m.ObserveRetry(1, traversal.PhaseExtract)
		m.ObserveRun(traversal.StateDone, models.Summary{})
		m.ObserveClassification(models.VerdictMatch, "x", 1, time.Second)
	})

	p := &stubPacer{}
	assert.Same(t, traversal.Pacer(p), m.InstrumentPacer(p))
}

func TestInstrumentPacer(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	inner := &stubPacer{}
	p := m.InstrumentPacer(inner)
	for i := 0; i < 5; i++ {
		_, err := p.Tick(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 5, inner.ticks)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cooldowns))

	inner.err = errors.New("cancelled")
	_, err = p.Tick(context.Background())
	assert.EqualError(t, err, "cancelled")
}

func TestServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	m.ObserveRun(traversal.StateDone, models.Summary{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, err := Serve(ctx, "127.0.0.1:0", reg)
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `gradewalker_runs_total{state="done"} 1`), string(body))
}
