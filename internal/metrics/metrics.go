// Package metrics exports run telemetry to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harrison/gradewalker/internal/classifier"
	"github.com/harrison/gradewalker/internal/models"
	"github.com/harrison/gradewalker/internal/traversal"
)

const namespace = "gradewalker"

// Metrics holds the collectors. It implements traversal.Observer and
// classifier.Observer. A nil *Metrics records nothing.
type Metrics struct {
	questions        *prometheus.CounterVec
	retries          *prometheus.CounterVec
	runs             *prometheus.CounterVec
	verdicts         *prometheus.CounterVec
	classifyDuration *prometheus.HistogramVec
	classifyAttempts prometheus.Histogram
	cooldowns        prometheus.Counter
}

// New creates the collectors and registers them with reg. Collectors that
// are already registered are reused, so several runners in one process can
// share a registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_total",
			Help:      "Questions recorded, by platform outcome and runner.",
		}, []string{"outcome", "runner"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "question_retries_total",
			Help:      "Failed question attempts, by the phase that failed.",
		}, []string{"phase"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs, by final state.",
		}, []string{"state"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "verdicts_total",
			Help:      "Classifier verdicts, by verdict.",
		}, []string{"verdict"}),
		classifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "duration_seconds",
			Help:      "Time spent on one classification including retries.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
		}, []string{"model"}),
		classifyAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "attempts",
			Help:      "Backend calls made for one classification.",
			Buckets:   []float64{1, 2, 3, 4, 6, 9},
		}),
		cooldowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "cooldowns_total",
			Help:      "Mandatory pauses taken between classifier batches.",
		}),
	}

	var err error
	if m.questions, err = register(reg, m.questions); err != nil {
		return nil, err
	}
	if m.retries, err = register(reg, m.retries); err != nil {
		return nil, err
	}
	if m.runs, err = register(reg, m.runs); err != nil {
		return nil, err
	}
	if m.verdicts, err = register(reg, m.verdicts); err != nil {
		return nil, err
	}
	if m.classifyDuration, err = register(reg, m.classifyDuration); err != nil {
		return nil, err
	}
	if m.classifyAttempts, err = register(reg, m.classifyAttempts); err != nil {
		return nil, err
	}
	if m.cooldowns, err = register(reg, m.cooldowns); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, returning the existing collector when an identical
// one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

// ObserveQuestion counts a recorded result.
func (m *Metrics) ObserveQuestion(result models.QuestionResult) {
	if m == nil {
		return
	}
	m.questions.WithLabelValues(string(result.Outcome), strconv.Itoa(result.Runner)).Inc()
}

// ObserveRetry counts a failed attempt.
func (m *Metrics) ObserveRetry(_ int, phase traversal.Phase) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(phase.String()).Inc()
}

// ObserveRun counts a finished run.
func (m *Metrics) ObserveRun(state traversal.State, _ models.Summary) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(state.String()).Inc()
}

// ObserveClassification records one classifier response.
func (m *Metrics) ObserveClassification(verdict models.Verdict, model string, attempts int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if model == "" {
		model = "none"
	}
	m.verdicts.WithLabelValues(string(verdict)).Inc()
	m.classifyDuration.WithLabelValues(model).Observe(elapsed.Seconds())
	m.classifyAttempts.Observe(float64(attempts))
}

// InstrumentPacer counts the pauses p takes.
func (m *Metrics) InstrumentPacer(p traversal.Pacer) traversal.Pacer {
	if m == nil || p == nil {
		return p
	}
	return &pacer{next: p, cooldowns: m.cooldowns}
}

type pacer struct {
	next      traversal.Pacer
	cooldowns prometheus.Counter
}

func (p *pacer) Tick(ctx context.Context) (bool, error) {
	paused, err := p.next.Tick(ctx)
	if paused {
		p.cooldowns.Inc()
	}
	return paused, err
}

// Serve exposes gatherer on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) (net.Addr, error) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		_ = server.Serve(listener)
	}()
	return listener.Addr(), nil
}

var (
	_ traversal.Observer  = (*Metrics)(nil)
	_ classifier.Observer = (*Metrics)(nil)
)
