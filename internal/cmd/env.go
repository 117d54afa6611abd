package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/harrison/gradewalker/internal/browser"
	"github.com/harrison/gradewalker/internal/classifier"
	"github.com/harrison/gradewalker/internal/config"
	"github.com/harrison/gradewalker/internal/history"
	"github.com/harrison/gradewalker/internal/logger"
	"github.com/harrison/gradewalker/internal/metrics"
	"github.com/harrison/gradewalker/internal/report"
	"github.com/harrison/gradewalker/internal/runner"
	"github.com/harrison/gradewalker/internal/session"
	"github.com/harrison/gradewalker/internal/throttle"
	"github.com/harrison/gradewalker/internal/traversal"
)

// runContext is cancelled by SIGINT/SIGTERM and, when configured, by the
// run timeout.
func runContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// runEnv holds what every runner of one invocation shares.
type runEnv struct {
	cfg     *config.Config
	out     io.Writer
	metrics *metrics.Metrics
	history *history.Store
	stamp   string
}

// newRunEnv prepares metrics and the history archive. Neither is essential:
// a history database that cannot be opened is reported and skipped.
func newRunEnv(ctx context.Context, out io.Writer, cfg *config.Config) (*runEnv, func(), error) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	if cfg.MetricsAddr != "" {
		addr, err := metrics.Serve(ctx, cfg.MetricsAddr, reg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to serve metrics: %w", err)
		}
		fmt.Fprintf(out, "Metrics available at http://%s/metrics\n", addr)
	}

	env := &runEnv{
		cfg:     cfg,
		out:     out,
		metrics: m,
		stamp:   time.Now().Format("20060102-150405"),
	}

	if cfg.History.Enabled {
		dbPath, err := historyPath(cfg)
		if err == nil {
			env.history, err = history.NewStore(dbPath)
		}
		if err != nil {
			fmt.Fprintf(out, "Warning: run history disabled: %v\n", err)
			env.history = nil
		}
	}

	cleanup := func() {
		if env.history != nil {
			env.history.Close()
		}
	}
	return env, cleanup, nil
}

// forRunner returns a copy of the configuration for runner id.
func (env *runEnv) forRunner(id int) *config.Config {
	cfg := *env.cfg
	cfg.RunnerID = id
	return &cfg
}

// reportHint names a runner's report. Runners of a fan-out get distinct names.
func (env *runEnv) reportHint(cfg *config.Config) string {
	if cfg.Runners > 1 {
		return fmt.Sprintf("%s-r%d-%s", cfg.Report.Name, cfg.RunnerID, env.stamp)
	}
	return fmt.Sprintf("%s-%s", cfg.Report.Name, env.stamp)
}

// runOne assembles and runs a single runner: logging, browser, session,
// classifier, pacing, report and history.
func (env *runEnv) runOne(ctx context.Context, id int) (runner.Result, error) {
	cfg := env.forRunner(id)
	multi := cfg.Runners > 1
	result := runner.Result{ID: id}

	logDir := cfg.LogDir
	console := logger.NewConsoleLogger(env.out, cfg.LogLevel)
	if multi {
		logDir = filepath.Join(logDir, fmt.Sprintf("runner-%d", id))
		console = console.WithRunnerPrefix(id)
	}
	fileLog, err := logger.NewFileLoggerWithDirAndLevel(logDir, cfg.LogLevel)
	if err != nil {
		return result, fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()
	log := logger.NewMultiLogger(console, fileLog)

	path, err := sessionPath(cfg)
	if err != nil {
		return result, fmt.Errorf("failed to resolve session path: %w", err)
	}
	store := session.NewStore(path)
	coordinator := session.NewCoordinator(store, session.OptionsFromConfig(cfg), log)

	manager := browser.NewManager(cfg.Browser, fmt.Sprintf("runner-%d", id))
	if cfg.IsLeader() && !store.Exists() {
		log.LogInfo("No saved session, opening a browser window for login")
		manager = manager.Headed()
	}
	defer manager.Close()

	driver, closeTab, err := manager.NewTab(ctx)
	if err != nil {
		return result, err
	}
	defer closeTab()

	if err := coordinator.Establish(ctx, driver); err != nil {
		return result, fmt.Errorf("failed to establish session: %w", err)
	}

	cls, err := classifier.New(cfg.Classifier, classifier.Options{
		Observer: env.metrics,
		Notify: func(model string, err error, delay time.Duration) {
			log.LogDebug(fmt.Sprintf("Classifier %s: %v, retrying in %s", model, err, delay.Round(time.Millisecond)))
		},
	})
	if err != nil {
		return result, fmt.Errorf("failed to create classifier: %w", err)
	}
	if disabled, ok := cls.(classifier.Disabled); ok {
		log.LogWarn(fmt.Sprintf("Classifier disabled: %s", disabled.Reason))
	}

	sink, err := report.NewSink(cfg.Report.Format, report.Options{Dir: cfg.Report.Dir, Overwrite: true})
	if err != nil {
		return result, err
	}
	acc := report.NewAccumulator(report.NewLedger(), sink, env.reportHint(cfg))

	observers := []traversal.Observer{env.metrics}
	runID := uuid.NewString()
	archived := false
	if env.history != nil {
		run := &history.Run{ID: runID, Runner: id, Start: cfg.Start, End: cfg.End, AppURL: cfg.AppURL}
		if err := env.history.StartRun(ctx, run); err != nil {
			log.LogWarn(fmt.Sprintf("History: failed to record run: %v", err))
		} else {
			observers = append(observers, history.NewRecorder(env.history, runID, log.LogWarn))
			archived = true
			log.LogDebug(fmt.Sprintf("History run id %s", runID))
		}
	}

	opts := traversal.OptionsFromConfig(cfg)
	if multi {
		opts.Range = windowFunc(cfg, log)
	}

	engine, err := traversal.New(opts, traversal.Deps{
		Driver:     driver,
		Classifier: cls,
		Report:     acc,
		Logger:     log,
		Pacer:      env.metrics.InstrumentPacer(throttle.NewCooldown(cfg.Classifier.BatchSize, cfg.Classifier.Cooldown, log)),
		Observers:  observers,
	})
	if err != nil {
		return result, err
	}

	res, runErr := engine.Run(ctx)
	result.State = res.State.String()
	result.Summary = res.Summary
	result.ReportPath = res.ReportPath

	if archived {
		if err := env.history.FinishRun(context.Background(), runID, result.State, res.Summary, res.ReportPath); err != nil {
			log.LogWarn(fmt.Sprintf("History: failed to finish run: %v", err))
		}
	}
	return result, runErr
}

// windowFunc resolves a runner's share of the configured range once the
// question total is known.
func windowFunc(cfg *config.Config, log traversal.Logger) func(total int) (int, int) {
	return func(total int) (int, int) {
		last := total
		if cfg.End > 0 && cfg.End < last {
			last = cfg.End
		}
		r, err := runner.Window(cfg.Start, last, cfg.Runners, cfg.RunnerID)
		if err != nil {
			log.LogError(fmt.Sprintf("Cannot partition questions: %v", err))
			return total + 1, total
		}
		if r.Empty() {
			log.LogInfo(fmt.Sprintf("Runner %d has no questions in %d..%d", cfg.RunnerID, cfg.Start, last))
		} else {
			log.LogInfo(fmt.Sprintf("Runner %d owns questions %s", cfg.RunnerID, r))
		}
		return r.Start, r.End
	}
}

// requireAppURL rejects configurations that cannot reach the platform.
func requireAppURL(cfg *config.Config) error {
	if cfg.AppURL == "" {
		return fmt.Errorf("app_url is required (config file, %s or --app-url)", config.EnvAppURL)
	}
	return nil
}
