// Package harness is the top-level coordinator: it sequences the case
// runner, the performance benchmark, the stability monitor, and the
// compatibility prober according to the run configuration and consolidates
// their self-contained results into one report.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tapforge/harness/bench"
	"github.com/tapforge/harness/compat"
	"github.com/tapforge/harness/exitcodes"
	"github.com/tapforge/harness/metrics"
	"github.com/tapforge/harness/probes"
	"github.com/tapforge/harness/registry"
	"github.com/tapforge/harness/reporting"
	"github.com/tapforge/harness/runner"
	"github.com/tapforge/harness/stability"
	"github.com/tapforge/harness/types"
)

// Harness orchestrates one or more consolidated runs.
type Harness struct {
	ctx      context.Context
	config   *Config
	version  string
	registry *registry.Registry
	runner   runner.TestRunner

	probes    probes.HostProbes
	benchmark *bench.Benchmark
	monitor   *stability.Monitor
	prober    *compat.Prober

	report *reporting.Report

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New wires the harness. The registry supplies the suite definitions; a nil
// probe set selects the local system probes.
func New(ctx context.Context, config *Config, version string, reg *registry.Registry, hostProbes probes.HostProbes, shutdownCallback func(error)) (*Harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if hostProbes == nil {
		hostProbes = &probes.SystemProbes{}
	}

	config.Log.WithFields(logrus.Fields{
		"runUnit":          config.RunUnit,
		"runIntegration":   config.RunIntegration,
		"runPerformance":   config.RunPerformance,
		"runStability":     config.RunStability,
		"runCompatibility": config.RunCompatibility,
		"runInterval":      config.RunInterval,
		"runOnce":          config.RunOnce,
	}).Debug("Creating harness with config")

	testRunner, err := runner.NewTestRunner(runner.Config{
		Log:                config.Log,
		DefaultTimeout:     config.PerCaseTimeout,
		UnitTimeout:        reg.DefaultTimeout(types.SuiteKindUnit),
		IntegrationTimeout: reg.DefaultTimeout(types.SuiteKindIntegration),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}

	return &Harness{
		ctx:       ctx,
		config:    config,
		version:   version,
		registry:  reg,
		runner:    testRunner,
		probes:    hostProbes,
		benchmark: bench.New(config.Log, hostProbes),
		monitor:   stability.NewMonitor(config.Log, hostProbes, nil),
		prober: compat.NewProber(compat.Config{
			Log:                   config.Log,
			Probes:                hostProbes,
			Env:                   probes.DefaultEnvironmentChecks(hostProbes),
			RequiredTargetVersion: config.RequiredTargetVersion,
			RequiredHostVersion:   config.RequiredHostVersion,
			EnvChecksGate:         config.EnvChecksGate,
		}),
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Benchmark exposes the performance benchmark so instrumentation can feed
// frames and response times during a run.
func (h *Harness) Benchmark() *bench.Benchmark { return h.benchmark }

// Monitor exposes the stability monitor so observers can record errors
// during a session.
func (h *Harness) Monitor() *stability.Monitor { return h.monitor }

// Report returns the most recent consolidated report.
func (h *Harness) Report() *reporting.Report { return h.report }

// Start runs the harness once or periodically at the configured interval.
func (h *Harness) Start(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			h.config.Log.WithField("error", r).Error("Runtime error occurred")
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	h.ctx = ctx
	h.done = make(chan struct{})
	h.running.Store(true)

	if h.config.RunOnce {
		h.config.Log.Info("Starting harness in run-once mode")
	} else {
		h.config.Log.WithField("interval", h.config.RunInterval).Info("Starting harness in continuous mode")
	}

	if err := h.runOnce(); err != nil {
		h.config.Log.WithError(err).Error("Runtime error running components")
		return NewRuntimeError(err)
	}

	if h.config.RunOnce {
		h.config.Log.Info("Run completed, exiting (run-once mode)")

		if h.report != nil && h.report.Status == types.TestStatusFail {
			h.config.Log.Warn("Run-once completed with failures, returning exit code 1")
			return NewTestFailureError(fmt.Sprintf("run %s failed", h.report.RunID))
		}

		go func() {
			h.shutdownCallback(nil)
		}()
		return nil
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.config.Log.WithField("interval", h.config.RunInterval).Debug("Starting periodic run goroutine")

		for {
			select {
			case <-time.After(h.config.RunInterval):
				if !h.running.Load() {
					h.config.Log.Debug("Service stopped, exiting periodic runner")
					return
				}
				h.config.Log.Info("Running periodic components")
				if err := h.runOnce(); err != nil {
					h.config.Log.WithError(err).Error("Error running periodic components")
				}

			case <-h.done:
				h.config.Log.Debug("Done signal received, stopping periodic runner")
				return

			case <-ctx.Done():
				h.config.Log.Debug("Context canceled, stopping periodic runner")
				h.running.Store(false)
				return
			}
		}
	}()
	h.config.Log.Debug("Harness started successfully")
	return nil
}

// runOnce executes every selected component and consolidates the report.
// The suite layers run first, sequentially; the benchmark, stability
// session, and compatibility probe are independent and run concurrently.
func (h *Harness) runOnce() error {
	start := time.Now()
	report := &reporting.Report{
		RunID:     uuid.New().String(),
		Version:   h.version,
		StartedAt: start,
	}
	h.config.Log.WithField("run_id", report.RunID).Info("Starting consolidated run")

	if h.config.RunUnit {
		result, err := h.runner.RunSuites(h.ctx, types.SuiteKindUnit, h.suites(types.SuiteKindUnit))
		if err != nil {
			return fmt.Errorf("unit layer: %w", err)
		}
		report.Unit = result
		report.Stats.Merge(result.Stats)
	}
	if h.config.RunIntegration {
		result, err := h.runner.RunSuites(h.ctx, types.SuiteKindIntegration, h.suites(types.SuiteKindIntegration))
		if err != nil {
			return fmt.Errorf("integration layer: %w", err)
		}
		report.Integration = result
		report.Stats.Merge(result.Stats)
	}

	g, gctx := errgroup.WithContext(h.ctx)
	if h.config.RunPerformance {
		g.Go(func() error { return h.runBenchmark(gctx, report) })
	}
	if h.config.RunStability {
		g.Go(func() error { return h.runStability(gctx, report) })
	}
	if h.config.RunCompatibility {
		g.Go(func() error {
			report.Compatibility = h.prober.Probe(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	report.Duration = time.Since(start)
	report.Status = report.DetermineStatus()
	h.report = report

	h.printResultsTable(report)
	metrics.RecordRun(report.RunID, string(report.Status),
		report.Stats.Total, report.Stats.Passed, report.Stats.Failed, report.Duration)

	if err := h.writeReport(report); err != nil {
		return err
	}

	h.config.Log.WithFields(logrus.Fields{
		"run_id": report.RunID,
		"status": report.Status,
	}).Info("Run completed")
	return nil
}

func (h *Harness) suites(kind types.SuiteKind) []types.SuiteDef {
	return h.registry.SuitesByKind(kind)
}

// runBenchmark samples for the configured window, then folds the run record
// into the report.
func (h *Harness) runBenchmark(ctx context.Context, report *reporting.Report) error {
	if err := h.benchmark.Start("performance", nil); err != nil {
		return fmt.Errorf("failed to start benchmark: %w", err)
	}

	select {
	case <-time.After(h.config.BenchDuration):
	case <-ctx.Done():
	}

	run, err := h.benchmark.Stop()
	if err != nil {
		return fmt.Errorf("failed to stop benchmark: %w", err)
	}
	report.Benchmark = run
	return nil
}

// runStability starts a session and waits for it to reach a terminal state:
// either its duration deadline completes it or a threshold breach fails it.
// Context cancellation stops it early as unsuccessful.
func (h *Harness) runStability(ctx context.Context, report *reporting.Report) error {
	opts := stability.Options{Duration: h.config.StabilityDuration}
	if err := h.monitor.Start("stability", opts, nil); err != nil {
		return fmt.Errorf("failed to start stability session: %w", err)
	}

	select {
	case <-h.monitor.Done():
	case <-ctx.Done():
		h.monitor.Stop(false)
	}

	report.Stability = h.monitor.Session()
	return nil
}

// writeReport hands the report to the configured sink: a JSON file when a
// report path is set, the narrative form on stdout otherwise.
func (h *Harness) writeReport(report *reporting.Report) error {
	var formatter reporting.Formatter
	var writer reporting.Writer
	if h.config.ReportPath != "" {
		formatter = &reporting.JSONFormatter{}
		writer = reporting.NewFileWriter(h.config.ReportPath)
	} else {
		formatter = &reporting.TextFormatter{}
		writer = &reporting.StdoutWriter{}
	}

	content, err := formatter.Format(report)
	if err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}
	if err := writer.Write(content); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if h.config.ReportPath != "" {
		h.config.Log.WithField("path", h.config.ReportPath).Info("Report written")
	}
	return nil
}

// Stop stops the harness service.
func (h *Harness) Stop(ctx context.Context) error {
	h.config.Log.Info("Stopping harness")

	if !h.running.Load() {
		h.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	h.running.Store(false)

	h.config.Log.Debug("Sending done signal to goroutines")
	close(h.done)

	h.monitor.Stop(false)
	if _, err := h.benchmark.Stop(); err != nil && !errors.Is(err, bench.ErrNotRunning) {
		h.config.Log.WithError(err).Warn("Failed to stop benchmark")
	}

	h.config.Log.Info("Harness stopped successfully")
	return nil
}

// Stopped returns true if the harness service is stopped.
func (h *Harness) Stopped() bool {
	return !h.running.Load()
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving on.
func (h *Harness) WaitForShutdown(ctx context.Context) error {
	h.config.Log.Debug("Waiting for all goroutines to terminate")

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.config.Log.Debug("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		h.config.Log.WithError(ctx.Err()).Warn("Timed out waiting for goroutines to terminate")
		return ctx.Err()
	}
}
