// Package runner executes registered test suites. Each case races its test
// function against a per-case deadline; whichever settles first determines
// the recorded outcome, and a case failure never aborts its siblings.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tapforge/harness/metrics"
	"github.com/tapforge/harness/types"
)

const (
	// DefaultUnitTimeout bounds a unit-layer case unless overridden.
	DefaultUnitTimeout = 5 * time.Second
	// DefaultIntegrationTimeout bounds an integration-layer case.
	DefaultIntegrationTimeout = 10 * time.Second
)

// DefaultTimeoutFor returns the per-kind case timeout.
func DefaultTimeoutFor(kind types.SuiteKind) time.Duration {
	if kind == types.SuiteKindIntegration {
		return DefaultIntegrationTimeout
	}
	return DefaultUnitTimeout
}

// TestRunner executes suite definitions and aggregates their outcomes.
type TestRunner interface {
	RunSuites(ctx context.Context, kind types.SuiteKind, suites []types.SuiteDef) (*types.RunResult, error)
}

// Config holds configuration for creating a new runner.
type Config struct {
	Log            logrus.FieldLogger
	DefaultTimeout time.Duration // explicit override; zero defers to the per-kind defaults
	// UnitTimeout and IntegrationTimeout are configured per-kind defaults,
	// typically from a suite config file. Zero selects the built-in
	// constants.
	UnitTimeout        time.Duration
	IntegrationTimeout time.Duration
}

type runner struct {
	log                logrus.FieldLogger
	defaultTimeout     time.Duration
	unitTimeout        time.Duration
	integrationTimeout time.Duration
}

// NewTestRunner creates a new test runner instance.
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
		cfg.Log.Error("No logger provided, using default")
	}
	return &runner{
		log:                cfg.Log,
		defaultTimeout:     cfg.DefaultTimeout,
		unitTimeout:        cfg.UnitTimeout,
		integrationTimeout: cfg.IntegrationTimeout,
	}, nil
}

// kindTimeout returns the configured per-kind default, zero when unset.
func (r *runner) kindTimeout(kind types.SuiteKind) time.Duration {
	if kind == types.SuiteKindIntegration {
		return r.integrationTimeout
	}
	return r.unitTimeout
}

// RunSuites executes every case of every suite and returns one aggregated
// result. Outcomes keep registration order; all cases of a suite run as
// overlapping tasks and are joined before the next suite starts.
func (r *runner) RunSuites(ctx context.Context, kind types.SuiteKind, suites []types.SuiteDef) (*types.RunResult, error) {
	runID := uuid.New().String()
	start := time.Now()
	r.log.WithFields(logrus.Fields{"run_id": runID, "kind": kind, "suites": len(suites)}).Info("Running suites")

	result := &types.RunResult{
		RunID: runID,
		Kind:  kind,
	}

	for _, suite := range suites {
		outcomes := r.runSuite(ctx, kind, suite)
		for _, outcome := range outcomes {
			result.Outcomes = append(result.Outcomes, outcome)
			result.Stats.Add(outcome.Status)
			metrics.RecordCaseResult(runID, outcome.Suite, outcome.Case, string(outcome.Status))
		}
	}

	result.Duration = time.Since(start)
	result.Status = types.DetermineStatus(result.Stats)
	r.log.WithFields(logrus.Fields{
		"run_id":  runID,
		"status":  result.Status,
		"passed":  result.Stats.Passed,
		"failed":  result.Stats.Failed,
		"skipped": result.Stats.Skipped,
	}).Info("Suite run completed")
	return result, nil
}

// runSuite starts every case concurrently and joins them all. A hung case
// releases the join at its own deadline, so the join is bounded by the
// slowest per-case timeout rather than a fixed grace period.
func (r *runner) runSuite(ctx context.Context, kind types.SuiteKind, suite types.SuiteDef) []types.CaseResult {
	outcomes := make([]types.CaseResult, len(suite.Cases))
	var wg sync.WaitGroup
	for i, c := range suite.Cases {
		wg.Add(1)
		go func(i int, c types.Case) {
			defer wg.Done()
			outcomes[i] = r.runCase(ctx, kind, suite.Name, c)
		}(i, c)
	}
	wg.Wait()
	return outcomes
}

// runCase races the test function against its deadline. The outcome is
// recorded exactly once, by whichever side settles first; the underlying
// work is signalled through context cancellation but never forcibly killed.
func (r *runner) runCase(ctx context.Context, kind types.SuiteKind, suiteName string, c types.Case) types.CaseResult {
	result := types.CaseResult{Suite: suiteName, Case: c.Name}

	if c.Skip {
		result.Status = types.TestStatusSkip
		r.log.WithFields(logrus.Fields{"suite": suiteName, "case": c.Name}).Debug("Case skipped")
		return result
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = r.defaultTimeout
	}
	if timeout == 0 {
		timeout = r.kindTimeout(kind)
	}
	if timeout == 0 {
		timeout = DefaultTimeoutFor(kind)
	}

	caseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("panic: %v\n%s", p, debug.Stack())
			}
		}()
		done <- c.Fn(caseCtx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		result.Duration = time.Since(start)
		if err != nil {
			result.Status = types.TestStatusFail
			result.Error = err.Error()
		} else {
			result.Status = types.TestStatusPass
		}
	case <-timer.C:
		result.Duration = time.Since(start)
		result.Status = types.TestStatusFail
		result.TimedOut = true
		result.Error = fmt.Sprintf("timed out after %dms", timeout.Milliseconds())
	case <-ctx.Done():
		result.Duration = time.Since(start)
		result.Status = types.TestStatusFail
		result.Error = fmt.Sprintf("run cancelled: %v", ctx.Err())
	}

	r.log.WithFields(logrus.Fields{
		"suite":    suiteName,
		"case":     c.Name,
		"status":   result.Status,
		"duration": result.Duration,
	}).Debug("Case finished")
	return result
}
