package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapforge/harness/types"
)

func newTestRunner(t *testing.T, defaultTimeout time.Duration) TestRunner {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	r, err := NewTestRunner(Config{Log: log, DefaultTimeout: defaultTimeout})
	require.NoError(t, err)
	return r
}

func TestRunSuites_PassFailSkip(t *testing.T) {
	r := newTestRunner(t, time.Second)

	suite := NewSuite("mixed", types.SuiteKindUnit).
		Register("passes", func(ctx context.Context) error { return nil }).
		Register("fails", func(ctx context.Context) error { return errors.New("expected failure") }).
		Skip("skipped", func(ctx context.Context) error { return errors.New("must not run") })

	result, err := r.RunSuites(context.Background(), types.SuiteKindUnit, []types.SuiteDef{suite.Def()})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Stats.Total)
	assert.Equal(t, 1, result.Stats.Passed)
	assert.Equal(t, 1, result.Stats.Failed)
	assert.Equal(t, 1, result.Stats.Skipped)
	assert.Equal(t, types.TestStatusFail, result.Status)
	assert.NotEmpty(t, result.RunID)

	// Outcomes keep registration order.
	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, "passes", result.Outcomes[0].Case)
	assert.Equal(t, "fails", result.Outcomes[1].Case)
	assert.Contains(t, result.Outcomes[1].Error, "expected failure")
	assert.Equal(t, "skipped", result.Outcomes[2].Case)
}

func TestRunSuites_SkippedCaseNeverExecutes(t *testing.T) {
	r := newTestRunner(t, time.Second)

	var executed atomic.Bool
	suite := NewSuite("skips", types.SuiteKindUnit).
		Skip("never", func(ctx context.Context) error {
			executed.Store(true)
			return nil
		})

	result, err := r.RunSuites(context.Background(), types.SuiteKindUnit, []types.SuiteDef{suite.Def()})
	require.NoError(t, err)

	assert.False(t, executed.Load())
	assert.Equal(t, types.TestStatusSkip, result.Outcomes[0].Status)
	assert.Equal(t, time.Duration(0), result.Outcomes[0].Duration)
}

func TestRunSuites_TimeoutSettlesTheCase(t *testing.T) {
	r := newTestRunner(t, 50*time.Millisecond)

	suite := NewSuite("hangs", types.SuiteKindUnit).
		Register("never-resolves", func(ctx context.Context) error {
			<-make(chan struct{})
			return nil
		})

	start := time.Now()
	result, err := r.RunSuites(context.Background(), types.SuiteKindUnit, []types.SuiteDef{suite.Def()})
	require.NoError(t, err)

	outcome := result.Outcomes[0]
	assert.Equal(t, types.TestStatusFail, outcome.Status)
	assert.True(t, outcome.TimedOut)
	assert.Equal(t, "timed out after 50ms", outcome.Error)
	// The runner must return shortly after the deadline, not hang.
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunSuites_CompletionWinsOverTimeout(t *testing.T) {
	r := newTestRunner(t, time.Second)

	suite := NewSuite("quick", types.SuiteKindUnit).
		Register("fast", func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			return nil
		})

	result, err := r.RunSuites(context.Background(), types.SuiteKindUnit, []types.SuiteDef{suite.Def()})
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusPass, result.Outcomes[0].Status)
	assert.False(t, result.Outcomes[0].TimedOut)
}

func TestRunSuites_PanicIsRecordedAsFailure(t *testing.T) {
	r := newTestRunner(t, time.Second)

	suite := NewSuite("panics", types.SuiteKindUnit).
		Register("explodes", func(ctx context.Context) error { panic("kaboom") }).
		Register("survivor", func(ctx context.Context) error { return nil })

	result, err := r.RunSuites(context.Background(), types.SuiteKindUnit, []types.SuiteDef{suite.Def()})
	require.NoError(t, err)

	assert.Equal(t, types.TestStatusFail, result.Outcomes[0].Status)
	assert.Contains(t, result.Outcomes[0].Error, "kaboom")
	// A panicking sibling must not abort the rest of the suite.
	assert.Equal(t, types.TestStatusPass, result.Outcomes[1].Status)
}

func TestRunSuites_FailureDoesNotAbortSiblings(t *testing.T) {
	r := newTestRunner(t, time.Second)

	var ran atomic.Int32
	suite := NewSuite("independent", types.SuiteKindUnit).
		Register("first-fails", func(ctx context.Context) error { return errors.New("bad") }).
		Register("second", func(ctx context.Context) error { ran.Add(1); return nil }).
		Register("third", func(ctx context.Context) error { ran.Add(1); return nil })

	result, err := r.RunSuites(context.Background(), types.SuiteKindUnit, []types.SuiteDef{suite.Def()})
	require.NoError(t, err)

	assert.Equal(t, int32(2), ran.Load())
	assert.Equal(t, 2, result.Stats.Passed)
	assert.Equal(t, 1, result.Stats.Failed)
}

func TestRunSuites_CountsMatchDefinedCases(t *testing.T) {
	r := newTestRunner(t, time.Second)

	suites := []types.SuiteDef{
		NewSuite("a", types.SuiteKindUnit).
			Register("one", func(ctx context.Context) error { return nil }).
			Register("two", func(ctx context.Context) error { return errors.New("no") }).
			Def(),
		NewSuite("b", types.SuiteKindUnit).
			Skip("three", func(ctx context.Context) error { return nil }).
			Def(),
	}

	result, err := r.RunSuites(context.Background(), types.SuiteKindUnit, suites)
	require.NoError(t, err)

	defined := 0
	for _, s := range suites {
		defined += len(s.Cases)
	}
	assert.Equal(t, defined, result.Stats.Total)
	assert.Equal(t, result.Stats.Total, result.Stats.Passed+result.Stats.Failed+result.Stats.Skipped)
}

func TestRunSuites_PerCaseTimeoutOverridesDefault(t *testing.T) {
	r := newTestRunner(t, 10*time.Second)

	suite := NewSuite("overrides", types.SuiteKindUnit).
		RegisterTimeout("tight", 30*time.Millisecond, func(ctx context.Context) error {
			<-make(chan struct{})
			return nil
		})

	start := time.Now()
	result, err := r.RunSuites(context.Background(), types.SuiteKindUnit, []types.SuiteDef{suite.Def()})
	require.NoError(t, err)

	assert.True(t, result.Outcomes[0].TimedOut)
	assert.Equal(t, "timed out after 30ms", result.Outcomes[0].Error)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunSuites_CancelledContextFailsCase(t *testing.T) {
	r := newTestRunner(t, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	suite := NewSuite("cancelled", types.SuiteKindUnit).
		Register("waits", func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return ctx.Err()
		})

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := r.RunSuites(ctx, types.SuiteKindUnit, []types.SuiteDef{suite.Def()})
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusFail, result.Outcomes[0].Status)
}

func TestRunSuites_KindTimeoutFromConfig(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	r, err := NewTestRunner(Config{Log: log, UnitTimeout: 30 * time.Millisecond})
	require.NoError(t, err)

	suite := NewSuite("configured", types.SuiteKindUnit).
		Register("hangs", func(ctx context.Context) error {
			<-make(chan struct{})
			return nil
		})

	result, err := r.RunSuites(context.Background(), types.SuiteKindUnit, []types.SuiteDef{suite.Def()})
	require.NoError(t, err)
	assert.True(t, result.Outcomes[0].TimedOut)
	assert.Equal(t, "timed out after 30ms", result.Outcomes[0].Error)
}

func TestRunSuites_ExplicitOverrideWinsOverKindTimeout(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	r, err := NewTestRunner(Config{
		Log:            log,
		DefaultTimeout: time.Second,
		UnitTimeout:    20 * time.Millisecond,
	})
	require.NoError(t, err)

	suite := NewSuite("override", types.SuiteKindUnit).
		Register("slowish", func(ctx context.Context) error {
			time.Sleep(80 * time.Millisecond)
			return nil
		})

	result, err := r.RunSuites(context.Background(), types.SuiteKindUnit, []types.SuiteDef{suite.Def()})
	require.NoError(t, err)
	// The explicit override grants a full second, so the 80ms case passes
	// even though the configured kind default would have expired it.
	assert.Equal(t, types.TestStatusPass, result.Outcomes[0].Status)
}

func TestDefaultTimeoutFor(t *testing.T) {
	assert.Equal(t, DefaultUnitTimeout, DefaultTimeoutFor(types.SuiteKindUnit))
	assert.Equal(t, DefaultIntegrationTimeout, DefaultTimeoutFor(types.SuiteKindIntegration))
}

func TestSuiteBuilder(t *testing.T) {
	s := NewSuite("builder", types.SuiteKindIntegration).
		Register("a", func(ctx context.Context) error { return nil }).
		RegisterTimeout("b", time.Second, func(ctx context.Context) error { return nil }).
		Skip("c", nil)

	assert.Equal(t, "builder", s.Name())
	assert.Equal(t, 3, s.Len())

	def := s.Def()
	assert.Equal(t, types.SuiteKindIntegration, def.Kind)
	require.Len(t, def.Cases, 3)
	assert.Equal(t, time.Second, def.Cases[1].Timeout)
	assert.True(t, def.Cases[2].Skip)

	// Def returns a copy; later registrations do not leak into it.
	s.Register("d", nil)
	assert.Len(t, def.Cases, 3)
}
