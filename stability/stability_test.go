package stability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// failingStrategies makes every recovery attempt fail fast so consecutive
// error streaks accumulate instead of being reset.
func failingStrategies() StrategyMap {
	fail := func(ctx context.Context, ev ErrorEvent) error { return errors.New("recovery refused") }
	return StrategyMap{"": {Action: "noop", Run: fail}}
}

// quickOpts keeps every periodic interval short enough for tests.
func quickOpts() Options {
	return Options{
		Duration:               time.Minute,
		CheckpointInterval:     20 * time.Millisecond,
		ResourceSampleInterval: 20 * time.Millisecond,
		MaxErrors:              50,
		MaxConsecutiveErrors:   10,
		RecoveryTimeout:        20 * time.Millisecond,
	}
}

func TestMonitor_StartAndStop(t *testing.T) {
	m := NewMonitor(quietLog(), nil, nil)
	assert.Equal(t, StateNotStarted, m.State())

	require.NoError(t, m.Start("lifecycle", quickOpts(), nil))
	assert.Equal(t, StateRunning, m.State())

	time.Sleep(70 * time.Millisecond)
	m.Stop(true)

	s := m.Session()
	assert.Equal(t, StateCompleted, s.State)
	assert.True(t, s.Successful)
	assert.NotEmpty(t, s.ID)
	assert.NotEmpty(t, s.Checkpoints)
	assert.NotEmpty(t, s.Resources)
	assert.NotNil(t, s.Benchmark)
	assert.Greater(t, s.Duration, time.Duration(0))
}

func TestMonitor_DoubleStartFails(t *testing.T) {
	m := NewMonitor(quietLog(), nil, nil)
	require.NoError(t, m.Start("first", quickOpts(), nil))
	defer m.Stop(true)

	err := m.Start("second", quickOpts(), nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestMonitor_StopIsIdempotent(t *testing.T) {
	m := NewMonitor(quietLog(), nil, nil)
	require.NoError(t, m.Start("idempotent", quickOpts(), nil))
	m.Stop(true)
	m.Stop(false) // no effect on the terminal state
	assert.Equal(t, StateCompleted, m.State())
}

func TestMonitor_ConsecutiveErrorThreshold(t *testing.T) {
	opts := quickOpts()
	opts.MaxConsecutiveErrors = 3

	m := NewMonitor(quietLog(), nil, failingStrategies())
	require.NoError(t, m.Start("streak", opts, nil))

	m.RecordError("Timeout", "first", nil)
	m.RecordError("Timeout", "second", nil)
	assert.Equal(t, StateRunning, m.State())

	m.RecordError("Timeout", "third", nil)
	assert.Equal(t, StateFailed, m.State())

	s := m.Session()
	assert.False(t, s.Successful)
	assert.Equal(t, 3, s.ErrorCount)
	assert.Equal(t, 3, s.ConsecutiveErrors)
	// The breaching error fails the session immediately; no recovery is
	// attempted for it.
	assert.Len(t, s.Recoveries, 2)
}

func TestMonitor_SuccessfulRecoveryResetsStreak(t *testing.T) {
	opts := quickOpts()
	opts.MaxConsecutiveErrors = 3

	// Default strategies simulate success, resetting the streak every time.
	m := NewMonitor(quietLog(), nil, nil)
	require.NoError(t, m.Start("resets", opts, nil))

	for i := 0; i < 5; i++ {
		m.RecordError("Timeout", "transient", nil)
	}
	assert.Equal(t, StateRunning, m.State())

	m.Stop(true)
	s := m.Session()
	assert.Equal(t, 5, s.ErrorCount)
	assert.Equal(t, 0, s.ConsecutiveErrors)
	require.Len(t, s.Recoveries, 5)
	for _, rec := range s.Recoveries {
		assert.True(t, rec.Success)
		assert.Equal(t, "restart", rec.Action)
	}
}

func TestMonitor_TotalErrorThreshold(t *testing.T) {
	opts := quickOpts()
	opts.MaxErrors = 2
	opts.MaxConsecutiveErrors = 100

	m := NewMonitor(quietLog(), nil, nil)
	require.NoError(t, m.Start("total", opts, nil))

	m.RecordError("ControlFailed", "one", nil)
	assert.Equal(t, StateRunning, m.State())
	m.RecordError("ControlFailed", "two", nil)
	assert.Equal(t, StateFailed, m.State())

	s := m.Session()
	assert.Equal(t, 2, s.ErrorCount)
	assert.Len(t, s.Recoveries, 1)
}

func TestMonitor_ErrorsIgnoredAfterStop(t *testing.T) {
	m := NewMonitor(quietLog(), nil, nil)
	require.NoError(t, m.Start("quiesced", quickOpts(), nil))
	m.Stop(true)

	m.RecordError("Timeout", "late", nil)
	s := m.Session()
	assert.Equal(t, 0, s.ErrorCount)
	assert.Empty(t, s.Recoveries)
}

func TestMonitor_NoSamplesAfterStop(t *testing.T) {
	m := NewMonitor(quietLog(), nil, nil)
	opts := quickOpts()
	opts.CheckpointInterval = 5 * time.Millisecond
	opts.ResourceSampleInterval = 5 * time.Millisecond
	require.NoError(t, m.Start("frozen", opts, nil))
	time.Sleep(30 * time.Millisecond)
	m.Stop(true)

	before := m.Session()
	time.Sleep(30 * time.Millisecond)
	after := m.Session()
	assert.Equal(t, len(before.Checkpoints), len(after.Checkpoints))
	assert.Equal(t, len(before.Resources), len(after.Resources))
}

func TestMonitor_DurationDeadlineCompletesSession(t *testing.T) {
	opts := quickOpts()
	opts.Duration = 60 * time.Millisecond

	m := NewMonitor(quietLog(), nil, nil)
	require.NoError(t, m.Start("deadline", opts, nil))

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end at its deadline")
	}

	s := m.Session()
	assert.Equal(t, StateCompleted, s.State)
	assert.True(t, s.Successful)
}

func TestMonitor_DoneWithoutStartIsClosed(t *testing.T) {
	m := NewMonitor(quietLog(), nil, nil)
	select {
	case <-m.Done():
	default:
		t.Fatal("Done must report immediately for a monitor never started")
	}
}

func TestMonitor_StartCallbackErrorBecomesFirstError(t *testing.T) {
	m := NewMonitor(quietLog(), nil, nil)
	err := m.Start("callback", quickOpts(), func() error {
		return errors.New("target refused to launch")
	})
	require.NoError(t, err)
	defer m.Stop(false)

	s := m.Session()
	require.NotEmpty(t, s.Errors)
	assert.Equal(t, "StartCallbackFailed", s.Errors[0].Type)
	assert.Contains(t, s.Errors[0].Message, "target refused to launch")
	assert.Equal(t, StateRunning, m.State())
}

func TestMonitor_StartCallbackPanicIsContained(t *testing.T) {
	m := NewMonitor(quietLog(), nil, nil)
	require.NoError(t, m.Start("panics", quickOpts(), func() error {
		panic("launcher exploded")
	}))
	defer m.Stop(false)

	s := m.Session()
	require.NotEmpty(t, s.Errors)
	assert.Contains(t, s.Errors[0].Message, "launcher exploded")
}

func TestMonitor_SessionSnapshotIsACopy(t *testing.T) {
	m := NewMonitor(quietLog(), nil, nil)
	require.NoError(t, m.Start("snapshot", quickOpts(), nil))

	first := m.Session()
	m.RecordError("Timeout", "after snapshot", nil)
	assert.Equal(t, 0, first.ErrorCount)
	assert.Empty(t, first.Errors)

	m.Stop(true)
}

func TestStrategyMap_For(t *testing.T) {
	sm := DefaultStrategies()
	assert.Equal(t, "restart", sm.For(ErrorTypeTimeout).Action)
	assert.Equal(t, "new_screenshot", sm.For(ErrorTypeScreenDetectionFailed).Action)
	assert.Equal(t, "alternative_control", sm.For(ErrorTypeControlFailed).Action)
	assert.Equal(t, "wait_and_retry", sm.For("SomethingNovel").Action)

	// An empty map still yields the built-in fallback.
	assert.Equal(t, "wait_and_retry", StrategyMap{}.For("anything").Action)
}

func TestStrategy_ExecuteRetriesUntilTimeout(t *testing.T) {
	attempts := 0
	s := Strategy{Action: "stubborn", Run: func(ctx context.Context, ev ErrorEvent) error {
		attempts++
		return errors.New("still broken")
	}}

	start := time.Now()
	err := s.execute(ErrorEvent{Type: "Timeout"}, 300*time.Millisecond)
	assert.Error(t, err)
	assert.GreaterOrEqual(t, attempts, 2)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestStrategy_ExecuteNilRunSimulatesSuccess(t *testing.T) {
	s := Strategy{Action: "simulated"}
	assert.NoError(t, s.execute(ErrorEvent{}, time.Second))
}

func TestOptions_WithDefaults(t *testing.T) {
	merged := Options{MaxErrors: 5}.withDefaults()
	def := DefaultOptions()
	assert.Equal(t, 5, merged.MaxErrors)
	assert.Equal(t, def.Duration, merged.Duration)
	assert.Equal(t, def.CheckpointInterval, merged.CheckpointInterval)
	assert.Equal(t, def.MaxConsecutiveErrors, merged.MaxConsecutiveErrors)
}
