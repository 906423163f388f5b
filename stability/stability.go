// Package stability implements long-running supervised reliability
// sessions: periodic checkpoints and resource samples, error recording with
// threshold-based abort, a recovery-strategy dispatcher, and an embedded
// performance benchmark, all terminated synchronously on stop.
package stability

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tapforge/harness/bench"
	"github.com/tapforge/harness/metrics"
	"github.com/tapforge/harness/probes"
)

// State is the session state machine. Completed and Failed are terminal; a
// stopped monitor needs a fresh Start to run another session.
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Options configures a stability session. Zero-value fields merge over the
// defaults from DefaultOptions.
type Options struct {
	Duration               time.Duration `json:"duration" yaml:"duration"`
	CheckpointInterval     time.Duration `json:"checkpoint_interval" yaml:"checkpoint_interval"`
	ResourceSampleInterval time.Duration `json:"resource_sample_interval" yaml:"resource_sample_interval"`
	MaxErrors              int           `json:"max_errors" yaml:"max_errors"`
	MaxConsecutiveErrors   int           `json:"max_consecutive_errors" yaml:"max_consecutive_errors"`
	RecoveryTimeout        time.Duration `json:"recovery_timeout" yaml:"recovery_timeout"`
}

// DefaultOptions returns the default session configuration.
func DefaultOptions() Options {
	return Options{
		Duration:               30 * time.Minute,
		CheckpointInterval:     time.Minute,
		ResourceSampleInterval: 10 * time.Second,
		MaxErrors:              50,
		MaxConsecutiveErrors:   10,
		RecoveryTimeout:        30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Duration <= 0 {
		o.Duration = def.Duration
	}
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = def.CheckpointInterval
	}
	if o.ResourceSampleInterval <= 0 {
		o.ResourceSampleInterval = def.ResourceSampleInterval
	}
	if o.MaxErrors <= 0 {
		o.MaxErrors = def.MaxErrors
	}
	if o.MaxConsecutiveErrors <= 0 {
		o.MaxConsecutiveErrors = def.MaxConsecutiveErrors
	}
	if o.RecoveryTimeout <= 0 {
		o.RecoveryTimeout = def.RecoveryTimeout
	}
	return o
}

// ErrorEvent is one recorded failure observation.
type ErrorEvent struct {
	At      time.Time      `json:"at"`
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// RecoveryEvent records one recovery attempt and its verdict.
type RecoveryEvent struct {
	At        time.Time `json:"at"`
	ErrorType string    `json:"error_type"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
}

// Checkpoint is a periodic snapshot of session progress.
type Checkpoint struct {
	At           time.Time     `json:"at"`
	Elapsed      time.Duration `json:"elapsed"`
	Errors       int           `json:"errors"`
	Recoveries   int           `json:"recoveries"`
	MemoryUsedMB float64       `json:"memory_used_mb,omitempty"`
}

// ResourceSample is a periodic host-resource snapshot. Nil fields mean the
// corresponding probe was unavailable at sampling time.
type ResourceSample struct {
	At           time.Time `json:"at"`
	CPU          *float64  `json:"cpu,omitempty"`
	MemoryUsedMB *float64  `json:"memory_used_mb,omitempty"`
	FPS          *float64  `json:"fps,omitempty"`
}

// Session is the immutable record of a finished (or in-flight, when
// snapshotted) stability session.
type Session struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	State     State         `json:"state"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration"`
	Options   Options       `json:"options"`

	Errors      []ErrorEvent     `json:"errors,omitempty"`
	Recoveries  []RecoveryEvent  `json:"recoveries,omitempty"`
	Checkpoints []Checkpoint     `json:"checkpoints,omitempty"`
	Resources   []ResourceSample `json:"resources,omitempty"`
	Benchmark   *bench.Run       `json:"benchmark,omitempty"`

	ErrorCount        int  `json:"error_count"`
	ConsecutiveErrors int  `json:"consecutive_errors"`
	Successful        bool `json:"successful"`
}

// Monitor supervises one stability session at a time.
type Monitor struct {
	log        logrus.FieldLogger
	probes     probes.HostProbes
	strategies StrategyMap

	mu          sync.Mutex
	state       State
	id          string
	name        string
	opts        Options
	startedAt   time.Time
	endedAt     time.Time
	errors      []ErrorEvent
	recoveries  []RecoveryEvent
	checkpoints []Checkpoint
	resources   []ResourceSample
	consecutive int
	successful  bool

	benchmark *bench.Benchmark
	benchRun  *bench.Run
	stop      chan struct{}
	finished  chan struct{}
	deadline  *time.Timer
	wg        sync.WaitGroup
}

// NewMonitor creates a stability monitor. A nil strategy map selects the
// default simulated strategies; a nil probe set degrades resource samples
// to nulls and the embedded benchmark to its own fallbacks.
func NewMonitor(log logrus.FieldLogger, hostProbes probes.HostProbes, strategies StrategyMap) *Monitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	return &Monitor{
		log:        log,
		probes:     hostProbes,
		strategies: strategies,
		state:      StateNotStarted,
		benchmark:  bench.New(log, hostProbes),
	}
}

// State returns the current session state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start begins a session: resets state, launches the checkpoint recorder,
// the resource sampler, and the embedded benchmark, arms the duration
// deadline, and invokes onStart synchronously. An onStart failure or panic
// becomes the session's first ErrorEvent instead of propagating.
func (m *Monitor) Start(name string, opts Options, onStart func() error) error {
	m.mu.Lock()
	if m.state == StateRunning {
		m.mu.Unlock()
		return fmt.Errorf("stability session %q already running", m.name)
	}

	m.state = StateRunning
	m.id = uuid.New().String()
	m.name = name
	m.opts = opts.withDefaults()
	m.startedAt = time.Now()
	m.endedAt = time.Time{}
	m.errors = nil
	m.recoveries = nil
	m.checkpoints = nil
	m.resources = nil
	m.consecutive = 0
	m.successful = false
	m.benchRun = nil
	m.stop = make(chan struct{})
	m.finished = make(chan struct{})

	m.wg.Add(2)
	go m.checkpointLoop(m.opts.CheckpointInterval, m.stop)
	go m.resourceLoop(m.opts.ResourceSampleInterval, m.stop)

	// The embedded benchmark samples at twice the resource cadence so its
	// series stay finer-grained than the session's own snapshots.
	benchOpts := bench.DefaultOptions()
	benchOpts.SampleInterval = m.opts.ResourceSampleInterval / 2
	if err := m.benchmark.Start(name, &benchOpts); err != nil {
		m.log.WithError(err).Warn("Embedded benchmark failed to start")
	}

	m.deadline = time.AfterFunc(m.opts.Duration, func() {
		m.Stop(true)
	})

	m.log.WithFields(logrus.Fields{
		"session":  name,
		"id":       m.id,
		"duration": m.opts.Duration,
	}).Info("Stability session started")
	m.mu.Unlock()

	if onStart != nil {
		if err := runStartCallback(onStart); err != nil {
			m.RecordError("StartCallbackFailed", err.Error(), nil)
		}
	}
	return nil
}

func runStartCallback(onStart func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in start callback: %v", p)
		}
	}()
	return onStart()
}

func (m *Monitor) checkpointLoop(interval time.Duration, stop <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			m.recordCheckpoint(now)
		}
	}
}

func (m *Monitor) resourceLoop(interval time.Duration, stop <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			m.recordResourceSample(now)
		}
	}
}

func (m *Monitor) recordCheckpoint(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning {
		return
	}
	cp := Checkpoint{
		At:         now,
		Elapsed:    now.Sub(m.startedAt),
		Errors:     len(m.errors),
		Recoveries: len(m.recoveries),
	}
	if m.probes != nil {
		if info, err := m.probes.MemoryInfo(); err == nil {
			cp.MemoryUsedMB = float64(info.Used) / 1024 / 1024
		}
	}
	m.checkpoints = append(m.checkpoints, cp)
	m.log.WithFields(logrus.Fields{
		"session":    m.name,
		"elapsed":    cp.Elapsed,
		"errors":     cp.Errors,
		"recoveries": cp.Recoveries,
	}).Debug("Checkpoint recorded")
}

func (m *Monitor) recordResourceSample(now time.Time) {
	sample := ResourceSample{At: now}
	if m.probes != nil {
		if usage, err := m.probes.CPUUsage(); err == nil {
			sample.CPU = &usage
		}
		if info, err := m.probes.MemoryInfo(); err == nil {
			used := float64(info.Used) / 1024 / 1024
			sample.MemoryUsedMB = &used
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning {
		return
	}
	m.resources = append(m.resources, sample)
}

// RecordError appends an error event and applies the threshold policy:
// breaching the total or consecutive limit fails the session immediately
// with no recovery attempt, otherwise a recovery is dispatched.
func (m *Monitor) RecordError(errType, message string, data map[string]any) {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return
	}

	ev := ErrorEvent{At: time.Now(), Type: errType, Message: message, Data: data}
	m.errors = append(m.errors, ev)
	m.consecutive++
	metrics.RecordStabilityError(m.name, errType)

	m.log.WithFields(logrus.Fields{
		"session":     m.name,
		"type":        errType,
		"total":       len(m.errors),
		"consecutive": m.consecutive,
	}).Warn("Stability error recorded")

	if len(m.errors) >= m.opts.MaxErrors || m.consecutive >= m.opts.MaxConsecutiveErrors {
		m.log.WithFields(logrus.Fields{
			"session":     m.name,
			"total":       len(m.errors),
			"consecutive": m.consecutive,
		}).Error("Error threshold breached, failing session")
		m.stopLocked(false)
		m.mu.Unlock()
		return
	}

	opts := m.opts
	m.mu.Unlock()

	m.attemptRecovery(ev, opts)
}

// attemptRecovery looks up the strategy for the error type, runs it with
// bounded retries, and records the outcome. A successful recovery resets
// the consecutive-error streak; a failed one leaves it intact.
func (m *Monitor) attemptRecovery(ev ErrorEvent, opts Options) {
	strategy := m.strategies.For(ev.Type)
	err := strategy.execute(ev, opts.RecoveryTimeout)
	success := err == nil
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"session": m.name,
			"action":  strategy.Action,
		}).Warn("Recovery failed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning {
		return
	}
	m.recoveries = append(m.recoveries, RecoveryEvent{
		At:        time.Now(),
		ErrorType: ev.Type,
		Action:    strategy.Action,
		Success:   success,
	})
	if success {
		m.consecutive = 0
	}
	metrics.RecordStabilityRecovery(m.name, strategy.Action, success)
}

// Stop terminates the session: all periodic activities and the duration
// deadline are cancelled synchronously with the state transition, the
// embedded benchmark result is folded in, and the session becomes terminal.
func (m *Monitor) Stop(successful bool) {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return
	}
	m.stopLocked(successful)
	m.mu.Unlock()

	// The loops never outlive Stop; they observed the closed channel or the
	// state change, whichever came first.
	m.wg.Wait()
}

// Done returns a channel closed when the session reaches a terminal state.
// A monitor that was never started reports done immediately.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return m.finished
}

func (m *Monitor) stopLocked(successful bool) {
	close(m.stop)
	defer close(m.finished)
	if m.deadline != nil {
		m.deadline.Stop()
	}

	if run, err := m.benchmark.Stop(); err == nil {
		m.benchRun = run
	}

	m.endedAt = time.Now()
	m.successful = successful
	if successful {
		m.state = StateCompleted
	} else {
		m.state = StateFailed
	}

	m.log.WithFields(logrus.Fields{
		"session":    m.name,
		"state":      m.state,
		"duration":   m.endedAt.Sub(m.startedAt),
		"errors":     len(m.errors),
		"recoveries": len(m.recoveries),
	}).Info("Stability session stopped")
}

// Session returns a snapshot of the session record. After Stop it is the
// final, immutable result.
func (m *Monitor) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{
		ID:                m.id,
		Name:              m.name,
		State:             m.state,
		StartedAt:         m.startedAt,
		EndedAt:           m.endedAt,
		Options:           m.opts,
		Errors:            append([]ErrorEvent(nil), m.errors...),
		Recoveries:        append([]RecoveryEvent(nil), m.recoveries...),
		Checkpoints:       append([]Checkpoint(nil), m.checkpoints...),
		Resources:         append([]ResourceSample(nil), m.resources...),
		Benchmark:         m.benchRun,
		ErrorCount:        len(m.errors),
		ConsecutiveErrors: m.consecutive,
		Successful:        m.successful,
	}
	if !m.endedAt.IsZero() {
		s.Duration = m.endedAt.Sub(m.startedAt)
	}
	return s
}
