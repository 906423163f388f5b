// Package bench implements statistical performance benchmarks: a
// start/stop lifecycle around a periodic sampler that collects CPU, memory,
// frame-rate, and per-action response-time series, summarized on stop.
package bench

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tapforge/harness/metrics"
	"github.com/tapforge/harness/probes"
	"github.com/tapforge/harness/stats"
)

var (
	// ErrAlreadyRunning is returned by Start when a run is in progress.
	ErrAlreadyRunning = errors.New("benchmark already running")
	// ErrNotRunning is returned by Stop when no run is in progress.
	ErrNotRunning = errors.New("benchmark not running")
)

// State is the benchmark lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Options configures a benchmark run. Zero-value fields merge over the
// defaults from DefaultOptions.
type Options struct {
	SampleInterval time.Duration `json:"sample_interval" yaml:"sample_interval"`
	TrackCPU       bool          `json:"track_cpu" yaml:"track_cpu"`
	TrackMemory    bool          `json:"track_memory" yaml:"track_memory"`
	TrackFPS       bool          `json:"track_fps" yaml:"track_fps"`
	TrackResponse  bool          `json:"track_response" yaml:"track_response"`
}

// DefaultOptions returns the default benchmark configuration.
func DefaultOptions() Options {
	return Options{
		SampleInterval: time.Second,
		TrackCPU:       true,
		TrackMemory:    true,
		TrackFPS:       true,
		TrackResponse:  true,
	}
}

// Run is the immutable record of a completed benchmark run.
type Run struct {
	Name      string        `json:"name"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration"`
	Options   Options       `json:"options"`

	CPU      []stats.Sample            `json:"cpu,omitempty"`
	FPS      []stats.Sample            `json:"fps,omitempty"`
	Memory   []stats.MemorySample      `json:"memory,omitempty"`
	Response map[string][]stats.Sample `json:"response,omitempty"`

	CPUSummary      stats.Summary            `json:"cpu_summary"`
	FPSSummary      stats.Summary            `json:"fps_summary"`
	ResponseSummary map[string]stats.Summary `json:"response_summary,omitempty"`
	AvgMemoryUsedMB float64                  `json:"avg_memory_used_mb,omitempty"`
	FramesTotal     int64                    `json:"frames_total"`
}

// Benchmark owns at most one running sampler at a time. A second Start
// without an intervening Stop fails and leaves the running series untouched.
type Benchmark struct {
	log    logrus.FieldLogger
	probes probes.HostProbes // nil degrades to documented fallbacks

	mu    sync.Mutex
	state State
	name  string
	opts  Options
	start time.Time
	stop  chan struct{}
	done  chan struct{}

	cpu stats.Series
	fps stats.Series

	memMu  sync.Mutex
	memory []stats.MemorySample

	respMu   sync.Mutex
	response map[string]*stats.Series

	frames atomic.Int64
}

// New creates a benchmark. A nil probe set selects the fallback heuristics.
func New(log logrus.FieldLogger, hostProbes probes.HostProbes) *Benchmark {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Benchmark{
		log:    log,
		probes: hostProbes,
		state:  StateIdle,
	}
}

// State returns the current lifecycle state.
func (b *Benchmark) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Start begins a new run: resets all series, merges opts over the defaults,
// stamps the start time, and launches the periodic sampler. A nil opts
// selects the defaults unchanged.
func (b *Benchmark) Start(name string, opts *Options) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateRunning {
		return ErrAlreadyRunning
	}

	merged := DefaultOptions()
	if opts != nil {
		merged = *opts
		if merged.SampleInterval <= 0 {
			merged.SampleInterval = DefaultOptions().SampleInterval
		}
	}

	b.name = name
	b.opts = merged
	b.cpu.Reset()
	b.fps.Reset()
	b.memMu.Lock()
	b.memory = nil
	b.memMu.Unlock()
	b.respMu.Lock()
	b.response = make(map[string]*stats.Series)
	b.respMu.Unlock()
	b.frames.Store(0)

	b.start = time.Now()
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	b.state = StateRunning

	go b.sample(b.start, merged, b.stop, b.done)

	b.log.WithFields(logrus.Fields{"benchmark": name, "interval": merged.SampleInterval}).Info("Benchmark started")
	return nil
}

// sample is the periodic sampler. The frame-rate window is a fixed full
// second, independent of the sample interval.
func (b *Benchmark) sample(start time.Time, opts Options, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(opts.SampleInterval)
	defer ticker.Stop()

	lastTick := start
	windowStart := start
	framesAtWindow := int64(0)

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if opts.TrackCPU {
				b.cpu.AppendAt(now, b.cpuUsage(now.Sub(lastTick), opts.SampleInterval))
				metrics.RecordBenchmarkSample(b.name, "cpu")
			}
			if opts.TrackMemory {
				if sample, ok := b.memorySample(now); ok {
					b.memMu.Lock()
					b.memory = append(b.memory, sample)
					b.memMu.Unlock()
					metrics.RecordBenchmarkSample(b.name, "memory")
				}
			}
			if opts.TrackFPS {
				if elapsed := now.Sub(windowStart); elapsed >= time.Second {
					frames := b.frames.Load()
					rate := float64(frames-framesAtWindow) / elapsed.Seconds()
					b.fps.AppendAt(now, rate)
					metrics.RecordBenchmarkSample(b.name, "fps")
					windowStart = now
					framesAtWindow = frames
				}
			}
			lastTick = now
		}
	}
}

// cpuUsage prefers the host probe; a missing or failing probe degrades to
// the elapsed-time heuristic min(elapsed, interval)/interval * 100.
func (b *Benchmark) cpuUsage(elapsed, interval time.Duration) float64 {
	if b.probes != nil {
		usage, err := b.probes.CPUUsage()
		if err == nil {
			return usage
		}
		b.log.WithError(err).Debug("CPU probe failed, using elapsed-time heuristic")
	}
	if elapsed > interval {
		elapsed = interval
	}
	return float64(elapsed) / float64(interval) * 100
}

// memorySample prefers the host probe; otherwise it falls back to the Go
// runtime's own heap accounting.
func (b *Benchmark) memorySample(at time.Time) (stats.MemorySample, bool) {
	if b.probes != nil {
		info, err := b.probes.MemoryInfo()
		if err == nil {
			return stats.MemorySample{
				At:      at,
				TotalMB: float64(info.Total) / 1024 / 1024,
				UsedMB:  float64(info.Used) / 1024 / 1024,
				FreeMB:  float64(info.Free) / 1024 / 1024,
			}, true
		}
		b.log.WithError(err).Debug("Memory probe failed, using runtime fallback")
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return stats.MemorySample{
		At:      at,
		TotalMB: float64(ms.Sys) / 1024 / 1024,
		UsedMB:  float64(ms.Alloc) / 1024 / 1024,
		FreeMB:  float64(ms.Sys-ms.Alloc) / 1024 / 1024,
	}, true
}

// RecordFrame increments the frame counter. Callers invoke it once per
// rendered or processed frame.
func (b *Benchmark) RecordFrame() {
	b.frames.Add(1)
}

// RecordResponseTime appends a response-time sample for an action type.
// It is a no-op when the benchmark is not running or response tracking is
// disabled. The lifecycle lock is held across the append so a concurrent
// Stop cannot admit a sample after the run's snapshot is taken.
func (b *Benchmark) RecordResponseTime(action string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateRunning || !b.opts.TrackResponse {
		return
	}

	b.respMu.Lock()
	series, ok := b.response[action]
	if !ok {
		series = &stats.Series{}
		b.response[action] = series
	}
	b.respMu.Unlock()

	series.Append(float64(d.Milliseconds()))
	metrics.RecordBenchmarkSample(b.name, "response")
}

// Stop cancels the sampler synchronously, stamps the end time, and returns
// the completed run record with summary statistics. No sample is appended
// after Stop returns.
func (b *Benchmark) Stop() (*Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateRunning {
		return nil, ErrNotRunning
	}

	close(b.stop)
	<-b.done
	b.state = StateStopped

	end := time.Now()
	run := &Run{
		Name:      b.name,
		StartedAt: b.start,
		EndedAt:   end,
		Duration:  end.Sub(b.start),
		Options:   b.opts,

		CPU:         b.cpu.Snapshot(),
		FPS:         b.fps.Snapshot(),
		CPUSummary:  b.cpu.Summarize(),
		FPSSummary:  b.fps.Summarize(),
		FramesTotal: b.frames.Load(),
	}

	b.memMu.Lock()
	run.Memory = append([]stats.MemorySample(nil), b.memory...)
	b.memMu.Unlock()
	if len(run.Memory) > 0 {
		used := 0.0
		for _, m := range run.Memory {
			used += m.UsedMB
		}
		run.AvgMemoryUsedMB = used / float64(len(run.Memory))
	}

	b.respMu.Lock()
	if len(b.response) > 0 {
		run.Response = make(map[string][]stats.Sample, len(b.response))
		run.ResponseSummary = make(map[string]stats.Summary, len(b.response))
		for action, series := range b.response {
			run.Response[action] = series.Snapshot()
			run.ResponseSummary[action] = series.Summarize()
		}
	}
	b.respMu.Unlock()

	b.log.WithFields(logrus.Fields{
		"benchmark": b.name,
		"duration":  run.Duration,
		"cpu_avg":   run.CPUSummary.Avg,
		"fps_avg":   run.FPSSummary.Avg,
	}).Info("Benchmark stopped")
	return run, nil
}
