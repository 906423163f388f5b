// Package stats provides append-only sample series and the descriptive
// statistics derived from them. Series are owned by the component that
// produced them; Summarize works on a snapshot and never mutates the series.
package stats

import (
	"sort"
	"sync"
	"time"
)

// Sample is a single time-stamped numeric observation.
type Sample struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// MemorySample is a structured memory snapshot, in megabytes.
type MemorySample struct {
	At      time.Time `json:"at"`
	TotalMB float64   `json:"total_mb"`
	UsedMB  float64   `json:"used_mb"`
	FreeMB  float64   `json:"free_mb"`
}

// Summary holds descriptive statistics over a series snapshot.
// An empty series summarizes to all zeros by convention.
type Summary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	Median float64 `json:"median"`
	Count  int     `json:"count"`
}

// Series is a time-ordered log of a single metric. Appends are safe for
// concurrent use with snapshots; values are never mutated in place.
type Series struct {
	mu      sync.Mutex
	samples []Sample
}

// Append adds a sample stamped with the current time.
func (s *Series) Append(value float64) {
	s.AppendAt(time.Now(), value)
}

// AppendAt adds a sample with an explicit timestamp.
func (s *Series) AppendAt(at time.Time, value float64) {
	s.mu.Lock()
	s.samples = append(s.samples, Sample{At: at, Value: value})
	s.mu.Unlock()
}

// Len returns the number of samples recorded so far.
func (s *Series) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// Snapshot returns a copy of the samples recorded so far.
func (s *Series) Snapshot() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Reset discards all samples.
func (s *Series) Reset() {
	s.mu.Lock()
	s.samples = nil
	s.mu.Unlock()
}

// Summarize computes descriptive statistics over the current snapshot.
func (s *Series) Summarize() Summary {
	snap := s.Snapshot()
	values := make([]float64, len(snap))
	for i, sample := range snap {
		values[i] = sample.Value
	}
	return Compute(values)
}

// Compute returns the summary of a value slice. The median of an
// even-length series is the upper-middle element, not an interpolation;
// callers relying on cross-implementation agreement depend on this rule.
func Compute(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return Summary{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Avg:    sum / float64(len(sorted)),
		Median: sorted[len(sorted)/2],
		Count:  len(sorted),
	}
}
