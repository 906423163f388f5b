package types

import (
	"context"
	"time"
)

// TestStatus represents the possible states of a test execution
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
	TestStatusSkip TestStatus = "skip"
)

// SuiteKind distinguishes the two runner layers. They share the same
// execution contract and differ only in default timeout and reporting bucket.
type SuiteKind string

const (
	SuiteKindUnit        SuiteKind = "unit"
	SuiteKindIntegration SuiteKind = "integration"
)

// TestFn is the contract for a test function: no meaningful arguments
// beyond the context, a nil return signals success, a non-nil return (or a
// panic, which the runner recovers) signals failure.
type TestFn func(ctx context.Context) error

// Case is a single named unit of test logic.
type Case struct {
	Name    string
	Fn      TestFn        `json:"-" yaml:"-"`
	Timeout time.Duration // zero means "use the suite default"
	Skip    bool          // skipped cases are recorded but never executed
}

// SuiteDef is a named grouping of cases for reporting purposes only.
// Suites do not nest; two suites with the same name merge at the tally level.
type SuiteDef struct {
	Name  string
	Kind  SuiteKind
	Cases []Case
}

// CaseResult captures the outcome of a single case run.
type CaseResult struct {
	Suite    string        `json:"suite"`
	Case     string        `json:"case"`
	Status   TestStatus    `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

// Stats tracks case counts at run level.
type Stats struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Add folds a single outcome into the tally.
func (s *Stats) Add(status TestStatus) {
	s.Total++
	switch status {
	case TestStatusPass:
		s.Passed++
	case TestStatusFail:
		s.Failed++
	case TestStatusSkip:
		s.Skipped++
	}
}

// Merge folds another tally into this one.
func (s *Stats) Merge(other Stats) {
	s.Total += other.Total
	s.Passed += other.Passed
	s.Failed += other.Failed
	s.Skipped += other.Skipped
}

// RunResult captures the complete results of one runner invocation.
// Outcomes are insertion-ordered; order does not affect the counts.
type RunResult struct {
	RunID    string        `json:"run_id"`
	Kind     SuiteKind     `json:"kind"`
	Outcomes []CaseResult  `json:"outcomes"`
	Stats    Stats         `json:"stats"`
	Status   TestStatus    `json:"status"`
	Duration time.Duration `json:"duration"`
}

// DetermineStatus rolls a tally up into a single status: any failure makes
// the run a failure, an all-skip run is a skip, otherwise it passes.
func DetermineStatus(stats Stats) TestStatus {
	if stats.Failed > 0 {
		return TestStatusFail
	}
	if stats.Total > 0 && stats.Skipped == stats.Total {
		return TestStatusSkip
	}
	return TestStatusPass
}
