// Package reporting defines the consolidated run report and its
// serializations: a structured JSON form that round-trips losslessly and a
// narrative text form for humans. Persistence beyond a file path is the
// caller's concern.
package reporting

import (
	"time"

	"github.com/tapforge/harness/bench"
	"github.com/tapforge/harness/compat"
	"github.com/tapforge/harness/stability"
	"github.com/tapforge/harness/types"
)

// Report is the consolidated result of one harness run. Component fields
// are nil when the corresponding component was not selected.
type Report struct {
	RunID     string        `json:"run_id"`
	Version   string        `json:"version,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Unit          *types.RunResult   `json:"unit,omitempty"`
	Integration   *types.RunResult   `json:"integration,omitempty"`
	Benchmark     *bench.Run         `json:"benchmark,omitempty"`
	Stability     *stability.Session `json:"stability,omitempty"`
	Compatibility *compat.Report     `json:"compatibility,omitempty"`

	Stats  types.Stats      `json:"stats"`
	Status types.TestStatus `json:"status"`
}

// DetermineStatus computes the consolidated status: a run fails if any
// selected component failed. The benchmark never fails a run; it only
// measures.
func (r *Report) DetermineStatus() types.TestStatus {
	failed := false
	ranSomething := false

	for _, rr := range []*types.RunResult{r.Unit, r.Integration} {
		if rr == nil {
			continue
		}
		ranSomething = true
		if rr.Status == types.TestStatusFail {
			failed = true
		}
	}
	if r.Stability != nil {
		ranSomething = true
		if r.Stability.State == stability.StateFailed {
			failed = true
		}
	}
	if r.Compatibility != nil {
		ranSomething = true
		if !r.Compatibility.Compatible {
			failed = true
		}
	}
	if r.Benchmark != nil {
		ranSomething = true
	}

	switch {
	case failed:
		return types.TestStatusFail
	case !ranSomething:
		return types.TestStatusSkip
	default:
		return types.TestStatusPass
	}
}
