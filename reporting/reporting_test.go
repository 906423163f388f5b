package reporting

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapforge/harness/bench"
	"github.com/tapforge/harness/compat"
	"github.com/tapforge/harness/stability"
	"github.com/tapforge/harness/types"
)

func sampleReport() *Report {
	return &Report{
		RunID:     "run-123",
		Version:   "1.2.3",
		StartedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Duration:  90 * time.Second,
		Unit: &types.RunResult{
			RunID: "unit-1",
			Kind:  types.SuiteKindUnit,
			Outcomes: []types.CaseResult{
				{Suite: "core", Case: "passes", Status: types.TestStatusPass, Duration: 12 * time.Millisecond},
				{Suite: "core", Case: "fails", Status: types.TestStatusFail, Error: "boom", Duration: 3 * time.Millisecond},
			},
			Stats:  types.Stats{Total: 2, Passed: 1, Failed: 1},
			Status: types.TestStatusFail,
		},
		Stats:  types.Stats{Total: 2, Passed: 1, Failed: 1},
		Status: types.TestStatusFail,
	}
}

func TestJSONFormatter_RoundTrip(t *testing.T) {
	original := sampleReport()

	f := &JSONFormatter{}
	content, err := f.Format(original)
	require.NoError(t, err)

	parsed, err := f.Parse(content)
	require.NoError(t, err)

	assert.Equal(t, original.RunID, parsed.RunID)
	assert.Equal(t, original.Version, parsed.Version)
	assert.True(t, original.StartedAt.Equal(parsed.StartedAt))
	assert.Equal(t, original.Duration, parsed.Duration)
	assert.Equal(t, original.Stats, parsed.Stats)
	assert.Equal(t, original.Status, parsed.Status)
	require.NotNil(t, parsed.Unit)
	assert.Equal(t, original.Unit.Outcomes, parsed.Unit.Outcomes)
	assert.Nil(t, parsed.Integration)
}

func TestJSONFormatter_ParseRejectsGarbage(t *testing.T) {
	f := &JSONFormatter{}
	_, err := f.Parse("not json at all")
	assert.Error(t, err)
}

func TestTextFormatter_ContainsSections(t *testing.T) {
	report := &Report{
		RunID:     "run-xyz",
		StartedAt: time.Now(),
		Duration:  2 * time.Second,
		Unit: &types.RunResult{
			Outcomes: []types.CaseResult{
				{Suite: "core", Case: "passes", Status: types.TestStatusPass},
			},
			Stats:  types.Stats{Total: 1, Passed: 1},
			Status: types.TestStatusPass,
		},
		Stability: &stability.Session{
			Name:       "overnight",
			State:      stability.StateCompleted,
			Duration:   time.Hour,
			ErrorCount: 2,
			Errors: []stability.ErrorEvent{
				{Type: "Timeout", Message: "tap did not land"},
			},
		},
		Compatibility: &compat.Report{
			Compatible: true,
			Target:     compat.SystemCompatibility{Compatible: true, DetectedVersion: "2.1.0", RequiredVersion: "2.0.0"},
			Host:       compat.HostCompatibility{Compatible: true, DetectedVersion: "1.22.0", RequiredVersion: "1.21.0"},
		},
		Status: types.TestStatusPass,
	}

	content, err := (&TextFormatter{}).Format(report)
	require.NoError(t, err)

	assert.Contains(t, content, "Harness Report run-xyz")
	assert.Contains(t, content, "Status:   PASS")
	assert.Contains(t, content, "Unit tests")
	assert.Contains(t, content, "passes")
	assert.Contains(t, content, "1 passed / 0 failed / 0 skipped")
	assert.Contains(t, content, `Stability session "overnight"`)
	assert.Contains(t, content, "tap did not land")
	assert.Contains(t, content, "Compatibility: compatible")
	assert.Contains(t, content, `detected "2.1.0"`)
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, NewFileWriter(path).Write("{}\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
}

func TestReport_DetermineStatus(t *testing.T) {
	pass := &types.RunResult{Status: types.TestStatusPass}
	fail := &types.RunResult{Status: types.TestStatusFail}

	tests := []struct {
		name   string
		report Report
		want   types.TestStatus
	}{
		{"nothing ran", Report{}, types.TestStatusSkip},
		{"unit pass", Report{Unit: pass}, types.TestStatusPass},
		{"unit fail", Report{Unit: fail}, types.TestStatusFail},
		{"integration fail overrides unit pass", Report{Unit: pass, Integration: fail}, types.TestStatusFail},
		{"failed stability session", Report{Unit: pass, Stability: &stability.Session{State: stability.StateFailed}}, types.TestStatusFail},
		{"completed stability session", Report{Stability: &stability.Session{State: stability.StateCompleted}}, types.TestStatusPass},
		{"incompatible environment", Report{Compatibility: &compat.Report{Compatible: false}}, types.TestStatusFail},
		{"benchmark alone never fails", Report{Benchmark: &bench.Run{}}, types.TestStatusPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.report.DetermineStatus())
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m0s", formatDuration(2*time.Minute))
}
