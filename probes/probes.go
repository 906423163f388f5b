// Package probes defines the narrow host interfaces the harness consumes:
// resource usage, feature availability, and version detection. Probes are
// injected; every consumer treats a missing or failing probe as "absent"
// and falls back to a documented placeholder rather than erroring.
package probes

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// MemoryInfo is a point-in-time memory snapshot, in bytes.
type MemoryInfo struct {
	Total uint64
	Free  uint64
	Used  uint64
}

// HostProbes is the optional host-provided measurement surface.
type HostProbes interface {
	// CPUUsage returns the current CPU utilization percentage.
	CPUUsage() (float64, error)
	// MemoryInfo returns a memory snapshot.
	MemoryInfo() (*MemoryInfo, error)
	// FeatureAvailable reports whether a named host capability is present.
	// Unknown feature names report false.
	FeatureAvailable(name string) bool
	// TargetAppVersion returns the detected version of the application
	// under automation, or ok=false if it cannot be detected.
	TargetAppVersion() (string, bool)
	// HostRuntimeVersion returns the detected host runtime version, or
	// ok=false if it cannot be detected.
	HostRuntimeVersion() (string, bool)
}

// Feature names understood by SystemProbes. Consumers dispatch on these;
// names outside the set are reported unavailable.
const (
	FeatureScreenCapture  = "screen-capture"
	FeatureInputInjection = "input-injection"
	FeatureFileAccess     = "file-access"
	FeatureProcessMetrics = "process-metrics"
)

// SystemProbes implements HostProbes against the local system.
type SystemProbes struct {
	// TargetVersionFn supplies the target application version when the
	// deployment knows how to detect it. Nil means undetectable.
	TargetVersionFn func() (string, bool)
}

var _ HostProbes = (*SystemProbes)(nil)

// CPUUsage samples system-wide CPU utilization over a short window.
func (p *SystemProbes) CPUUsage() (float64, error) {
	percents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, fmt.Errorf("cpu probe: %w", err)
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("cpu probe: no samples")
	}
	return percents[0], nil
}

// MemoryInfo reads system virtual memory usage.
func (p *SystemProbes) MemoryInfo() (*MemoryInfo, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("memory probe: %w", err)
	}
	return &MemoryInfo{Total: vm.Total, Free: vm.Available, Used: vm.Used}, nil
}

// FeatureAvailable dispatches on the known feature names.
func (p *SystemProbes) FeatureAvailable(name string) bool {
	switch name {
	case FeatureScreenCapture:
		// No display stack is probed in-process; capture is delegated to
		// the automation layer, which is present when the target app is.
		_, ok := p.targetVersion()
		return ok
	case FeatureInputInjection:
		_, ok := p.targetVersion()
		return ok
	case FeatureFileAccess:
		return CheckFileAccess(os.TempDir())
	case FeatureProcessMetrics:
		_, err := mem.VirtualMemory()
		return err == nil
	default:
		return false
	}
}

// TargetAppVersion returns the configured target detection result.
func (p *SystemProbes) TargetAppVersion() (string, bool) {
	return p.targetVersion()
}

// HostRuntimeVersion reports the Go runtime version, normalized to a
// semantic version string.
func (p *SystemProbes) HostRuntimeVersion() (string, bool) {
	v := strings.TrimPrefix(runtime.Version(), "go")
	// Development toolchains report non-release strings; treat those as
	// undetectable rather than guessing.
	if v == "" || strings.ContainsAny(v, " +") {
		return "", false
	}
	return v, true
}

func (p *SystemProbes) targetVersion() (string, bool) {
	if p.TargetVersionFn == nil {
		return "", false
	}
	return p.TargetVersionFn()
}

// EnvironmentChecks bundles the four independent environment checks. Each
// returns a bare boolean; a failing check carries no partial-failure detail.
type EnvironmentChecks struct {
	ScreenCapture   func() bool
	FileAccess      func() bool
	Permissions     func() bool
	TouchSimulation func() bool
}

// DefaultEnvironmentChecks wires the checks the local system can answer
// itself; capture and touch simulation default to the probe dispatch.
func DefaultEnvironmentChecks(p HostProbes) EnvironmentChecks {
	return EnvironmentChecks{
		ScreenCapture:   func() bool { return p.FeatureAvailable(FeatureScreenCapture) },
		FileAccess:      func() bool { return CheckFileAccess(os.TempDir()) },
		Permissions:     func() bool { return CheckFileAccess(os.TempDir()) },
		TouchSimulation: func() bool { return p.FeatureAvailable(FeatureInputInjection) },
	}
}

// CheckFileAccess performs a write/read/delete round-trip in dir.
func CheckFileAccess(dir string) bool {
	path := filepath.Join(dir, fmt.Sprintf(".tapforge-envcheck-%d", time.Now().UnixNano()))
	payload := []byte("envcheck")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return false
	}
	defer os.Remove(path)
	read, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return string(read) == string(payload)
}
