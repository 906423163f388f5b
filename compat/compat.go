// Package compat implements one-shot environment, version, and feature
// compatibility probing. A probe is stateless between invocations: every
// call re-detects and produces a fresh immutable report.
package compat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/mod/semver"

	"github.com/tapforge/harness/probes"
)

// RequiredFeatures is the fixed host capability list checked on every probe.
var RequiredFeatures = []string{
	probes.FeatureScreenCapture,
	probes.FeatureInputInjection,
	probes.FeatureFileAccess,
	probes.FeatureProcessMetrics,
}

// SystemCompatibility is the verdict for the target application.
type SystemCompatibility struct {
	Compatible      bool     `json:"compatible"`
	DetectedVersion string   `json:"detected_version,omitempty"`
	RequiredVersion string   `json:"required_version"`
	Issues          []string `json:"issues,omitempty"`
}

// HostCompatibility is the verdict for the host runtime.
type HostCompatibility struct {
	Compatible      bool            `json:"compatible"`
	DetectedVersion string          `json:"detected_version,omitempty"`
	RequiredVersion string          `json:"required_version"`
	Features        map[string]bool `json:"features"`
	Issues          []string        `json:"issues,omitempty"`
}

// EnvironmentChecks are the four advisory environment verdicts.
type EnvironmentChecks struct {
	ScreenCapture   bool `json:"screen_capture"`
	FileAccess      bool `json:"file_access"`
	Permissions     bool `json:"permissions"`
	TouchSimulation bool `json:"touch_simulation"`
}

// Report is the immutable result of one compatibility probe. By default the
// aggregate is target AND host; environment checks are reported but do not
// gate unless the prober's EnvChecksGate policy is set.
type Report struct {
	At          time.Time           `json:"at"`
	Target      SystemCompatibility `json:"target_system_compatibility"`
	Host        HostCompatibility   `json:"host_runtime_compatibility"`
	Environment EnvironmentChecks   `json:"environment_checks"`
	Compatible  bool                `json:"compatible"`
}

// Config configures a Prober.
type Config struct {
	Log                   logrus.FieldLogger
	Probes                probes.HostProbes
	Env                   probes.EnvironmentChecks
	RequiredTargetVersion string // e.g. "2.0.0"
	RequiredHostVersion   string // e.g. "1.21.0"
	// EnvChecksGate folds the four environment checks into the aggregate
	// verdict. Off by default: environment results are advisory.
	EnvChecksGate bool
}

// Prober performs compatibility probes.
type Prober struct {
	cfg Config
}

// NewProber creates a prober. Missing probes degrade each affected check to
// "undetectable" rather than erroring.
func NewProber(cfg Config) *Prober {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.RequiredTargetVersion == "" {
		cfg.RequiredTargetVersion = "1.0.0"
	}
	if cfg.RequiredHostVersion == "" {
		cfg.RequiredHostVersion = "1.21.0"
	}
	return &Prober{cfg: cfg}
}

// Probe runs the full detection pass and returns the report.
func (p *Prober) Probe(ctx context.Context) *Report {
	report := &Report{
		At:     time.Now(),
		Target: p.probeTarget(),
		Host:   p.probeHost(),
	}
	report.Environment = p.probeEnvironment(ctx)

	report.Compatible = report.Target.Compatible && report.Host.Compatible
	if p.cfg.EnvChecksGate {
		env := report.Environment
		report.Compatible = report.Compatible &&
			env.ScreenCapture && env.FileAccess && env.Permissions && env.TouchSimulation
	}

	p.cfg.Log.WithFields(logrus.Fields{
		"target_compatible": report.Target.Compatible,
		"host_compatible":   report.Host.Compatible,
		"compatible":        report.Compatible,
	}).Info("Compatibility probe completed")
	return report
}

func (p *Prober) probeTarget() SystemCompatibility {
	result := SystemCompatibility{RequiredVersion: p.cfg.RequiredTargetVersion}

	if p.cfg.Probes == nil {
		result.Issues = append(result.Issues, "no host probes configured; target system undetectable")
		return result
	}
	detected, ok := p.cfg.Probes.TargetAppVersion()
	if !ok {
		result.Issues = append(result.Issues, "target system not detected")
		return result
	}

	result.DetectedVersion = detected
	ok, issue := meetsMinimum(detected, result.RequiredVersion)
	result.Compatible = ok
	if issue != "" {
		result.Issues = append(result.Issues, issue)
	}
	return result
}

func (p *Prober) probeHost() HostCompatibility {
	result := HostCompatibility{
		RequiredVersion: p.cfg.RequiredHostVersion,
		Features:        make(map[string]bool, len(RequiredFeatures)),
	}

	if p.cfg.Probes == nil {
		result.Issues = append(result.Issues, "no host probes configured; host runtime undetectable")
		for _, name := range RequiredFeatures {
			result.Features[name] = false
		}
		return result
	}

	detected, ok := p.cfg.Probes.HostRuntimeVersion()
	if !ok {
		result.Issues = append(result.Issues, "host runtime version not detected")
	} else {
		result.DetectedVersion = detected
		ok, issue := meetsMinimum(detected, result.RequiredVersion)
		result.Compatible = ok
		if issue != "" {
			result.Issues = append(result.Issues, issue)
		}
	}

	for _, name := range RequiredFeatures {
		available := p.cfg.Probes.FeatureAvailable(name)
		result.Features[name] = available
		if !available {
			result.Issues = append(result.Issues, fmt.Sprintf("feature %q unavailable", name))
		}
	}
	return result
}

func (p *Prober) probeEnvironment(ctx context.Context) EnvironmentChecks {
	env := p.cfg.Env
	checks := EnvironmentChecks{}
	if ctx.Err() != nil {
		return checks
	}
	if env.ScreenCapture != nil {
		checks.ScreenCapture = runCheck(env.ScreenCapture)
	}
	if env.FileAccess != nil {
		checks.FileAccess = runCheck(env.FileAccess)
	}
	if env.Permissions != nil {
		checks.Permissions = runCheck(env.Permissions)
	}
	if env.TouchSimulation != nil {
		checks.TouchSimulation = runCheck(env.TouchSimulation)
	}
	return checks
}

// runCheck shields the report from panicking check implementations; a
// panicking check is a failing check.
func runCheck(check func() bool) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return check()
}

// meetsMinimum compares two version strings under semantic-version
// ordering. An unparseable version is an issue, never a pass.
func meetsMinimum(detected, required string) (bool, string) {
	d := canonical(detected)
	r := canonical(required)
	if !semver.IsValid(d) {
		return false, fmt.Sprintf("detected version %q is not a valid semantic version", detected)
	}
	if !semver.IsValid(r) {
		return false, fmt.Sprintf("required version %q is not a valid semantic version", required)
	}
	if semver.Compare(d, r) < 0 {
		return false, fmt.Sprintf("detected version %s is below required %s", detected, required)
	}
	return true, ""
}

func canonical(v string) string {
	if v == "" {
		return v
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
