package harness

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/tapforge/harness/flags"
)

// Config holds the application configuration.
type Config struct {
	RunUnit          bool          // Run the unit test layer
	RunIntegration   bool          // Run the integration test layer
	RunPerformance   bool          // Run the performance benchmark
	RunStability     bool          // Run a stability session
	RunCompatibility bool          // Run the compatibility probe
	ReportPath       string        // Where to write the consolidated JSON report
	PerCaseTimeout   time.Duration // Per-case timeout override; zero keeps layer defaults
	SuiteConfig      string        // Path to the YAML suite override file

	RunInterval time.Duration // Interval between runs
	RunOnce     bool          // Exit after one run

	BenchDuration     time.Duration // Sampling window of the performance benchmark
	StabilityDuration time.Duration // Target duration of the stability session
	EnvChecksGate     bool          // Fold environment checks into the compatibility verdict

	RequiredTargetVersion string // Minimum target application version
	RequiredHostVersion   string // Minimum host runtime version

	Log logrus.FieldLogger
}

// fileConfig mirrors Config for the optional YAML run-configuration file.
// Pointer fields distinguish "absent" from zero so CLI flags can fill gaps.
type fileConfig struct {
	RunUnit               *bool     `yaml:"run_unit"`
	RunIntegration        *bool     `yaml:"run_integration"`
	RunPerformance        *bool     `yaml:"run_performance"`
	RunStability          *bool     `yaml:"run_stability"`
	RunCompatibility      *bool     `yaml:"run_compatibility"`
	ReportPath            *string   `yaml:"report_path"`
	PerCaseTimeout        *duration `yaml:"per_case_timeout"`
	SuiteConfig           *string   `yaml:"suite_config"`
	RunInterval           *duration `yaml:"run_interval"`
	BenchDuration         *duration `yaml:"bench_duration"`
	StabilityDuration     *duration `yaml:"stability_duration"`
	EnvChecksGate         *bool     `yaml:"env_checks_gate"`
	RequiredTargetVersion *string   `yaml:"required_target_version"`
	RequiredHostVersion   *string   `yaml:"required_host_version"`
}

// duration accepts "30s" style values in YAML, which yaml.v3 does not parse
// into time.Duration on its own.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = duration(parsed)
	return nil
}

// NewConfig creates a new Config from the cli context, merging an optional
// YAML run-configuration file underneath: an explicitly set flag always
// wins over the file, the file wins over flag defaults.
func NewConfig(ctx *cli.Context, log logrus.FieldLogger) (*Config, error) {
	cfg := &Config{
		RunUnit:          ctx.Bool(flags.RunUnit.Name),
		RunIntegration:   ctx.Bool(flags.RunIntegration.Name),
		RunPerformance:   ctx.Bool(flags.RunPerformance.Name),
		RunStability:     ctx.Bool(flags.RunStability.Name),
		RunCompatibility: ctx.Bool(flags.RunCompatibility.Name),
		ReportPath:       ctx.String(flags.ReportPath.Name),
		PerCaseTimeout:   ctx.Duration(flags.CaseTimeout.Name),
		SuiteConfig:      ctx.String(flags.SuiteConfig.Name),
		RunInterval:      ctx.Duration(flags.RunInterval.Name),

		BenchDuration:     ctx.Duration(flags.BenchDuration.Name),
		StabilityDuration: ctx.Duration(flags.StabilityDuration.Name),
		EnvChecksGate:     ctx.Bool(flags.EnvChecksGate.Name),

		Log: log,
	}

	if path := ctx.String(flags.ConfigFile.Name); path != "" {
		if err := cfg.applyFile(ctx, path); err != nil {
			return nil, err
		}
	}

	cfg.RunOnce = cfg.RunInterval == 0

	if !cfg.RunUnit && !cfg.RunIntegration && !cfg.RunPerformance &&
		!cfg.RunStability && !cfg.RunCompatibility {
		return nil, fmt.Errorf("no components selected: enable at least one of unit, integration, performance, stability, compatibility")
	}
	if cfg.RunPerformance && cfg.BenchDuration <= 0 {
		return nil, fmt.Errorf("bench duration must be positive, got %s", cfg.BenchDuration)
	}
	if cfg.RunStability && cfg.StabilityDuration <= 0 {
		return nil, fmt.Errorf("stability duration must be positive, got %s", cfg.StabilityDuration)
	}

	return cfg, nil
}

func (c *Config) applyFile(ctx *cli.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	applyBool := func(flagName string, dst *bool, src *bool) {
		if src != nil && !ctx.IsSet(flagName) {
			*dst = *src
		}
	}
	applyString := func(flagName string, dst *string, src *string) {
		if src != nil && !ctx.IsSet(flagName) {
			*dst = *src
		}
	}
	applyDuration := func(flagName string, dst *time.Duration, src *duration) {
		if src != nil && !ctx.IsSet(flagName) {
			*dst = time.Duration(*src)
		}
	}

	applyBool(flags.RunUnit.Name, &c.RunUnit, fc.RunUnit)
	applyBool(flags.RunIntegration.Name, &c.RunIntegration, fc.RunIntegration)
	applyBool(flags.RunPerformance.Name, &c.RunPerformance, fc.RunPerformance)
	applyBool(flags.RunStability.Name, &c.RunStability, fc.RunStability)
	applyBool(flags.RunCompatibility.Name, &c.RunCompatibility, fc.RunCompatibility)
	applyString(flags.ReportPath.Name, &c.ReportPath, fc.ReportPath)
	applyDuration(flags.CaseTimeout.Name, &c.PerCaseTimeout, fc.PerCaseTimeout)
	applyString(flags.SuiteConfig.Name, &c.SuiteConfig, fc.SuiteConfig)
	applyDuration(flags.RunInterval.Name, &c.RunInterval, fc.RunInterval)
	applyDuration(flags.BenchDuration.Name, &c.BenchDuration, fc.BenchDuration)
	applyDuration(flags.StabilityDuration.Name, &c.StabilityDuration, fc.StabilityDuration)
	applyBool(flags.EnvChecksGate.Name, &c.EnvChecksGate, fc.EnvChecksGate)
	if fc.RequiredTargetVersion != nil {
		c.RequiredTargetVersion = *fc.RequiredTargetVersion
	}
	if fc.RequiredHostVersion != nil {
		c.RequiredHostVersion = *fc.RequiredHostVersion
	}

	return nil
}
