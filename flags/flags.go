package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "TAPFORGE"

// prefixEnvVars prepends the application prefix to an env var name.
func prefixEnvVars(name string) []string {
	return []string{fmt.Sprintf("%s_%s", EnvVarPrefix, name)}
}

var (
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: prefixEnvVars("CONFIG"),
		Usage:   "Path to a YAML run configuration file; flags override file values",
	}
	SuiteConfig = &cli.StringFlag{
		Name:    "suite-config",
		Value:   "",
		EnvVars: prefixEnvVars("SUITE_CONFIG"),
		Usage:   "Path to a YAML suite override file (enable/disable, timeouts, skips)",
	}
	RunUnit = &cli.BoolFlag{
		Name:    "run-unit",
		Value:   true,
		EnvVars: prefixEnvVars("RUN_UNIT"),
		Usage:   "Run the unit test layer",
	}
	RunIntegration = &cli.BoolFlag{
		Name:    "run-integration",
		Value:   true,
		EnvVars: prefixEnvVars("RUN_INTEGRATION"),
		Usage:   "Run the integration test layer",
	}
	RunPerformance = &cli.BoolFlag{
		Name:    "run-performance",
		Value:   false,
		EnvVars: prefixEnvVars("RUN_PERFORMANCE"),
		Usage:   "Run the performance benchmark",
	}
	RunStability = &cli.BoolFlag{
		Name:    "run-stability",
		Value:   false,
		EnvVars: prefixEnvVars("RUN_STABILITY"),
		Usage:   "Run a stability session",
	}
	RunCompatibility = &cli.BoolFlag{
		Name:    "run-compatibility",
		Value:   false,
		EnvVars: prefixEnvVars("RUN_COMPATIBILITY"),
		Usage:   "Run the compatibility probe",
	}
	ReportPath = &cli.StringFlag{
		Name:    "report",
		Value:   "",
		EnvVars: prefixEnvVars("REPORT"),
		Usage:   "Path to write the consolidated JSON report (stdout narrative when empty)",
	}
	CaseTimeout = &cli.DurationFlag{
		Name:    "case-timeout",
		Value:   0,
		EnvVars: prefixEnvVars("CASE_TIMEOUT"),
		Usage:   "Per-case timeout override (e.g. '5s'); zero keeps the per-layer defaults",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	BenchDuration = &cli.DurationFlag{
		Name:    "bench-duration",
		Value:   30 * time.Second,
		EnvVars: prefixEnvVars("BENCH_DURATION"),
		Usage:   "How long the performance benchmark samples per run",
	}
	StabilityDuration = &cli.DurationFlag{
		Name:    "stability-duration",
		Value:   30 * time.Minute,
		EnvVars: prefixEnvVars("STABILITY_DURATION"),
		Usage:   "Target duration of a stability session",
	}
	EnvChecksGate = &cli.BoolFlag{
		Name:    "env-checks-gate",
		Value:   false,
		EnvVars: prefixEnvVars("ENV_CHECKS_GATE"),
		Usage:   "Fold environment checks into the compatibility verdict instead of treating them as advisory",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level (trace, debug, info, warn, error)",
	}
	LogFormat = &cli.StringFlag{
		Name:    "log-format",
		Value:   "text",
		EnvVars: prefixEnvVars("LOG_FORMAT"),
		Usage:   "Log format (text, json)",
	}
)

var Flags = []cli.Flag{
	ConfigFile,
	SuiteConfig,
	RunUnit,
	RunIntegration,
	RunPerformance,
	RunStability,
	RunCompatibility,
	ReportPath,
	CaseTimeout,
	RunInterval,
	BenchDuration,
	StabilityDuration,
	EnvChecksGate,
	LogLevel,
	LogFormat,
}
