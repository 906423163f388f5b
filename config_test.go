package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/tapforge/harness/flags"
)

// parseConfig runs NewConfig through a real cli app so IsSet semantics match
// production flag parsing.
func parseConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	var cfg *Config
	var cfgErr error
	app := &cli.App{
		Name:  "test",
		Flags: flags.Flags,
		Action: func(ctx *cli.Context) error {
			cfg, cfgErr = NewConfig(ctx, log)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"test"}, args...)))
	return cfg, cfgErr
}

func writeRunConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(t)
	require.NoError(t, err)

	assert.True(t, cfg.RunUnit)
	assert.True(t, cfg.RunIntegration)
	assert.False(t, cfg.RunPerformance)
	assert.False(t, cfg.RunStability)
	assert.False(t, cfg.RunCompatibility)
	assert.True(t, cfg.RunOnce)
	assert.Equal(t, 30*time.Second, cfg.BenchDuration)
	assert.Equal(t, 30*time.Minute, cfg.StabilityDuration)
}

func TestNewConfig_IntervalDisablesRunOnce(t *testing.T) {
	cfg, err := parseConfig(t, "--run-interval", "1h")
	require.NoError(t, err)
	assert.False(t, cfg.RunOnce)
	assert.Equal(t, time.Hour, cfg.RunInterval)
}

func TestNewConfig_NoComponentsSelectedFails(t *testing.T) {
	_, err := parseConfig(t, "--run-unit=false", "--run-integration=false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no components selected")
}

func TestNewConfig_NonPositiveDurationsFail(t *testing.T) {
	_, err := parseConfig(t, "--run-performance", "--bench-duration", "0s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bench duration")

	_, err = parseConfig(t, "--run-stability", "--stability-duration", "0s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stability duration")
}

func TestNewConfig_FileFillsUnsetFlags(t *testing.T) {
	path := writeRunConfig(t, `
run_performance: true
bench_duration: 5s
report_path: /tmp/report.json
required_target_version: "2.0.0"
`)
	cfg, err := parseConfig(t, "--config", path)
	require.NoError(t, err)

	assert.True(t, cfg.RunPerformance)
	assert.Equal(t, 5*time.Second, cfg.BenchDuration)
	assert.Equal(t, "/tmp/report.json", cfg.ReportPath)
	assert.Equal(t, "2.0.0", cfg.RequiredTargetVersion)
}

func TestNewConfig_ExplicitFlagWinsOverFile(t *testing.T) {
	path := writeRunConfig(t, `
bench_duration: 5s
run_unit: false
`)
	cfg, err := parseConfig(t, "--config", path, "--bench-duration", "12s", "--run-unit")
	require.NoError(t, err)

	assert.Equal(t, 12*time.Second, cfg.BenchDuration)
	assert.True(t, cfg.RunUnit)
}

func TestNewConfig_MissingFileFails(t *testing.T) {
	_, err := parseConfig(t, "--config", "/nonexistent/run.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestNewConfig_MalformedFileFails(t *testing.T) {
	path := writeRunConfig(t, "run_unit: [nope")
	_, err := parseConfig(t, "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}
