package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	harness "github.com/tapforge/harness"
	"github.com/tapforge/harness/assert"
	"github.com/tapforge/harness/flags"
	"github.com/tapforge/harness/probes"
	"github.com/tapforge/harness/registry"
	"github.com/tapforge/harness/runner"
	"github.com/tapforge/harness/service"
	"github.com/tapforge/harness/stats"
	"github.com/tapforge/harness/types"
)

var (
	Version   = "v0.3.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "tapforge-harness"
	app.Usage = "Test orchestration and reliability monitoring engine"
	app.Description = "tapforge-harness runs test suites, performance benchmarks, stability sessions, and compatibility probes"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if harness.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), 2))
			} else if harness.IsTestFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			}
		}
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("Application failed")
	}
}

func run(ctx *cli.Context) error {
	log, err := newLogger(ctx)
	if err != nil {
		return harness.NewRuntimeError(err)
	}

	cfg, err := harness.NewConfig(ctx, log)
	if err != nil {
		return harness.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	reg, err := registry.NewRegistry(registry.Config{
		Log:             log,
		SuiteConfigFile: cfg.SuiteConfig,
	})
	if err != nil {
		return harness.NewRuntimeError(fmt.Errorf("failed to create registry: %w", err))
	}
	hostProbes := &probes.SystemProbes{}
	registerBuiltinSuites(reg, hostProbes)

	runCtx, cancel := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc := service.New(log)
	svc.Start(runCtx)
	defer svc.Shutdown()

	shutdown := make(chan error, 1)
	h, err := harness.New(runCtx, cfg, Version, reg, hostProbes, func(err error) {
		shutdown <- err
	})
	if err != nil {
		return harness.NewRuntimeError(fmt.Errorf("failed to create harness: %w", err))
	}

	if err := h.Start(runCtx); err != nil {
		return err
	}
	if cfg.RunOnce {
		return nil
	}

	select {
	case err := <-shutdown:
		_ = h.Stop(runCtx)
		return err
	case <-runCtx.Done():
		_ = h.Stop(context.Background())
		return h.WaitForShutdown(context.Background())
	}
}

func newLogger(ctx *cli.Context) (logrus.FieldLogger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(ctx.String(flags.LogLevel.Name))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	if ctx.String(flags.LogFormat.Name) == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log, nil
}

// registerBuiltinSuites registers the self-check suites every deployment
// carries: they verify the harness's own assertion layer and the host
// probe surface before any product-specific suites run.
func registerBuiltinSuites(reg *registry.Registry, hostProbes probes.HostProbes) {
	selfcheck := runner.NewSuite("selfcheck", types.SuiteKindUnit).
		Register("assertions", func(ctx context.Context) error {
			if err := assert.Equal(1+1, 2, "arithmetic sanity"); err != nil {
				return err
			}
			return assert.NotNil(ctx, "context must be supplied")
		}).
		Register("statistics", func(ctx context.Context) error {
			summary := stats.Compute([]float64{1, 2, 3, 4, 5})
			if err := assert.InDelta(summary.Avg, 3, 1e-9, "mean of 1..5"); err != nil {
				return err
			}
			return assert.InDelta(summary.Median, 3, 1e-9, "median of 1..5")
		})
	reg.Register(selfcheck.Def())

	environment := runner.NewSuite("environment", types.SuiteKindIntegration).
		Register("memory-probe", func(ctx context.Context) error {
			_, err := hostProbes.MemoryInfo()
			return assert.NoError(err, "memory probe must answer")
		}).
		Register("file-access", func(ctx context.Context) error {
			return assert.True(probes.CheckFileAccess(os.TempDir()), "temp dir must round-trip")
		})
	reg.Register(environment.Def())
}
