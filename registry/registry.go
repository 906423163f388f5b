// Package registry manages the suite definitions the harness runs and the
// optional YAML configuration that tunes them: per-suite enablement,
// per-case timeout overrides and skips, and per-kind default timeouts.
package registry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/tapforge/harness/types"
)

// Registry manages registered suites and their configuration.
type Registry struct {
	config Config
	suites []types.SuiteDef
	yaml   *suiteConfigFile
	mu     sync.RWMutex
}

// Config contains registry configuration.
type Config struct {
	Log logrus.FieldLogger
	// SuiteConfigFile is an optional YAML file of suite overrides.
	SuiteConfigFile string
}

type suiteConfigFile struct {
	UnitTimeout        duration              `yaml:"unit_timeout"`
	IntegrationTimeout duration              `yaml:"integration_timeout"`
	Suites             []suiteConfigOverride `yaml:"suites"`
}

type suiteConfigOverride struct {
	Name    string               `yaml:"name"`
	Enabled *bool                `yaml:"enabled"`
	Timeout duration             `yaml:"timeout"`
	Cases   []caseConfigOverride `yaml:"cases"`
}

type caseConfigOverride struct {
	Name    string   `yaml:"name"`
	Timeout duration `yaml:"timeout"`
	Skip    bool     `yaml:"skip"`
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

// NewRegistry creates a new registry instance.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{config: cfg}

	if cfg.SuiteConfigFile != "" {
		loaded, err := loadSuiteConfig(cfg.SuiteConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load suite config: %w", err)
		}
		r.yaml = loaded
		cfg.Log.WithFields(logrus.Fields{
			"file":      cfg.SuiteConfigFile,
			"overrides": len(loaded.Suites),
		}).Debug("Suite config loaded")
	}

	return r, nil
}

func loadSuiteConfig(path string) (*suiteConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite config: %w", err)
	}
	var cfg suiteConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse suite config: %w", err)
	}
	return &cfg, nil
}

// Register adds a suite definition. Duplicate names are allowed; they merge
// at the tally level when reported.
func (r *Registry) Register(def types.SuiteDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suites = append(r.suites, def)
	r.config.Log.WithFields(logrus.Fields{
		"suite": def.Name,
		"kind":  def.Kind,
		"cases": len(def.Cases),
	}).Debug("Suite registered")
}

// SuitesByKind returns the enabled suites of one kind with all configured
// overrides applied, in registration order.
func (r *Registry) SuitesByKind(kind types.SuiteKind) []types.SuiteDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []types.SuiteDef
	for _, def := range r.suites {
		if def.Kind != kind {
			continue
		}
		applied, enabled := r.applyOverrides(def)
		if !enabled {
			r.config.Log.WithField("suite", def.Name).Debug("Suite disabled by config")
			continue
		}
		out = append(out, applied)
	}
	return out
}

// DefaultTimeout returns the configured default case timeout for a kind,
// or zero when the config file does not set one.
func (r *Registry) DefaultTimeout(kind types.SuiteKind) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.yaml == nil {
		return 0
	}
	if kind == types.SuiteKindIntegration {
		return time.Duration(r.yaml.IntegrationTimeout)
	}
	return time.Duration(r.yaml.UnitTimeout)
}

func (r *Registry) applyOverrides(def types.SuiteDef) (types.SuiteDef, bool) {
	if r.yaml == nil {
		return def, true
	}

	var override *suiteConfigOverride
	for i := range r.yaml.Suites {
		if r.yaml.Suites[i].Name == def.Name {
			override = &r.yaml.Suites[i]
			break
		}
	}
	if override == nil {
		return def, true
	}
	if override.Enabled != nil && !*override.Enabled {
		return def, false
	}

	out := types.SuiteDef{Name: def.Name, Kind: def.Kind, Cases: make([]types.Case, len(def.Cases))}
	copy(out.Cases, def.Cases)
	for i := range out.Cases {
		if override.Timeout > 0 && out.Cases[i].Timeout == 0 {
			out.Cases[i].Timeout = time.Duration(override.Timeout)
		}
		for _, co := range override.Cases {
			if co.Name != out.Cases[i].Name {
				continue
			}
			if co.Timeout > 0 {
				out.Cases[i].Timeout = time.Duration(co.Timeout)
			}
			if co.Skip {
				out.Cases[i].Skip = true
			}
		}
	}
	return out, true
}
