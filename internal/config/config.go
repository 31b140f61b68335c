// Package config loads and saves run configurations as YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/kftrack/internal/scenario"
	"github.com/san-kum/kftrack/internal/sim"
)

const (
	DefaultOutDir   = "out_run"
	DefaultDataDir  = "data"
	DefaultCatalog  = "kftrack.db"
	DefaultLogLevel = "info"
)

var ErrInvalid = errors.New("config: invalid")

// Config is the on-disk form of one run: the simulation itself plus
// where its output goes.
type Config struct {
	sim.Config `yaml:",inline"`
	Output     OutputConfig `yaml:"output"`
	LogLevel   string       `yaml:"log_level"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
	// Hash enables the per-line FNV-1a checksum of written CSV rows.
	Hash    bool   `yaml:"hash"`
	Catalog string `yaml:"catalog"`
}

func DefaultConfig() *Config {
	return &Config{
		Config: sim.DefaultConfig(),
		Output: OutputConfig{
			Dir:     DefaultOutDir,
			Hash:    true,
			Catalog: DefaultCatalog,
		},
		LogLevel: DefaultLogLevel,
	}
}

// Load reads path over DefaultConfig, so omitted keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	mode, err := sim.ParseMode(string(c.Mode))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Scenario.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if mode == sim.Adaptive {
		if err := c.Tuner.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("%w: output dir is empty", ErrInvalid)
	}
	return nil
}

// Sim returns the simulation part with the mode name normalized.
func (c *Config) Sim() sim.Config {
	out := c.Config
	if m, err := sim.ParseMode(string(out.Mode)); err == nil {
		out.Mode = m
	}
	return out
}

// WithScenario returns a copy of c aimed at another scenario, keeping every
// other setting.
func (c *Config) WithScenario(s scenario.Scenario) *Config {
	out := *c
	out.Scenario.Scenario = s
	return &out
}
