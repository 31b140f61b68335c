package config

import (
	"sort"

	"github.com/san-kum/kftrack/internal/scenario"
	"github.com/san-kum/kftrack/internal/sim"
)

// Step counts used by the evaluation and dataset tools.
const (
	EvalSteps    = 800
	SmokeSteps   = 250
	DatasetSteps = 600
	EvalSeed     = 123
)

type scenarioParams struct {
	sigmaZ, pDetect, clutterProb float64
}

// evalParams are the measurement conditions each scenario is evaluated
// under.
var evalParams = map[scenario.Scenario]scenarioParams{
	scenario.CV:        {sigmaZ: 2.0, pDetect: 1.0, clutterProb: 0.0},
	scenario.Maneuver:  {sigmaZ: 2.0, pDetect: 1.0, clutterProb: 0.0},
	scenario.HighNoise: {sigmaZ: 6.0, pDetect: 1.0, clutterProb: 0.0},
	scenario.Clutter:   {sigmaZ: 2.0, pDetect: 0.9, clutterProb: 0.25},
}

// Presets maps scenario name to named run configurations.
var Presets = buildPresets()

func buildPresets() map[string]map[string]*Config {
	variants := map[string]int{
		"eval":    EvalSteps,
		"smoke":   SmokeSteps,
		"dataset": DatasetSteps,
	}

	out := make(map[string]map[string]*Config, len(evalParams))
	for sc, p := range evalParams {
		byName := make(map[string]*Config, len(variants))
		for name, steps := range variants {
			cfg := DefaultConfig()
			cfg.Mode = sim.Baseline
			cfg.Scenario.Scenario = sc
			cfg.Scenario.Seed = EvalSeed
			cfg.Scenario.Steps = steps
			cfg.Scenario.SigmaZ = p.sigmaZ
			cfg.Scenario.PDetect = p.pDetect
			cfg.Scenario.ClutterProb = p.clutterProb
			byName[name] = cfg
		}
		out[string(sc)] = byName
	}
	return out
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(sc, preset string) *Config {
	byName, ok := Presets[sc]
	if !ok {
		return nil
	}
	cfg, ok := byName[preset]
	if !ok {
		return nil
	}
	c := *cfg
	return &c
}

func ListPresets(sc string) []string {
	byName, ok := Presets[sc]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
