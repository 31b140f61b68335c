// Package report evaluates the tracker across the standard scenarios and
// writes a JSON summary with plots.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/san-kum/kftrack/internal/config"
	"github.com/san-kum/kftrack/internal/logging"
	"github.com/san-kum/kftrack/internal/metrics"
	"github.com/san-kum/kftrack/internal/scenario"
	"github.com/san-kum/kftrack/internal/sim"
	"github.com/san-kum/kftrack/internal/storage"
	"github.com/san-kum/kftrack/internal/tuning"
)

type Options struct {
	Steps      int
	Seed       uint64
	Q          float64
	R          float64
	Modes      []sim.Mode
	Tuner      *tuning.Config
	OutRoot    string
	ReportsDir string
	PlotsDir   string
	Hash       bool
	Workers    int
	// Smoke forces a short deterministic sweep and prefixes the report
	// with smoke_.
	Smoke bool
}

// Run output roots used when Options.OutRoot is empty.
const (
	DefaultOutRoot = "out_eval"
	SmokeOutRoot   = "out_smoke_eval"
)

func DefaultOptions() Options {
	return Options{
		Steps:      config.EvalSteps,
		Seed:       config.EvalSeed,
		Q:          1.0,
		R:          4.0,
		Modes:      []sim.Mode{sim.Baseline},
		ReportsDir: "reports",
		PlotsDir:   "plots",
		Hash:       true,
	}
}

// ScenarioReport is one scenario's entry in the JSON report.
type ScenarioReport struct {
	Meta    sim.Config         `json:"meta"`
	Metrics map[string]float64 `json:"metrics"`
}

type Report struct {
	Type      string                    `json:"type"`
	Scenarios map[string]ScenarioReport `json:"scenarios"`
}

// Entry describes one written run of the sweep.
type Entry struct {
	Mode     sim.Mode
	Scenario scenario.Scenario
	Dir      string
	Meta     storage.RunMetadata
}

type Summary struct {
	Reports     map[sim.Mode]*Report
	ReportPaths map[sim.Mode]string
	Entries     []Entry
}

// Evaluate computes the standard metrics over a run's records.
func Evaluate(records []sim.Record) map[string]float64 {
	return metrics.Evaluate(records)
}

func (o Options) configs() []sim.Config {
	variant := "eval"
	if o.Smoke {
		variant = "smoke"
	}

	out := make([]sim.Config, 0, len(o.Modes)*len(scenario.All()))
	for _, mode := range o.Modes {
		for _, sc := range scenario.All() {
			cfg := config.GetPreset(string(sc), variant).Sim()
			if o.Tuner != nil {
				cfg.Tuner = *o.Tuner
			}
			cfg.Mode = mode
			cfg.Scenario.Steps = o.Steps
			cfg.Scenario.Seed = o.Seed
			cfg.Filter.Q = o.Q
			cfg.Filter.R = o.R
			out = append(out, cfg)
		}
	}
	return out
}

// Sweep runs every scenario in every requested mode in parallel, then
// writes the run directories, one JSON report per mode, and the plots.
func Sweep(ctx context.Context, opts Options, log logr.Logger) (*Summary, error) {
	if opts.Smoke {
		opts.Steps = config.SmokeSteps
		opts.Seed = config.EvalSeed
	}
	if opts.OutRoot == "" {
		opts.OutRoot = DefaultOutRoot
		if opts.Smoke {
			opts.OutRoot = SmokeOutRoot
		}
	}
	if len(opts.Modes) == 0 {
		opts.Modes = []sim.Mode{sim.Baseline}
	}

	cfgs := opts.configs()
	ens := sim.NewEnsemble(metrics.Standard)
	if opts.Workers > 0 {
		ens.WithWorkers(opts.Workers)
	}
	results, err := ens.Run(ctx, cfgs)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	sum := &Summary{
		Reports:     make(map[sim.Mode]*Report),
		ReportPaths: make(map[sim.Mode]string),
	}

	for _, res := range results {
		mode, sc := res.Config.Mode, res.Config.Scenario.Scenario
		name := fmt.Sprintf("%s_%s", mode, sc)
		dir := filepath.Join(opts.OutRoot, name)

		checksum, err := storage.WriteRun(dir, res.Config, res.Records, opts.Hash)
		if err != nil {
			return nil, err
		}
		meta := storage.NewMetadata(name, res, checksum)
		if err := storage.WriteMetadata(dir, meta); err != nil {
			return nil, err
		}

		rep, ok := sum.Reports[mode]
		if !ok {
			rep = &Report{Type: string(mode), Scenarios: make(map[string]ScenarioReport)}
			sum.Reports[mode] = rep
		}
		rep.Scenarios[string(sc)] = ScenarioReport{Meta: res.Config, Metrics: meta.Metrics}

		if err := PlotPositionError(res.Records, "Position Error Over Time",
			filepath.Join(opts.PlotsDir, name+"_rmse.png")); err != nil {
			return nil, fmt.Errorf("plot %s: %w", name, err)
		}
		if err := PlotNISHistogram(res.Records, "NIS Histogram",
			filepath.Join(opts.PlotsDir, name+"_nis.png")); err != nil {
			return nil, fmt.Errorf("plot %s: %w", name, err)
		}

		sum.Entries = append(sum.Entries, Entry{Mode: mode, Scenario: sc, Dir: dir, Meta: meta})
		log.V(logging.VERBOSE).Info("scenario evaluated", "mode", mode, "scenario", sc,
			"pos_rmse", res.Metrics["pos_rmse"], "checksum", meta.Checksum)
	}

	if err := os.MkdirAll(opts.ReportsDir, 0755); err != nil {
		return nil, err
	}
	for _, mode := range opts.Modes {
		rep := sum.Reports[mode]
		prefix := ""
		if opts.Smoke {
			prefix = "smoke_"
		}
		path := filepath.Join(opts.ReportsDir, fmt.Sprintf("%s%s_metrics.json", prefix, mode))
		if err := writeJSON(path, rep); err != nil {
			return nil, err
		}
		sum.ReportPaths[mode] = path

		names, pos, vel := rep.rmseSeries()
		title := fmt.Sprintf("%s RMSE by Scenario", mode)
		if err := PlotRMSEBars(names, pos, vel, title,
			filepath.Join(opts.PlotsDir, fmt.Sprintf("%s_rmse.png", mode))); err != nil {
			return nil, fmt.Errorf("plot %s rmse: %w", mode, err)
		}
	}

	return sum, nil
}

func (r *Report) rmseSeries() (names []string, pos, vel []float64) {
	for _, sc := range scenario.All() {
		s, ok := r.Scenarios[string(sc)]
		if !ok {
			continue
		}
		names = append(names, string(sc))
		pos = append(pos, orZero(s.Metrics["pos_rmse"]))
		vel = append(vel, orZero(s.Metrics["vel_rmse"]))
	}
	return names, pos, vel
}

func orZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// LoadReport reads a report written by Sweep.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}
