package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/kftrack/internal/config"
	"github.com/san-kum/kftrack/internal/dataset"
	"github.com/san-kum/kftrack/internal/experiment"
	"github.com/san-kum/kftrack/internal/report"
	"github.com/san-kum/kftrack/internal/sim"
	"github.com/san-kum/kftrack/internal/tuning"
)

type evalOptions struct {
	steps      int
	seed       uint64
	q          float64
	r          float64
	modes      []string
	policy     string
	smoke      bool
	workers    int
	outRoot    string
	reportsDir string
	plotsDir   string
	noHash     bool
}

// sweepOptions resolves the flags into report options. A tuner override
// is only set when --policy was given.
func (o *evalOptions) sweepOptions(cmd *cobra.Command) (report.Options, error) {
	opts := report.DefaultOptions()
	opts.Steps = o.steps
	opts.Seed = o.seed
	opts.Q = o.q
	opts.R = o.r
	opts.Smoke = o.smoke
	opts.Workers = o.workers
	opts.OutRoot = o.outRoot
	opts.ReportsDir = o.reportsDir
	opts.PlotsDir = o.plotsDir
	opts.Hash = !o.noHash

	opts.Modes = nil
	for _, name := range o.modes {
		m, err := sim.ParseMode(name)
		if err != nil {
			return opts, err
		}
		opts.Modes = append(opts.Modes, m)
	}
	if cmd.Flags().Changed("policy") {
		p, err := experiment.NewRegistry().GetPolicy(o.policy)
		if err != nil {
			return opts, err
		}
		tc := tuning.DefaultConfig()
		tc.Policy = p
		opts.Tuner = &tc
	}
	return opts, nil
}

func newEvalCmd(root *rootOptions) *cobra.Command {
	var o evalOptions
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "evaluate every scenario and write metric reports and plots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := o.sweepOptions(cmd)
			if err != nil {
				return err
			}

			summary, err := report.Sweep(cmd.Context(), opts, log)
			if err != nil {
				return err
			}

			for _, e := range summary.Entries {
				if err := recordRuns(cmd.Context(), root.catalogPath, e.Dir, e.Meta); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODE\tSCENARIO\tPOS_RMSE\tNIS_MEAN\tFINAL_R\tCHECKSUM")
			for _, e := range summary.Entries {
				m := e.Meta.Metrics
				fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%.4f\t%s\n",
					e.Mode, e.Scenario, m["pos_rmse"], m["nis_mean"], m["final_r"], e.Meta.Checksum)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(out)
			for _, m := range opts.Modes {
				if path, ok := summary.ReportPaths[m]; ok {
					fmt.Fprintf(out, "Wrote %s\n", path)
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&o.steps, "steps", config.EvalSteps, "steps per scenario")
	f.Uint64Var(&o.seed, "seed", config.EvalSeed, "random seed")
	f.Float64Var(&o.q, "q", 1.0, "process noise")
	f.Float64Var(&o.r, "r", 4.0, "initial measurement noise")
	f.StringSliceVar(&o.modes, "modes", []string{string(sim.Baseline)}, "modes to evaluate")
	f.StringVar(&o.policy, "policy", string(tuning.Deadband),
		"tuner policy for adaptive runs: "+strings.Join(experiment.NewRegistry().ListPolicies(), ", "))
	f.BoolVar(&o.smoke, "smoke", false, "short deterministic sweep (250 steps, seed 123)")
	f.IntVar(&o.workers, "workers", 0, "parallel runs (0 = GOMAXPROCS)")
	f.StringVar(&o.outRoot, "out-root", "",
		fmt.Sprintf("run output root (default %s, or %s with --smoke)", report.DefaultOutRoot, report.SmokeOutRoot))
	f.StringVar(&o.reportsDir, "reports", "reports", "metric report directory")
	f.StringVar(&o.plotsDir, "plots", "plots", "plot directory")
	f.BoolVar(&o.noHash, "no-hash", false, "disable the output checksum")
	return cmd
}

type datasetOptions struct {
	steps    int
	seeds    int
	baseSeed uint64
	q        float64
	r        float64
	outDir   string
	workers  int
}

func (o *datasetOptions) buildOptions() dataset.Options {
	opts := dataset.DefaultOptions()
	opts.Steps = o.steps
	opts.Seeds = o.seeds
	opts.BaseSeed = o.baseSeed
	opts.Q = o.q
	opts.R = o.r
	opts.OutDir = o.outDir
	opts.RunsDir = filepath.Join(o.outDir, "runs")
	opts.Workers = o.workers
	return opts
}

func newDatasetCmd() *cobra.Command {
	var o datasetOptions
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "simulate many seeds and write train/val/test tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := o.buildOptions()
			s, err := dataset.Build(cmd.Context(), opts, log)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, s)
			fmt.Fprintf(out, "Wrote dataset to: %s\n", opts.OutDir)
			return nil
		},
	}

	d := dataset.DefaultOptions()
	f := cmd.Flags()
	f.IntVar(&o.steps, "steps", d.Steps, "steps per run")
	f.IntVar(&o.seeds, "seeds", d.Seeds, "seeds per scenario")
	f.Uint64Var(&o.baseSeed, "base-seed", d.BaseSeed, "base seed")
	f.Float64Var(&o.q, "q", d.Q, "process noise")
	f.Float64Var(&o.r, "r", d.R, "measurement noise")
	f.StringVar(&o.outDir, "out", d.OutDir, "dataset directory")
	f.IntVar(&o.workers, "workers", 0, "parallel runs (0 = GOMAXPROCS)")
	return cmd
}
