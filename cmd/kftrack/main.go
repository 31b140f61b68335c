package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/san-kum/kftrack/internal/catalog"
	"github.com/san-kum/kftrack/internal/config"
	"github.com/san-kum/kftrack/internal/experiment"
	"github.com/san-kum/kftrack/internal/logging"
	"github.com/san-kum/kftrack/internal/scenario"
	"github.com/san-kum/kftrack/internal/sim"
	"github.com/san-kum/kftrack/internal/storage"
	"github.com/san-kum/kftrack/internal/tuning"
	"github.com/san-kum/kftrack/internal/viz"
)

var log = logr.Discard()

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	dataDir     string
	catalogPath string
	logLevel    string
}

// runOptions holds the flags that describe a single simulation.
type runOptions struct {
	configFile   string
	preset       string
	mode         string
	scenarioName string
	policy       string
	seed         uint64
	steps        int
	dt           float64
	sigmaZ       float64
	pDetect      float64
	clutterProb  float64
	clutterRange float64
	q            float64
	r            float64
	noHash       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "kftrack",
		Short:         "adaptive-noise constant-velocity tracking testbed",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := logging.ParseLevel(root.logLevel)
			if err != nil {
				return err
			}
			log, err = logging.New(v)
			return err
		},
	}

	cmd.PersistentFlags().StringVar(&root.dataDir, "data", config.DefaultOutDir, "run output directory")
	cmd.PersistentFlags().StringVar(&root.catalogPath, "catalog", config.DefaultCatalog, "sqlite run catalog (empty disables)")
	cmd.PersistentFlags().StringVar(&root.logLevel, "log-level", config.DefaultLogLevel, "quiet, info, verbose, debug or trace")

	cmd.AddCommand(
		newRunCmd(root),
		newEvalCmd(root),
		newDatasetCmd(),
		newListCmd(root),
		newScoreCmd(root),
		newReportCmd(),
		newPlotCmd(root),
		newExportCmd(root),
		newPresetsCmd(),
		newLiveCmd(root),
	)
	return cmd
}

func addRunFlags(cmd *cobra.Command, o *runOptions) {
	d := config.DefaultConfig()
	f := cmd.Flags()
	f.StringVar(&o.configFile, "config", "", "config file path (yaml)")
	f.StringVar(&o.preset, "preset", "", "use preset configuration for --scenario")
	f.StringVar(&o.mode, "mode", string(d.Mode), strings.Join(experiment.NewRegistry().ListModes(), " or ")+" (a1 = adaptive)")
	f.StringVar(&o.scenarioName, "scenario", string(d.Scenario.Scenario), "cv, maneuver, high_noise or clutter")
	f.StringVar(&o.policy, "policy", string(d.Tuner.Policy), "tuner policy: deadband or baseline_floor")
	f.Uint64Var(&o.seed, "seed", d.Scenario.Seed, "random seed")
	f.IntVar(&o.steps, "steps", d.Scenario.Steps, "number of steps")
	f.Float64Var(&o.dt, "dt", d.Scenario.Dt, "timestep")
	f.Float64Var(&o.sigmaZ, "sigma-z", d.Scenario.SigmaZ, "measurement noise std")
	f.Float64Var(&o.pDetect, "p-detect", d.Scenario.PDetect, "detection probability")
	f.Float64Var(&o.clutterProb, "clutter-prob", d.Scenario.ClutterProb, "clutter probability")
	f.Float64Var(&o.clutterRange, "clutter-range", d.Scenario.ClutterRange, "clutter half-width")
	f.Float64Var(&o.q, "q", d.Filter.Q, "filter process noise")
	f.Float64Var(&o.r, "r", d.Filter.R, "filter initial measurement noise")
}

// loadRunConfig layers defaults, preset, config file and changed flags,
// in that order.
func loadRunConfig(cmd *cobra.Command, root *rootOptions, o *runOptions) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if o.preset != "" {
		p := config.GetPreset(o.scenarioName, o.preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", o.preset, config.ListPresets(o.scenarioName))
		}
		cfg = p
	}

	if o.configFile != "" {
		c, err := config.Load(o.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	}

	flags := cmd.Flags()
	if flags.Changed("scenario") || (o.preset == "" && o.configFile == "") {
		sc, err := scenario.Parse(o.scenarioName)
		if err != nil {
			return nil, err
		}
		cfg.Scenario.Scenario = sc
	}
	if flags.Changed("mode") {
		cfg.Mode = sim.Mode(o.mode)
	}
	if flags.Changed("policy") {
		cfg.Tuner.Policy = tuning.Policy(o.policy)
	}
	if flags.Changed("seed") {
		cfg.Scenario.Seed = o.seed
	}
	if flags.Changed("steps") {
		cfg.Scenario.Steps = o.steps
	}
	if flags.Changed("dt") {
		cfg.Scenario.Dt = o.dt
	}
	if flags.Changed("sigma-z") {
		cfg.Scenario.SigmaZ = o.sigmaZ
	}
	if flags.Changed("p-detect") {
		cfg.Scenario.PDetect = o.pDetect
	}
	if flags.Changed("clutter-prob") {
		cfg.Scenario.ClutterProb = o.clutterProb
	}
	if flags.Changed("clutter-range") {
		cfg.Scenario.ClutterRange = o.clutterRange
	}
	if flags.Changed("q") {
		cfg.Filter.Q = o.q
	}
	if flags.Changed("r") {
		cfg.Filter.R = o.r
	}
	if flags.Lookup("no-hash") != nil && flags.Changed("no-hash") {
		cfg.Output.Hash = !o.noHash
	}

	persistent := cmd.Root().PersistentFlags()
	if persistent.Changed("data") || o.configFile == "" {
		cfg.Output.Dir = root.dataDir
	}
	if persistent.Changed("catalog") || o.configFile == "" {
		cfg.Output.Catalog = root.catalogPath
	}

	return cfg, cfg.Validate()
}

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		o           runOptions
		outDir      string
		metricNames []string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run one tracking simulation and write its CSVs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(cmd, root, &o)
			if err != nil {
				return err
			}

			ms, err := experiment.NewRegistry().Metrics(metricNames)
			if err != nil {
				return err
			}
			exp := experiment.New(cfg, log)
			if err := exp.Setup(ms); err != nil {
				return err
			}

			start := time.Now()
			res, err := exp.Run(cmd.Context(), outDir)
			if err != nil {
				return err
			}

			if err := recordRuns(cmd.Context(), cfg.Output.Catalog, res.Dir, res.Meta); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "completed in %v\n", time.Since(start))
			fmt.Fprintf(out, "run id: %s\n", res.RunID)
			fmt.Fprintf(out, "steps: %d\n", res.Result.StepsTaken)
			fmt.Fprintln(out, "\nmetrics:")
			for _, m := range ms {
				fmt.Fprintf(out, "  %s: %.6f\n", m.Name(), res.Result.Metrics[m.Name()])
			}
			fmt.Fprintln(out)
			if res.Checksum.Enabled() {
				fmt.Fprintln(out, res.Checksum)
			}
			fmt.Fprintf(out, "Wrote outputs to: %s\n", res.Dir)
			return nil
		},
	}
	addRunFlags(cmd, &o)
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default <data>/<scenario>_<id>)")
	cmd.Flags().BoolVar(&o.noHash, "no-hash", false, "disable the output checksum")
	cmd.Flags().StringSliceVar(&metricNames, "metrics", nil,
		"metrics to compute (default all): "+strings.Join(experiment.NewRegistry().ListMetrics(), ", "))
	return cmd
}

func newLiveCmd(root *rootOptions) *cobra.Command {
	var (
		o     runOptions
		fps   int
		theme string
	)
	cmd := &cobra.Command{
		Use:   "live",
		Short: "run a simulation with a live terminal view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(cmd, root, &o)
			if err != nil {
				return err
			}

			m := viz.NewModel(cfg.Sim()).WithFPS(fps).WithTheme(theme)
			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil {
				return err
			}
			return nil
		},
	}
	addRunFlags(cmd, &o)
	cmd.Flags().IntVar(&fps, "fps", 30, "frame rate")
	cmd.Flags().StringVar(&theme, "theme", viz.ThemeNames()[0], "color theme: "+strings.Join(viz.ThemeNames(), ", "))
	return cmd
}

// recordRuns registers a run in the catalog. An empty path disables it.
func recordRuns(ctx context.Context, path, dir string, meta storage.RunMetadata) error {
	if path == "" {
		return nil
	}
	cat, err := catalog.Open(path)
	if err != nil {
		return err
	}
	defer cat.Close()

	if err := cat.RecordRun(ctx, absDir(dir), meta); err != nil {
		return fmt.Errorf("catalog %s: %w", meta.ID, err)
	}
	log.V(logging.DEBUG).Info("cataloged run", "id", meta.ID, "catalog", path)
	return nil
}

func absDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}

// runDir accepts either a directory path or a run id under --data.
func runDir(root *rootOptions, arg string) string {
	if fi, err := os.Stat(arg); err == nil && fi.IsDir() {
		return arg
	}
	return storage.New(root.dataDir).RunDir(arg)
}
