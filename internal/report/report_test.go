package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/kftrack/internal/logging"
	"github.com/san-kum/kftrack/internal/metrics"
	"github.com/san-kum/kftrack/internal/scenario"
	"github.com/san-kum/kftrack/internal/sim"
	"github.com/san-kum/kftrack/internal/storage"
	"github.com/san-kum/kftrack/internal/tuning"
)

func tempOptions(t *testing.T) Options {
	root := t.TempDir()
	opts := DefaultOptions()
	opts.Steps = 150
	opts.OutRoot = filepath.Join(root, "out")
	opts.ReportsDir = filepath.Join(root, "reports")
	opts.PlotsDir = filepath.Join(root, "plots")
	opts.Workers = 2
	return opts
}

func TestSweepWritesReportAndPlots(t *testing.T) {
	opts := tempOptions(t)
	opts.Modes = []sim.Mode{sim.Baseline, sim.Adaptive}

	sum, err := Sweep(context.Background(), opts, logging.NewTestLogger())
	require.NoError(t, err)
	require.Len(t, sum.Entries, 8)

	for _, mode := range opts.Modes {
		path := sum.ReportPaths[mode]
		assert.Equal(t, filepath.Join(opts.ReportsDir, string(mode)+"_metrics.json"), path)

		rep, err := LoadReport(path)
		require.NoError(t, err)
		assert.Equal(t, string(mode), rep.Type)
		require.Len(t, rep.Scenarios, 4)
		for _, sc := range scenario.All() {
			entry := rep.Scenarios[string(sc)]
			assert.Equal(t, 150, entry.Meta.Scenario.Steps)
			for _, name := range metrics.Names() {
				assert.Contains(t, entry.Metrics, name)
			}

			for _, suffix := range []string{"_rmse.png", "_nis.png"} {
				_, err := os.Stat(filepath.Join(opts.PlotsDir, string(mode)+"_"+string(sc)+suffix))
				assert.NoError(t, err)
			}
		}
		_, err = os.Stat(filepath.Join(opts.PlotsDir, string(mode)+"_rmse.png"))
		assert.NoError(t, err)
	}

	hn := sum.Reports[sim.Baseline].Scenarios["high_noise"].Meta
	assert.Equal(t, 6.0, hn.Scenario.SigmaZ)
	cl := sum.Reports[sim.Baseline].Scenarios["clutter"].Meta
	assert.Equal(t, 0.9, cl.Scenario.PDetect)
}

func TestSweepRunsMatchSequential(t *testing.T) {
	opts := tempOptions(t)
	sum, err := Sweep(context.Background(), opts, logging.NewTestLogger())
	require.NoError(t, err)

	for _, e := range sum.Entries {
		records, err := storage.LoadRecords(e.Dir)
		require.NoError(t, err)
		cfg, err := storage.LoadConfig(e.Dir)
		require.NoError(t, err)

		res, err := sim.New(cfg).Run(context.Background())
		require.NoError(t, err)
		check, err := storage.WriteRun(t.TempDir(), cfg, res.Records, true)
		require.NoError(t, err)

		assert.Equal(t, e.Meta.Checksum, fmtHex(check.Sum()), e.Dir)
		assert.Len(t, records, opts.Steps)
	}
}

func TestSmokeSweepNaming(t *testing.T) {
	opts := tempOptions(t)
	opts.OutRoot = ""
	opts.Smoke = true
	wd := t.TempDir()
	t.Chdir(wd)

	sum, err := Sweep(context.Background(), opts, logging.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(opts.ReportsDir, "smoke_baseline_metrics.json"), sum.ReportPaths[sim.Baseline])

	rep, err := LoadReport(sum.ReportPaths[sim.Baseline])
	require.NoError(t, err)
	assert.Equal(t, 250, rep.Scenarios["cv"].Meta.Scenario.Steps)
	assert.Equal(t, uint64(123), rep.Scenarios["cv"].Meta.Scenario.Seed)

	_, err = os.Stat(filepath.Join(wd, "out_smoke_eval", "baseline_cv", storage.TruthFile))
	assert.NoError(t, err)
}

func TestSmokeSweepKeepsExplicitOutRoot(t *testing.T) {
	opts := tempOptions(t)
	opts.Smoke = true
	t.Chdir(t.TempDir())

	sum, err := Sweep(context.Background(), opts, logging.NewTestLogger())
	require.NoError(t, err)
	for _, e := range sum.Entries {
		assert.Equal(t, opts.OutRoot, filepath.Dir(e.Dir))
	}
	_, err = os.Stat(SmokeOutRoot)
	assert.True(t, os.IsNotExist(err), "smoke sweep wrote to %s despite an explicit root", SmokeOutRoot)
}

func TestSweepTunerOverride(t *testing.T) {
	opts := tempOptions(t)
	opts.Modes = []sim.Mode{sim.Adaptive}
	tc := tuning.DefaultConfig()
	tc.Policy = tuning.BaselineFloor
	opts.Tuner = &tc

	sum, err := Sweep(context.Background(), opts, logging.NewTestLogger())
	require.NoError(t, err)
	for _, sc := range sum.Reports[sim.Adaptive].Scenarios {
		assert.Equal(t, tuning.BaselineFloor, sc.Meta.Tuner.Policy)
		assert.GreaterOrEqual(t, sc.Metrics["final_r"], opts.R)
	}
}

func TestEvaluate(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.Scenario.Steps = 100
	res, err := sim.New(cfg).Run(context.Background())
	require.NoError(t, err)

	got := Evaluate(res.Records)
	assert.InDelta(t, 1.0, got["detect_rate"], 1e-12)
	assert.Equal(t, 4.0, got["final_r"])
	assert.Greater(t, got["pos_rmse"], 0.0)
}

func fmtHex(v uint64) string {
	return fmt.Sprintf("%x", v)
}
