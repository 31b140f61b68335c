package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/kftrack/internal/config"
	"github.com/san-kum/kftrack/internal/dataset"
	"github.com/san-kum/kftrack/internal/report"
	"github.com/san-kum/kftrack/internal/scenario"
	"github.com/san-kum/kftrack/internal/sim"
	"github.com/san-kum/kftrack/internal/storage"
)

func runCmdWith(t *testing.T, flags map[string]string) (*cobra.Command, *rootOptions, *runOptions) {
	t.Helper()
	root := &rootOptions{dataDir: t.TempDir()}
	o := &runOptions{}
	cmd := &cobra.Command{Use: "run"}
	addRunFlags(cmd, o)
	for k, v := range flags {
		require.NoError(t, cmd.Flags().Set(k, v), k)
	}
	return cmd, root, o
}

// execute runs the full command tree and returns its stdout.
func execute(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "quiet"}, args...))
	require.NoError(t, cmd.ExecuteContext(t.Context()), out.String())
	return out.String()
}

func TestLoadRunConfigDefaults(t *testing.T) {
	cmd, root, o := runCmdWith(t, nil)
	cfg, err := loadRunConfig(cmd, root, o)
	require.NoError(t, err)

	want := config.DefaultConfig()
	assert.Equal(t, want.Sim(), cfg.Sim())
	assert.Equal(t, root.dataDir, cfg.Output.Dir)
	assert.Empty(t, cfg.Output.Catalog)
}

func TestLoadRunConfigFlags(t *testing.T) {
	cmd, root, o := runCmdWith(t, map[string]string{
		"scenario": "clutter",
		"seed":     "7",
		"mode":     "a1",
		"r":        "9",
		"policy":   "baseline_floor",
	})
	cfg, err := loadRunConfig(cmd, root, o)
	require.NoError(t, err)

	assert.Equal(t, scenario.Clutter, cfg.Scenario.Scenario)
	assert.Equal(t, uint64(7), cfg.Scenario.Seed)
	assert.Equal(t, sim.Adaptive, cfg.Sim().Mode)
	assert.Equal(t, 9.0, cfg.Filter.R)
	assert.Equal(t, "baseline_floor", string(cfg.Tuner.Policy))
}

func TestLoadRunConfigFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	file := config.DefaultConfig()
	file.Scenario.Seed = 99
	file.Scenario.Steps = 42
	file.Scenario.Scenario = scenario.Maneuver
	require.NoError(t, config.Save(path, file))

	cmd, root, o := runCmdWith(t, map[string]string{
		"config": path,
		"steps":  "10",
	})
	cfg, err := loadRunConfig(cmd, root, o)
	require.NoError(t, err)

	assert.Equal(t, uint64(99), cfg.Scenario.Seed)
	assert.Equal(t, 10, cfg.Scenario.Steps)
	assert.Equal(t, scenario.Maneuver, cfg.Scenario.Scenario)
	assert.Equal(t, file.Output.Dir, cfg.Output.Dir)
}

func TestLoadRunConfigPreset(t *testing.T) {
	cmd, root, o := runCmdWith(t, map[string]string{
		"preset":   "smoke",
		"scenario": "high_noise",
	})
	cfg, err := loadRunConfig(cmd, root, o)
	require.NoError(t, err)

	assert.Equal(t, config.SmokeSteps, cfg.Scenario.Steps)
	assert.Equal(t, 6.0, cfg.Scenario.SigmaZ)
	assert.Equal(t, scenario.HighNoise, cfg.Scenario.Scenario)
}

func TestLoadRunConfigErrors(t *testing.T) {
	cmd, root, o := runCmdWith(t, map[string]string{"preset": "nope"})
	_, err := loadRunConfig(cmd, root, o)
	assert.ErrorContains(t, err, "unknown preset")

	cmd, root, o = runCmdWith(t, map[string]string{"scenario": "swerve"})
	_, err = loadRunConfig(cmd, root, o)
	assert.ErrorIs(t, err, scenario.ErrUnknownScenario)

	cmd, root, o = runCmdWith(t, map[string]string{"mode": "greedy"})
	_, err = loadRunConfig(cmd, root, o)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestCommandsKeepTheirOwnDefaults(t *testing.T) {
	root := newRootCmd()
	lookup := func(name, flag string) string {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		return sub.Flags().Lookup(flag).Value.String()
	}

	assert.Equal(t, fmt.Sprint(config.EvalSteps), lookup("eval", "steps"))
	assert.Equal(t, fmt.Sprint(config.DatasetSteps), lookup("dataset", "steps"))
	assert.Equal(t, fmt.Sprint(config.DefaultConfig().Scenario.Steps), lookup("run", "steps"))
	assert.Equal(t, config.DefaultDataDir, lookup("dataset", "out"))
	assert.Equal(t, "", lookup("run", "out"))
	assert.Equal(t, "", lookup("eval", "out-root"))
}

func TestEvalWithoutFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	execute(t, "eval", "--catalog", "")

	for _, sc := range scenario.All() {
		cfg, err := storage.LoadConfig(filepath.Join(report.DefaultOutRoot, "baseline_"+string(sc)))
		require.NoError(t, err, sc)
		assert.Equal(t, config.EvalSteps, cfg.Scenario.Steps, sc)
		assert.Equal(t, uint64(config.EvalSeed), cfg.Scenario.Seed, sc)
	}
	_, err := os.Stat(filepath.Join("reports", "baseline_metrics.json"))
	assert.NoError(t, err)
}

func TestEvalSmokeWithOutRoot(t *testing.T) {
	t.Chdir(t.TempDir())
	execute(t, "eval", "--smoke", "--out-root", "mine", "--catalog", "")

	cfg, err := storage.LoadConfig(filepath.Join("mine", "baseline_cv"))
	require.NoError(t, err)
	assert.Equal(t, config.SmokeSteps, cfg.Scenario.Steps)
	_, err = os.Stat(report.SmokeOutRoot)
	assert.True(t, os.IsNotExist(err))

	out := execute(t, "report", filepath.Join("reports", "smoke_baseline_metrics.json"))
	assert.Contains(t, out, "smoke_baseline_metrics.json (baseline)")
	assert.Contains(t, out, "NIS_MEAN")
	for _, sc := range scenario.All() {
		assert.Contains(t, out, string(sc))
	}
}

func TestDatasetWithoutFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	out := execute(t, "dataset")
	assert.Contains(t, out, "Wrote dataset to: "+config.DefaultDataDir)

	for _, name := range []string{"train.csv", "val.csv", "test.csv"} {
		_, err := os.Stat(filepath.Join(config.DefaultDataDir, name))
		assert.NoError(t, err, name)
	}

	d := dataset.DefaultOptions()
	seed := dataset.SeedFor(d.BaseSeed, 0, scenario.CV)
	cfg, err := storage.LoadConfig(filepath.Join(d.RunsDir, fmt.Sprintf("cv_seed%d", seed)))
	require.NoError(t, err)
	assert.Equal(t, config.DatasetSteps, cfg.Scenario.Steps)
}

func TestScoreAndListMetrics(t *testing.T) {
	t.Chdir(t.TempDir())
	execute(t, "run", "--steps", "60", "--out", "r1", "--catalog", "runs.db")
	meta, err := storage.LoadMetadata("r1")
	require.NoError(t, err)

	out := execute(t, "score", "r1", "--catalog", "runs.db")
	assert.Contains(t, out, "run: "+meta.ID)
	assert.Contains(t, out, "final_r: 4.000000")

	out = execute(t, "list", "--catalog", "runs.db", "--metrics", "final_r,missing")
	assert.Contains(t, out, "FINAL_R")
	assert.Contains(t, out, "MISSING")
	assert.Contains(t, out, meta.ID)
	assert.Contains(t, out, "4.000000")
}

func TestScoreAddsUncatalogedRun(t *testing.T) {
	t.Chdir(t.TempDir())
	execute(t, "run", "--steps", "40", "--out", "r1", "--catalog", "")
	meta, err := storage.LoadMetadata("r1")
	require.NoError(t, err)

	execute(t, "score", "r1", "--catalog", "fresh.db")
	out := execute(t, "list", "--catalog", "fresh.db", "--metrics", "pos_rmse")
	assert.Contains(t, out, meta.ID)
	assert.NotContains(t, out, "no runs found")
}
