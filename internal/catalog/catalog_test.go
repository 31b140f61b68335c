package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/kftrack/internal/scenario"
	"github.com/san-kum/kftrack/internal/sim"
	"github.com/san-kum/kftrack/internal/storage"
)

func openTemp(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func meta(id string, sc scenario.Scenario, mode sim.Mode, at time.Time, rmse float64) storage.RunMetadata {
	return storage.RunMetadata{
		ID:        id,
		Timestamp: at,
		Mode:      mode,
		Scenario:  sc,
		Seed:      123,
		Steps:     500,
		Dt:        0.02,
		Checksum:  "abc123",
		Metrics:   map[string]float64{"pos_rmse": rmse, "final_r": 4},
	}
}

func TestRecordAndListRuns(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.RecordRun(ctx, "/runs/a", meta("cv_a", scenario.CV, sim.Baseline, t0, 1.0)))
	require.NoError(t, c.RecordRun(ctx, "/runs/b", meta("cv_b", scenario.CV, sim.Adaptive, t0.Add(time.Second), 0.8)))
	require.NoError(t, c.RecordRun(ctx, "/runs/c", meta("clutter_c", scenario.Clutter, sim.Adaptive, t0.Add(time.Millisecond), 3.0)))

	all, err := c.ListRuns(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"cv_b", "clutter_c", "cv_a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, "/runs/b", all[0].Dir)
	assert.Equal(t, uint64(123), all[0].Seed)
	assert.True(t, all[0].CreatedAt.Equal(t0.Add(time.Second)))

	cv, err := c.ListRuns(ctx, Filter{Scenario: scenario.CV})
	require.NoError(t, err)
	assert.Len(t, cv, 2)

	adaptiveCV, err := c.ListRuns(ctx, Filter{Scenario: scenario.CV, Mode: sim.Adaptive})
	require.NoError(t, err)
	require.Len(t, adaptiveCV, 1)
	assert.Equal(t, "cv_b", adaptiveCV[0].ID)

	limited, err := c.ListRuns(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordRunReplaces(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)
	now := time.Now()

	require.NoError(t, c.RecordRun(ctx, "/x", meta("cv_a", scenario.CV, sim.Baseline, now, 1.0)))
	require.NoError(t, c.RecordRun(ctx, "/y", meta("cv_a", scenario.CV, sim.Baseline, now, 2.0)))

	runs, err := c.ListRuns(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "/y", runs[0].Dir)

	m, err := c.MetricsFor(ctx, "cv_a")
	require.NoError(t, err)
	assert.Equal(t, 2.0, m["pos_rmse"])
}

func TestRecordMetrics(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)
	require.NoError(t, c.RecordRun(ctx, "/x", meta("cv_a", scenario.CV, sim.Baseline, time.Now(), 1.0)))

	require.NoError(t, c.RecordMetrics(ctx, "cv_a", map[string]float64{"nis_mean": 2.2, "nis_p95": 0}))
	m, err := c.MetricsFor(ctx, "cv_a")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"pos_rmse": 1.0, "final_r": 4, "nis_mean": 2.2, "nis_p95": 0}, m)

	err = c.RecordMetrics(ctx, "missing", map[string]float64{"x": 1})
	assert.True(t, errors.Is(err, ErrNotFound), "err = %v", err)
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)
	now := time.Now()

	require.NoError(t, c.RecordRun(ctx, "/1", meta("clutter_1", scenario.Clutter, sim.Baseline, now, 3.0)))
	require.NoError(t, c.RecordRun(ctx, "/2", meta("clutter_2", scenario.Clutter, sim.Baseline, now, 5.0)))
	require.NoError(t, c.RecordRun(ctx, "/3", meta("cv_1", scenario.CV, sim.Baseline, now, 1.0)))

	got, err := c.Summarize(ctx, "pos_rmse")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, scenario.CV, got[0].Scenario)
	assert.Equal(t, scenario.Clutter, got[1].Scenario)
	assert.Equal(t, 2, got[1].Runs)
	assert.InDelta(t, 4.0, got[1].Mean, 1e-12)
}

func TestOpenReappliesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.RecordRun(context.Background(), "/x", meta("cv_a", scenario.CV, sim.Baseline, time.Now(), 1.0)))
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()
	runs, err := c.ListRuns(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
