// Package dataset turns batches of simulated runs into labelled CSV tables
// for training noise estimators offline.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/go-logr/logr"

	"github.com/san-kum/kftrack/internal/config"
	"github.com/san-kum/kftrack/internal/logging"
	"github.com/san-kum/kftrack/internal/scenario"
	"github.com/san-kum/kftrack/internal/sim"
	"github.com/san-kum/kftrack/internal/storage"
)

// Process-noise labels: maneuver runs after the midpoint get the high one.
const (
	QTrueNominal  = 1.5
	QTrueManeuver = 8.0
)

// Split fractions by group.
const (
	TrainFrac = 0.70
	ValFrac   = 0.15
)

var ErrTooFewGroups = errors.New("dataset: need at least 3 (scenario, seed) groups for train/val/test split")

var Columns = []string{
	"k",
	"x_truth", "y_truth", "vx_truth", "vy_truth",
	"zx", "zy", "valid",
	"x_est", "y_est", "vx_est", "vy_est",
	"yx", "yy", "Sx", "Sy", "NIS",
	"q", "r",
	"scenario", "dt", "seed", "steps", "sigma_z", "p_detect", "clutter_prob", "clutter_range",
	"speed",
	"q_true", "r_true",
}

type Options struct {
	Steps    int
	Seeds    int
	BaseSeed uint64
	Q, R     float64
	OutDir   string
	RunsDir  string
	Workers  int
}

func DefaultOptions() Options {
	return Options{
		Steps:    config.DatasetSteps,
		Seeds:    12,
		BaseSeed: 100,
		Q:        1.0,
		R:        4.0,
		OutDir:   config.DefaultDataDir,
		RunsDir:  filepath.Join(config.DefaultDataDir, "runs"),
	}
}

// SeedFor derives a per-scenario seed so seed i of different scenarios
// never collide.
func SeedFor(base uint64, i int, sc scenario.Scenario) uint64 {
	h := fnv.New32a()
	h.Write([]byte(sc))
	return base + 1000*uint64(i) + uint64(h.Sum32()&0xFF)
}

// Row is one labelled step.
type Row struct {
	Rec    sim.Record
	Config sim.Config
	Speed  float64
	QTrue  float64
	RTrue  float64
}

func (r Row) group() groupKey {
	return groupKey{scenario: r.Config.Scenario.Scenario, seed: r.Config.Scenario.Seed}
}

type groupKey struct {
	scenario scenario.Scenario
	seed     uint64
}

// Label converts one run into labelled rows.
func Label(res *sim.Result) []Row {
	cfg := res.Config
	rTrue := cfg.Scenario.SigmaZ * cfg.Scenario.SigmaZ
	mid := cfg.Scenario.Steps / 2

	rows := make([]Row, len(res.Records))
	for i, rec := range res.Records {
		q := QTrueNominal
		if cfg.Scenario.Scenario == scenario.Maneuver && rec.K >= mid {
			q = QTrueManeuver
		}
		rows[i] = Row{
			Rec:    rec,
			Config: cfg,
			Speed:  math.Hypot(rec.Truth.VX, rec.Truth.VY),
			QTrue:  q,
			RTrue:  rTrue,
		}
	}
	return rows
}

// Summary mirrors dataset_summary.txt.
type Summary struct {
	GroupsTotal int
	GroupsTrain int
	GroupsVal   int
	GroupsTest  int
	RowsTrain   int
	RowsVal     int
	RowsTest    int
}

// Build simulates every scenario for opts.Seeds seeds, writes each run
// under RunsDir and the split tables under OutDir.
func Build(ctx context.Context, opts Options, log logr.Logger) (*Summary, error) {
	cfgs := make([]sim.Config, 0, opts.Seeds*len(scenario.All()))
	for _, sc := range scenario.All() {
		for i := 0; i < opts.Seeds; i++ {
			cfg := config.GetPreset(string(sc), "dataset").Sim()
			cfg.Scenario.Steps = opts.Steps
			cfg.Scenario.Seed = SeedFor(opts.BaseSeed, i, sc)
			cfg.Filter.Q = opts.Q
			cfg.Filter.R = opts.R
			cfgs = append(cfgs, cfg)
		}
	}

	ens := sim.NewEnsemble(nil)
	if opts.Workers > 0 {
		ens.WithWorkers(opts.Workers)
	}
	results, err := ens.Run(ctx, cfgs)
	if err != nil {
		return nil, fmt.Errorf("dataset runs: %w", err)
	}

	var rows []Row
	for _, res := range results {
		name := fmt.Sprintf("%s_seed%d", res.Config.Scenario.Scenario, res.Config.Scenario.Seed)
		dir := filepath.Join(opts.RunsDir, name)
		sum, err := storage.WriteRun(dir, res.Config, res.Records, true)
		if err != nil {
			return nil, err
		}
		if err := storage.WriteMetadata(dir, storage.NewMetadata(name, res, sum)); err != nil {
			return nil, err
		}
		rows = append(rows, Label(res)...)
		log.V(logging.DEBUG).Info("dataset run", "run", name, "rows", len(res.Records))
	}

	return SplitWrite(rows, opts.OutDir)
}

// SplitWrite assigns whole (scenario, seed) groups to train, val and test
// in sorted group order and writes the three tables plus a summary.
func SplitWrite(rows []Row, outDir string) (*Summary, error) {
	seen := make(map[groupKey]bool)
	var keys []groupKey
	for _, r := range rows {
		g := r.group()
		if !seen[g] {
			seen[g] = true
			keys = append(keys, g)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].scenario != keys[j].scenario {
			return keys[i].scenario < keys[j].scenario
		}
		return keys[i].seed < keys[j].seed
	})

	n := len(keys)
	if n < 3 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewGroups, n)
	}
	nTrain, nVal := splitSizes(n)

	bucket := make(map[groupKey]int, n)
	for i, k := range keys {
		switch {
		case i < nTrain:
			bucket[k] = 0
		case i < nTrain+nVal:
			bucket[k] = 1
		default:
			bucket[k] = 2
		}
	}

	parts := make([][]Row, 3)
	for _, r := range rows {
		b := bucket[r.group()]
		parts[b] = append(parts[b], r)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}
	for i, name := range []string{"train.csv", "val.csv", "test.csv"} {
		if err := writeTable(filepath.Join(outDir, name), parts[i]); err != nil {
			return nil, err
		}
	}

	s := &Summary{
		GroupsTotal: n,
		GroupsTrain: nTrain,
		GroupsVal:   nVal,
		GroupsTest:  n - nTrain - nVal,
		RowsTrain:   len(parts[0]),
		RowsVal:     len(parts[1]),
		RowsTest:    len(parts[2]),
	}
	if err := os.WriteFile(filepath.Join(outDir, "dataset_summary.txt"), []byte(s.String()), 0644); err != nil {
		return nil, err
	}
	return s, nil
}

// splitSizes rounds 70/15 half-to-even and keeps at least one group in
// every part.
func splitSizes(n int) (train, val int) {
	train = max(1, int(math.RoundToEven(TrainFrac*float64(n))))
	val = max(1, int(math.RoundToEven(ValFrac*float64(n))))
	if train+val > n-1 {
		train = n - 1 - val
	}
	return train, val
}

func (s *Summary) String() string {
	return fmt.Sprintf(
		"groups_total=%d\ngroups_train=%d\ngroups_val=%d\ngroups_test=%d\nrows_train=%d\nrows_val=%d\nrows_test=%d\n",
		s.GroupsTotal, s.GroupsTrain, s.GroupsVal, s.GroupsTest, s.RowsTrain, s.RowsVal, s.RowsTest)
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func (r Row) fields() []string {
	rec, sc := r.Rec, r.Config.Scenario
	valid := "0"
	if rec.Meas.Valid {
		valid = "1"
	}
	return []string{
		strconv.Itoa(rec.K),
		ff(rec.Truth.X), ff(rec.Truth.Y), ff(rec.Truth.VX), ff(rec.Truth.VY),
		ff(rec.Meas.ZX), ff(rec.Meas.ZY), valid,
		ff(rec.Estimate.X), ff(rec.Estimate.Y), ff(rec.Estimate.VX), ff(rec.Estimate.VY),
		ff(rec.Diag.YX), ff(rec.Diag.YY), ff(rec.Diag.Sx), ff(rec.Diag.Sy), ff(rec.Diag.NIS),
		ff(rec.Q), ff(rec.R),
		string(sc.Scenario), ff(sc.Dt), strconv.FormatUint(sc.Seed, 10), strconv.Itoa(sc.Steps),
		ff(sc.SigmaZ), ff(sc.PDetect), ff(sc.ClutterProb), ff(sc.ClutterRange),
		ff(r.Speed),
		ff(r.QTrue), ff(r.RTrue),
	}
}

func writeTable(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write(r.fields()); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
