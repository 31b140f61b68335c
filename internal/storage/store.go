// Package storage writes tracking runs to disk and reads them back.
//
// A run directory holds one CSV per stream (truth, measurements, estimates,
// diagnostics), a single-row meta.csv with the resolved configuration, and
// metadata.json with the run summary.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/kftrack/internal/kalman"
	"github.com/san-kum/kftrack/internal/scenario"
	"github.com/san-kum/kftrack/internal/sim"
	"github.com/san-kum/kftrack/internal/tuning"
)

var ErrMalformed = errors.New("storage: malformed run file")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) BaseDir() string { return s.baseDir }

// NewRunID returns <scenario>_<first 8 hex digits of a random UUID>.
func NewRunID(sc scenario.Scenario) string {
	return fmt.Sprintf("%s_%s", sc, uuid.NewString()[:8])
}

func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Mode      sim.Mode           `json:"mode"`
	Scenario  scenario.Scenario  `json:"scenario"`
	Seed      uint64             `json:"seed"`
	Steps     int                `json:"steps"`
	Dt        float64            `json:"dt"`
	Checksum  string             `json:"checksum,omitempty"`
	Metrics   map[string]float64 `json:"metrics"`
}

// NewMetadata summarizes a finished run. sum may be nil.
func NewMetadata(runID string, result *sim.Result, sum *Checksum) RunMetadata {
	cfg := result.Config
	meta := RunMetadata{
		ID:        runID,
		Timestamp: time.Now().UTC(),
		Mode:      cfg.Mode,
		Scenario:  cfg.Scenario.Scenario,
		Seed:      cfg.Scenario.Seed,
		Steps:     result.StepsTaken,
		Dt:        cfg.Scenario.Dt,
		Metrics:   finiteOnly(result.Metrics),
	}
	if sum != nil && sum.Enabled() {
		meta.Checksum = fmt.Sprintf("%x", sum.Sum())
	}
	return meta
}

// SetMetrics replaces the run's metrics, keeping only finite values.
func (m *RunMetadata) SetMetrics(metrics map[string]float64) {
	m.Metrics = finiteOnly(metrics)
}

// finiteOnly drops NaN and Inf values, which encoding/json rejects.
func finiteOnly(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}

func WriteMetadata(dir string, meta RunMetadata) error {
	f, err := os.Create(filepath.Join(dir, MetadataFile))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

// List returns every run with readable metadata, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	return LoadMetadata(s.RunDir(runID))
}

func LoadMetadata(dir string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadRecords(runID string) ([]sim.Record, error) {
	return LoadRecords(s.RunDir(runID))
}

func (s *Store) LoadConfig(runID string) (sim.Config, error) {
	return LoadConfig(s.RunDir(runID))
}

func readRows(path string, width int) ([][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = width

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, filepath.Base(path), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s: missing header", ErrMalformed, filepath.Base(path))
	}

	rows := make([][]float64, 0, len(records)-1)
	for i, record := range records[1:] {
		row := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformed, filepath.Base(path), i+2, err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// LoadRecords rebuilds records from the CSV streams of a run directory.
// Fields the CSVs do not carry (predicted state, base r) stay zero.
func LoadRecords(dir string) ([]sim.Record, error) {
	truth, err := readRows(filepath.Join(dir, TruthFile), len(truthHeader))
	if err != nil {
		return nil, err
	}
	meas, err := readRows(filepath.Join(dir, MeasFile), len(measHeader))
	if err != nil {
		return nil, err
	}
	est, err := readRows(filepath.Join(dir, EstFile), len(estHeader))
	if err != nil {
		return nil, err
	}
	diag, err := readRows(filepath.Join(dir, DiagFile), len(diagHeader))
	if err != nil {
		return nil, err
	}

	n := len(truth)
	if len(meas) != n || len(est) != n || len(diag) != n {
		return nil, fmt.Errorf("%w: row counts differ (%d/%d/%d/%d)",
			ErrMalformed, n, len(meas), len(est), len(diag))
	}

	out := make([]sim.Record, n)
	for i := range out {
		t, m, e, d := truth[i], meas[i], est[i], diag[i]
		out[i] = sim.Record{
			K:        int(t[0]),
			Truth:    scenario.TruthState{X: t[1], Y: t[2], VX: t[3], VY: t[4]},
			Meas:     scenario.Measurement{ZX: m[1], ZY: m[2], Valid: m[3] != 0},
			Estimate: kalman.State{X: e[1], Y: e[2], VX: e[3], VY: e[4]},
			Diag: kalman.Diagnostics{
				YX: d[1], YY: d[2], Sx: d[3], Sy: d[4], NIS: d[5],
				Updated: m[3] != 0,
			},
			Q:      d[6],
			R:      d[7],
			NISEMA: d[8],
		}
	}
	return out, nil
}

// LoadConfig parses meta.csv back into the configuration the run used.
func LoadConfig(dir string) (sim.Config, error) {
	path := filepath.Join(dir, MetaFile)
	file, err := os.Open(path)
	if err != nil {
		return sim.Config{}, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(metaHeader)
	records, err := r.ReadAll()
	if err != nil {
		return sim.Config{}, fmt.Errorf("%w: %s: %v", ErrMalformed, MetaFile, err)
	}
	if len(records) != 2 {
		return sim.Config{}, fmt.Errorf("%w: %s: want one data row, got %d", ErrMalformed, MetaFile, len(records)-1)
	}
	row := records[1]

	var perr error
	num := func(i int) float64 {
		v, err := strconv.ParseFloat(row[i], 64)
		if err != nil && perr == nil {
			perr = fmt.Errorf("%w: %s column %s: %v", ErrMalformed, MetaFile, metaHeader[i], err)
		}
		return v
	}
	seed, err := strconv.ParseUint(row[3], 10, 64)
	if err != nil {
		return sim.Config{}, fmt.Errorf("%w: %s column seed: %v", ErrMalformed, MetaFile, err)
	}
	steps, err := strconv.Atoi(row[4])
	if err != nil {
		return sim.Config{}, fmt.Errorf("%w: %s column steps: %v", ErrMalformed, MetaFile, err)
	}

	cfg := sim.Config{
		Mode: sim.Mode(row[0]),
		Scenario: scenario.Config{
			Scenario:     scenario.Scenario(row[1]),
			Dt:           num(2),
			Seed:         seed,
			Steps:        steps,
			SigmaZ:       num(5),
			PDetect:      num(6),
			ClutterProb:  num(7),
			ClutterRange: num(8),
		},
		Filter: kalman.Config{
			Q:          num(9),
			R:          num(10),
			InitPosVar: kalman.DefaultInitPosVar,
			InitVelVar: kalman.DefaultInitVelVar,
		},
		Tuner: tuning.Config{
			Policy:          tuning.Policy(row[11]),
			TargetNIS:       num(12),
			EMAAlpha:        num(13),
			Gain:            num(14),
			Deadband:        num(15),
			ActivationRatio: num(16),
			RMin:            num(17),
			RMax:            num(18),
			SpikeNIS:        num(19),
			SpikeGain:       num(20),
			SpikeCapRatio:   num(21),
		},
	}
	return cfg, perr
}
