package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/san-kum/kftrack/internal/sim"
)

// File names inside a run directory.
const (
	TruthFile    = "truth.csv"
	MeasFile     = "meas.csv"
	EstFile      = "est.csv"
	DiagFile     = "diag.csv"
	MetaFile     = "meta.csv"
	MetadataFile = "metadata.json"
)

var (
	truthHeader = []string{"k", "x", "y", "vx", "vy"}
	measHeader  = []string{"k", "zx", "zy", "valid"}
	estHeader   = []string{"k", "x", "y", "vx", "vy"}
	diagHeader  = []string{"k", "yx", "yy", "Sx", "Sy", "NIS", "q", "r", "nis_ema"}
	metaHeader  = []string{
		"mode", "scenario", "dt", "seed", "steps", "sigma_z", "p_detect",
		"clutter_prob", "clutter_range", "q", "r",
		"tuner_policy", "target_nis", "ema_alpha", "gain", "deadband",
		"activation_ratio", "r_min", "r_max", "spike_nis", "spike_gain", "spike_cap_ratio",
	}
)

type csvFile struct {
	f *os.File
	w *csv.Writer
}

func createCSV(path string, header []string) (*csvFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return &csvFile{f: f, w: w}, nil
}

func (c *csvFile) close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

// RunWriter streams records into the CSV files of one run directory. It
// implements sim.Observer.
type RunWriter struct {
	dir   string
	truth *csvFile
	meas  *csvFile
	est   *csvFile
	diag  *csvFile
	sum   *Checksum
}

// NewRunWriter creates dir and writes the headers and meta.csv for cfg,
// with presets resolved. A directory that cannot be created is the one
// fatal output error.
func NewRunWriter(dir string, cfg sim.Config, hash bool) (*RunWriter, error) {
	cfg = cfg.Resolved()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	if err := writeMeta(filepath.Join(dir, MetaFile), cfg); err != nil {
		return nil, fmt.Errorf("write meta: %w", err)
	}

	rw := &RunWriter{dir: dir, sum: NewChecksum(hash)}
	files := []struct {
		dst    **csvFile
		name   string
		header []string
	}{
		{&rw.truth, TruthFile, truthHeader},
		{&rw.meas, MeasFile, measHeader},
		{&rw.est, EstFile, estHeader},
		{&rw.diag, DiagFile, diagHeader},
	}
	for _, file := range files {
		f, err := createCSV(filepath.Join(dir, file.name), file.header)
		if err != nil {
			rw.Close()
			return nil, err
		}
		*file.dst = f
	}
	return rw, nil
}

func (rw *RunWriter) Dir() string { return rw.dir }

func (rw *RunWriter) Checksum() *Checksum { return rw.sum }

func (rw *RunWriter) OnStep(rec sim.Record) error {
	rows := []struct {
		out    *csvFile
		fields []string
	}{
		{rw.truth, TruthRow(rec)},
		{rw.meas, MeasRow(rec)},
		{rw.est, EstRow(rec)},
		{rw.diag, DiagRow(rec)},
	}
	for _, row := range rows {
		if err := row.out.w.Write(row.fields); err != nil {
			return err
		}
		rw.sum.Add(strings.Join(row.fields, ","))
	}
	return nil
}

// Close flushes every file. It is safe to call on a partially built writer.
func (rw *RunWriter) Close() error {
	var first error
	for _, f := range []*csvFile{rw.truth, rw.meas, rw.est, rw.diag} {
		if f == nil {
			continue
		}
		if err := f.close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func TruthRow(rec sim.Record) []string {
	t := rec.Truth
	return []string{strconv.Itoa(rec.K), ff(t.X), ff(t.Y), ff(t.VX), ff(t.VY)}
}

func MeasRow(rec sim.Record) []string {
	valid := "0"
	if rec.Meas.Valid {
		valid = "1"
	}
	return []string{strconv.Itoa(rec.K), ff(rec.Meas.ZX), ff(rec.Meas.ZY), valid}
}

func EstRow(rec sim.Record) []string {
	e := rec.Estimate
	return []string{strconv.Itoa(rec.K), ff(e.X), ff(e.Y), ff(e.VX), ff(e.VY)}
}

func DiagRow(rec sim.Record) []string {
	d := rec.Diag
	return []string{
		strconv.Itoa(rec.K),
		ff(d.YX), ff(d.YY), ff(d.Sx), ff(d.Sy), ff(d.NIS),
		ff(rec.Q), ff(rec.R), ff(rec.NISEMA),
	}
}

func MetaRow(cfg sim.Config) []string {
	s, f, t := cfg.Scenario, cfg.Filter, cfg.Tuner
	return []string{
		string(cfg.Mode), string(s.Scenario), ff(s.Dt),
		strconv.FormatUint(s.Seed, 10), strconv.Itoa(s.Steps),
		ff(s.SigmaZ), ff(s.PDetect), ff(s.ClutterProb), ff(s.ClutterRange),
		ff(f.Q), ff(f.R),
		string(t.Policy), ff(t.TargetNIS), ff(t.EMAAlpha), ff(t.Gain), ff(t.Deadband),
		ff(t.ActivationRatio), ff(t.RMin), ff(t.RMax), ff(t.SpikeNIS), ff(t.SpikeGain), ff(t.SpikeCapRatio),
	}
}

func writeMeta(path string, cfg sim.Config) error {
	f, err := createCSV(path, metaHeader)
	if err != nil {
		return err
	}
	if err := f.w.Write(MetaRow(cfg)); err != nil {
		f.close()
		return err
	}
	return f.close()
}

// WriteRun replays finished records into dir. It is the offline
// counterpart of attaching a RunWriter as an observer.
func WriteRun(dir string, cfg sim.Config, records []sim.Record, hash bool) (*Checksum, error) {
	rw, err := NewRunWriter(dir, cfg, hash)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := rw.OnStep(rec); err != nil {
			rw.Close()
			return nil, err
		}
	}
	if err := rw.Close(); err != nil {
		return nil, err
	}
	return rw.Checksum(), nil
}
