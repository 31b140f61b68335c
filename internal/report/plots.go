package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/kftrack/internal/metrics"
	"github.com/san-kum/kftrack/internal/sim"
)

// NISBins is the histogram bin count.
const NISBins = 60

var (
	posColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	velColor = color.RGBA{R: 255, G: 127, B: 14, A: 255}
)

func save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

// PlotPositionError draws the per-step Euclidean position error.
func PlotPositionError(records []sim.Record, title, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "k"
	p.Y.Label.Text = "pos_error"

	errs := metrics.PositionError(records)
	pts := make(plotter.XYs, len(records))
	for i, rec := range records {
		pts[i] = plotter.XY{X: float64(rec.K), Y: errs[i]}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = posColor
	line.Width = vg.Points(1)
	p.Add(line)

	return save(p, path)
}

// PlotNISHistogram draws the NIS distribution of steps that carried a
// measurement.
func PlotNISHistogram(records []sim.Record, title, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "NIS"
	p.Y.Label.Text = "count"

	vals := make(plotter.Values, 0, len(records))
	for _, rec := range records {
		if rec.Diag.Updated {
			vals = append(vals, rec.Diag.NIS)
		}
	}
	if len(vals) == 0 {
		return fmt.Errorf("no measurement updates to plot")
	}

	h, err := plotter.NewHist(vals, NISBins)
	if err != nil {
		return err
	}
	h.FillColor = posColor
	p.Add(h)

	return save(p, path)
}

// PlotRMSEBars draws side-by-side position and velocity RMSE per scenario.
func PlotRMSEBars(names []string, pos, vel []float64, title, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "rmse"

	w := vg.Points(18)

	posBars, err := plotter.NewBarChart(plotter.Values(pos), w)
	if err != nil {
		return err
	}
	posBars.Color = posColor
	posBars.LineStyle.Width = 0
	posBars.Offset = -w / 2

	velBars, err := plotter.NewBarChart(plotter.Values(vel), w)
	if err != nil {
		return err
	}
	velBars.Color = velColor
	velBars.LineStyle.Width = 0
	velBars.Offset = w / 2

	p.Add(posBars, velBars)
	p.Legend.Add("pos_rmse", posBars)
	p.Legend.Add("vel_rmse", velBars)
	p.Legend.Top = true
	p.NominalX(names...)

	return save(p, path)
}
