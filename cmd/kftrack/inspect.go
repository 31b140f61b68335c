package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/kftrack/internal/catalog"
	"github.com/san-kum/kftrack/internal/config"
	"github.com/san-kum/kftrack/internal/experiment"
	"github.com/san-kum/kftrack/internal/logging"
	"github.com/san-kum/kftrack/internal/metrics"
	"github.com/san-kum/kftrack/internal/report"
	"github.com/san-kum/kftrack/internal/scenario"
	"github.com/san-kum/kftrack/internal/sim"
	"github.com/san-kum/kftrack/internal/storage"
)

type listOptions struct {
	scenario string
	mode     string
	limit    int
	summary  string
	metrics  []string
}

func newListCmd(root *rootOptions) *cobra.Command {
	var o listOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list cataloged runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(cmd, root, &o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.scenario, "scenario", "", "only this scenario")
	f.StringVar(&o.mode, "mode", "", "only this mode")
	f.IntVar(&o.limit, "limit", 0, "maximum rows (0 = all)")
	f.StringVar(&o.summary, "summary", "", "average this metric per scenario and mode instead")
	f.StringSliceVar(&o.metrics, "metrics", nil, "add a column per cataloged metric, e.g. pos_rmse,final_r")
	return cmd
}

func listRuns(cmd *cobra.Command, root *rootOptions, o *listOptions) error {
	out := cmd.OutOrStdout()
	if root.catalogPath == "" {
		return listRunDirs(out, root.dataDir)
	}
	if _, err := os.Stat(root.catalogPath); errors.Is(err, fs.ErrNotExist) {
		return listRunDirs(out, root.dataDir)
	}

	cat, err := catalog.Open(root.catalogPath)
	if err != nil {
		return err
	}
	defer cat.Close()

	if o.summary != "" {
		rows, err := cat.Summarize(cmd.Context(), o.summary)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "SCENARIO\tMODE\tRUNS\tMEAN(%s)\n", o.summary)
		for _, s := range rows {
			fmt.Fprintf(w, "%s\t%s\t%d\t%.6f\n", s.Scenario, s.Mode, s.Runs, s.Mean)
		}
		return w.Flush()
	}

	f := catalog.Filter{Scenario: scenario.Scenario(o.scenario), Limit: o.limit}
	if o.mode != "" {
		m, err := sim.ParseMode(o.mode)
		if err != nil {
			return err
		}
		f.Mode = m
	}

	runs, err := cat.ListRuns(cmd.Context(), f)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprint(w, "ID\tSCENARIO\tMODE\tTIME\tSEED\tSTEPS\tDT\tCHECKSUM")
	for _, name := range o.metrics {
		fmt.Fprintf(w, "\t%s", strings.ToUpper(name))
	}
	fmt.Fprintln(w)

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%.4f\t%s",
			run.ID,
			run.Scenario,
			run.Mode,
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			run.Seed,
			run.Steps,
			run.Dt,
			run.Checksum,
		)
		if len(o.metrics) > 0 {
			values, err := cat.MetricsFor(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			for _, name := range o.metrics {
				if v, ok := values[name]; ok {
					fmt.Fprintf(w, "\t%.6f", v)
				} else {
					fmt.Fprint(w, "\t-")
				}
			}
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

// listRunDirs lists runs under --data when no catalog exists.
func listRunDirs(out io.Writer, dataDir string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tMODE\tTIME\tSEED\tSTEPS\tDT")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%.4f\n",
			run.ID,
			run.Scenario,
			run.Mode,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Seed,
			run.Steps,
			run.Dt,
		)
	}
	return w.Flush()
}

// newScoreCmd recomputes a run's metrics from its CSVs, rewrites its
// metadata and updates the catalog. Runs missing from the catalog are added.
func newScoreCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "score [run]",
		Short: "recompute the standard metrics of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := runDir(root, args[0])

			records, err := storage.LoadRecords(dir)
			if err != nil {
				return err
			}
			meta, err := storage.LoadMetadata(dir)
			if err != nil {
				return err
			}
			meta.SetMetrics(report.Evaluate(records))
			if err := storage.WriteMetadata(dir, *meta); err != nil {
				return err
			}

			if root.catalogPath != "" {
				cat, err := catalog.Open(root.catalogPath)
				if err != nil {
					return err
				}
				defer cat.Close()

				err = cat.RecordMetrics(cmd.Context(), meta.ID, meta.Metrics)
				if errors.Is(err, catalog.ErrNotFound) {
					log.V(logging.VERBOSE).Info("run not cataloged, adding it", "id", meta.ID)
					err = cat.RecordRun(cmd.Context(), absDir(dir), *meta)
				}
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run: %s\n", meta.ID)
			for _, name := range metrics.Names() {
				if v, ok := meta.Metrics[name]; ok {
					fmt.Fprintf(out, "  %s: %.6f\n", name, v)
				} else {
					fmt.Fprintf(out, "  %s: n/a\n", name)
				}
			}
			return nil
		},
	}
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report [file]",
		Short: "print a metrics report written by eval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := report.LoadReport(args[0])
			if err != nil {
				return err
			}

			names := make([]string, 0, len(rep.Scenarios))
			for name := range rep.Scenarios {
				names = append(names, name)
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "report: %s (%s)\n\n", filepath.Base(args[0]), rep.Type)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprint(w, "SCENARIO\tSTEPS\tSEED")
			for _, m := range metrics.Names() {
				fmt.Fprintf(w, "\t%s", strings.ToUpper(m))
			}
			fmt.Fprintln(w)
			for _, name := range names {
				sc := rep.Scenarios[name]
				fmt.Fprintf(w, "%s\t%d\t%d", name, sc.Meta.Scenario.Steps, sc.Meta.Scenario.Seed)
				for _, m := range metrics.Names() {
					fmt.Fprintf(w, "\t%.4f", sc.Metrics[m])
				}
				fmt.Fprintln(w)
			}
			return w.Flush()
		},
	}
}

func newPlotCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plot [run]",
		Short: "plot position error, NIS and r of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := runDir(root, args[0])

			records, err := storage.LoadRecords(dir)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("no data to plot")
			}
			cfg, err := storage.LoadConfig(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run: %s\n", filepath.Base(dir))
			fmt.Fprintf(out, "scenario: %s  mode: %s\n", cfg.Scenario.Scenario, cfg.Mode)
			fmt.Fprintf(out, "samples: %d\n\n", len(records))

			var nis, r []float64
			for _, rec := range records {
				if rec.Meas.Valid {
					nis = append(nis, rec.Diag.NIS)
				}
				r = append(r, rec.R)
			}

			series := []struct {
				caption string
				data    []float64
			}{
				{"position error", metrics.PositionError(records)},
				{"NIS (updated steps)", nis},
				{"r", r},
			}
			for _, s := range series {
				if len(s.data) == 0 {
					continue
				}
				graph := asciigraph.Plot(s.data,
					asciigraph.Height(10),
					asciigraph.Width(80),
					asciigraph.Caption(s.caption),
				)
				fmt.Fprintln(out, graph)
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newExportCmd(root *rootOptions) *cobra.Command {
	var outFile string
	cmd := &cobra.Command{
		Use:   "export [run]",
		Short: "export a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := runDir(root, args[0])

			meta, err := storage.LoadMetadata(dir)
			if err != nil {
				return err
			}
			cfg, err := storage.LoadConfig(dir)
			if err != nil {
				return err
			}
			records, err := storage.LoadRecords(dir)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return storage.ExportJSON(w, *meta, cfg, records)
		},
	}
	cmd.Flags().StringVar(&outFile, "out", "", "write to file instead of stdout")
	return cmd
}

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets [scenario]",
		Short: "list presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			names := args
			if len(names) == 0 {
				names = experiment.NewRegistry().ListScenarios()
			}
			for _, sc := range names {
				presets := config.ListPresets(sc)
				if len(presets) == 0 {
					fmt.Fprintf(out, "no presets for scenario: %s\n", sc)
					continue
				}
				fmt.Fprintf(out, "presets for %s:\n", sc)
				for _, p := range presets {
					c := config.GetPreset(sc, p)
					fmt.Fprintf(out, "  %-8s steps=%d seed=%d sigma_z=%.1f p_detect=%.2f clutter_prob=%.2f\n",
						p, c.Scenario.Steps, c.Scenario.Seed, c.Scenario.SigmaZ, c.Scenario.PDetect, c.Scenario.ClutterProb)
				}
			}
			return nil
		},
	}
}
