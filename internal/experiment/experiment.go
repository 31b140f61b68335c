// Package experiment wires a configured run to its metrics and output
// directory.
package experiment

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/san-kum/kftrack/internal/config"
	"github.com/san-kum/kftrack/internal/logging"
	"github.com/san-kum/kftrack/internal/sim"
	"github.com/san-kum/kftrack/internal/storage"
)

type Experiment struct {
	cfg    *config.Config
	runner *sim.Runner
	log    logr.Logger
}

// Outcome describes a finished run that was written to disk.
type Outcome struct {
	RunID    string
	Dir      string
	Result   *sim.Result
	Checksum *storage.Checksum
	Meta     storage.RunMetadata
}

func New(cfg *config.Config, log logr.Logger) *Experiment {
	return &Experiment{cfg: cfg, log: log}
}

func (e *Experiment) Setup(metrics []sim.Metric) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	e.runner = sim.New(e.cfg.Sim()).WithLogger(e.log)
	for _, m := range metrics {
		e.runner.AddMetric(m)
	}
	return nil
}

// Run writes into outDir when it is set, otherwise into a fresh
// <scenario>_<id> directory under the configured output dir.
func (e *Experiment) Run(ctx context.Context, outDir string) (*Outcome, error) {
	if e.runner == nil {
		return nil, fmt.Errorf("experiment not setup")
	}

	runID, dir := filepath.Base(outDir), outDir
	if outDir == "" {
		runID = storage.NewRunID(e.cfg.Scenario.Scenario)
		dir = storage.New(e.cfg.Output.Dir).RunDir(runID)
	}

	rw, err := storage.NewRunWriter(dir, e.cfg.Sim(), e.cfg.Output.Hash)
	if err != nil {
		return nil, err
	}
	e.runner.AddObserver(rw)

	result, runErr := e.runner.Run(ctx)
	if err := rw.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return nil, runErr
	}

	meta := storage.NewMetadata(runID, result, rw.Checksum())
	if err := storage.WriteMetadata(dir, meta); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	e.log.V(logging.VERBOSE).Info("run written", "id", runID, "dir", dir)
	return &Outcome{
		RunID:    runID,
		Dir:      dir,
		Result:   result,
		Checksum: rw.Checksum(),
		Meta:     meta,
	}, nil
}

// GetRunner returns the underlying runner for adding observers
func (e *Experiment) GetRunner() *sim.Runner {
	return e.runner
}
