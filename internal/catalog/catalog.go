// Package catalog indexes written runs and their metrics in SQLite so they
// can be queried without walking run directories.
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/san-kum/kftrack/internal/scenario"
	"github.com/san-kum/kftrack/internal/sim"
	"github.com/san-kum/kftrack/internal/storage"
)

var ErrNotFound = errors.New("catalog: run not found")

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Catalog struct {
	*sql.DB
}

// schema.sql creates the runs and run_metrics tables. Every statement is
// idempotent so it runs on every open.
//
//go:embed schema.sql
var schemaSQL string

func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply catalog schema: %w", err)
	}
	return &Catalog{db}, nil
}

// Run is one catalog row.
type Run struct {
	ID        string
	Dir       string
	CreatedAt time.Time
	Mode      sim.Mode
	Scenario  scenario.Scenario
	Seed      uint64
	Steps     int
	Dt        float64
	Checksum  string
}

// RecordRun inserts or replaces a run and its metrics in one transaction.
func (c *Catalog) RecordRun(ctx context.Context, dir string, meta storage.RunMetadata) error {
	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, dir, created_at, mode, scenario, seed, steps, dt, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, meta.ID, dir, meta.Timestamp.UTC().Format(timeLayout), string(meta.Mode),
		string(meta.Scenario), int64(meta.Seed), meta.Steps, meta.Dt, meta.Checksum)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", meta.ID, err)
	}

	if err := recordMetrics(ctx, tx, meta.ID, meta.Metrics); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordMetrics adds or overwrites metrics for an existing run.
func (c *Catalog) RecordMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	var exists int
	err := c.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := recordMetrics(ctx, tx, runID, metrics); err != nil {
		return err
	}
	return tx.Commit()
}

func recordMetrics(ctx context.Context, tx *sql.Tx, runID string, metrics map[string]float64) error {
	for name, v := range metrics {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO run_metrics (run_id, name, value) VALUES (?, ?, ?)
		`, runID, name, v)
		if err != nil {
			return fmt.Errorf("failed to insert metric %s for %s: %w", name, runID, err)
		}
	}
	return nil
}

// Filter narrows ListRuns. Empty fields match everything.
type Filter struct {
	Scenario scenario.Scenario
	Mode     sim.Mode
	Limit    int
}

// ListRuns returns matching runs, newest first.
func (c *Catalog) ListRuns(ctx context.Context, f Filter) ([]Run, error) {
	query := `
		SELECT id, dir, created_at, mode, scenario, seed, steps, dt, checksum
		FROM runs
		WHERE (? = '' OR scenario = ?) AND (? = '' OR mode = ?)
		ORDER BY created_at DESC, id
	`
	args := []any{string(f.Scenario), string(f.Scenario), string(f.Mode), string(f.Mode)}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			r       Run
			created string
			mode    string
			sc      string
			seed    int64
		)
		if err := rows.Scan(&r.ID, &r.Dir, &created, &mode, &sc, &seed, &r.Steps, &r.Dt, &r.Checksum); err != nil {
			return nil, err
		}
		r.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("run %s: bad timestamp %q: %w", r.ID, created, err)
		}
		r.Mode = sim.Mode(mode)
		r.Scenario = scenario.Scenario(sc)
		r.Seed = uint64(seed)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// MetricsFor returns every stored metric of a run.
func (c *Catalog) MetricsFor(ctx context.Context, runID string) (map[string]float64, error) {
	rows, err := c.QueryContext(ctx, `SELECT name, value FROM run_metrics WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var v float64
		if err := rows.Scan(&name, &v); err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, rows.Err()
}

// Summary is the mean of one metric over the runs of a scenario and mode.
type Summary struct {
	Scenario scenario.Scenario
	Mode     sim.Mode
	Metric   string
	Runs     int
	Mean     float64
}

// Summarize averages metric per (scenario, mode) across every cataloged run.
func (c *Catalog) Summarize(ctx context.Context, metric string) ([]Summary, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT r.scenario, r.mode, COUNT(*), AVG(m.value)
		FROM run_metrics m JOIN runs r ON r.id = m.run_id
		WHERE m.name = ?
		GROUP BY r.scenario, r.mode
	`, metric)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Summary, 0)
	for rows.Next() {
		s := Summary{Metric: metric}
		var sc, mode string
		if err := rows.Scan(&sc, &mode, &s.Runs, &s.Mean); err != nil {
			return nil, err
		}
		s.Scenario, s.Mode = scenario.Scenario(sc), sim.Mode(mode)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	order := make(map[scenario.Scenario]int)
	for i, s := range scenario.All() {
		order[s] = i
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scenario != out[j].Scenario {
			return order[out[i].Scenario] < order[out[j].Scenario]
		}
		return out[i].Mode < out[j].Mode
	})
	return out, nil
}
