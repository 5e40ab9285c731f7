package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"descale-qc/internal/coalesce"
	"descale-qc/internal/logging"
	"descale-qc/internal/metrics"
)

// ListOptions selects a page of runs.
type ListOptions struct {
	Kind     string
	Page     int
	PageSize int
}

// RecordRun stores a completed run and its catalogues in one transaction
// and returns the stored run. A run id is generated when none is given.
func (d *Database) RecordRun(ctx context.Context, nr NewRun) (*Run, error) {
	if nr.Kind == "" || nr.Base == "" {
		return nil, fmt.Errorf("record run: kind and base name are required")
	}
	if nr.ID == "" {
		nr.ID = uuid.NewString()
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("insert_run", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	created := time.Now()
	if err = insertRun(ctx, tx, nr, created); err != nil {
		return nil, rollback(tx, err)
	}
	for _, c := range nr.Catalogues {
		if err = insertCatalogue(ctx, tx, nr.ID, nr.Paths[c.Label], c); err != nil {
			return nil, rollback(tx, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit run: %w", err)
	}

	logging.Debug("Recorded %s run %s with %d catalogues", nr.Kind, nr.ID, len(nr.Catalogues))

	run := &Run{
		ID:        nr.ID,
		Kind:      nr.Kind,
		Source:    nr.Source,
		Alternate: nr.Alternate,
		Base:      nr.Base,
		Frames:    nr.Frames,
		Scenes:    nr.Scenes,
		Params:    nr.Params,
		Duration:  formatDuration(nr.Duration.Milliseconds()),
		CreatedAt: time.Unix(created.Unix(), 0),
	}
	for _, c := range nr.Catalogues {
		run.Catalogues = append(run.Catalogues, CatalogueInfo{
			Label:     c.Label,
			Path:      nr.Paths[c.Label],
			Frames:    c.Frames(),
			Intervals: len(c.Intervals),
		})
	}
	return run, nil
}

func insertRun(ctx context.Context, tx *sql.Tx, nr NewRun, created time.Time) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO runs (id, kind, source, alternate, base, frames, scenes, params, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nr.ID, nr.Kind, nr.Source, nr.Alternate, nr.Base, nr.Frames, nr.Scenes, nr.Params,
		nr.Duration.Milliseconds(), created.Unix())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func insertCatalogue(ctx context.Context, tx *sql.Tx, runID, path string, c *coalesce.Catalogue) error {
	start := time.Now()
	_, err := tx.ExecContext(ctx, `
	INSERT INTO catalogues (run_id, label, path, frames, intervals, body)
	VALUES (?, ?, ?, ?, ?, ?)
	`, runID, c.Label, path, c.Frames(), len(c.Intervals), c.String())
	recordQuery("insert_catalogue", start, err)
	if err != nil {
		return fmt.Errorf("insert catalogue %q: %w", c.Label, err)
	}
	return nil
}

func rollback(tx *sql.Tx, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
	}
	return err
}

// ListRuns returns a page of runs, newest first, optionally filtered by kind.
func (d *Database) ListRuns(ctx context.Context, opts ListOptions) (*RunList, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_runs", start, err) }()

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 50
	}
	if opts.PageSize > 500 {
		opts.PageSize = 500
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	where := ""
	var args []interface{}
	if opts.Kind != "" {
		where = " WHERE kind = ?"
		args = append(args, opts.Kind)
	}

	var total int
	if err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count query failed: %w", err)
	}

	query := `
	SELECT id, kind, source, alternate, base, frames, scenes, params, duration_ms, created_at
	FROM runs` + where + `
	ORDER BY created_at DESC, rowid DESC
	LIMIT ? OFFSET ?`
	args = append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list query failed: %w", err)
	}
	defer rows.Close()

	list := &RunList{
		Items:      []Run{},
		Kind:       opts.Kind,
		TotalItems: total,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(opts.PageSize))),
	}
	for rows.Next() {
		var run Run
		if err = scanRun(rows, &run); err != nil {
			return nil, err
		}
		list.Items = append(list.Items, run)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// GetRun returns a run with its catalogue summaries.
func (d *Database) GetRun(ctx context.Context, id string) (*Run, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_run", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var run Run
	row := d.db.QueryRowContext(ctx, `
	SELECT id, kind, source, alternate, base, frames, scenes, params, duration_ms, created_at
	FROM runs WHERE id = ?`, id)
	if err = scanRun(row, &run); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, `
	SELECT label, path, frames, intervals FROM catalogues
	WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("catalogue query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var info CatalogueInfo
		if err = rows.Scan(&info.Label, &info.Path, &info.Frames, &info.Intervals); err != nil {
			return nil, err
		}
		run.Catalogues = append(run.Catalogues, info)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetCatalogue returns the stored catalogue of a run by label.
func (d *Database) GetCatalogue(ctx context.Context, runID, label string) (*coalesce.Catalogue, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_catalogue", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var body string
	err = d.db.QueryRowContext(ctx,
		"SELECT body FROM catalogues WHERE run_id = ? AND label = ?", runID, label).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("catalogue %s of run %s: %w", label, runID, ErrNotFound)
		}
		return nil, err
	}

	intervals, err := coalesce.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("stored catalogue %s: %w", label, err)
	}
	return &coalesce.Catalogue{Label: label, Intervals: intervals}, nil
}

// DeleteRun removes a run and its catalogues.
func (d *Database) DeleteRun(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_run", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM catalogues WHERE run_id = ?", id); err != nil {
		return rollback(tx, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return rollback(tx, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = fmt.Errorf("run %s: %w", id, ErrNotFound)
		return rollback(tx, err)
	}
	err = tx.Commit()
	return err
}

// GetStats returns run and catalogue counts for the metrics collector.
// Errors are logged and yield zero counts.
func (d *Database) GetStats() metrics.Stats {
	start := time.Now()
	var err error
	defer func() { recordQuery("stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	stats := metrics.Stats{RunsByKind: map[string]int{}}

	rows, err := d.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM runs GROUP BY kind")
	if err != nil {
		logging.Error("run stats query failed: %v", err)
		return stats
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var n int
		if err = rows.Scan(&kind, &n); err != nil {
			logging.Error("run stats scan failed: %v", err)
			return stats
		}
		stats.RunsByKind[kind] = n
		stats.TotalRuns += n
	}
	if err = rows.Err(); err != nil {
		logging.Error("run stats iteration failed: %v", err)
		return stats
	}

	if err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalogues").Scan(&stats.TotalCatalogues); err != nil {
		logging.Error("catalogue stats query failed: %v", err)
	}
	return stats
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner, run *Run) error {
	var durationMs, created int64
	if err := s.Scan(&run.ID, &run.Kind, &run.Source, &run.Alternate, &run.Base,
		&run.Frames, &run.Scenes, &run.Params, &durationMs, &created); err != nil {
		return err
	}
	run.Duration = formatDuration(durationMs)
	run.CreatedAt = time.Unix(created, 0)
	return nil
}

func formatDuration(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
