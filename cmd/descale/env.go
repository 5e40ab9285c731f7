package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"descale-qc/internal/analysis"
	"descale-qc/internal/coalesce"
	"descale-qc/internal/database"
	"descale-qc/internal/decoder"
	"descale-qc/internal/filesystem"
	"descale-qc/internal/framestats"
	"descale-qc/internal/kernels"
	"descale-qc/internal/logging"
	"descale-qc/internal/memory"
	"descale-qc/internal/metrics"
	"descale-qc/internal/scenes"
	"descale-qc/internal/startup"
)

// env is what every subcommand runs against: configuration, the frame
// decoder, the memory monitor and the optional run history.
type env struct {
	config  *startup.Config
	decoder *decoder.Decoder
	monitor *memory.Monitor
	db      *database.Database
	stdout  io.Writer
	stderr  io.Writer
}

func setup(ctx context.Context, stdout, stderr io.Writer) (*env, error) {
	memory.ConfigureFromEnv()

	config, err := startup.LoadToolConfig()
	if err != nil {
		return nil, err
	}

	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"output":   config.OutputDir,
		"cache":    config.CacheDir,
		"database": config.DatabaseDir,
	}))

	e := &env{
		config:  config,
		decoder: decoder.New(),
		monitor: memory.NewMonitor(memory.DefaultConfig()),
		stdout:  stdout,
		stderr:  stderr,
	}
	e.monitor.Start()

	if config.HistoryEnabled {
		db, err := database.New(ctx, config.DatabasePath)
		if err != nil {
			logging.Warn("Run history disabled: %v", err)
		} else {
			e.db = db
		}
	}
	return e, nil
}

// initDecoders is called only by commands that decode frames.
func (e *env) initDecoders() {
	startup.InitDecoders(e.config.VipsEnabled)
}

func (e *env) close() {
	e.decoder.Cleanup()
	e.monitor.Stop()
	decoder.ShutdownVips()
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			logging.Warn("failed to close database: %v", err)
		}
	}
}

// openedSource is a scenes.Source plus whatever must be released after the
// run.
type openedSource struct {
	scenes.Source
	path  string
	close func() error
}

func (s *openedSource) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// openSource resolves the statistics for path under targets: an explicit
// statistics file, then the framestats cache, then live analysis.
func (e *env) openSource(ctx context.Context, path string, targets []kernels.Target, af *analysisFlags) (*openedSource, error) {
	labels := make([]string, len(targets))
	for i, t := range targets {
		labels[i] = t.Label()
	}

	if af.statsFile != "" {
		t, err := readStats(af.statsFile)
		if err != nil {
			return nil, err
		}
		view, err := t.Select(labels...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", af.statsFile, err)
		}
		return &openedSource{Source: view, path: path}, nil
	}

	if e.config.StatsCacheEnabled && !af.noCache {
		key, err := framestats.CacheKey(path, labels, af.cacheParams()...)
		if err != nil {
			return nil, err
		}
		t, err := framestats.LoadCached(e.config.StatsCacheDir, key)
		if err != nil {
			logging.Warn("Ignoring unreadable statistics cache: %v", err)
		} else if t != nil {
			view, err := t.Select(labels...)
			if err != nil {
				return nil, err
			}
			return &openedSource{Source: view, path: path}, nil
		}
	}

	src, err := e.liveSource(ctx, path, targets, af)
	if err != nil {
		return nil, err
	}
	return &openedSource{Source: src, path: path, close: src.Close}, nil
}

func (e *env) liveSource(ctx context.Context, path string, targets []kernels.Target, af *analysisFlags) (*analysis.Source, error) {
	cuts, err := af.sceneChanges(path)
	if err != nil {
		return nil, err
	}
	r, err := e.decoder.Open(ctx, path, decoder.Options{})
	if err != nil {
		return nil, err
	}
	src, err := analysis.NewSource(r, targets, analysis.Options{
		ErrorThreshold: af.errorThr,
		SceneThreshold: af.sceneThr,
		SceneChanges:   cuts,
		Workers:        e.config.Workers,
		Throttle:       e.monitor,
	})
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return src, nil
}

func readStats(path string) (*framestats.Table, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := framestats.Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// completedRun is everything written and recorded after a classifier run.
type completedRun struct {
	result    *scenes.Result
	source    string
	alternate string
	base      string
	outDir    string
	params    string
	rejected  bool
	noRecord  bool
	started   time.Time
}

// finish writes the catalogues of a completed run, all or none, records
// it in the run history and prints one summary line per catalogue.
func (e *env) finish(ctx context.Context, run completedRun) error {
	res := run.result
	paths := map[string]string{}
	var files []filesystem.File

	for _, out := range res.Outputs(run.base) {
		path := filepath.Join(run.outDir, out.Name)
		files = append(files, filesystem.File{Path: path, Data: []byte(out.Catalogue.String())})
		paths[out.Catalogue.Label] = path

		if run.rejected {
			name := strings.TrimSuffix(out.Name, ".txt") + "_rejected.txt"
			rejected := &coalesce.Catalogue{Label: out.Catalogue.Label, Intervals: out.Catalogue.Complement(res.Frames)}
			files = append(files, filesystem.File{Path: filepath.Join(run.outDir, name), Data: []byte(rejected.String())})
		}
	}
	if err := filesystem.WriteFilesAtomic(files, 0o644, filesystem.DefaultRetryConfig()); err != nil {
		return fmt.Errorf("write catalogues: %w", err)
	}

	for _, out := range res.Outputs(run.base) {
		c := out.Catalogue
		fmt.Fprintf(e.stdout, "%-32s %7d frames %5d ranges  %s\n", c.Label, c.Frames(), len(c.Intervals), paths[c.Label])
	}

	if e.db == nil || run.noRecord {
		return nil
	}
	catalogues := append([]*coalesce.Catalogue(nil), res.Catalogues...)
	if res.NoCandidate != nil {
		catalogues = append(catalogues, res.NoCandidate)
	}
	stored, err := e.db.RecordRun(ctx, database.NewRun{
		Kind:       string(res.Kind),
		Source:     absPath(run.source),
		Alternate:  absPath(run.alternate),
		Base:       run.base,
		Frames:     res.Frames,
		Scenes:     len(res.Scenes),
		Params:     run.params,
		Duration:   time.Since(run.started),
		Paths:      paths,
		Catalogues: catalogues,
	})
	if err != nil {
		logging.Warn("Run not recorded: %v", err)
		return nil
	}
	logging.Info("Recorded run %s", stored.ID)
	return nil
}

func absPath(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// writeMetrics dumps the registry for the node exporter textfile collector.
func writeMetrics(path string) {
	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		logging.Warn("Failed to write metrics to %s: %v", path, err)
	}
}
