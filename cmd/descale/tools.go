package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"descale-qc/internal/analysis"
	"descale-qc/internal/database"
	"descale-qc/internal/decoder"
	"descale-qc/internal/filesystem"
	"descale-qc/internal/framestats"
	"descale-qc/internal/kernels"
	"descale-qc/internal/metrics"
	"descale-qc/internal/offset"
	"descale-qc/internal/plan"
	"descale-qc/internal/scenes"
	"descale-qc/internal/workers"
)

// planOrFlagTargets returns the plan's targets when --plan is set and the
// command line targets otherwise.
func (e *env) planOrFlagTargets(ctx context.Context, clip string, tf *targetFlags, af *analysisFlags, changed func(string) bool) ([]kernels.Target, error) {
	if tf.planFile == "" {
		return e.clipTargets(ctx, clip, tf)
	}
	p, err := plan.Load(tf.planFile)
	if err != nil {
		return nil, err
	}
	if !changed("error-thr") && p.ErrorThreshold > 0 {
		af.errorThr = p.ErrorThreshold
	}
	if !changed("scene-thr") && p.SceneThreshold > 0 {
		af.sceneThr = p.SceneThreshold
	}
	return p.Targets, nil
}

// runStats computes the per-frame statistics of a clip and stores them in
// the framestats cache, or in --output.
func runStats(ctx context.Context, e *env, args []string) error {
	fs := e.newFlagSet("stats")
	var (
		tf           targetFlags
		af           analysisFlags
		output       string
		sceneListOut string
	)
	tf.register(fs, true)
	af.register(fs)
	fs.StringVar(&output, "output", "", "CSV file to write (default the framestats cache)")
	fs.StringVar(&sceneListOut, "scene-list-out", "", "also write the scene starts to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: descale stats [flags] CLIP")
	}
	clip := fs.Arg(0)

	targets, err := e.planOrFlagTargets(ctx, clip, &tf, &af, fs.Changed)
	if err != nil {
		return err
	}
	labels := make([]string, len(targets))
	for i, t := range targets {
		labels[i] = t.Label()
	}
	if output == "" {
		if !e.config.StatsCacheEnabled {
			return errors.New("the framestats cache is disabled; pass --output")
		}
		key, err := framestats.CacheKey(clip, labels, af.cacheParams()...)
		if err != nil {
			return err
		}
		output = framestats.CachePath(e.config.StatsCacheDir, key)
	}

	src, err := e.liveSource(ctx, clip, targets, &af)
	if err != nil {
		return err
	}
	defer src.Close()

	var buf bytes.Buffer
	w, err := framestats.NewWriter(&buf, labels)
	if err != nil {
		return err
	}
	prog := newProgress(e.stderr, "stats", src.Len())
	err = framestats.Capture(ctx, src, w, func(n, _ int) { prog.step(n + 1) })
	prog.finish()
	if err != nil {
		return err
	}

	cfg := filesystem.DefaultRetryConfig()
	if err := filesystem.WriteFileAtomic(output, buf.Bytes(), 0o644, cfg); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s\n", output)

	if sceneListOut == "" {
		return nil
	}
	t, err := framestats.Read(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return err
	}
	var cuts []int
	for n := 0; n < t.Len(); n++ {
		if t.Record(n).SceneChange {
			cuts = append(cuts, n)
		}
	}
	var list bytes.Buffer
	if err := analysis.WriteSceneList(&list, cuts); err != nil {
		return err
	}
	return filesystem.WriteFileAtomic(sceneListOut, list.Bytes(), 0o644, cfg)
}

// runInspect prints complexity and errors of a frame range.
func runInspect(ctx context.Context, e *env, args []string) error {
	fs := e.newFlagSet("inspect")
	var (
		tf         targetFlags
		af         analysisFlags
		start, end int
	)
	tf.register(fs, true)
	af.register(fs)
	fs.IntVar(&start, "start", 0, "first frame")
	fs.IntVar(&end, "end", -1, "last frame, inclusive (default --start)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: descale inspect [flags] CLIP")
	}
	clip := fs.Arg(0)
	if end < 0 {
		end = start
	}
	if start < 0 || end < start {
		return fmt.Errorf("invalid frame range %d-%d", start, end)
	}

	targets, err := e.planOrFlagTargets(ctx, clip, &tf, &af, fs.Changed)
	if err != nil {
		return err
	}
	src, err := e.openSource(ctx, clip, targets, &af)
	if err != nil {
		return err
	}
	defer src.Close()
	if end >= src.Len() {
		return fmt.Errorf("frame %d out of range, clip has %d frames", end, src.Len())
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FRAME\tCUT\tCOMPLEXITY\tCANDIDATE\tERROR\tNORMALISED")
	labels := src.Candidates()
	for n := start; n <= end; n++ {
		f, err := src.Frame(ctx, n)
		if err != nil {
			return fmt.Errorf("frame %d: %w", n, err)
		}
		complexity, err := f.Complexity()
		if err != nil {
			return fmt.Errorf("frame %d: %w", n, err)
		}
		for i, label := range labels {
			raw, err := f.Error(i)
			if err != nil {
				return fmt.Errorf("frame %d %s: %w", n, label, err)
			}
			fmt.Fprintf(tw, "%d\t%v\t%.6f\t%s\t%.6f\t%.6f\n",
				n, f.SceneChange(), complexity, label, raw, scenes.Normalize(raw, complexity))
		}
	}
	return tw.Flush()
}

// thumbFlags size the frames compared by offset searches.
type thumbFlags struct {
	width, height int
	approx        int
	method        string
}

func (t *thumbFlags) register(fs *pflag.FlagSet, method offset.Method) {
	fs.IntVar(&t.width, "thumb-width", 160, "width frames are scaled to before comparing; 0 keeps the clip size")
	fs.IntVar(&t.height, "thumb-height", 90, "height frames are scaled to before comparing")
	fs.IntVar(&t.approx, "approx", offset.DefaultApproxOffset, "largest offset searched in either direction")
	fs.StringVar(&t.method, "method", method.String(), "comparison: psnr, psnr-hvs, ssim, ms-ssim or diff")
}

func (t *thumbFlags) options() decoder.Options {
	if t.width <= 0 || t.height <= 0 {
		return decoder.Options{}
	}
	return decoder.Options{Width: t.width, Height: t.height}
}

// runOffset finds the offset of every clip relative to the first.
func runOffset(ctx context.Context, e *env, args []string) error {
	fs := e.newFlagSet("offset")
	var (
		th       thumbFlags
		refFrame int
	)
	th.register(fs, offset.SSIM)
	fs.IntVar(&refFrame, "ref-frame", -1, "reference frame (default the middle of the reference)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("usage: descale offset [flags] REFERENCE CLIP...")
	}
	method, err := offset.ParseMethod(th.method)
	if err != nil {
		return err
	}

	var cursors []*decoder.Cursor
	defer func() {
		for _, c := range cursors {
			_ = c.Close()
		}
	}()
	for _, path := range fs.Args() {
		r, err := e.decoder.Open(ctx, path, th.options())
		if err != nil {
			return err
		}
		cursors = append(cursors, decoder.NewCursor(r))
	}

	clips := make([]offset.Clip[*decoder.Plane], 0, len(cursors)-1)
	for _, c := range cursors[1:] {
		clips = append(clips, c)
	}
	started := time.Now()
	offsets, err := offset.FindOffset[*decoder.Plane](ctx, cursors[0], clips, offset.Options[*decoder.Plane]{
		ApproxOffset: th.approx,
		RefFrame:     refFrame,
		Method:       method,
		Measure:      analysis.Measure,
	})
	if err != nil {
		return err
	}
	for i, off := range offsets {
		metrics.OffsetLastValue.Set(float64(off))
		fmt.Fprintf(e.stdout, "%s\t%d\n", fs.Arg(i+1), off)
	}
	metrics.OffsetSearchDuration.Observe(time.Since(started).Seconds())
	return nil
}

// runDesync scans two clips for points where their offset changes.
func runDesync(ctx context.Context, e *env, args []string) error {
	fs := e.newFlagSet("desync")
	var (
		th      thumbFlags
		parts   int
		overlap int
		asJSON  bool
	)
	th.register(fs, offset.Diff)
	fs.IntVar(&parts, "parts", offset.DefaultNumParts, "number of parts the timeline is split into")
	fs.IntVar(&overlap, "overlap", offset.DefaultOverlap, "percentage of each part shared with the next")
	fs.BoolVar(&asJSON, "json", false, "print the desyncs as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: descale desync [flags] CLIP_A CLIP_B")
	}
	method, err := offset.ParseMethod(th.method)
	if err != nil {
		return err
	}

	load := func(ctx context.Context, path string) (offset.Frames[*decoder.Plane], error) {
		r, err := e.decoder.Open(ctx, path, th.options())
		if err != nil {
			return nil, err
		}
		defer r.Close()
		frames, err := decoder.ReadAll(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return frames, nil
	}
	clips := make([]offset.Frames[*decoder.Plane], 2)
	err = workers.Each(ctx, len(clips), workers.ForIO(len(clips)), func(ctx context.Context, i int) error {
		frames, err := load(ctx, fs.Arg(i))
		clips[i] = frames
		return err
	})
	if err != nil {
		return err
	}
	a, b := clips[0], clips[1]
	if len(a) == 0 {
		return fmt.Errorf("%s has no frames", fs.Arg(0))
	}
	width, height := a[0].Width, a[0].Height

	prog := newProgress(e.stderr, "desync", parts)
	opts := offset.DefaultDesyncOptions[*decoder.Plane](analysis.Measure)
	opts.ApproxOffset = th.approx
	opts.NumParts = parts
	opts.Overlap = overlap
	opts.Method = method
	opts.Blank = func() *decoder.Plane { return decoder.NewPlane(width, height) }
	opts.Observer = desyncObservers{prog, metrics.NewOffsetObserver()}

	started := time.Now()
	desyncs, err := offset.FindDesync[*decoder.Plane](ctx, a, b, opts)
	prog.finish()
	if err != nil {
		return err
	}
	metrics.OffsetSearchDuration.Observe(time.Since(started).Seconds())

	if asJSON {
		enc := json.NewEncoder(e.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(desyncs)
	}
	if len(desyncs) == 0 {
		fmt.Fprintln(e.stdout, "no desync found")
		return nil
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PART\tFRAME\tOFFSET\tB FRAME")
	for _, d := range desyncs {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", d.Part.Index, d.Frame, d.Offset, d.Frame+d.Offset)
	}
	return tw.Flush()
}

// runRuns lists, shows or deletes recorded runs.
func runRuns(ctx context.Context, e *env, args []string) error {
	fs := e.newFlagSet("runs")
	var (
		kind     string
		page     int
		pageSize int
		show     string
		remove   string
		asJSON   bool
	)
	fs.StringVar(&kind, "kind", "", "only runs of this kind: single, multi or dual")
	fs.IntVar(&page, "page", 1, "page number")
	fs.IntVar(&pageSize, "page-size", 20, "runs per page")
	fs.StringVar(&show, "show", "", "print one run with its catalogues")
	fs.StringVar(&remove, "delete", "", "forget a run")
	fs.BoolVar(&asJSON, "json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if e.db == nil {
		return errors.New("run history is unavailable (check DATABASE_DIR)")
	}

	switch {
	case remove != "":
		if err := e.db.DeleteRun(ctx, remove); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "deleted %s\n", remove)
		return nil
	case show != "":
		run, err := e.db.GetRun(ctx, show)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(e, run)
		}
		printRun(e, run)
		return nil
	}

	list, err := e.db.ListRuns(ctx, database.ListOptions{Kind: kind, Page: page, PageSize: pageSize})
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(e, list)
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tBASE\tFRAMES\tSCENES\tDURATION\tCREATED")
	for _, r := range list.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ID, r.Kind, r.Base, r.Frames, r.Scenes, r.Duration, r.CreatedAt.Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "page %d of %d, %d runs\n", list.Page, list.TotalPages, list.TotalItems)
	return nil
}

func printRun(e *env, run *database.Run) {
	fmt.Fprintf(e.stdout, "Run:      %s\n", run.ID)
	fmt.Fprintf(e.stdout, "Kind:     %s\n", run.Kind)
	fmt.Fprintf(e.stdout, "Source:   %s\n", run.Source)
	if run.Alternate != "" {
		fmt.Fprintf(e.stdout, "Alternate: %s\n", run.Alternate)
	}
	fmt.Fprintf(e.stdout, "Frames:   %d in %d scenes\n", run.Frames, run.Scenes)
	fmt.Fprintf(e.stdout, "Params:   %s\n", run.Params)
	fmt.Fprintf(e.stdout, "Took:     %s\n", run.Duration)
	for _, c := range run.Catalogues {
		fmt.Fprintf(e.stdout, "  %-32s %7d frames %5d ranges  %s\n", c.Label, c.Frames, c.Intervals, c.Path)
	}
}

func writeJSON(e *env, v interface{}) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
