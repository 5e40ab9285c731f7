package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"descale-qc/internal/analysis"
	"descale-qc/internal/coalesce"
	"descale-qc/internal/kernels"
	"descale-qc/internal/plan"
	"descale-qc/internal/scenes"
)

// analysisFlags select where per-frame statistics come from.
type analysisFlags struct {
	errorThr  float64
	sceneThr  float64
	sceneList string
	statsFile string
	noCache   bool
}

func (a *analysisFlags) register(fs *pflag.FlagSet) {
	fs.Float64Var(&a.errorThr, "error-thr", analysis.DefaultErrorThreshold, "per-pixel floor of the error image")
	fs.Float64Var(&a.sceneThr, "scene-thr", analysis.DefaultSceneThreshold, "scene change detector threshold")
	fs.StringVar(&a.sceneList, "scene-list", "", "file of scene-start frame numbers, one per line, instead of detection")
	fs.StringVar(&a.statsFile, "stats", "", "precomputed framestats CSV to classify instead of decoding")
	fs.BoolVar(&a.noCache, "no-cache", false, "ignore the framestats cache")
}

func (a *analysisFlags) cacheParams() []string {
	return []string{
		"error_thr=" + strconv.FormatFloat(a.errorThr, 'g', -1, 64),
		"scene_thr=" + strconv.FormatFloat(a.sceneThr, 'g', -1, 64),
		"scene_list=" + a.sceneList,
	}
}

// sceneChanges returns the known scene starts for clip, or nil to detect
// them.
func (a *analysisFlags) sceneChanges(clip string) ([]int, error) {
	if a.sceneList != "" {
		f, err := os.Open(a.sceneList)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		cuts, err := analysis.ReadSceneList(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.sceneList, err)
		}
		return cuts, nil
	}
	if st, err := os.Stat(clip); err == nil && st.IsDir() {
		return analysis.LoadSceneList(clip)
	}
	return nil, nil
}

// outputFlags control the catalogue files of a run.
type outputFlags struct {
	outDir        string
	base          string
	exclude       []string
	excludeFiles  []string
	writeRejected bool
	noRecord      bool
	metricsFile   string
}

func (o *outputFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&o.outDir, "out", "o", "", "catalogue directory (default $OUTPUT_DIR)")
	fs.StringVarP(&o.base, "base", "b", "", "catalogue base name (default the clip name)")
	fs.StringArrayVarP(&o.exclude, "exclude", "x", nil, "frame range START-END to leave out, repeatable")
	fs.StringArrayVar(&o.excludeFiles, "exclude-file", nil, "catalogue file whose ranges are left out, repeatable")
	fs.BoolVar(&o.writeRejected, "write-rejected", false, "also write the complement of every catalogue")
	fs.BoolVar(&o.noRecord, "no-record", false, "do not record the run in the history database")
	fs.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics to this file when done")
}

// baseName picks the catalogue base name and validates it.
func (o *outputFlags) baseName(fallback, clip string) (string, error) {
	base := o.base
	if base == "" {
		base = fallback
	}
	if base == "" {
		base = strings.TrimSuffix(filepath.Base(filepath.Clean(clip)), filepath.Ext(clip))
	}
	if err := scenes.ValidateBaseName(base); err != nil {
		return "", err
	}
	return base, nil
}

func (o *outputFlags) excludeRanges() ([]coalesce.Interval, error) {
	var out []coalesce.Interval
	for _, s := range o.exclude {
		iv, err := parseRange(s)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	for _, f := range o.excludeFiles {
		ranges, err := plan.ReadCatalogue(f)
		if err != nil {
			return nil, err
		}
		out = append(out, ranges...)
	}
	return coalesce.Merge(out), nil
}

// parseRange reads "START-END" or "START:END", both inclusive.
func parseRange(s string) (coalesce.Interval, error) {
	sep := "-"
	if strings.Contains(s, ":") {
		sep = ":"
	}
	a, b, ok := strings.Cut(strings.TrimSpace(s), sep)
	if !ok {
		return coalesce.Interval{}, fmt.Errorf("range %q: want START-END", s)
	}
	start, err1 := strconv.Atoi(strings.TrimSpace(a))
	end, err2 := strconv.Atoi(strings.TrimSpace(b))
	if err := errors.Join(err1, err2); err != nil {
		return coalesce.Interval{}, fmt.Errorf("range %q: %w", s, err)
	}
	if start < 0 || end < start {
		return coalesce.Interval{}, fmt.Errorf("range %q: want 0 <= START <= END", s)
	}
	return coalesce.Interval{Start: start, End: end}, nil
}

// thresholdFlags override the per-frame and per-scene ceilings.
type thresholdFlags struct {
	ind, avg float64
	fs       *pflag.FlagSet
}

func (t *thresholdFlags) register(fs *pflag.FlagSet, def scenes.Config) {
	t.fs = fs
	fs.Float64Var(&t.ind, "ind-thr", def.IndThreshold, "per-frame normalised error ceiling")
	fs.Float64Var(&t.avg, "avg-thr", def.AvgThreshold, "per-scene average error ceiling")
}

// apply sets the thresholds given on the command line; unset flags keep
// the values of cfg.
func (t *thresholdFlags) apply(cfg scenes.Config) scenes.Config {
	if t.fs.Changed("ind-thr") {
		cfg.IndThreshold = t.ind
	}
	if t.fs.Changed("avg-thr") {
		cfg.AvgThreshold = t.avg
	}
	return cfg
}

// targetFlags describe descale targets on the command line.
type targetFlags struct {
	kernels    []string
	baseHeight int
	baseWidth  int
	srcHeight  float64
	mode       string
	srcTop     float64
	srcLeft    float64
	srcWidth   float64
	planFile   string
}

func (t *targetFlags) register(fs *pflag.FlagSet, withPlan bool) {
	fs.StringArrayVarP(&t.kernels, "kernel", "k", nil, `kernel such as "bilinear", "bicubic:b=0:c=0.5" or "lanczos:taps=3", repeatable`)
	fs.IntVar(&t.baseHeight, "height", 0, "descale height (the base height for fractional targets)")
	fs.IntVar(&t.baseWidth, "width", 0, "descale width (default from the clip aspect ratio)")
	fs.Float64Var(&t.srcHeight, "src-height", 0, "fractional source height")
	fs.StringVar(&t.mode, "mode", "", "fractional crop mode: w, h or wh")
	fs.Float64Var(&t.srcTop, "src-top", 0, "manual window top")
	fs.Float64Var(&t.srcLeft, "src-left", 0, "manual window left")
	fs.Float64Var(&t.srcWidth, "src-width", 0, "manual window width; enables manual geometry")
	if withPlan {
		fs.StringVarP(&t.planFile, "plan", "p", "", "YAML run plan")
	}
}

// targets builds one target per --kernel for a clip of the given size.
func (t *targetFlags) targets(clipWidth, clipHeight int) ([]kernels.Target, error) {
	if len(t.kernels) == 0 {
		return nil, errors.New("no --kernel given")
	}
	if t.baseHeight <= 0 {
		return nil, errors.New("--height is required")
	}
	width := t.baseWidth
	if width <= 0 {
		width = evenWidth(t.baseHeight, clipWidth, clipHeight)
	}

	out := make([]kernels.Target, 0, len(t.kernels))
	for _, s := range t.kernels {
		k, err := kernels.Parse(s)
		if err != nil {
			return nil, err
		}
		target := kernels.Target{
			Kernel:     k,
			BaseHeight: t.baseHeight,
			BaseWidth:  width,
			SrcHeight:  t.srcHeight,
			Mode:       t.mode,
		}
		if t.srcWidth > 0 {
			target.SrcHeight = 0
			target.Manual = &kernels.Window{Top: t.srcTop, Height: t.srcHeight, Left: t.srcLeft, Width: t.srcWidth}
		}
		if err := target.Validate(); err != nil {
			return nil, err
		}
		out = append(out, target)
	}
	return out, nil
}

// evenWidth keeps the clip aspect ratio at height, rounded to an even
// width.
func evenWidth(height, clipWidth, clipHeight int) int {
	if clipHeight <= 0 {
		return 0
	}
	return int(math.Round(float64(height)*float64(clipWidth)/float64(clipHeight)/2)) * 2
}
