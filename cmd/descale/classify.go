package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"descale-qc/internal/kernels"
	"descale-qc/internal/metrics"
	"descale-qc/internal/plan"
	"descale-qc/internal/scenes"
)

func (e *env) newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	fs.SetOutput(e.stderr)
	return fs
}

// runScenes classifies the scenes of one clip against one target.
func runScenes(ctx context.Context, e *env, args []string) error {
	fs := e.newFlagSet("scenes")
	var (
		tf targetFlags
		th thresholdFlags
		af analysisFlags
		of outputFlags
	)
	tf.register(fs, false)
	th.register(fs, scenes.DefaultSingleConfig())
	af.register(fs)
	of.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: descale scenes [flags] CLIP")
	}
	clip := fs.Arg(0)
	if len(tf.kernels) != 1 {
		return errors.New("scenes takes exactly one --kernel; use kernels for several")
	}

	base, err := of.baseName("", clip)
	if err != nil {
		return err
	}
	exclude, err := of.excludeRanges()
	if err != nil {
		return err
	}
	targets, err := e.clipTargets(ctx, clip, &tf)
	if err != nil {
		return err
	}

	cfg := th.apply(scenes.DefaultSingleConfig())
	cfg.Exclude = exclude
	prog := newProgress(e.stderr, "scenes", 0)
	cfg.Observer = scenes.MultiObserver{prog, metrics.NewSceneObserver(string(scenes.KindSingle))}
	acc, err := scenes.NewAccumulator(cfg)
	if err != nil {
		return err
	}

	started := time.Now()
	src, err := e.openSource(ctx, clip, targets, &af)
	if err != nil {
		return err
	}
	defer src.Close()

	res, err := acc.Run(ctx, src)
	prog.finish()
	if err != nil {
		return err
	}
	defer writeMetrics(of.metricsFile)
	return e.finish(ctx, completedRun{
		result:   res,
		source:   clip,
		base:     base,
		outDir:   e.outDir(of.outDir, ""),
		params:   runParams(targets, cfg.IndThreshold, cfg.AvgThreshold, &af),
		rejected: of.writeRejected,
		noRecord: of.noRecord,
		started:  started,
	})
}

// runKernels arbitrates between several targets, from a plan or from
// repeated --kernel flags.
func runKernels(ctx context.Context, e *env, args []string) error {
	fs := e.newFlagSet("kernels")
	var (
		tf targetFlags
		th thresholdFlags
		af analysisFlags
		of outputFlags
	)
	tf.register(fs, true)
	th.register(fs, scenes.DefaultMultiConfig())
	af.register(fs)
	of.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: descale kernels [flags] CLIP")
	}
	clip := fs.Arg(0)

	cfg := scenes.DefaultMultiConfig()
	var (
		targets    []kernels.Target
		candidates []scenes.Candidate
		planBase   string
		planOut    string
	)
	if tf.planFile != "" {
		p, err := plan.Load(tf.planFile)
		if err != nil {
			return err
		}
		if cfg, err = p.Config(cfg); err != nil {
			return err
		}
		targets, candidates = p.Targets, p.Candidates()
		planBase, planOut = p.Basename, p.OutputDir
		if !fs.Changed("error-thr") && p.ErrorThreshold > 0 {
			af.errorThr = p.ErrorThreshold
		}
		if !fs.Changed("scene-thr") && p.SceneThreshold > 0 {
			af.sceneThr = p.SceneThreshold
		}
	} else {
		var err error
		if targets, err = e.clipTargets(ctx, clip, &tf); err != nil {
			return err
		}
		for _, t := range targets {
			candidates = append(candidates, t.Candidate())
		}
	}

	base, err := of.baseName(planBase, clip)
	if err != nil {
		return err
	}
	exclude, err := of.excludeRanges()
	if err != nil {
		return err
	}
	cfg = th.apply(cfg)
	cfg.Exclude = append(cfg.Exclude, exclude...)
	prog := newProgress(e.stderr, "kernels", 0)
	cfg.Observer = scenes.MultiObserver{prog, metrics.NewSceneObserver(string(scenes.KindMulti))}
	arb, err := scenes.NewArbiter(cfg, candidates)
	if err != nil {
		return err
	}

	started := time.Now()
	src, err := e.openSource(ctx, clip, targets, &af)
	if err != nil {
		return err
	}
	defer src.Close()

	res, err := arb.Run(ctx, src)
	prog.finish()
	if err != nil {
		return err
	}
	defer writeMetrics(of.metricsFile)
	return e.finish(ctx, completedRun{
		result:   res,
		source:   clip,
		base:     base,
		outDir:   e.outDir(of.outDir, planOut),
		params:   runParams(targets, cfg.IndThreshold, cfg.AvgThreshold, &af),
		rejected: of.writeRejected,
		noRecord: of.noRecord,
		started:  started,
	})
}

// runChoose picks, scene by scene, which of two sources of the same
// content descales better under one target.
func runChoose(ctx context.Context, e *env, args []string) error {
	fs := e.newFlagSet("choose")
	var (
		tf targetFlags
		af analysisFlags
		of outputFlags
	)
	def := scenes.DefaultDualConfig()
	cfg := def
	tf.register(fs, false)
	fs.StringVar(&cfg.PrimaryName, "primary-name", def.PrimaryName, "catalogue label of the first clip")
	fs.StringVar(&cfg.AlternateName, "alternate-name", def.AlternateName, "catalogue label of the second clip")
	fs.Float64Var(&cfg.Bias, "bias", def.Bias, "multiplier on the alternate's error; above 1 favours the primary")
	fs.Float64Var(&cfg.DontCareThreshold, "dont-care", def.DontCareThreshold, "primary scene average below which the alternate is not considered")
	fs.Float64Var(&cfg.AltRatio, "alt-ratio", def.AltRatio, "ratio of alternate to primary frame error above which the alternate is rejected for the rest of the scene")
	af.register(fs)
	of.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: descale choose [flags] PRIMARY ALTERNATE")
	}
	if af.statsFile != "" {
		return errors.New("--stats cannot be used with two sources")
	}
	primary, alternate := fs.Arg(0), fs.Arg(1)
	if len(tf.kernels) != 1 {
		return errors.New("choose takes exactly one --kernel")
	}

	base, err := of.baseName("", primary)
	if err != nil {
		return err
	}
	if cfg.Exclude, err = of.excludeRanges(); err != nil {
		return err
	}
	prog := newProgress(e.stderr, "choose", 0)
	cfg.Observer = scenes.MultiObserver{prog, metrics.NewSceneObserver(string(scenes.KindDual))}
	arb, err := scenes.NewDualArbiter(cfg)
	if err != nil {
		return err
	}

	targets, err := e.clipTargets(ctx, primary, &tf)
	if err != nil {
		return err
	}
	started := time.Now()
	a, err := e.openSource(ctx, primary, targets, &af)
	if err != nil {
		return err
	}
	defer a.Close()
	b, err := e.openSource(ctx, alternate, targets, &af)
	if err != nil {
		return err
	}
	defer b.Close()

	res, err := arb.Run(ctx, a, b)
	prog.finish()
	if err != nil {
		return err
	}
	params := fmt.Sprintf("%s bias=%g dont_care=%g alt_ratio=%g",
		runParams(targets, 0, 0, &af), cfg.Bias, cfg.DontCareThreshold, cfg.AltRatio)
	defer writeMetrics(of.metricsFile)
	return e.finish(ctx, completedRun{
		result:    res,
		source:    primary,
		alternate: alternate,
		base:      base,
		outDir:    e.outDir(of.outDir, ""),
		params:    params,
		rejected:  of.writeRejected,
		noRecord:  of.noRecord,
		started:   started,
	})
}

// clipTargets builds the command line targets for the size of clip.
func (e *env) clipTargets(ctx context.Context, clip string, tf *targetFlags) ([]kernels.Target, error) {
	info, err := e.decoder.Stat(ctx, clip)
	if err != nil {
		return nil, err
	}
	return tf.targets(info.Width, info.Height)
}

// outDir picks the catalogue directory: the flag, then the plan, then
// OUTPUT_DIR.
func (e *env) outDir(flag, fromPlan string) string {
	switch {
	case flag != "":
		return flag
	case fromPlan != "":
		return fromPlan
	}
	return e.config.OutputDir
}

// runParams summarises the settings of a run for the history.
func runParams(targets []kernels.Target, ind, avg float64, af *analysisFlags) string {
	labels := make([]string, len(targets))
	for i, t := range targets {
		labels[i] = t.Label()
	}
	parts := []string{"targets=" + strings.Join(labels, ",")}
	if ind > 0 {
		parts = append(parts, fmt.Sprintf("ind_thr=%g avg_thr=%g", ind, avg))
	}
	parts = append(parts, af.cacheParams()...)
	return strings.Join(parts, " ")
}
