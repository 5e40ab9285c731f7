package scenes

import (
	"context"
	"fmt"

	"descale-qc/internal/coalesce"
	"descale-qc/internal/logging"
)

// DualConfig configures a DualArbiter.
type DualConfig struct {
	PrimaryName   string
	AlternateName string
	// Bias scales the alternate's average before it is compared with the
	// primary's. Zero means 1.
	Bias float64
	// DontCareThreshold is the primary average below which the primary is
	// always kept. Zero means DefaultDontCareThreshold.
	DontCareThreshold float64
	// AltRatio trips the alternate for the rest of the scene when one of
	// its frames is worse than the primary's by this factor. Zero means
	// DefaultAltRatio.
	AltRatio float64
	Exclude  []coalesce.Interval
	Observer Observer
}

// DefaultDualConfig returns a DualConfig with the default names and ratios.
func DefaultDualConfig() DualConfig {
	return DualConfig{
		PrimaryName:       "clip1",
		AlternateName:     "clip2",
		Bias:              1,
		DontCareThreshold: DefaultDontCareThreshold,
		AltRatio:          DefaultAltRatio,
	}
}

func (c *DualConfig) applyDefaults() {
	def := DefaultDualConfig()
	if c.PrimaryName == "" {
		c.PrimaryName = def.PrimaryName
	}
	if c.AlternateName == "" {
		c.AlternateName = def.AlternateName
	}
	if c.Bias == 0 {
		c.Bias = def.Bias
	}
	if c.DontCareThreshold == 0 {
		c.DontCareThreshold = def.DontCareThreshold
	}
	if c.AltRatio == 0 {
		c.AltRatio = def.AltRatio
	}
}

func (c DualConfig) validate() error {
	if err := ValidateLabel(c.PrimaryName); err != nil {
		return configErr("primary_name", "%v", err)
	}
	if err := ValidateLabel(c.AlternateName); err != nil {
		return configErr("alternate_name", "%v", err)
	}
	if c.PrimaryName == c.AlternateName {
		return configErr("alternate_name", "must differ from primary name %q", c.PrimaryName)
	}
	if c.Bias < 0 {
		return configErr("bias", "must be positive, got %v", c.Bias)
	}
	if c.DontCareThreshold < 0 {
		return configErr("dont_care_thr", "must not be negative, got %v", c.DontCareThreshold)
	}
	if c.AltRatio < 0 {
		return configErr("alt_ratio", "must not be negative, got %v", c.AltRatio)
	}
	return Config{Exclude: c.Exclude}.validate()
}

// DualArbiter decides, per scene, which of two full sources is the
// defective one. The primary is kept unless it is clearly worse.
type DualArbiter struct {
	cfg      DualConfig
	observer Observer
	exclude  exclusion
}

// NewDualArbiter fills in defaults and validates cfg.
func NewDualArbiter(cfg DualConfig) (*DualArbiter, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &DualArbiter{
		cfg:      cfg,
		observer: observerOrNop(cfg.Observer),
		exclude:  newExclusion(cfg.Exclude),
	}, nil
}

// Config returns the effective configuration.
func (d *DualArbiter) Config() DualConfig {
	return d.cfg
}

// Run compares primary and alternate scene by scene. Scene changes are
// taken from the primary. Both sources must have the same length.
func (d *DualArbiter) Run(ctx context.Context, primary, alternate Source) (*Result, error) {
	total, err := checkSource(primary, d.cfg.PrimaryName)
	if err != nil {
		return nil, err
	}
	altTotal, err := checkSource(alternate, d.cfg.AlternateName)
	if err != nil {
		return nil, err
	}
	if total != altTotal {
		return nil, configErr("sources", "length mismatch: %s has %d frames, %s has %d",
			d.cfg.PrimaryName, total, d.cfg.AlternateName, altTotal)
	}

	pri := newCandidateState(Candidate{Label: d.cfg.PrimaryName}, Config{})
	alt := newCandidateState(Candidate{Label: d.cfg.AlternateName}, Config{})
	res := &Result{Kind: KindDual, Frames: total}
	cur := sceneCursor{}

	for n := 0; n < total; n++ {
		pf, err := pullFrame(ctx, primary, n)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.cfg.PrimaryName, err)
		}

		if n > 0 && pf.SceneChange() {
			res.Scenes = append(res.Scenes, d.closeScene(&pri, &alt, cur, n-1))
			cur = sceneCursor{start: n}
		}
		cur.frames++

		// Both sources are pulled on every index; errors are only
		// evaluated for measured frames.
		af, err := pullFrame(ctx, alternate, n)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.cfg.AlternateName, err)
		}

		if alt.tripped || d.exclude.Contains(n) {
			d.observer.ObserveFrame(n, total, false)
			continue
		}
		pv, err := frameError(pf)
		if err != nil {
			return nil, fmt.Errorf("%s frame %d: %w", d.cfg.PrimaryName, n, err)
		}
		av, err := frameError(af)
		if err != nil {
			return nil, fmt.Errorf("%s frame %d: %w", d.cfg.AlternateName, n, err)
		}
		pri.sum += pv
		alt.sum += av
		if av > pv*d.cfg.AltRatio {
			alt.tripped = true
			logging.Debug("Frame %d: %s error %.6f exceeds %.1fx %s error %.6f",
				n, alt.label, av, d.cfg.AltRatio, pri.label, pv)
		}
		d.observer.ObserveFrame(n, total, true)
	}

	res.Scenes = append(res.Scenes, d.closeScene(&pri, &alt, cur, total-1))
	res.Catalogues = []*coalesce.Catalogue{pri.runs.Finish(), alt.runs.Finish()}
	return res, nil
}

func frameError(f Frame) (float64, error) {
	complexity, err := f.Complexity()
	if err != nil {
		return 0, fmt.Errorf("complexity: %w", err)
	}
	return normalizedError(f, 0, complexity)
}

func (d *DualArbiter) closeScene(pri, alt *candidateState, cur sceneCursor, end int) SceneDecision {
	avgP := average(pri.sum, cur.frames)
	avgA := average(alt.sum, cur.frames)

	primaryDefective := avgP > avgA*d.cfg.Bias && avgP > d.cfg.DontCareThreshold && !alt.tripped
	dec := SceneDecision{
		Start:    cur.start,
		End:      end,
		Frames:   cur.frames,
		Labels:   []string{pri.label, alt.label},
		Averages: []float64{avgP, avgA},
		Accepted: []bool{!primaryDefective, primaryDefective},
		Tripped:  []bool{false, alt.tripped},
	}
	logging.Debug("Scene [%d %d]: %s avg %.6f, %s avg %.6f, keeping %s",
		cur.start, end, pri.label, avgP, alt.label, avgA, keptLabel(dec))

	pri.runs.Scene(cur.start, end, !primaryDefective)
	alt.runs.Scene(cur.start, end, primaryDefective)
	pri.reset()
	alt.reset()
	d.observer.ObserveScene(dec)
	return dec
}

func keptLabel(d SceneDecision) string {
	for i, ok := range d.Accepted {
		if ok {
			return d.Labels[i]
		}
	}
	return NoCandidateLabel
}
