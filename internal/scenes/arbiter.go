package scenes

import (
	"context"
	"fmt"
	"math"

	"descale-qc/internal/coalesce"
	"descale-qc/internal/logging"
)

// Arbiter picks, per scene, the single candidate with the lowest biased
// average error. Ties at the minimum reject every candidate, and scenes
// where every candidate is rejected go to the nokernel catalogue.
type Arbiter struct {
	cfg        Config
	candidates []Candidate
	observer   Observer
	exclude    exclusion
}

// NewArbiter validates the configuration and candidate list.
func NewArbiter(cfg Config, candidates []Candidate) (*Arbiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := validateCandidates(candidates); err != nil {
		return nil, err
	}
	return &Arbiter{
		cfg:        cfg,
		candidates: append([]Candidate(nil), candidates...),
		observer:   observerOrNop(cfg.Observer),
		exclude:    newExclusion(cfg.Exclude),
	}, nil
}

// Run classifies every scene of src. The source must expose exactly the
// arbiter's candidates, in the same order.
func (a *Arbiter) Run(ctx context.Context, src Source) (*Result, error) {
	total, err := checkSource(src, "source")
	if err != nil {
		return nil, err
	}
	labels := src.Candidates()
	if len(labels) != len(a.candidates) {
		return nil, configErr("candidates", "source exposes %d candidates, arbiter has %d", len(labels), len(a.candidates))
	}
	for i, c := range a.candidates {
		if labels[i] != c.Label {
			return nil, configErr(fmt.Sprintf("candidates[%d]", i), "source label %q does not match %q", labels[i], c.Label)
		}
	}

	states := make([]candidateState, len(a.candidates))
	for i, c := range a.candidates {
		states[i] = newCandidateState(c, a.cfg)
	}
	none := coalesce.NewCoalescer(NoCandidateLabel)
	res := &Result{Kind: KindMulti, Frames: total}
	cur := sceneCursor{}

	for n := 0; n < total; n++ {
		f, err := pullFrame(ctx, src, n)
		if err != nil {
			return nil, err
		}

		if n > 0 && f.SceneChange() {
			res.Scenes = append(res.Scenes, a.closeScene(states, none, cur, n-1))
			cur = sceneCursor{start: n}
		}
		cur.frames++

		if allTripped(states) || a.exclude.Contains(n) {
			a.observer.ObserveFrame(n, total, false)
			continue
		}

		complexity, err := f.Complexity()
		if err != nil {
			return nil, fmt.Errorf("frame %d complexity: %w", n, err)
		}
		for i := range states {
			v, err := normalizedError(f, i, complexity)
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", n, err)
			}
			wasTripped := states[i].tripped
			states[i].add(v)
			if !wasTripped && states[i].tripped {
				logging.Debug("Frame %d: %s breached the per-frame ceiling (%.6f > %.6f)",
					n, states[i].label, v, states[i].indThr)
			}
		}
		a.observer.ObserveFrame(n, total, true)
	}

	res.Scenes = append(res.Scenes, a.closeScene(states, none, cur, total-1))
	res.Catalogues = make([]*coalesce.Catalogue, len(states))
	for i := range states {
		res.Catalogues[i] = states[i].runs.Finish()
	}
	res.NoCandidate = none.Finish()
	return res, nil
}

func allTripped(states []candidateState) bool {
	for i := range states {
		if !states[i].tripped {
			return false
		}
	}
	return true
}

func (a *Arbiter) closeScene(states []candidateState, none *coalesce.Coalescer, cur sceneCursor, end int) SceneDecision {
	d := SceneDecision{
		Start:    cur.start,
		End:      end,
		Frames:   cur.frames,
		Labels:   make([]string, len(states)),
		Averages: make([]float64, len(states)),
		Accepted: make([]bool, len(states)),
		Tripped:  make([]bool, len(states)),
	}

	lowest := math.Inf(1)
	for i := range states {
		d.Labels[i] = states[i].label
		d.Tripped[i] = states[i].tripped
		d.Averages[i] = average(states[i].sum, cur.frames) / states[i].bias
		if d.Averages[i] < lowest {
			lowest = d.Averages[i]
		}
	}
	ties := 0
	for _, avg := range d.Averages {
		if avg == lowest {
			ties++
		}
	}

	accepted := 0
	for i := range states {
		ok := ties == 1 &&
			!states[i].tripped &&
			d.Averages[i] == lowest &&
			d.Averages[i] <= states[i].avgThr
		d.Accepted[i] = ok
		if ok {
			accepted++
		}
		states[i].runs.Scene(cur.start, end, ok)
		states[i].reset()
	}
	d.NoCandidate = accepted == 0
	none.Scene(cur.start, end, d.NoCandidate)

	if ties > 1 {
		logging.Debug("Scene [%d %d]: %d candidates tie at %.6f, none accepted", cur.start, end, ties, lowest)
	} else if d.NoCandidate {
		logging.Debug("Scene [%d %d]: no candidate fits (lowest %.6f)", cur.start, end, lowest)
	}
	a.observer.ObserveScene(d)
	return d
}
